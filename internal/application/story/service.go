// Package story 实现故事与页的只读查询
package story

import (
	"context"

	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/domain/repository"
	"comicforge-api/pkg/errors"
)

// Service 故事查询服务
type Service struct {
	stories repository.StoryRepository
	pages   repository.PageRepository
	usage   repository.UsageEventRepository
}

// NewService 创建故事查询服务
func NewService(stories repository.StoryRepository, pages repository.PageRepository, usage repository.UsageEventRepository) *Service {
	return &Service{stories: stories, pages: pages, usage: usage}
}

// ListStories 用户的故事列表
func (s *Service) ListStories(ctx context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	return s.stories.ListByOwner(ctx, ownerID, pagination)
}

// GetStory 获取故事，校验所有权
func (s *Service) GetStory(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	story, err := s.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, errors.ErrStoryNotFound
	}
	if story.OwnerID != ownerID {
		return nil, errors.ErrForbidden
	}
	return story, nil
}

// ListPages 故事的页列表，校验所有权
func (s *Service) ListPages(ctx context.Context, ownerID, storyID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Page], error) {
	if _, err := s.GetStory(ctx, ownerID, storyID); err != nil {
		return nil, err
	}
	return s.pages.ListByStory(ctx, storyID, pagination)
}

// DeleteStory 删除故事，校验所有权。页记录由外键级联删除
func (s *Service) DeleteStory(ctx context.Context, ownerID, storyID string) error {
	if _, err := s.GetStory(ctx, ownerID, storyID); err != nil {
		return err
	}
	return s.stories.Delete(ctx, storyID)
}

// GetPage 获取单页，校验所有权
func (s *Service) GetPage(ctx context.Context, ownerID, pageID string) (*entity.Page, error) {
	page, err := s.pages.GetByID(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errors.ErrPageNotFound
	}
	if page.OwnerID != ownerID {
		return nil, errors.ErrForbidden
	}
	return page, nil
}

// ListUsage 用户最近的计量事件
func (s *Service) ListUsage(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.UsageEvent], error) {
	return s.usage.ListByUser(ctx, userID, pagination)
}
