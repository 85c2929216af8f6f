// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"comicforge-api/internal/domain/entity"
)

// PageRepository 漫画页仓储接口
type PageRepository interface {
	// Create 创建页
	Create(ctx context.Context, page *entity.Page) error

	// GetByID 根据 ID 获取页
	GetByID(ctx context.Context, id string) (*entity.Page, error)

	// ListByStory 获取故事的页列表（按 seq 升序）
	ListByStory(ctx context.Context, storyID string, pagination Pagination) (*PagedResult[*entity.Page], error)

	// NextSeq 获取故事的下一个页序号
	NextSeq(ctx context.Context, storyID string) (int, error)

	// Delete 删除页
	Delete(ctx context.Context, id string) error
}
