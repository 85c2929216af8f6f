// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"comicforge-api/internal/domain/entity"
)

// StoryRepository 故事仓储接口
type StoryRepository interface {
	// Create 创建故事
	Create(ctx context.Context, story *entity.Story) error

	// GetByID 根据 ID 获取故事
	GetByID(ctx context.Context, id string) (*entity.Story, error)

	// ListByOwner 获取用户故事列表
	ListByOwner(ctx context.Context, ownerID string, pagination Pagination) (*PagedResult[*entity.Story], error)

	// Activate 将故事置为 active，并写入封面与页数
	Activate(ctx context.Context, id string, coverURL string, pageCount int) error

	// IncrementPageCount 页数 +1
	IncrementPageCount(ctx context.Context, id string) error

	// Delete 删除故事（级联删除页）
	Delete(ctx context.Context, id string) error
}
