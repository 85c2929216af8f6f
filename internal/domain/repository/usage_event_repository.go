// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"comicforge-api/internal/domain/entity"
)

// UsageEventRepository 计量事件仓储接口
type UsageEventRepository interface {
	// Create 记录一条计量事件
	Create(ctx context.Context, event *entity.UsageEvent) error

	// ListByUser 获取用户最近的计量事件
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.UsageEvent], error)
}
