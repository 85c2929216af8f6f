// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"comicforge-api/internal/domain/entity"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	// Create 创建用户
	Create(ctx context.Context, user *entity.User) error

	// GetByID 根据 ID 获取用户
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// GetByEmail 根据邮箱获取用户
	GetByEmail(ctx context.Context, email string) (*entity.User, error)

	// Update 更新用户资料
	Update(ctx context.Context, user *entity.User) error

	// TouchLastLogin 更新最近登录时间
	TouchLastLogin(ctx context.Context, id string) error
}
