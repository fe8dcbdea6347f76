package repository

import (
	"context"

	"team-caltalk/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户。
	// 如果用户不存在，应返回 repository.ErrUserNotFound。
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindByEmail 根据邮箱查找用户。
	// 如果用户不存在，应返回 repository.ErrUserNotFound。
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// Save 保存用户信息。如果用户已存在 (基于 ID) 则更新，否则创建。
	// 违反唯一约束时返回 repository.ErrDuplicateEntry。
	Save(ctx context.Context, user *domain.User) error
}
