package repository

import (
	"context"

	"team-caltalk/internal/domain"
)

// MessageRepository 定义了聊天消息的存储和检索操作。
type MessageRepository interface {
	// Save 持久化一条新消息，由数据库分配单调递增的 ID 和 SentAt。
	Save(ctx context.Context, message *domain.Message) error

	// FindByID 根据消息 ID 查找消息。
	// 如果消息不存在，应返回 repository.ErrMessageNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Message, error)

	// FindSince 返回 (teamID, targetDate) 频道中 ID 大于 sinceID 的所有消息，
	// 按 ID 升序。没有新消息时返回空 slice，不返回错误。
	FindSince(ctx context.Context, teamID uint, targetDate string, sinceID uint) ([]domain.Message, error)

	// Delete 删除一条消息。
	Delete(ctx context.Context, id uint) error
}
