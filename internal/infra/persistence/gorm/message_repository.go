package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Save 实现持久化新消息。
// 消息 ID 由数据库自增主键分配，保证同一频道内的游标单调递增。
func (r *GormMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	err := r.db.WithContext(ctx).Create(message).Error
	if err != nil {
		return fmt.Errorf("gorm: save message (team: %d, sender: %d): %w", message.TeamID, message.SenderID, err)
	}
	return nil
}

// FindByID 实现根据 ID 查找消息
func (r *GormMessageRepository) FindByID(ctx context.Context, id uint) (*domain.Message, error) {
	var message domain.Message
	err := r.db.WithContext(ctx).First(&message, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMessageNotFound
		}
		return nil, fmt.Errorf("gorm: find message by id %d: %w", id, err)
	}
	return &message, nil
}

// FindSince 实现频道内的游标查询。
// 命中复合索引 (team_id, target_date, id)，长轮询热路径依赖这个查询。
func (r *GormMessageRepository) FindSince(ctx context.Context, teamID uint, targetDate string, sinceID uint) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND target_date = ? AND id > ?", teamID, targetDate, sinceID).
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find messages since %d (team: %d, date: %s): %w", sinceID, teamID, targetDate, err)
	}
	return messages, nil
}

// Delete 实现删除消息
func (r *GormMessageRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Delete(&domain.Message{}, id).Error
	if err != nil {
		return fmt.Errorf("gorm: delete message %d: %w", id, err)
	}
	return nil
}
