package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"team-caltalk/internal/domain"
)

// MessageRepository 是 repository.MessageRepository 的 Mock 实现
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Save(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MessageRepository) FindByID(ctx context.Context, id uint) (*domain.Message, error) {
	args := m.Called(ctx, id)
	var message *domain.Message
	if args.Get(0) != nil {
		message = args.Get(0).(*domain.Message)
	}
	return message, args.Error(1)
}

func (m *MessageRepository) FindSince(ctx context.Context, teamID uint, targetDate string, sinceID uint) ([]domain.Message, error) {
	args := m.Called(ctx, teamID, targetDate, sinceID)
	var messages []domain.Message
	if args.Get(0) != nil {
		messages = args.Get(0).([]domain.Message)
	}
	return messages, args.Error(1)
}

func (m *MessageRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
