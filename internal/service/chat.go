package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/longpoll"
	"team-caltalk/internal/repository"
)

// PollResult 是一次消息轮询的结果。
type PollResult struct {
	Messages []domain.Message
	HasNew   bool
}

// ChatService 是消息派发核心：创建消息并唤醒长轮询等待者。
type ChatService struct {
	messageRepo repository.MessageRepository
	teamRepo    repository.TeamRepository
	registry    *longpoll.Registry
	notifier    longpoll.Notifier
}

// NewChatService 创建 ChatService 实例。
func NewChatService(messageRepo repository.MessageRepository, teamRepo repository.TeamRepository, registry *longpoll.Registry, notifier longpoll.Notifier) *ChatService {
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for ChatService")
	}
	if teamRepo == nil {
		panic("TeamRepository cannot be nil for ChatService")
	}
	if registry == nil {
		panic("Registry cannot be nil for ChatService")
	}
	if notifier == nil {
		panic("Notifier cannot be nil for ChatService")
	}
	return &ChatService{
		messageRepo: messageRepo,
		teamRepo:    teamRepo,
		registry:    registry,
		notifier:    notifier,
	}
}

// PostMessage 校验并持久化一条消息，然后唤醒该频道的等待者。
// 校验失败在任何副作用之前拒绝；持久化失败时不会触碰注册表。
func (s *ChatService) PostMessage(ctx context.Context, teamID, senderID uint, content, targetDate string, messageType domain.MessageType, relatedScheduleID *uint) (*domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"team_id":     teamID,
		"sender_id":   senderID,
		"target_date": targetDate,
	})

	// 1. 内容与枚举校验，先于一切副作用
	if !domain.ValidateContent(content) {
		logCtx.Warn("PostMessage: content empty or too long")
		return nil, ErrInvalidMessage
	}
	if !messageType.Valid() {
		logCtx.Warnf("PostMessage: unknown message type '%s'", messageType)
		return nil, ErrInvalidMessage
	}
	if _, err := time.Parse(domain.TargetDateLayout, targetDate); err != nil {
		logCtx.Warn("PostMessage: malformed target date")
		return nil, ErrInvalidMessage
	}

	// 2. 发送者必须是团队成员
	if err := s.requireMembership(ctx, teamID, senderID); err != nil {
		return nil, err
	}

	// 3. 持久化，ID 和 SentAt 由存储层分配
	message := &domain.Message{
		TeamID:            teamID,
		SenderID:          senderID,
		Content:           content,
		TargetDate:        targetDate,
		MessageType:       messageType,
		RelatedScheduleID: relatedScheduleID,
	}
	if err := s.messageRepo.Save(ctx, message); err != nil {
		logCtx.WithError(err).Error("PostMessage: failed to save message")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("message_id", message.ID)

	// 4. 唤醒等待者。消息已持久化，通知失败只降级为"下一次 poll 补上"，
	//    不影响本次请求的结果。
	key := longpoll.ChannelKey{TeamID: teamID, TargetDate: targetDate}
	if err := s.notifier.Notify(ctx, key, *message); err != nil {
		logCtx.WithError(err).Error("PostMessage: failed to notify waiters")
	}

	logCtx.Info("Message posted")
	return message, nil
}

// PollMessages 返回频道中游标之后的消息；没有新消息时挂起调用者，
// 直到新消息到达、超时或 ctx 取消 (客户端断开)。
//
// 等待者先注册、后查库：如果消息恰好在两步之间被派发，注册表会在
// 查库结束前就把它投递给等待者，不存在丢失唤醒的窗口。
func (s *ChatService) PollMessages(ctx context.Context, teamID, userID uint, targetDate string, sinceID uint) (*PollResult, error) {
	if _, err := time.Parse(domain.TargetDateLayout, targetDate); err != nil {
		return nil, ErrInvalidMessage
	}
	if err := s.requireMembership(ctx, teamID, userID); err != nil {
		return nil, err
	}

	key := longpoll.ChannelKey{TeamID: teamID, TargetDate: targetDate}
	waiter := s.registry.Register(key, sinceID)

	messages, err := s.messageRepo.FindSince(ctx, teamID, targetDate, sinceID)
	if err != nil {
		s.registry.Cancel(waiter)
		logrus.WithError(err).WithFields(logrus.Fields{
			"team_id": teamID, "target_date": targetDate,
		}).Error("PollMessages: failed to query messages")
		return nil, ErrInternalServer
	}
	if len(messages) > 0 {
		s.registry.Cancel(waiter)
		return &PollResult{Messages: messages, HasNew: true}, nil
	}

	res, err := s.registry.Await(ctx, waiter)
	if err != nil {
		// 客户端断开，等待者已注销，无响应可写
		return nil, err
	}
	return &PollResult{Messages: res.Messages, HasNew: res.HasNew}, nil
}

// ListMessages 返回游标之后的消息，不挂起 (GET messages?since=)。
func (s *ChatService) ListMessages(ctx context.Context, teamID, userID uint, targetDate string, sinceID uint) ([]domain.Message, error) {
	if _, err := time.Parse(domain.TargetDateLayout, targetDate); err != nil {
		return nil, ErrInvalidMessage
	}
	if err := s.requireMembership(ctx, teamID, userID); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.FindSince(ctx, teamID, targetDate, sinceID)
	if err != nil {
		logrus.WithError(err).Error("ListMessages: failed to query messages")
		return nil, ErrInternalServer
	}
	return messages, nil
}

// DeleteMessage 删除一条消息，仅发送者本人可以删除。
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, userID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"message_id": messageID, "user_id": userID})

	message, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		logCtx.WithError(err).Error("DeleteMessage: failed to load message")
		return ErrInternalServer
	}
	if message.SenderID != userID {
		logCtx.Warn("DeleteMessage: requester is not the sender")
		return ErrNotOwner
	}
	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		logCtx.WithError(err).Error("DeleteMessage: failed to delete message")
		return ErrInternalServer
	}
	logCtx.Info("Message deleted")
	return nil
}

func (s *ChatService) requireMembership(ctx context.Context, teamID, userID uint) error {
	isMember, err := s.teamRepo.IsMember(ctx, teamID, userID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"team_id": teamID, "user_id": userID,
		}).Error("ChatService: membership check failed")
		return ErrInternalServer
	}
	if !isMember {
		return ErrNotTeamMember
	}
	return nil
}
