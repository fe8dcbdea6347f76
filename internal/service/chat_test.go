package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/longpoll"
	"team-caltalk/internal/repository"
	"team-caltalk/internal/repository/mocks"
	"team-caltalk/internal/service"
)

const testDate = "2024-12-25"

// newChatFixture 组装一个用真实 Registry + LocalNotifier 的 ChatService，
// 存储层用 Mock 替身。
func newChatFixture(timeout time.Duration) (*service.ChatService, *mocks.MessageRepository, *mocks.TeamRepository, *longpoll.Registry) {
	mockMessageRepo := new(mocks.MessageRepository)
	mockTeamRepo := new(mocks.TeamRepository)
	registry := longpoll.NewRegistry(timeout)
	notifier := longpoll.NewLocalNotifier(registry)
	chatService := service.NewChatService(mockMessageRepo, mockTeamRepo, registry, notifier)
	return chatService, mockMessageRepo, mockTeamRepo, registry
}

// --- PostMessage ---

func TestChatService_PostMessage_Success(t *testing.T) {
	// Arrange
	chatService, mockMessageRepo, mockTeamRepo, _ := newChatFixture(time.Minute)
	ctx := context.Background()

	mockTeamRepo.On("IsMember", ctx, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("Save", ctx, mock.MatchedBy(func(m *domain.Message) bool {
		return m.TeamID == 1 && m.SenderID == 2 && m.Content == "hello" && m.TargetDate == testDate
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = 42
		}).
		Return(nil).
		Once()

	// Act
	message, err := chatService.PostMessage(ctx, 1, 2, "hello", testDate, domain.MessageTypeNormal, nil)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, message)
	assert.Equal(t, uint(42), message.ID)
	mockMessageRepo.AssertExpectations(t)
	mockTeamRepo.AssertExpectations(t)
}

func TestChatService_PostMessage_ValidationBeforeSideEffects(t *testing.T) {
	// Arrange: 不设置任何 Mock 预期，任何存储调用都会让测试失败
	chatService, mockMessageRepo, mockTeamRepo, _ := newChatFixture(time.Minute)
	ctx := context.Background()

	cases := []struct {
		name        string
		content     string
		targetDate  string
		messageType domain.MessageType
	}{
		{"空内容", "", testDate, domain.MessageTypeNormal},
		{"超长内容", strings.Repeat("字", domain.MaxMessageContentLength+1), testDate, domain.MessageTypeNormal},
		{"非法日期", "hello", "25/12/2024", domain.MessageTypeNormal},
		{"未知类型", "hello", testDate, domain.MessageType("sticker")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chatService.PostMessage(ctx, 1, 2, tc.content, tc.targetDate, tc.messageType, nil)
			assert.ErrorIs(t, err, service.ErrInvalidMessage)
		})
	}

	mockMessageRepo.AssertExpectations(t)
	mockTeamRepo.AssertExpectations(t)
}

func TestChatService_PostMessage_ContentLengthIsRuneCount(t *testing.T) {
	// Arrange: 恰好 500 个多字节字符合法
	chatService, mockMessageRepo, mockTeamRepo, _ := newChatFixture(time.Minute)
	ctx := context.Background()
	content := strings.Repeat("字", domain.MaxMessageContentLength)

	mockTeamRepo.On("IsMember", ctx, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("Save", ctx, mock.Anything).Return(nil).Once()

	// Act
	_, err := chatService.PostMessage(ctx, 1, 2, content, testDate, domain.MessageTypeNormal, nil)

	// Assert
	assert.NoError(t, err)
	mockMessageRepo.AssertExpectations(t)
}

func TestChatService_PostMessage_NonMemberRejected(t *testing.T) {
	chatService, _, mockTeamRepo, _ := newChatFixture(time.Minute)
	ctx := context.Background()
	mockTeamRepo.On("IsMember", ctx, uint(1), uint(9)).Return(false, nil).Once()

	_, err := chatService.PostMessage(ctx, 1, 9, "hello", testDate, domain.MessageTypeNormal, nil)

	assert.ErrorIs(t, err, service.ErrNotTeamMember)
	mockTeamRepo.AssertExpectations(t)
}

func TestChatService_PostMessage_PersistFailureSkipsNotify(t *testing.T) {
	// Arrange: 持久化失败时等待者必须原地不动
	chatService, mockMessageRepo, mockTeamRepo, registry := newChatFixture(time.Minute)
	ctx := context.Background()
	key := longpoll.ChannelKey{TeamID: 1, TargetDate: testDate}
	waiter := registry.Register(key, 0)
	defer registry.Cancel(waiter)

	mockTeamRepo.On("IsMember", ctx, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("Save", ctx, mock.Anything).Return(errors.New("deadlock")).Once()

	// Act
	_, err := chatService.PostMessage(ctx, 1, 2, "hello", testDate, domain.MessageTypeNormal, nil)

	// Assert: 错误上抛且没有任何等待者被唤醒
	assert.ErrorIs(t, err, service.ErrInternalServer)
	assert.Equal(t, 1, registry.WaiterCount(key))
	mockMessageRepo.AssertExpectations(t)
}

// --- PollMessages ---

func TestChatService_PollMessages_ImmediateReturn(t *testing.T) {
	// Arrange: 游标之后已有消息，poll 不挂起
	chatService, mockMessageRepo, mockTeamRepo, registry := newChatFixture(time.Minute)
	ctx := context.Background()
	existing := []domain.Message{{ID: 5, TeamID: 1, Content: "earlier"}}

	mockTeamRepo.On("IsMember", ctx, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", ctx, uint(1), testDate, uint(0)).Return(existing, nil).Once()

	// Act
	start := time.Now()
	res, err := chatService.PollMessages(ctx, 1, 2, testDate, 0)

	// Assert: 立即返回且临时等待者已注销
	require.NoError(t, err)
	assert.True(t, res.HasNew)
	assert.Len(t, res.Messages, 1)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, registry.WaiterCount(longpoll.ChannelKey{TeamID: 1, TargetDate: testDate}))
	mockMessageRepo.AssertExpectations(t)
}

func TestChatService_PollMessages_WokenByConcurrentPost(t *testing.T) {
	// Arrange: poll 先挂起，随后另一个成员发消息
	chatService, mockMessageRepo, mockTeamRepo, registry := newChatFixture(time.Minute)
	key := longpoll.ChannelKey{TeamID: 1, TargetDate: testDate}

	mockTeamRepo.On("IsMember", mock.Anything, uint(1), mock.Anything).Return(true, nil)
	mockMessageRepo.On("FindSince", mock.Anything, uint(1), testDate, uint(0)).Return(nil, nil).Once()
	mockMessageRepo.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = 7
		}).
		Return(nil).
		Once()

	type pollOutcome struct {
		res *service.PollResult
		err error
	}
	done := make(chan pollOutcome, 1)
	go func() {
		res, err := chatService.PollMessages(context.Background(), 1, 2, testDate, 0)
		done <- pollOutcome{res, err}
	}()

	// 等 poll 真正挂起
	require.Eventually(t, func() bool {
		return registry.WaiterCount(key) == 1
	}, time.Second, 5*time.Millisecond, "poll 应先注册等待者")

	// Act
	_, err := chatService.PostMessage(context.Background(), 1, 3, "wake up", testDate, domain.MessageTypeNormal, nil)
	require.NoError(t, err)

	// Assert
	select {
	case outcome := <-done:
		require.NoError(t, outcome.err)
		assert.True(t, outcome.res.HasNew)
		require.Len(t, outcome.res.Messages, 1)
		assert.Equal(t, uint(7), outcome.res.Messages[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("poll 未被新消息唤醒")
	}
	assert.Equal(t, 0, registry.WaiterCount(key))
}

func TestChatService_PollMessages_TimeoutReturnsEmpty(t *testing.T) {
	// Arrange: 短超时 + 没有新消息
	chatService, mockMessageRepo, mockTeamRepo, registry := newChatFixture(50 * time.Millisecond)
	ctx := context.Background()

	mockTeamRepo.On("IsMember", ctx, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", ctx, uint(1), testDate, uint(3)).Return(nil, nil).Once()

	// Act
	start := time.Now()
	res, err := chatService.PollMessages(ctx, 1, 2, testDate, 3)

	// Assert: 超时后空手而归，客户端据此立即重连
	require.NoError(t, err)
	assert.False(t, res.HasNew)
	assert.Empty(t, res.Messages)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 0, registry.WaiterCount(longpoll.ChannelKey{TeamID: 1, TargetDate: testDate}))
}

func TestChatService_PollMessages_ClientDisconnect(t *testing.T) {
	// Arrange
	chatService, mockMessageRepo, mockTeamRepo, registry := newChatFixture(time.Minute)
	key := longpoll.ChannelKey{TeamID: 1, TargetDate: testDate}
	ctx, cancel := context.WithCancel(context.Background())

	mockTeamRepo.On("IsMember", mock.Anything, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", mock.Anything, uint(1), testDate, uint(0)).Return(nil, nil).Once()

	errCh := make(chan error, 1)
	go func() {
		_, err := chatService.PollMessages(ctx, 1, 2, testDate, 0)
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		return registry.WaiterCount(key) == 1
	}, time.Second, 5*time.Millisecond)

	// Act: 客户端断开
	cancel()

	// Assert: 等待者被同步注销，不留痕迹
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("断开后 poll 未返回")
	}
	assert.Equal(t, 0, registry.WaiterCount(key))
}

func TestChatService_PollMessages_QueryFailureCancelsWaiter(t *testing.T) {
	// Arrange
	chatService, mockMessageRepo, mockTeamRepo, registry := newChatFixture(time.Minute)
	ctx := context.Background()

	mockTeamRepo.On("IsMember", ctx, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", ctx, uint(1), testDate, uint(0)).Return(nil, errors.New("timeout")).Once()

	// Act
	_, err := chatService.PollMessages(ctx, 1, 2, testDate, 0)

	// Assert: 查询失败时注册过的等待者必须撤掉
	assert.ErrorIs(t, err, service.ErrInternalServer)
	assert.Equal(t, 0, registry.WaiterCount(longpoll.ChannelKey{TeamID: 1, TargetDate: testDate}))
}

func TestChatService_PollMessages_FanoutToAllPollers(t *testing.T) {
	// Arrange: 多个成员同时挂起在同一频道
	const pollers = 10
	chatService, mockMessageRepo, mockTeamRepo, registry := newChatFixture(time.Minute)
	key := longpoll.ChannelKey{TeamID: 1, TargetDate: testDate}

	mockTeamRepo.On("IsMember", mock.Anything, uint(1), mock.Anything).Return(true, nil)
	mockMessageRepo.On("FindSince", mock.Anything, uint(1), testDate, uint(0)).Return(nil, nil).Times(pollers)
	mockMessageRepo.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = 9
		}).
		Return(nil).
		Once()

	results := make(chan *service.PollResult, pollers)
	for i := 0; i < pollers; i++ {
		go func(userID uint) {
			res, err := chatService.PollMessages(context.Background(), 1, userID, testDate, 0)
			if err == nil {
				results <- res
			}
		}(uint(10 + i))
	}
	require.Eventually(t, func() bool {
		return registry.WaiterCount(key) == pollers
	}, time.Second, 5*time.Millisecond)

	// Act
	_, err := chatService.PostMessage(context.Background(), 1, 2, "broadcast", testDate, domain.MessageTypeNormal, nil)
	require.NoError(t, err)

	// Assert: 每个挂起的 poll 都拿到同一条消息
	for i := 0; i < pollers; i++ {
		select {
		case res := <-results:
			assert.True(t, res.HasNew)
			require.Len(t, res.Messages, 1)
			assert.Equal(t, uint(9), res.Messages[0].ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("第 %d 个 poller 未被唤醒", i)
		}
	}
	assert.Equal(t, 0, registry.WaiterCount(key))
}

// --- ListMessages / DeleteMessage ---

func TestChatService_ListMessages_DoesNotHang(t *testing.T) {
	chatService, mockMessageRepo, mockTeamRepo, _ := newChatFixture(time.Minute)
	ctx := context.Background()

	mockTeamRepo.On("IsMember", ctx, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", ctx, uint(1), testDate, uint(0)).Return(nil, nil).Once()

	start := time.Now()
	messages, err := chatService.ListMessages(ctx, 1, 2, testDate, 0)

	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestChatService_DeleteMessage_OnlySender(t *testing.T) {
	chatService, mockMessageRepo, _, _ := newChatFixture(time.Minute)
	ctx := context.Background()
	message := &domain.Message{ID: 5, TeamID: 1, SenderID: 2}

	mockMessageRepo.On("FindByID", ctx, uint(5)).Return(message, nil).Twice()
	mockMessageRepo.On("Delete", ctx, uint(5)).Return(nil).Once()

	// 非发送者被拒
	err := chatService.DeleteMessage(ctx, 5, 9)
	assert.ErrorIs(t, err, service.ErrNotOwner)

	// 发送者本人可以删除
	err = chatService.DeleteMessage(ctx, 5, 2)
	assert.NoError(t, err)
	mockMessageRepo.AssertExpectations(t)
}

func TestChatService_DeleteMessage_NotFound(t *testing.T) {
	chatService, mockMessageRepo, _, _ := newChatFixture(time.Minute)
	ctx := context.Background()

	mockMessageRepo.On("FindByID", ctx, uint(404)).Return(nil, repository.ErrMessageNotFound).Once()

	err := chatService.DeleteMessage(ctx, 404, 2)
	assert.ErrorIs(t, err, service.ErrMessageNotFound)
}
