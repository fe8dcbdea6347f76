package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"team-caltalk/internal/domain"
	handler "team-caltalk/internal/handler/http"
	"team-caltalk/internal/longpoll"
	"team-caltalk/internal/repository/mocks"
	"team-caltalk/internal/service"
)

// setupMessageRouter 组装带认证替身的测试路由。
// authedUserID > 0 时模拟 Auth 中间件放行该用户。
func setupMessageRouter(chatService *service.ChatService, authedUserID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if authedUserID > 0 {
			c.Set("user_id", authedUserID)
		}
		c.Next()
	})
	h := handler.NewMessageHandler(chatService)
	r.POST("/api/teams/:teamId/messages", h.PostMessage)
	r.GET("/api/teams/:teamId/messages", h.ListMessages)
	r.GET("/api/teams/:teamId/messages/poll", h.PollMessages)
	r.DELETE("/api/messages/:messageId", h.DeleteMessage)
	return r
}

func newHandlerFixture(timeout time.Duration) (*service.ChatService, *mocks.MessageRepository, *mocks.TeamRepository, *longpoll.Registry) {
	mockMessageRepo := new(mocks.MessageRepository)
	mockTeamRepo := new(mocks.TeamRepository)
	registry := longpoll.NewRegistry(timeout)
	chatService := service.NewChatService(mockMessageRepo, mockTeamRepo, registry, longpoll.NewLocalNotifier(registry))
	return chatService, mockMessageRepo, mockTeamRepo, registry
}

func TestMessageHandler_Poll_ImmediateData(t *testing.T) {
	// Arrange
	chatService, mockMessageRepo, mockTeamRepo, _ := newHandlerFixture(time.Minute)
	router := setupMessageRouter(chatService, 2)
	messages := []domain.Message{{ID: 7, TeamID: 1, SenderID: 3, Content: "hi", TargetDate: "2024-12-25", MessageType: domain.MessageTypeNormal}}

	mockTeamRepo.On("IsMember", mock.Anything, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", mock.Anything, uint(1), "2024-12-25", uint(5)).Return(messages, nil).Once()

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/teams/1/messages/poll?date=2024-12-25&lastMessageId=5", nil)
	router.ServeHTTP(w, req)

	// Assert: 线格式 {success, data, hasNewMessages}
	require.Equal(t, http.StatusOK, w.Code)
	var body handler.PollResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.HasNewMessages)
	require.Len(t, body.Data, 1)
	assert.Equal(t, uint(7), body.Data[0].ID)
	mockMessageRepo.AssertExpectations(t)
}

func TestMessageHandler_Poll_TimeoutEmptyBody(t *testing.T) {
	// Arrange: 短超时，无新消息
	chatService, mockMessageRepo, mockTeamRepo, _ := newHandlerFixture(50 * time.Millisecond)
	router := setupMessageRouter(chatService, 2)

	mockTeamRepo.On("IsMember", mock.Anything, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", mock.Anything, uint(1), "2024-12-25", uint(0)).Return(nil, nil).Once()

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/teams/1/messages/poll?date=2024-12-25", nil)
	router.ServeHTTP(w, req)

	// Assert: 超时是 200 + data 为空数组 (不是 null)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[],"hasNewMessages":false}`, w.Body.String())
}

func TestMessageHandler_Poll_WokenByPost(t *testing.T) {
	// Arrange: 挂起的 poll 被同频道的 POST 唤醒
	chatService, mockMessageRepo, mockTeamRepo, registry := newHandlerFixture(time.Minute)
	router := setupMessageRouter(chatService, 2)
	key := longpoll.ChannelKey{TeamID: 1, TargetDate: "2024-12-25"}

	mockTeamRepo.On("IsMember", mock.Anything, uint(1), uint(2)).Return(true, nil)
	mockMessageRepo.On("FindSince", mock.Anything, uint(1), "2024-12-25", uint(0)).Return(nil, nil).Once()
	mockMessageRepo.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = 11
		}).
		Return(nil).
		Once()

	pollDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/teams/1/messages/poll?date=2024-12-25", nil)
		router.ServeHTTP(w, req)
		pollDone <- w
	}()
	require.Eventually(t, func() bool {
		return registry.WaiterCount(key) == 1
	}, time.Second, 5*time.Millisecond)

	// Act
	postRec := httptest.NewRecorder()
	postReq := httptest.NewRequest(http.MethodPost, "/api/teams/1/messages",
		strings.NewReader(`{"content":"wake up","target_date":"2024-12-25"}`))
	postReq.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(postRec, postReq)
	require.Equal(t, http.StatusCreated, postRec.Code)

	// Assert
	select {
	case w := <-pollDone:
		require.Equal(t, http.StatusOK, w.Code)
		var body handler.PollResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.HasNewMessages)
		require.Len(t, body.Data, 1)
		assert.Equal(t, uint(11), body.Data[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("挂起的 poll 未被 POST 唤醒")
	}
}

func TestMessageHandler_Poll_ClientDisconnectWritesNothing(t *testing.T) {
	// Arrange: 请求上下文取消模拟客户端断开
	chatService, mockMessageRepo, mockTeamRepo, registry := newHandlerFixture(time.Minute)
	router := setupMessageRouter(chatService, 2)
	key := longpoll.ChannelKey{TeamID: 1, TargetDate: "2024-12-25"}

	mockTeamRepo.On("IsMember", mock.Anything, uint(1), uint(2)).Return(true, nil).Once()
	mockMessageRepo.On("FindSince", mock.Anything, uint(1), "2024-12-25", uint(0)).Return(nil, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/teams/1/messages/poll?date=2024-12-25", nil).WithContext(ctx)
		router.ServeHTTP(w, req)
		done <- w
	}()
	require.Eventually(t, func() bool {
		return registry.WaiterCount(key) == 1
	}, time.Second, 5*time.Millisecond)

	// Act
	cancel()

	// Assert: handler 静默返回，等待者已清理
	select {
	case w := <-done:
		assert.Empty(t, w.Body.String())
	case <-time.After(time.Second):
		t.Fatal("断开后 handler 未返回")
	}
	assert.Equal(t, 0, registry.WaiterCount(key))
}

func TestMessageHandler_Poll_InvalidParams(t *testing.T) {
	chatService, _, mockTeamRepo, _ := newHandlerFixture(time.Minute)
	router := setupMessageRouter(chatService, 2)
	mockTeamRepo.On("IsMember", mock.Anything, uint(1), uint(2)).Return(true, nil).Maybe()

	// 非数字游标
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams/1/messages/poll?date=2024-12-25&lastMessageId=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非法日期由服务层拒绝
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams/1/messages/poll?date=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非法团队 ID
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams/zero/messages/poll?date=2024-12-25", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessageHandler_Poll_Unauthenticated(t *testing.T) {
	chatService, _, _, _ := newHandlerFixture(time.Minute)
	router := setupMessageRouter(chatService, 0) // 中间件不写入 user_id

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams/1/messages/poll?date=2024-12-25", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMessageHandler_Post_NonMemberForbidden(t *testing.T) {
	chatService, _, mockTeamRepo, _ := newHandlerFixture(time.Minute)
	router := setupMessageRouter(chatService, 9)
	mockTeamRepo.On("IsMember", mock.Anything, uint(1), uint(9)).Return(false, nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/teams/1/messages",
		strings.NewReader(`{"content":"hi","target_date":"2024-12-25"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
