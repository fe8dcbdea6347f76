package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/service"
)

// MessageHandler 封装了聊天消息相关的 HTTP 处理逻辑，包括长轮询端点。
type MessageHandler struct {
	chatService *service.ChatService
}

// NewMessageHandler 创建 MessageHandler 实例
func NewMessageHandler(chatService *service.ChatService) *MessageHandler {
	return &MessageHandler{chatService: chatService}
}

// PostMessageRequest 定义发送消息请求的结构体
type PostMessageRequest struct {
	Content           string `json:"content" binding:"required"`
	TargetDate        string `json:"target_date" binding:"required"`
	MessageType       string `json:"message_type"`
	RelatedScheduleID *uint  `json:"related_schedule_id"`
}

// PollResponse 是长轮询端点的线格式。
// 超时与"没有新数据"在协议层不可区分：都是 hasNewMessages=false 的 200。
type PollResponse struct {
	Success        bool             `json:"success"`
	Data           []domain.Message `json:"data"`
	HasNewMessages bool             `json:"hasNewMessages"`
}

// PostMessage 处理发送消息的请求
func (h *MessageHandler) PostMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "teamId")
	if !ok {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "team_id": teamID})

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.PostMessage: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: content and target_date are required")
		return
	}
	messageType := domain.MessageType(req.MessageType)
	if req.MessageType == "" {
		messageType = domain.MessageTypeNormal
	}

	message, err := h.chatService.PostMessage(c.Request.Context(), teamID, userID, req.Content, req.TargetDate, messageType, req.RelatedScheduleID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("message_id", message.ID).Info("Handler.PostMessage: Message sent")
	SuccessResponse(c, http.StatusCreated, gin.H{
		"message": "Message sent",
		"data":    message,
	})
}

// ListMessages 处理非阻塞的消息查询 (GET messages?date=&since=)
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "teamId")
	if !ok {
		return
	}
	targetDate := c.Query("date")
	sinceID, err := queryID(c, "since")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid 'since' parameter")
		return
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), teamID, userID, targetDate, sinceID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, PollResponse{
		Success:        true,
		Data:           messages,
		HasNewMessages: len(messages) > 0,
	})
}

// PollMessages 处理长轮询请求 (GET messages/poll?date=&lastMessageId=)。
// 没有新消息时请求挂起，直到新消息到达、超时或客户端断开。
func (h *MessageHandler) PollMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "teamId")
	if !ok {
		return
	}
	targetDate := c.Query("date")
	sinceID, err := queryID(c, "lastMessageId")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid 'lastMessageId' parameter")
		return
	}

	result, err := h.chatService.PollMessages(c.Request.Context(), teamID, userID, targetDate, sinceID)
	if err != nil {
		// 客户端已断开：等待者已注销，没有响应可写
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logrus.WithFields(logrus.Fields{
				"user_id": userID, "team_id": teamID,
			}).Debug("Handler.PollMessages: client disconnected while waiting")
			return
		}
		HandleServiceError(c, err)
		return
	}

	messages := result.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	SuccessResponse(c, http.StatusOK, PollResponse{
		Success:        true,
		Data:           messages,
		HasNewMessages: result.HasNew,
	})
}

// DeleteMessage 处理删除消息的请求（仅发送者）
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}

	if err := h.chatService.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Message deleted"})
}

// --- 参数解析辅助 ---

func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+name+" parameter")
		return 0, false
	}
	return uint(id), true
}

func queryID(c *gin.Context, name string) (uint, error) {
	raw := c.DefaultQuery(name, "0")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
