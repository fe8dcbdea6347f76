package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/service"
)

// ScheduleHandler 封装了日程管理和冲突检查相关的 HTTP 处理逻辑
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
	conflictService *service.ConflictService
}

// NewScheduleHandler 创建 ScheduleHandler 实例
func NewScheduleHandler(scheduleService *service.ScheduleService, conflictService *service.ConflictService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
		conflictService: conflictService,
	}
}

// ScheduleRequest 定义创建/更新日程请求的结构体
type ScheduleRequest struct {
	Title          string    `json:"title" binding:"required,max=200"`
	Content        string    `json:"content"`
	StartDatetime  time.Time `json:"start_datetime" binding:"required"`
	EndDatetime    time.Time `json:"end_datetime" binding:"required"`
	ScheduleType   string    `json:"schedule_type" binding:"required"`
	TeamID         *uint     `json:"team_id"`
	ParticipantIDs []uint    `json:"participant_ids"`
}

func (r *ScheduleRequest) toInput() service.ScheduleInput {
	return service.ScheduleInput{
		Title:          r.Title,
		Content:        r.Content,
		StartDatetime:  r.StartDatetime,
		EndDatetime:    r.EndDatetime,
		ScheduleType:   domain.ScheduleType(r.ScheduleType),
		TeamID:         r.TeamID,
		ParticipantIDs: r.ParticipantIDs,
	}
}

// CreateSchedule 处理创建日程的请求
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateSchedule: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: title, start_datetime, end_datetime and schedule_type are required")
		return
	}

	schedule, err := h.scheduleService.CreateSchedule(c.Request.Context(), userID, req.toInput())
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "schedule_id": schedule.ID}).Info("Handler.CreateSchedule: Schedule created")
	SuccessResponse(c, http.StatusCreated, gin.H{
		"message":  "Schedule created successfully",
		"schedule": schedule,
	})
}

// UpdateSchedule 处理更新日程的请求（仅创建者）
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.UpdateSchedule: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: title, start_datetime, end_datetime and schedule_type are required")
		return
	}

	schedule, err := h.scheduleService.UpdateSchedule(c.Request.Context(), scheduleID, userID, req.toInput())
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"message":  "Schedule updated successfully",
		"schedule": schedule,
	})
}

// DeleteSchedule 处理删除日程的请求（仅创建者）
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}

	if err := h.scheduleService.DeleteSchedule(c.Request.Context(), scheduleID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Schedule deleted"})
}

// RespondRequest 定义参与响应请求的结构体
type RespondRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed declined"`
}

// RespondSchedule 处理受邀用户确认/拒绝日程的请求
func (h *ScheduleHandler) RespondSchedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	scheduleID, ok := pathID(c, "scheduleId")
	if !ok {
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.RespondSchedule: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: status must be 'confirmed' or 'declined'")
		return
	}

	if err := h.scheduleService.Respond(c.Request.Context(), scheduleID, userID, req.Status); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Participation updated"})
}

// CheckConflictRequest 定义批量冲突检查请求的结构体
type CheckConflictRequest struct {
	UserIDs           []uint    `json:"user_ids" binding:"required,min=1"`
	StartDatetime     time.Time `json:"start_datetime" binding:"required"`
	EndDatetime       time.Time `json:"end_datetime" binding:"required"`
	ExcludeScheduleID uint      `json:"exclude_schedule_id"`
}

// CheckConflict 处理批量冲突检查请求。
// 整个参与者列表作为单一原子结果裁决：任何一处冲突即 hasConflict=true。
func (h *ScheduleHandler) CheckConflict(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	var req CheckConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CheckConflict: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: user_ids, start_datetime and end_datetime are required")
		return
	}

	conflicts, err := h.conflictService.FindConflicts(c.Request.Context(), req.UserIDs, req.StartDatetime, req.EndDatetime, req.ExcludeScheduleID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if conflicts == nil {
		conflicts = []domain.Schedule{}
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"hasConflict": len(conflicts) > 0,
		"conflicts":   conflicts,
	})
}
