package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
	"team-caltalk/internal/service"
)

// ScheduleReminderHandler 处理周期性的日程提醒检查任务：
// 找出提醒窗口内即将开始、尚未提醒过的团队日程，向对应团队频道
// 投递一条 system 消息。消息走 ChatService 的正常派发路径，
// 因此挂起的长轮询等待者会像收到普通消息一样被立即唤醒。
type ScheduleReminderHandler struct {
	scheduleRepo repository.ScheduleRepository
	chatService  *service.ChatService
	leadWindow   time.Duration
}

// NewScheduleReminderHandler 创建 Handler 实例。
// leadWindow <= 0 时默认提前 10 分钟提醒。
func NewScheduleReminderHandler(scheduleRepo repository.ScheduleRepository, chatService *service.ChatService, leadWindow time.Duration) *ScheduleReminderHandler {
	if scheduleRepo == nil {
		panic("ScheduleRepository cannot be nil for ScheduleReminderHandler")
	}
	if chatService == nil {
		panic("ChatService cannot be nil for ScheduleReminderHandler")
	}
	if leadWindow <= 0 {
		leadWindow = 10 * time.Minute
	}
	return &ScheduleReminderHandler{
		scheduleRepo: scheduleRepo,
		chatService:  chatService,
		leadWindow:   leadWindow,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ScheduleReminderHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	now := time.Now()
	schedules, err := h.scheduleRepo.FindUpcomingUnreminded(ctx, now, now.Add(h.leadWindow))
	if err != nil {
		logCtx.WithError(err).Error("Failed to query upcoming schedules")
		return fmt.Errorf("query upcoming schedules: %w", err)
	}
	if len(schedules) == 0 {
		logCtx.Debug("No upcoming schedules to remind")
		return nil
	}

	for i := range schedules {
		schedule := schedules[i]
		if schedule.TeamID == nil {
			// FindUpcomingUnreminded 只返回团队日程，TeamID 为空说明数据异常
			continue
		}
		scheduleID := schedule.ID
		content := fmt.Sprintf("'%s' starts at %s", schedule.Title, schedule.StartDatetime.Format("15:04"))
		targetDate := schedule.StartDatetime.Format(domain.TargetDateLayout)

		_, err := h.chatService.PostMessage(ctx, *schedule.TeamID, schedule.CreatorID, content, targetDate, domain.MessageTypeSystem, &scheduleID)
		if err != nil {
			// 单条失败不放弃整批，留待下一轮重试
			logCtx.WithError(err).WithField("schedule_id", scheduleID).Error("Failed to post reminder message")
			continue
		}
		if err := h.scheduleRepo.MarkReminded(ctx, scheduleID); err != nil {
			logCtx.WithError(err).WithField("schedule_id", scheduleID).Error("Failed to mark schedule reminded")
			continue
		}
		logCtx.WithField("schedule_id", scheduleID).Info("Reminder message posted")
	}
	return nil
}
