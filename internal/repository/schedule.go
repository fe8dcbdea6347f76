package repository

import (
	"context"
	"time"

	"team-caltalk/internal/domain"
)

// ScheduleRepository 定义了日程及参与关系的存储和检索操作。
type ScheduleRepository interface {
	// FindByID 根据日程 ID 查找日程。
	// 如果日程不存在，应返回 repository.ErrScheduleNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Schedule, error)

	// Save 保存日程信息。
	Save(ctx context.Context, schedule *domain.Schedule) error

	// Delete 删除日程，并级联删除其全部参与关系。
	Delete(ctx context.Context, id uint) error

	// FindConfirmedOverlapping 返回指定用户已确认参与、且时间区间与
	// [start, end) 重叠的日程，按半开区间语义
	// (schedule.start < end AND start < schedule.end)。
	// excludeScheduleID 大于 0 时排除该日程自身 (用于编辑检查)。
	FindConfirmedOverlapping(ctx context.Context, userID uint, start, end time.Time, excludeScheduleID uint) ([]domain.Schedule, error)

	// SaveParticipant 保存参与关系 (邀请或状态变更)。
	SaveParticipant(ctx context.Context, participant *domain.ScheduleParticipant) error

	// FindParticipant 查找某用户对某日程的参与关系。
	// 不存在时返回 repository.ErrNotFound。
	FindParticipant(ctx context.Context, scheduleID, userID uint) (*domain.ScheduleParticipant, error)

	// FindParticipants 返回日程的全部参与关系。
	FindParticipants(ctx context.Context, scheduleID uint) ([]domain.ScheduleParticipant, error)

	// FindUpcomingUnreminded 返回开始时间落在 [from, until) 且尚未发送过
	// 提醒的团队日程，供后台提醒任务使用。
	FindUpcomingUnreminded(ctx context.Context, from, until time.Time) ([]domain.Schedule, error)

	// MarkReminded 将日程标记为已发送提醒。
	MarkReminded(ctx context.Context, scheduleID uint) error
}
