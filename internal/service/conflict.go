package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
)

// ConflictService 是日程冲突检测器：判断一个时间区间是否与任一
// 请求用户已确认的日程重叠。除存储依赖外不持有任何状态。
type ConflictService struct {
	scheduleRepo repository.ScheduleRepository
}

// NewConflictService 创建 ConflictService 实例。
func NewConflictService(scheduleRepo repository.ScheduleRepository) *ConflictService {
	if scheduleRepo == nil {
		panic("ScheduleRepository cannot be nil for ConflictService")
	}
	return &ConflictService{scheduleRepo: scheduleRepo}
}

// FindConflicts 返回与 [start, end) 冲突的日程并集，跨用户去重。
// 前置条件 start < end 且 userIDs 非空，否则返回 ErrInvalidRange。
// excludeScheduleID 大于 0 时排除该日程自身 (编辑场景的自排除)，
// 否则每次更新都会与自己平凡地冲突。
func (s *ConflictService) FindConflicts(ctx context.Context, userIDs []uint, start, end time.Time, excludeScheduleID uint) ([]domain.Schedule, error) {
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}
	if len(userIDs) == 0 {
		return nil, ErrInvalidRange
	}

	seen := make(map[uint]struct{})
	var conflicts []domain.Schedule
	for _, userID := range userIDs {
		schedules, err := s.scheduleRepo.FindConfirmedOverlapping(ctx, userID, start, end, excludeScheduleID)
		if err != nil {
			// 存储错误原样上抛为内部错误，检测器本身不重试
			logrus.WithError(err).WithField("user_id", userID).Error("FindConflicts: overlap query failed")
			return nil, ErrInternalServer
		}
		for _, schedule := range schedules {
			if _, ok := seen[schedule.ID]; ok {
				continue
			}
			seen[schedule.ID] = struct{}{}
			conflicts = append(conflicts, schedule)
		}
	}
	return conflicts, nil
}

// HasConflict 是批量检查的原子裁决：任一用户存在任一冲突即为 true。
func (s *ConflictService) HasConflict(ctx context.Context, userIDs []uint, start, end time.Time, excludeScheduleID uint) (bool, error) {
	conflicts, err := s.FindConflicts(ctx, userIDs, start, end, excludeScheduleID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}
