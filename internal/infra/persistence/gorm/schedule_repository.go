package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
)

// GormScheduleRepository 是 ScheduleRepository 接口的 GORM 实现
type GormScheduleRepository struct {
	db *gorm.DB
}

// NewGormScheduleRepository 创建 GormScheduleRepository 实例
func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	if db == nil {
		panic("database connection cannot be nil for GormScheduleRepository")
	}
	return &GormScheduleRepository{db: db}
}

// FindByID 实现根据日程 ID 查找日程
func (r *GormScheduleRepository) FindByID(ctx context.Context, id uint) (*domain.Schedule, error) {
	var schedule domain.Schedule
	err := r.db.WithContext(ctx).First(&schedule, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("gorm: find schedule by id %d: %w", id, err)
	}
	return &schedule, nil
}

// Save 实现保存日程信息（创建或更新）
func (r *GormScheduleRepository) Save(ctx context.Context, schedule *domain.Schedule) error {
	err := r.db.WithContext(ctx).Save(schedule).Error
	if err != nil {
		return fmt.Errorf("gorm: save schedule (id: %d, title: %s): %w", schedule.ID, schedule.Title, err)
	}
	return nil
}

// Delete 实现删除日程，并在同一事务内级联删除参与关系
func (r *GormScheduleRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("schedule_id = ?", id).Delete(&domain.ScheduleParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Schedule{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("gorm: delete schedule %d: %w", id, err)
	}
	return nil
}

// FindConfirmedOverlapping 实现冲突检测的核心查询。
// 重叠判断下推到 SQL：半开区间 [start, end)，恰好首尾相接不算重叠
// (start_datetime < end AND start < end_datetime)。
func (r *GormScheduleRepository) FindConfirmedOverlapping(ctx context.Context, userID uint, start, end time.Time, excludeScheduleID uint) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	query := r.db.WithContext(ctx).
		Joins("JOIN schedule_participants ON schedule_participants.schedule_id = schedules.id").
		Where("schedule_participants.user_id = ?", userID).
		Where("schedule_participants.participation_status = ?", domain.ParticipationConfirmed).
		Where("schedules.start_datetime < ? AND ? < schedules.end_datetime", end, start)
	if excludeScheduleID > 0 {
		query = query.Where("schedules.id <> ?", excludeScheduleID)
	}
	err := query.Order("schedules.start_datetime ASC").Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find overlapping schedules for user %d: %w", userID, err)
	}
	return schedules, nil
}

// SaveParticipant 实现保存参与关系
func (r *GormScheduleRepository) SaveParticipant(ctx context.Context, participant *domain.ScheduleParticipant) error {
	err := r.db.WithContext(ctx).Save(participant).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save participant (schedule: %d, user: %d): %w", participant.ScheduleID, participant.UserID, err)
	}
	return nil
}

// FindParticipant 实现查找单个参与关系
func (r *GormScheduleRepository) FindParticipant(ctx context.Context, scheduleID, userID uint) (*domain.ScheduleParticipant, error) {
	var participant domain.ScheduleParticipant
	err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND user_id = ?", scheduleID, userID).
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find participant (schedule: %d, user: %d): %w", scheduleID, userID, err)
	}
	return &participant, nil
}

// FindParticipants 实现获取日程的全部参与关系
func (r *GormScheduleRepository) FindParticipants(ctx context.Context, scheduleID uint) ([]domain.ScheduleParticipant, error) {
	var participants []domain.ScheduleParticipant
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find participants of schedule %d: %w", scheduleID, err)
	}
	return participants, nil
}

// FindUpcomingUnreminded 实现提醒任务的查询
func (r *GormScheduleRepository) FindUpcomingUnreminded(ctx context.Context, from, until time.Time) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	err := r.db.WithContext(ctx).
		Where("schedule_type = ?", domain.ScheduleTypeTeam).
		Where("reminder_sent = ?", false).
		Where("start_datetime >= ? AND start_datetime < ?", from, until).
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find upcoming unreminded schedules: %w", err)
	}
	return schedules, nil
}

// MarkReminded 实现标记日程已提醒
func (r *GormScheduleRepository) MarkReminded(ctx context.Context, scheduleID uint) error {
	err := r.db.WithContext(ctx).Model(&domain.Schedule{}).
		Where("id = ?", scheduleID).
		Update("reminder_sent", true).Error
	if err != nil {
		return fmt.Errorf("gorm: mark schedule %d reminded: %w", scheduleID, err)
	}
	return nil
}
