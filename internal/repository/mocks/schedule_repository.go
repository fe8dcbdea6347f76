package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"team-caltalk/internal/domain"
)

// ScheduleRepository 是 repository.ScheduleRepository 的 Mock 实现
type ScheduleRepository struct {
	mock.Mock
}

func (m *ScheduleRepository) FindByID(ctx context.Context, id uint) (*domain.Schedule, error) {
	args := m.Called(ctx, id)
	var schedule *domain.Schedule
	if args.Get(0) != nil {
		schedule = args.Get(0).(*domain.Schedule)
	}
	return schedule, args.Error(1)
}

func (m *ScheduleRepository) Save(ctx context.Context, schedule *domain.Schedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *ScheduleRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ScheduleRepository) FindConfirmedOverlapping(ctx context.Context, userID uint, start, end time.Time, excludeScheduleID uint) ([]domain.Schedule, error) {
	args := m.Called(ctx, userID, start, end, excludeScheduleID)
	var schedules []domain.Schedule
	if args.Get(0) != nil {
		schedules = args.Get(0).([]domain.Schedule)
	}
	return schedules, args.Error(1)
}

func (m *ScheduleRepository) SaveParticipant(ctx context.Context, participant *domain.ScheduleParticipant) error {
	args := m.Called(ctx, participant)
	return args.Error(0)
}

func (m *ScheduleRepository) FindParticipant(ctx context.Context, scheduleID, userID uint) (*domain.ScheduleParticipant, error) {
	args := m.Called(ctx, scheduleID, userID)
	var participant *domain.ScheduleParticipant
	if args.Get(0) != nil {
		participant = args.Get(0).(*domain.ScheduleParticipant)
	}
	return participant, args.Error(1)
}

func (m *ScheduleRepository) FindParticipants(ctx context.Context, scheduleID uint) ([]domain.ScheduleParticipant, error) {
	args := m.Called(ctx, scheduleID)
	var participants []domain.ScheduleParticipant
	if args.Get(0) != nil {
		participants = args.Get(0).([]domain.ScheduleParticipant)
	}
	return participants, args.Error(1)
}

func (m *ScheduleRepository) FindUpcomingUnreminded(ctx context.Context, from, until time.Time) ([]domain.Schedule, error) {
	args := m.Called(ctx, from, until)
	var schedules []domain.Schedule
	if args.Get(0) != nil {
		schedules = args.Get(0).([]domain.Schedule)
	}
	return schedules, args.Error(1)
}

func (m *ScheduleRepository) MarkReminded(ctx context.Context, scheduleID uint) error {
	args := m.Called(ctx, scheduleID)
	return args.Error(0)
}
