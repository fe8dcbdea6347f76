package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
)

// ScheduleInput 是创建/更新日程的输入。
type ScheduleInput struct {
	Title          string
	Content        string
	StartDatetime  time.Time
	EndDatetime    time.Time
	ScheduleType   domain.ScheduleType
	TeamID         *uint
	ParticipantIDs []uint // 受邀用户，初始状态 pending
}

// ScheduleService 负责日程 CRUD、参与响应以及写路径上的冲突校验。
type ScheduleService struct {
	scheduleRepo    repository.ScheduleRepository
	teamRepo        repository.TeamRepository
	conflictService *ConflictService
}

// NewScheduleService 创建 ScheduleService 实例。
func NewScheduleService(scheduleRepo repository.ScheduleRepository, teamRepo repository.TeamRepository, conflictService *ConflictService) *ScheduleService {
	if scheduleRepo == nil {
		panic("ScheduleRepository cannot be nil for ScheduleService")
	}
	if teamRepo == nil {
		panic("TeamRepository cannot be nil for ScheduleService")
	}
	if conflictService == nil {
		panic("ConflictService cannot be nil for ScheduleService")
	}
	return &ScheduleService{
		scheduleRepo:    scheduleRepo,
		teamRepo:        teamRepo,
		conflictService: conflictService,
	}
}

// CreateSchedule 创建日程。创建者自动成为 confirmed 参与者，
// 因此创建前先对创建者做冲突检查 (创建场景无需自排除)。
// 受邀参与者以 pending 状态写入，确认时各自再过冲突检查。
func (s *ScheduleService) CreateSchedule(ctx context.Context, creatorID uint, input ScheduleInput) (*domain.Schedule, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "title": input.Title})

	if err := s.validateInput(ctx, creatorID, input); err != nil {
		return nil, err
	}

	// 创建者冲突检查
	conflicts, err := s.conflictService.FindConflicts(ctx, []uint{creatorID}, input.StartDatetime, input.EndDatetime, 0)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		logCtx.WithField("conflict_count", len(conflicts)).Warn("CreateSchedule: creator has conflicting schedules")
		return nil, ErrScheduleConflict
	}

	schedule := &domain.Schedule{
		Title:         input.Title,
		Content:       input.Content,
		StartDatetime: input.StartDatetime,
		EndDatetime:   input.EndDatetime,
		ScheduleType:  input.ScheduleType,
		CreatorID:     creatorID,
		TeamID:        input.TeamID,
	}
	if err := s.scheduleRepo.Save(ctx, schedule); err != nil {
		logCtx.WithError(err).Error("CreateSchedule: failed to save schedule")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("schedule_id", schedule.ID)

	// 创建者 confirmed，其余受邀者 pending
	creatorRow := &domain.ScheduleParticipant{
		ScheduleID:          schedule.ID,
		UserID:              creatorID,
		ParticipationStatus: domain.ParticipationConfirmed,
	}
	if err := s.scheduleRepo.SaveParticipant(ctx, creatorRow); err != nil {
		logCtx.WithError(err).Error("CreateSchedule: failed to save creator participation")
		return nil, ErrInternalServer
	}
	for _, userID := range input.ParticipantIDs {
		if userID == creatorID {
			continue
		}
		row := &domain.ScheduleParticipant{
			ScheduleID:          schedule.ID,
			UserID:              userID,
			ParticipationStatus: domain.ParticipationPending,
		}
		if err := s.scheduleRepo.SaveParticipant(ctx, row); err != nil && !errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).WithField("user_id", userID).Error("CreateSchedule: failed to invite participant")
			return nil, ErrInternalServer
		}
	}

	logCtx.Info("Schedule created")
	return schedule, nil
}

// UpdateSchedule 更新日程时间等字段，仅创建者可操作。
// 冲突检查覆盖所有 confirmed 参与者，并排除日程自身。
func (s *ScheduleService) UpdateSchedule(ctx context.Context, scheduleID, userID uint, input ScheduleInput) (*domain.Schedule, error) {
	logCtx := logrus.WithFields(logrus.Fields{"schedule_id": scheduleID, "user_id": userID})

	schedule, err := s.loadOwned(ctx, scheduleID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(ctx, userID, input); err != nil {
		return nil, err
	}

	confirmed, err := s.confirmedParticipantIDs(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if len(confirmed) > 0 {
		conflicts, err := s.conflictService.FindConflicts(ctx, confirmed, input.StartDatetime, input.EndDatetime, scheduleID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			logCtx.WithField("conflict_count", len(conflicts)).Warn("UpdateSchedule: new range conflicts for confirmed participants")
			return nil, ErrScheduleConflict
		}
	}

	schedule.Title = input.Title
	schedule.Content = input.Content
	schedule.StartDatetime = input.StartDatetime
	schedule.EndDatetime = input.EndDatetime
	// 类型与团队归属跟随输入，validateInput 已做过类型/成员资格校验
	schedule.ScheduleType = input.ScheduleType
	schedule.TeamID = input.TeamID
	// 时间变更后旧提醒作废
	schedule.ReminderSent = false
	if err := s.scheduleRepo.Save(ctx, schedule); err != nil {
		logCtx.WithError(err).Error("UpdateSchedule: failed to save schedule")
		return nil, ErrInternalServer
	}

	logCtx.Info("Schedule updated")
	return schedule, nil
}

// DeleteSchedule 删除日程，仅创建者可操作，参与关系级联删除。
func (s *ScheduleService) DeleteSchedule(ctx context.Context, scheduleID, userID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"schedule_id": scheduleID, "user_id": userID})

	if _, err := s.loadOwned(ctx, scheduleID, userID); err != nil {
		return err
	}
	if err := s.scheduleRepo.Delete(ctx, scheduleID); err != nil {
		logCtx.WithError(err).Error("DeleteSchedule: failed to delete schedule")
		return ErrInternalServer
	}
	logCtx.Info("Schedule deleted")
	return nil
}

// Respond 记录受邀用户对日程的响应。
// 确认即占用时间，所以确认前对该用户做冲突检查 (排除本日程)。
func (s *ScheduleService) Respond(ctx context.Context, scheduleID, userID uint, status string) error {
	logCtx := logrus.WithFields(logrus.Fields{"schedule_id": scheduleID, "user_id": userID, "status": status})

	if status != domain.ParticipationConfirmed && status != domain.ParticipationDeclined {
		return ErrInvalidSchedule
	}

	participant, err := s.scheduleRepo.FindParticipant(ctx, scheduleID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrScheduleNotFound
		}
		logCtx.WithError(err).Error("Respond: failed to load participation")
		return ErrInternalServer
	}

	if status == domain.ParticipationConfirmed {
		schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
		if err != nil {
			logCtx.WithError(err).Error("Respond: failed to load schedule")
			return ErrInternalServer
		}
		hasConflict, err := s.conflictService.HasConflict(ctx, []uint{userID}, schedule.StartDatetime, schedule.EndDatetime, scheduleID)
		if err != nil {
			return err
		}
		if hasConflict {
			logCtx.Warn("Respond: confirmation blocked by conflicting schedule")
			return ErrScheduleConflict
		}
	}

	participant.ParticipationStatus = status
	if err := s.scheduleRepo.SaveParticipant(ctx, participant); err != nil {
		logCtx.WithError(err).Error("Respond: failed to save participation")
		return ErrInternalServer
	}
	logCtx.Info("Participation updated")
	return nil
}

// FindScheduleByID 查找日程，不存在时返回业务错误。
func (s *ScheduleService) FindScheduleByID(ctx context.Context, scheduleID uint) (*domain.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			return nil, ErrScheduleNotFound
		}
		logrus.WithError(err).WithField("schedule_id", scheduleID).Error("FindScheduleByID: repository error")
		return nil, ErrInternalServer
	}
	return schedule, nil
}

// --- 私有辅助函数 ---

func (s *ScheduleService) validateInput(ctx context.Context, userID uint, input ScheduleInput) error {
	if input.Title == "" {
		return ErrInvalidSchedule
	}
	if !input.StartDatetime.Before(input.EndDatetime) {
		return ErrInvalidRange
	}
	if input.EndDatetime.Sub(input.StartDatetime) > domain.MaxScheduleDuration {
		return ErrInvalidSchedule
	}
	if !input.ScheduleType.Valid() {
		return ErrInvalidSchedule
	}
	if input.ScheduleType == domain.ScheduleTypeTeam {
		if input.TeamID == nil {
			return ErrInvalidSchedule
		}
		isMember, err := s.teamRepo.IsMember(ctx, *input.TeamID, userID)
		if err != nil {
			logrus.WithError(err).Error("ScheduleService: membership check failed")
			return ErrInternalServer
		}
		if !isMember {
			return ErrNotTeamMember
		}
	} else if input.TeamID != nil {
		return ErrInvalidSchedule
	}
	return nil
}

func (s *ScheduleService) loadOwned(ctx context.Context, scheduleID, userID uint) (*domain.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			return nil, ErrScheduleNotFound
		}
		logrus.WithError(err).WithField("schedule_id", scheduleID).Error("ScheduleService: failed to load schedule")
		return nil, ErrInternalServer
	}
	if schedule.CreatorID != userID {
		return nil, ErrNotOwner
	}
	return schedule, nil
}

func (s *ScheduleService) confirmedParticipantIDs(ctx context.Context, scheduleID uint) ([]uint, error) {
	participants, err := s.scheduleRepo.FindParticipants(ctx, scheduleID)
	if err != nil {
		logrus.WithError(err).WithField("schedule_id", scheduleID).Error("ScheduleService: failed to load participants")
		return nil, ErrInternalServer
	}
	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		if p.ParticipationStatus == domain.ParticipationConfirmed {
			ids = append(ids, p.UserID)
		}
	}
	return ids, nil
}
