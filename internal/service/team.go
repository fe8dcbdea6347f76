package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
)

// TeamService 负责团队管理相关的业务逻辑。
type TeamService struct {
	teamRepo repository.TeamRepository
}

// NewTeamService 创建 TeamService 实例。
func NewTeamService(teamRepo repository.TeamRepository) *TeamService {
	if teamRepo == nil {
		panic("TeamRepository cannot be nil for TeamService")
	}
	return &TeamService{teamRepo: teamRepo}
}

// CreateTeam 创建一个新团队，创建者自动成为 leader。
func (s *TeamService) CreateTeam(ctx context.Context, creatorID uint, name string) (*domain.Team, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "team_name": name})

	if name == "" {
		return nil, ErrInvalidTeamName
	}

	// 1. 生成唯一的邀请码
	inviteCode, err := s.generateUniqueInviteCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique invite code")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("invite_code", inviteCode)

	// 2. 保存团队
	team := &domain.Team{
		Name:       name,
		CreatorID:  creatorID,
		InviteCode: inviteCode,
	}
	if err := s.teamRepo.Save(ctx, team); err != nil {
		logCtx.WithError(err).Error("Failed to save new team")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("team_id", team.ID)

	// 3. 创建者加入为 leader
	member := &domain.TeamMember{TeamID: team.ID, UserID: creatorID, Role: domain.TeamRoleLeader}
	if err := s.teamRepo.AddMember(ctx, member); err != nil {
		logCtx.WithError(err).Error("Failed to add creator as team leader")
		return nil, ErrInternalServer
	}

	logCtx.Info("Team created successfully")
	return team, nil
}

// JoinTeam 处理用户通过邀请码加入团队。
func (s *TeamService) JoinTeam(ctx context.Context, userID uint, inviteCode string) (*domain.Team, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "invite_code": inviteCode})

	// 1. 根据邀请码查找团队
	team, err := s.teamRepo.FindByInviteCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, repository.ErrTeamNotFound) {
			logCtx.Warn("Failed to find team by invite code: Not found")
			return nil, ErrInvalidInviteCode
		}
		logCtx.WithError(err).Warn("Failed to find team by invite code: Repository error")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("team_id", team.ID)

	// 2. 添加成员关系；已是成员时保持幂等
	member := &domain.TeamMember{TeamID: team.ID, UserID: userID, Role: domain.TeamRoleMember}
	if err := s.teamRepo.AddMember(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Debug("User already a member of the team")
			return team, nil
		}
		logCtx.WithError(err).Error("Failed to add team member")
		return nil, ErrInternalServer
	}

	logCtx.Info("User joined team successfully")
	return team, nil
}

// FindTeamByID 供其他层查找团队，不存在时返回业务错误。
func (s *TeamService) FindTeamByID(ctx context.Context, teamID uint) (*domain.Team, error) {
	team, err := s.teamRepo.FindByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		logrus.WithError(err).WithField("team_id", teamID).Error("FindTeamByID: Repository error")
		return nil, ErrInternalServer
	}
	return team, nil
}

// IsMember 检查用户是否为团队成员。
func (s *TeamService) IsMember(ctx context.Context, teamID, userID uint) (bool, error) {
	isMember, err := s.teamRepo.IsMember(ctx, teamID, userID)
	if err != nil {
		logrus.WithError(err).Error("IsMember: Repository error")
		return false, ErrInternalServer
	}
	return isMember, nil
}

// generateUniqueInviteCode 生成唯一的邀请码
func (s *TeamService) generateUniqueInviteCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 6
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		exists, err := s.teamRepo.IsInviteCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("database error checking invite code: %w", err)
		}
		if !exists {
			return code, nil
		}
		// code 已存在，重试
		logrus.WithField("invite_code", code).Warnf("Generated invite code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique invite code after %d attempts", maxAttempts)
}
