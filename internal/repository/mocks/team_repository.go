package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"team-caltalk/internal/domain"
)

// TeamRepository 是 repository.TeamRepository 的 Mock 实现
type TeamRepository struct {
	mock.Mock
}

func (m *TeamRepository) FindByID(ctx context.Context, id uint) (*domain.Team, error) {
	args := m.Called(ctx, id)
	var team *domain.Team
	if args.Get(0) != nil {
		team = args.Get(0).(*domain.Team)
	}
	return team, args.Error(1)
}

func (m *TeamRepository) FindByInviteCode(ctx context.Context, code string) (*domain.Team, error) {
	args := m.Called(ctx, code)
	var team *domain.Team
	if args.Get(0) != nil {
		team = args.Get(0).(*domain.Team)
	}
	return team, args.Error(1)
}

func (m *TeamRepository) Save(ctx context.Context, team *domain.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *TeamRepository) IsInviteCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *TeamRepository) AddMember(ctx context.Context, member *domain.TeamMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *TeamRepository) IsMember(ctx context.Context, teamID, userID uint) (bool, error) {
	args := m.Called(ctx, teamID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *TeamRepository) FindMembers(ctx context.Context, teamID uint) ([]domain.TeamMember, error) {
	args := m.Called(ctx, teamID)
	var members []domain.TeamMember
	if args.Get(0) != nil {
		members = args.Get(0).([]domain.TeamMember)
	}
	return members, args.Error(1)
}
