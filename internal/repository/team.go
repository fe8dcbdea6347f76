package repository

import (
	"context"

	"team-caltalk/internal/domain"
)

// TeamRepository 定义了团队和成员关系数据的存储和检索操作。
type TeamRepository interface {
	// FindByID 根据团队 ID 查找团队。
	// 如果团队不存在，应返回 repository.ErrTeamNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Team, error)

	// FindByInviteCode 根据邀请码查找团队。
	// 如果团队不存在，应返回 repository.ErrTeamNotFound。
	FindByInviteCode(ctx context.Context, code string) (*domain.Team, error)

	// Save 保存团队信息。
	Save(ctx context.Context, team *domain.Team) error

	// IsInviteCodeExists 检查邀请码是否已存在。
	IsInviteCodeExists(ctx context.Context, code string) (bool, error)

	// AddMember 添加团队成员关系。
	// 用户已是成员时返回 repository.ErrDuplicateEntry。
	AddMember(ctx context.Context, member *domain.TeamMember) error

	// IsMember 检查用户是否为团队成员。
	IsMember(ctx context.Context, teamID, userID uint) (bool, error)

	// FindMembers 返回团队的所有成员关系。
	FindMembers(ctx context.Context, teamID uint) ([]domain.TeamMember, error)
}
