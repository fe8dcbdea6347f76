package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"team-caltalk/internal/domain"
	"team-caltalk/internal/repository"
)

// GormTeamRepository 是 TeamRepository 接口的 GORM 实现
type GormTeamRepository struct {
	db *gorm.DB
}

// NewGormTeamRepository 创建 GormTeamRepository 实例
func NewGormTeamRepository(db *gorm.DB) *GormTeamRepository {
	if db == nil {
		panic("database connection cannot be nil for GormTeamRepository")
	}
	return &GormTeamRepository{db: db}
}

// FindByID 实现根据团队 ID 查找团队
func (r *GormTeamRepository) FindByID(ctx context.Context, id uint) (*domain.Team, error) {
	var team domain.Team
	err := r.db.WithContext(ctx).First(&team, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrTeamNotFound
		}
		return nil, fmt.Errorf("gorm: find team by id %d: %w", id, err)
	}
	return &team, nil
}

// FindByInviteCode 实现根据邀请码查找团队
func (r *GormTeamRepository) FindByInviteCode(ctx context.Context, code string) (*domain.Team, error) {
	var team domain.Team
	err := r.db.WithContext(ctx).Where("invite_code = ?", code).First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrTeamNotFound
		}
		return nil, fmt.Errorf("gorm: find team by invite code '%s': %w", code, err)
	}
	return &team, nil
}

// Save 实现保存团队信息（创建或更新）
func (r *GormTeamRepository) Save(ctx context.Context, team *domain.Team) error {
	err := r.db.WithContext(ctx).Save(team).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save team (id: %d, invite_code: %s): %w", team.ID, team.InviteCode, err)
	}
	return nil
}

// IsInviteCodeExists 实现检查邀请码是否存在
func (r *GormTeamRepository) IsInviteCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	// 使用 Count() 优化查询，只查询数量
	err := r.db.WithContext(ctx).Model(&domain.Team{}).Where("invite_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count teams by invite code '%s': %w", code, err)
	}
	return count > 0, nil
}

// AddMember 实现添加团队成员关系
func (r *GormTeamRepository) AddMember(ctx context.Context, member *domain.TeamMember) error {
	err := r.db.WithContext(ctx).Create(member).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: add member (team: %d, user: %d): %w", member.TeamID, member.UserID, err)
	}
	return nil
}

// IsMember 实现检查用户是否为团队成员
func (r *GormTeamRepository) IsMember(ctx context.Context, teamID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count membership (team: %d, user: %d): %w", teamID, userID, err)
	}
	return count > 0, nil
}

// FindMembers 实现获取团队的全部成员关系
func (r *GormTeamRepository) FindMembers(ctx context.Context, teamID uint) ([]domain.TeamMember, error) {
	var members []domain.TeamMember
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find members of team %d: %w", teamID, err)
	}
	return members, nil
}
