package domain

import "time"

// Team 表示一个团队，聊天频道和团队日程都挂在团队下。
type Team struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(100);not null" json:"name"`
	CreatorID  uint      `gorm:"index;not null" json:"creator_id"`
	InviteCode string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"invite_code"` // 用于加入团队的邀请码，必须唯一
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"-"`
}

// 团队成员角色。
const (
	TeamRoleLeader = "leader"
	TeamRoleMember = "member"
)

// TeamMember 表示用户与团队的成员关系。
type TeamMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	TeamID   uint      `gorm:"uniqueIndex:idx_team_user;not null" json:"team_id"`
	UserID   uint      `gorm:"uniqueIndex:idx_team_user;index;not null" json:"user_id"`
	Role     string    `gorm:"type:varchar(16);not null;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
