package domain

import "time"

// ScheduleType 区分个人日程和团队日程。
type ScheduleType string

const (
	ScheduleTypePersonal ScheduleType = "personal"
	ScheduleTypeTeam     ScheduleType = "team"
)

// Valid 检查日程类型是否为已定义的枚举值。
func (t ScheduleType) Valid() bool {
	return t == ScheduleTypePersonal || t == ScheduleTypeTeam
}

// MaxScheduleDuration 为单个日程允许的最大时长。
const MaxScheduleDuration = 7 * 24 * time.Hour

// Schedule 表示一个日程。团队日程必须关联 TeamID。
type Schedule struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Title         string       `gorm:"type:varchar(200);not null" json:"title"`
	Content       string       `gorm:"type:text" json:"content"`
	StartDatetime time.Time    `gorm:"index;not null" json:"start_datetime"`
	EndDatetime   time.Time    `gorm:"index;not null" json:"end_datetime"`
	ScheduleType  ScheduleType `gorm:"type:varchar(16);not null;default:personal" json:"schedule_type"`
	CreatorID     uint         `gorm:"index;not null" json:"creator_id"`
	TeamID        *uint        `gorm:"index" json:"team_id,omitempty"`
	ReminderSent  bool         `gorm:"not null;default:false" json:"-"` // 提醒任务是否已投递过系统消息
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"-"`
}

// Overlaps 判断日程区间与 [start, end) 是否重叠。
// 采用半开区间语义：一个日程恰好在另一个开始时结束，不算重叠。
func (s *Schedule) Overlaps(start, end time.Time) bool {
	return s.StartDatetime.Before(end) && start.Before(s.EndDatetime)
}

// 参与状态。只有 confirmed 状态才真正占用用户的时间。
const (
	ParticipationPending   = "pending"
	ParticipationConfirmed = "confirmed"
	ParticipationDeclined  = "declined"
)

// ScheduleParticipant 表示用户与日程的参与关系。
type ScheduleParticipant struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	ScheduleID          uint      `gorm:"uniqueIndex:idx_schedule_user;not null" json:"schedule_id"`
	UserID              uint      `gorm:"uniqueIndex:idx_schedule_user;index;not null" json:"user_id"`
	ParticipationStatus string    `gorm:"type:varchar(16);not null;default:pending" json:"participation_status"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"-"`
}
