package domain

import (
	"time"
	"unicode/utf8"
)

// MessageType 区分普通聊天消息和与日程联动的消息。
type MessageType string

const (
	MessageTypeNormal          MessageType = "normal"
	MessageTypeScheduleRequest MessageType = "schedule_request"
	MessageTypeScheduleUpdate  MessageType = "schedule_update"
	MessageTypeSystem          MessageType = "system"
)

// Valid 检查消息类型是否为已定义的枚举值。
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeNormal, MessageTypeScheduleRequest, MessageTypeScheduleUpdate, MessageTypeSystem:
		return true
	}
	return false
}

// MaxMessageContentLength 为单条消息内容的最大长度（按字符计，不是字节）。
const MaxMessageContentLength = 500

// TargetDateLayout 是消息所属聊天日的日期格式 (逻辑日，区别于发送时刻)。
const TargetDateLayout = "2006-01-02"

// Message 表示一条团队聊天消息。创建后不可变，只能被发送者删除。
type Message struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	TeamID            uint        `gorm:"index:idx_team_date_id,priority:1;not null" json:"team_id"`
	SenderID          uint        `gorm:"index;not null" json:"sender_id"`
	Content           string      `gorm:"type:varchar(500);not null" json:"content"`
	TargetDate        string      `gorm:"type:varchar(10);index:idx_team_date_id,priority:2;not null" json:"target_date"`
	MessageType       MessageType `gorm:"type:varchar(20);not null;default:normal" json:"message_type"`
	RelatedScheduleID *uint       `gorm:"index" json:"related_schedule_id,omitempty"`
	SentAt            time.Time   `gorm:"autoCreateTime" json:"sent_at"`
}

// ValidateContent 检查消息内容是否非空且不超过长度上限。
func ValidateContent(content string) bool {
	n := utf8.RuneCountInString(content)
	return n > 0 && n <= MaxMessageContentLength
}
