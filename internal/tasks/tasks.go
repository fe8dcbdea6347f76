package tasks

import "encoding/json"

// 定义任务类型常量
const (
	// TypeScheduleReminderCheck 周期性检查即将开始的团队日程并投递提醒消息
	TypeScheduleReminderCheck = "schedule:reminder_check"
)

// ScheduleReminderCheckPayload 定义提醒检查任务的数据结构。
// 周期任务不携带状态，检查窗口由 Worker 端配置决定。
type ScheduleReminderCheckPayload struct{}

// NewScheduleReminderCheckTask 创建提醒检查任务的 payload
func NewScheduleReminderCheckTask() ([]byte, error) {
	return json.Marshal(ScheduleReminderCheckPayload{})
}
