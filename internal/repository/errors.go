package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入或更新的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

// 特定资源的错误 (可以基于通用错误创建)
var (
	ErrUserNotFound     = ErrNotFound
	ErrTeamNotFound     = ErrNotFound
	ErrMessageNotFound  = ErrNotFound
	ErrScheduleNotFound = ErrNotFound
)
