package model

import "time"

// Action 文件操作类型，与 file_activities 表的 action 列取值一致
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionWrite  Action = "WRITE"
	ActionDelete Action = "DELETE"
	ActionMove   Action = "MOVE"
	ActionRename Action = "RENAME"
)

// Destructive 删除/移动属于破坏性操作，告警评分时额外加分
func (a Action) Destructive() bool {
	return a == ActionDelete || a == ActionMove
}

// RawEvent 监控器产出的原始文件事件（已合并抖动，尚未补充上下文）
type RawEvent struct {
	Action     Action
	Path       string // 绝对路径
	OldPath    string // 仅 MOVE/RENAME：源路径
	OccurredAt time.Time
}

// MountEvent 可移动介质挂载/卸载事件
type MountEvent struct {
	Action     string // "add", "remove"
	DevicePath string // e.g., /dev/sdb1
	MountPoint string // e.g., /media/usb
	TimeStamp  time.Time
}
