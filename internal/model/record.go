package model

import "time"

// RiskLevel 风险等级，三档
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// rank 用于等级比较，未知值按最低处理
func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// AtLeast 判断 r 是否不低于 other
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

// MaxRisk 取两个等级中的较高者
func MaxRisk(a, b RiskLevel) RiskLevel {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// ActivityRecord 一条完整的文件活动审计记录。
// 创建后不再修改（status 的流转由外部 UI 层负责）。
type ActivityRecord struct {
	ID              string
	Timestamp       time.Time
	Username        string
	ProcessName     string
	ProcessID       int32
	Action          Action
	FilePath        string
	DestinationPath string // 仅 MOVE/RENAME 填写
	FileSize        int64
	RiskLevel       RiskLevel
	Status          string // 默认 "New"
	Failed          bool   // 操作本身失败（如补充元数据时文件已不可达）
	Detail          string // 附加说明，如伪装文件检测结果
}

// Alert 告警记录，由告警引擎创建，状态为 New；后续状态流转归 UI 层
type Alert struct {
	ID          string
	Timestamp   time.Time
	Username    string
	Description string
	FilePath    string
	RiskLevel   RiskLevel
	RiskScore   int // 0-100
	Status      string
	PolicyID    string
	PolicyName  string
}

// Alert 状态取值
const (
	AlertStatusNew           = "New"
	AlertStatusAcknowledged  = "Acknowledged"
	AlertStatusInvestigating = "Investigating"
	AlertStatusResolved      = "Resolved"
	AlertStatusDismissed     = "Dismissed"
)

// LiveSignal 推给前端轮询的实时信号，消费方置 processed 后不再下发
type LiveSignal struct {
	ID         string
	SignalType string // new_activity / new_alert / status_change
	Payload    string // JSON
	Timestamp  time.Time
	Processed  bool
}

const (
	SignalNewActivity  = "new_activity"
	SignalNewAlert     = "new_alert"
	SignalStatusChange = "status_change"
)

// ServiceStatus 服务状态汇总行（单行，id 固定为 1）
type ServiceStatus struct {
	Status          string
	LastUpdate      time.Time
	MonitoredPaths  []string
	TotalActivities int64
	AlertsCount     int64
	Degraded        bool // 刷盘持续失败时置位
}
