package watcher

import (
	"time"

	"github.com/Hara602/fsSentry/internal/model"
)

// ChangeWatcher 定义接口：递归订阅目录树变更，产出原始事件。
// 事件通道有界，满时发送方阻塞（审计完整性优先于监控响应速度）。
type ChangeWatcher interface {
	Start() error
	Stop()
	AddRoot(path string) error
	Events() <-chan model.RawEvent
}

// Options 监控器行为参数
type Options struct {
	Roots             []string
	CoalesceWindow    time.Duration // 同一 (路径, 操作) 的抖动合并窗口
	QueueSize         int           // 输出通道容量
	RenameMatchWindow time.Duration // RENAME 源与 CREATE 目标的配对窗口
	RootRetryInterval time.Duration // 失联根目录的重试起始间隔
}

func New(opts Options) ChangeWatcher {
	return newFsWatcher(opts)
}
