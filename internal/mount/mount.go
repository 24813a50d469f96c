package mount

import "github.com/Hara602/fsSentry/internal/model"

// Watcher 定义接口：订阅可移动介质的挂载/卸载，
// 挂载点交给控制器作为新的监控根。非 Linux 平台为空实现。
type Watcher interface {
	Start() (<-chan model.MountEvent, error)
	Stop()
}

func New() Watcher {
	return newWatcher()
}
