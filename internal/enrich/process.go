package enrich

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// procScanner 用进程表反查操作进程：遍历进程的打开句柄，
// 命中目标路径即认定为操作者。纯尽力而为，超时或扫不到都正常。
type procScanner struct{}

func NewProcessResolver() ProcessResolver { return &procScanner{} }

func (s *procScanner) Resolve(ctx context.Context, path string) (ProcessInfo, bool) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, false
	}

	for _, p := range procs {
		select {
		case <-ctx.Done():
			return ProcessInfo{}, false
		default:
		}

		// 拿不到句柄表的进程（权限、已退出）直接跳过
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.Path != path {
				continue
			}
			info := ProcessInfo{PID: p.Pid}
			if name, err := p.NameWithContext(ctx); err == nil {
				info.Name = name
			}
			if username, err := p.UsernameWithContext(ctx); err == nil {
				info.Username = username
			}
			return info, true
		}
	}
	return ProcessInfo{}, false
}
