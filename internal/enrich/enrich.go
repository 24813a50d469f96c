package enrich

import (
	"context"
	"os"
	"time"

	"github.com/Hara602/fsSentry/internal/analysis"
	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/pathfilter"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessInfo 事件发生时的操作进程
type ProcessInfo struct {
	Name     string
	PID      int32
	Username string
}

// ProcessResolver 定义接口：尽力找出正在操作某路径的进程。
// 找不到是常态（进程可能已退出），返回 false 即可，不算错误。
type ProcessResolver interface {
	Resolve(ctx context.Context, path string) (ProcessInfo, bool)
}

const unknown = "Unknown"

// resolveTimeout 进程表扫描的时间上限，超时放弃，用占位值兜底
const resolveTimeout = 200 * time.Millisecond

// Enricher 把原始事件补全成完整审计记录。
// 元数据拿不到就降级为占位值：少一条审计记录比记录不全更糟。
type Enricher struct {
	filter    *pathfilter.Filter
	procs     ProcessResolver
	inspector *analysis.TypeInspector
}

func New(filter *pathfilter.Filter, procs ProcessResolver) *Enricher {
	return &Enricher{
		filter:    filter,
		procs:     procs,
		inspector: analysis.NewTypeInspector(),
	}
}

// Enrich 过滤并补全一条原始事件。范围外的事件返回 nil。
func (e *Enricher) Enrich(raw model.RawEvent) *model.ActivityRecord {
	if !e.filter.InScope(raw.Path) {
		return nil
	}

	rec := &model.ActivityRecord{
		ID:        uuid.NewString(),
		Timestamp: raw.OccurredAt,
		Action:    raw.Action,
		FilePath:  raw.Path,
		Username:  unknown,
		Status:    "New",
	}
	if raw.Action == model.ActionMove || raw.Action == model.ActionRename {
		rec.FilePath = raw.OldPath
		rec.DestinationPath = raw.Path
	}

	// 操作进程：扫描进程表找打开了该路径的进程，限时，找不到不影响记录
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	if info, ok := e.procs.Resolve(ctx, raw.Path); ok {
		rec.ProcessName = info.Name
		rec.ProcessID = info.PID
		if info.Username != "" {
			rec.Username = info.Username
		}
	} else {
		rec.ProcessName = unknown
	}
	cancel()

	// 文件属主兜底：进程用户拿不到时用文件当前属主
	if rec.Username == unknown {
		if owner, err := fileOwner(raw.Path); err == nil && owner != "" {
			rec.Username = owner
		}
	}

	// 大小与存活状态。CREATE/WRITE 后文件立刻消失视为操作失败
	statPath := raw.Path
	if fi, err := os.Stat(statPath); err == nil {
		rec.FileSize = fi.Size()
	} else if raw.Action == model.ActionCreate || raw.Action == model.ActionWrite ||
		raw.Action == model.ActionMove || raw.Action == model.ActionRename {
		rec.Failed = true
	}

	// 新写入的文件做一次伪装检测，结果记入 Detail 供告警策略使用
	if raw.Action == model.ActionCreate || raw.Action == model.ActionWrite {
		if result, err := e.inspector.Inspect(raw.Path); err == nil && result.IsMasquerade {
			rec.Detail = result.Message
			sysutil.Log.Warn("🚨 masquerade file detected",
				zap.String("path", raw.Path),
				zap.String("real", result.RealExt),
				zap.String("declared", result.DeclaredExt))
		}
	}

	return rec
}
