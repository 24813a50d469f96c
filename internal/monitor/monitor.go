package monitor

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/Hara602/fsSentry/internal/alert"
	"github.com/Hara602/fsSentry/internal/config"
	"github.com/Hara602/fsSentry/internal/enrich"
	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/mount"
	"github.com/Hara602/fsSentry/internal/pathfilter"
	"github.com/Hara602/fsSentry/internal/risk"
	"github.com/Hara602/fsSentry/internal/store"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"github.com/Hara602/fsSentry/internal/watcher"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller 串起整条流水线：监控 → 补全 → 分级 → 告警 → 落库。
// 事件由单个工作协程顺序消费，保证同一路径的事件不会乱序。
type Controller struct {
	cfg      *config.Config
	watcher  watcher.ChangeWatcher
	mounts   mount.Watcher
	filter   *pathfilter.Filter
	enricher *enrich.Enricher
	rules    risk.Rules
	engine   *alert.Engine
	store    *store.Store

	statusMu sync.Mutex
	status   string

	stopc    chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg *config.Config, w watcher.ChangeWatcher, m mount.Watcher,
	filter *pathfilter.Filter, enricher *enrich.Enricher,
	rules risk.Rules, engine *alert.Engine, st *store.Store) *Controller {
	return &Controller{
		cfg:      cfg,
		watcher:  w,
		mounts:   m,
		filter:   filter,
		enricher: enricher,
		rules:    rules,
		engine:   engine,
		store:    st,
		status:   "Starting",
		stopc:    make(chan struct{}),
	}
}

// Start 启动监控与流水线
func (c *Controller) Start() error {
	if err := c.watcher.Start(); err != nil {
		return err
	}

	if c.cfg.Watch.RemovableMedia && c.mounts != nil {
		ch, err := c.mounts.Start()
		if err != nil {
			// 介质监控是锦上添花，起不来不影响主流程
			sysutil.Log.Warn("mount watcher unavailable", zap.Error(err))
		} else if ch != nil {
			c.wg.Add(1)
			go c.mountLoop(ch)
		}
	}

	c.setStatus("Running")
	c.writeStatusRow()

	c.wg.Add(2)
	go c.pipelineLoop()
	go c.syncLoop()
	return nil
}

// Stop 有序停机：停监控 → 排空事件队列 → 冲缓冲 → 写终态。
// 没有未落库的数据就不会返回。
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		sysutil.Log.Info("Shutting down...")
		if c.mounts != nil {
			c.mounts.Stop()
		}
		// 关监控后事件通道随排水关闭，流水线协程自然退出
		c.watcher.Stop()
		close(c.stopc)
		c.wg.Wait()

		if err := c.store.Flush(); err != nil {
			sysutil.Log.Error("final flush failed", zap.Error(err))
		}
		c.setStatus("Stopped")
		c.writeStatusRow()
	})
}

// Status 当前服务状态快照
func (c *Controller) Status() model.ServiceStatus {
	c.statusMu.Lock()
	status := c.status
	c.statusMu.Unlock()

	total, alerts := c.store.Totals()
	return model.ServiceStatus{
		Status:          status,
		LastUpdate:      time.Now(),
		MonitoredPaths:  c.filter.Roots(),
		TotalActivities: total,
		AlertsCount:     alerts,
		Degraded:        c.store.Degraded(),
	}
}

func (c *Controller) setStatus(s string) {
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}

// pipelineLoop 单工作协程消费事件，通道关闭即退出
func (c *Controller) pipelineLoop() {
	defer c.wg.Done()
	for ev := range c.watcher.Events() {
		c.process(ev)
	}
}

func (c *Controller) process(ev model.RawEvent) {
	rec := c.enricher.Enrich(ev)
	if rec == nil {
		return
	}
	rec.RiskLevel = c.rules.Classify(rec)

	c.store.AppendActivity(*rec)
	c.enqueueSignal(model.SignalNewActivity, map[string]any{
		"id":         rec.ID,
		"action":     string(rec.Action),
		"file_path":  filepath.Base(rec.FilePath),
		"risk_level": string(rec.RiskLevel),
		"timestamp":  rec.Timestamp.Format(time.RFC3339),
	})

	sysutil.Log.Info("📂 File Activity",
		zap.String("op", string(rec.Action)),
		zap.String("file", rec.FilePath),
		zap.String("process", rec.ProcessName),
		zap.Int32("pid", rec.ProcessID),
		zap.String("risk", string(rec.RiskLevel)),
	)

	for _, a := range c.engine.Evaluate(rec) {
		c.store.AppendAlert(a)
		c.enqueueSignal(model.SignalNewAlert, map[string]any{
			"id":          a.ID,
			"description": a.Description,
			"file_path":   a.FilePath,
			"risk_level":  string(a.RiskLevel),
			"risk_score":  a.RiskScore,
			"timestamp":   a.Timestamp.Format(time.RFC3339),
		})
		sysutil.Log.Warn("🚨 ALERT",
			zap.String("policy", a.PolicyName),
			zap.String("file", a.FilePath),
			zap.String("risk", string(a.RiskLevel)),
			zap.Int("score", a.RiskScore),
		)
	}
}

func (c *Controller) enqueueSignal(signalType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.store.EnqueueSignal(model.LiveSignal{
		ID:         uuid.NewString(),
		SignalType: signalType,
		Payload:    string(data),
		Timestamp:  time.Now(),
	})
}

// syncLoop 周期性冲缓冲并刷新状态行（仪表盘靠它判断服务存活）
func (c *Controller) syncLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Store.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopc:
			return
		case <-ticker.C:
			if err := c.store.Flush(); err != nil {
				sysutil.Log.Error("periodic flush failed, will retry", zap.Error(err))
			}
			c.writeStatusRow()
		}
	}
}

func (c *Controller) writeStatusRow() {
	if err := c.store.UpdateServiceStatus(c.Status()); err != nil {
		sysutil.Log.Error("failed to update service status", zap.Error(err))
	}
}

// mountLoop 可移动介质挂载后自动纳入监控
func (c *Controller) mountLoop(ch <-chan model.MountEvent) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopc:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Action != "add" || ev.MountPoint == "" {
				continue
			}
			if !c.filter.AddRoot(ev.MountPoint) {
				continue
			}
			if err := c.watcher.AddRoot(ev.MountPoint); err != nil {
				sysutil.Log.Error("failed to watch new mount", zap.String("mount", ev.MountPoint), zap.Error(err))
				continue
			}
			sysutil.Log.Info("✅ Removable media mounted, monitoring started",
				zap.String("mount", ev.MountPoint),
				zap.String("dev", ev.DevicePath))
			c.enqueueSignal(model.SignalStatusChange, map[string]any{
				"monitored_paths": c.filter.Roots(),
			})
		}
	}
}
