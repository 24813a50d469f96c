package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/fsSentry/internal/alert"
	"github.com/Hara602/fsSentry/internal/config"
	"github.com/Hara602/fsSentry/internal/enrich"
	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/pathfilter"
	"github.com/Hara602/fsSentry/internal/risk"
	"github.com/Hara602/fsSentry/internal/store"
	"github.com/Hara602/fsSentry/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWatcher 手动注入事件的监控器替身
type fakeWatcher struct {
	ch chan model.RawEvent
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{ch: make(chan model.RawEvent, 16)}
}

func (f *fakeWatcher) Start() error { return nil }

func (f *fakeWatcher) Stop() { close(f.ch) }

func (f *fakeWatcher) AddRoot(string) error { return nil }

func (f *fakeWatcher) Events() <-chan model.RawEvent { return f.ch }

var _ watcher.ChangeWatcher = (*fakeWatcher)(nil)

type noProcess struct{}

func (noProcess) Resolve(ctx context.Context, path string) (enrich.ProcessInfo, bool) {
	return enrich.ProcessInfo{}, false
}

func testConfig(root, dbPath string) *config.Config {
	cfg := &config.Config{}
	cfg.Watch.Paths = []string{root}
	cfg.Watch.QueueSize = 16
	cfg.Store.DBPath = dbPath
	cfg.Store.SyncInterval = time.Hour // 测试里只靠停机时的最终落库
	cfg.Store.MaxBufferSize = 100
	cfg.Store.MaxFlushRetries = 3
	cfg.Risk.HighRiskExtensions = []string{".exe"}
	cfg.Risk.HighRiskActions = []string{"DELETE"}
	return cfg
}

func TestPipelineEndToEnd(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "monitor.db")
	cfg := testConfig(root, dbPath)

	st, err := store.Open(dbPath, cfg.Store.MaxBufferSize, cfg.Store.MaxFlushRetries)
	require.NoError(t, err)
	defer st.Close()

	filter := pathfilter.New(cfg.Watch.Paths, nil, nil, dbPath)
	fw := newFakeWatcher()
	enricher := enrich.New(filter, noProcess{})
	rules := risk.NewRules(cfg.Risk)
	engine := alert.NewEngine(alert.PoliciesFromConfig(cfg.Alerts, cfg.Risk), 5*time.Minute)

	ctl := New(cfg, fw, nil, filter, enricher, rules, engine, st)
	require.NoError(t, ctl.Start())
	assert.Equal(t, "Running", ctl.Status().Status)

	// 高危扩展名落盘
	exePath := filepath.Join(root, "tool.exe")
	require.NoError(t, os.WriteFile(exePath, []byte("x"), 0755))
	fw.ch <- model.RawEvent{Action: model.ActionCreate, Path: exePath, OccurredAt: time.Now()}

	// 高危操作
	fw.ch <- model.RawEvent{Action: model.ActionDelete, Path: filepath.Join(root, "notes.txt"), OccurredAt: time.Now()}

	// 范围外事件被丢弃
	fw.ch <- model.RawEvent{Action: model.ActionWrite, Path: "/outside/x.txt", OccurredAt: time.Now()}

	// Stop 排空队列并做最终落库
	ctl.Stop()

	activities, err := st.QueryActivities(store.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, activities, 2)
	for _, rec := range activities {
		assert.Equal(t, model.RiskHigh, rec.RiskLevel)
	}

	alerts, err := st.QueryAlerts(store.AlertFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, alerts)
	for _, a := range alerts {
		assert.Equal(t, model.AlertStatusNew, a.Status)
		assert.GreaterOrEqual(t, a.RiskScore, 75)
	}

	signals, err := st.PendingSignals(50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(signals), 2, "每条活动至少产生一个实时信号")

	status, err := st.ServiceStatus()
	require.NoError(t, err)
	assert.Equal(t, "Stopped", status.Status)
	assert.EqualValues(t, 2, status.TotalActivities)
}

func TestStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "monitor.db")
	cfg := testConfig(root, dbPath)

	st, err := store.Open(dbPath, cfg.Store.MaxBufferSize, cfg.Store.MaxFlushRetries)
	require.NoError(t, err)
	defer st.Close()

	filter := pathfilter.New(cfg.Watch.Paths, nil, nil, dbPath)
	fw := newFakeWatcher()
	ctl := New(cfg, fw, nil, filter,
		enrich.New(filter, noProcess{}),
		risk.NewRules(cfg.Risk),
		alert.NewEngine(nil, 0), st)

	require.NoError(t, ctl.Start())
	ctl.Stop()
	ctl.Stop() // 二次调用无害
	assert.Equal(t, "Stopped", ctl.Status().Status)
}
