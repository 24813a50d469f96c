package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hara602/fsSentry/internal/alert"
	"github.com/Hara602/fsSentry/internal/config"
	"github.com/Hara602/fsSentry/internal/enrich"
	"github.com/Hara602/fsSentry/internal/monitor"
	"github.com/Hara602/fsSentry/internal/mount"
	"github.com/Hara602/fsSentry/internal/pathfilter"
	"github.com/Hara602/fsSentry/internal/risk"
	"github.com/Hara602/fsSentry/internal/store"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"github.com/Hara602/fsSentry/internal/watcher"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// 配置坏了没法带病运行，直接退出
		sysutil.InitLogger("info", "console")
		sysutil.Log.Fatal("Config load failed", zap.Error(err))
	}

	// 初始化日志
	sysutil.InitLogger(cfg.Agent.LogLevel, cfg.Agent.LogFormat)
	defer sysutil.Log.Sync()

	sysutil.Log.Info("🛡️ FS Sentry Agent Starting...",
		zap.Strings("paths", cfg.Watch.Paths))

	// 初始化核心模块 (依赖注入)
	filter := pathfilter.New(cfg.Watch.Paths, cfg.Watch.ExcludedPaths,
		cfg.Watch.ExcludedExtensions, cfg.Store.DBPath)

	st, err := store.Open(cfg.Store.DBPath, cfg.Store.MaxBufferSize, cfg.Store.MaxFlushRetries)
	if err != nil {
		sysutil.Log.Fatal("Store init failed", zap.Error(err))
	}
	defer st.Close()

	fsw := watcher.New(watcher.Options{
		Roots:             filter.Roots(),
		CoalesceWindow:    cfg.Watch.CoalesceWindow,
		QueueSize:         cfg.Watch.QueueSize,
		RootRetryInterval: cfg.Watch.RootRetryInterval,
	})

	enricher := enrich.New(filter, enrich.NewProcessResolver())
	rules := risk.NewRules(cfg.Risk)
	engine := alert.NewEngine(
		alert.PoliciesFromConfig(cfg.Alerts, cfg.Risk),
		cfg.Alerts.SuppressionWindow)

	var mounts mount.Watcher
	if cfg.Watch.RemovableMedia {
		mounts = mount.New()
	}

	ctl := monitor.New(cfg, fsw, mounts, filter, enricher, rules, engine, st)
	if err := ctl.Start(); err != nil {
		sysutil.Log.Fatal("Monitor start failed", zap.Error(err))
	}

	// 捕获操作系统信号，优雅关闭服务器或后台服务
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctl.Stop()
}
