package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 代理的全量配置
type Config struct {
	Agent  AgentConfig  `mapstructure:"agent"`
	Watch  WatchConfig  `mapstructure:"watch"`
	Risk   RiskConfig   `mapstructure:"risk"`
	Store  StoreConfig  `mapstructure:"store"`
	Alerts AlertsConfig `mapstructure:"alerts"`
}

// AgentConfig 日志等进程级设置
type AgentConfig struct {
	LogLevel  string `mapstructure:"log_level"`  // debug, info, warn, error
	LogFormat string `mapstructure:"log_format"` // console, json
}

// WatchConfig 监控范围与监控器行为
type WatchConfig struct {
	Paths              []string      `mapstructure:"paths"`               // 递归监控的根目录
	ExcludedPaths      []string      `mapstructure:"excluded_paths"`      // 路径片段命中即排除
	ExcludedExtensions []string      `mapstructure:"excluded_extensions"` // 排除的扩展名
	RemovableMedia     bool          `mapstructure:"removable_media"`     // 可移动介质挂载后自动纳入监控
	CoalesceWindow     time.Duration `mapstructure:"coalesce_window"`     // 同一路径同一操作的合并窗口
	QueueSize          int           `mapstructure:"queue_size"`          // 事件队列容量（满时对监控回调施加背压）
	RootRetryInterval  time.Duration `mapstructure:"root_retry_interval"` // 失联监控根的重试起始间隔
}

// RiskConfig 风险分级规则，全部可调
type RiskConfig struct {
	HighRiskExtensions []string `mapstructure:"high_risk_extensions"`
	HighRiskActions    []string `mapstructure:"high_risk_actions"`
	SensitivePaths     []string `mapstructure:"sensitive_paths"` // 命中即 High 的路径片段
	PersonalPaths      []string `mapstructure:"personal_paths"`  // 命中即 Medium 的路径片段
}

// StoreConfig 持久化与缓冲
type StoreConfig struct {
	DBPath          string        `mapstructure:"db_path"`
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
	MaxBufferSize   int           `mapstructure:"max_buffer_size"`
	MaxFlushRetries int           `mapstructure:"max_flush_retries"`
}

// AlertsConfig 告警引擎设置
type AlertsConfig struct {
	SuppressionWindow time.Duration  `mapstructure:"suppression_window"` // 同 (路径, 策略) 的抑制窗口
	Policies          []PolicyConfig `mapstructure:"policies"`           // 为空时按 risk 配置生成默认策略
}

// PolicyConfig 单条告警策略。kind 决定哪些条件字段生效
type PolicyConfig struct {
	ID            string   `mapstructure:"id"`
	Name          string   `mapstructure:"name"`
	Kind          string   `mapstructure:"kind"` // file_action / file_extension / file_size_threshold / failed_operation / off_hours / file_masquerade
	Severity      string   `mapstructure:"severity"`
	Actions       []string `mapstructure:"actions"`
	Extensions    []string `mapstructure:"extensions"`
	SizeThreshold int64    `mapstructure:"size_threshold"`
	OffHoursStart int      `mapstructure:"off_hours_start"` // 小时 0-23
	OffHoursEnd   int      `mapstructure:"off_hours_end"`
	OffDays       []string `mapstructure:"off_days"` // Saturday, Sunday ...
}

// Load 读取配置文件并合并 ENV 与默认值。
// 监控根目录为空属于致命配置错误，启动期直接失败。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// ENV 可覆盖配置项：WATCH_QUEUE_SIZE=2048 覆盖 watch.queue_size
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// 没有配置文件时仅靠 ENV 和默认值，但 watch.paths 必须有值
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必填项与取值范围
func (c *Config) Validate() error {
	if len(c.Watch.Paths) == 0 {
		return errors.New("config: watch.paths is empty, nothing to monitor")
	}
	if c.Store.MaxBufferSize <= 0 {
		return fmt.Errorf("config: store.max_buffer_size must be positive, got %d", c.Store.MaxBufferSize)
	}
	if c.Watch.QueueSize <= 0 {
		return fmt.Errorf("config: watch.queue_size must be positive, got %d", c.Watch.QueueSize)
	}
	if c.Store.SyncInterval <= 0 {
		return errors.New("config: store.sync_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.log_level", "info")
	v.SetDefault("agent.log_format", "console")

	v.SetDefault("watch.excluded_paths", []string{"__pycache__", "node_modules", ".git"})
	v.SetDefault("watch.excluded_extensions", []string{".tmp", ".swp", ".log"})
	v.SetDefault("watch.removable_media", false)
	v.SetDefault("watch.coalesce_window", 500*time.Millisecond)
	v.SetDefault("watch.queue_size", 1024)
	v.SetDefault("watch.root_retry_interval", 5*time.Second)

	v.SetDefault("risk.high_risk_extensions", []string{".exe", ".dll", ".sys", ".bat", ".cmd", ".ps1"})
	v.SetDefault("risk.high_risk_actions", []string{"DELETE", "MOVE"})
	v.SetDefault("risk.sensitive_paths", []string{"system32", "windows", "program files", "/etc", "/boot"})
	v.SetDefault("risk.personal_paths", []string{"documents", "desktop"})

	v.SetDefault("store.db_path", "monitor_data.db")
	v.SetDefault("store.sync_interval", 5*time.Second)
	v.SetDefault("store.max_buffer_size", 100)
	v.SetDefault("store.max_flush_retries", 5)

	v.SetDefault("alerts.suppression_window", 5*time.Minute)
}
