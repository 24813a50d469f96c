package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Store 活动/告警/实时信号的持久层。
// 写入先进内存缓冲，攒到 max_buffer_size 或到同步周期后整批落库，
// 把高事件率下的 I/O 摊平。落库失败时缓冲保留，下个周期重试；
// 连续失败超过上限后置 degraded，通过服务状态上报，绝不悄悄丢数据。
type Store struct {
	db         *sql.DB
	maxBuffer  int
	maxRetries int

	mu         sync.Mutex
	activities []model.ActivityRecord
	alerts     []model.Alert
	signals    []model.LiveSignal

	flushMu    sync.Mutex // 串行化批量落库，Flush 并发调用安全
	failures   int
	degraded   bool
	flushCount int64

	totalsMu        sync.Mutex
	totalActivities int64
	totalAlerts     int64
}

const schema = `
CREATE TABLE IF NOT EXISTS file_activities (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	username TEXT,
	process_name TEXT,
	process_id INTEGER,
	action TEXT NOT NULL,
	file_path TEXT NOT NULL,
	destination_path TEXT,
	file_size INTEGER,
	risk_level TEXT DEFAULT 'Low',
	status TEXT DEFAULT 'New',
	failed INTEGER DEFAULT 0,
	detail TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	username TEXT,
	description TEXT NOT NULL,
	file_path TEXT,
	risk_level TEXT DEFAULT 'Medium',
	risk_score INTEGER DEFAULT 0,
	status TEXT DEFAULT 'New',
	policy_id TEXT,
	policy_name TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS live_signals (
	id TEXT PRIMARY KEY,
	signal_type TEXT NOT NULL,
	payload TEXT,
	timestamp TEXT NOT NULL,
	processed INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS service_status (
	id INTEGER PRIMARY KEY,
	status TEXT NOT NULL,
	last_update TEXT,
	monitored_paths TEXT,
	total_activities INTEGER DEFAULT 0,
	alerts_count INTEGER DEFAULT 0,
	degraded INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_activities_timestamp ON file_activities(timestamp);
CREATE INDEX IF NOT EXISTS idx_activities_risk ON file_activities(risk_level);
CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_signals_processed ON live_signals(processed);
`

// Open 打开（必要时建表）数据库
func Open(dbPath string, maxBufferSize, maxFlushRetries int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{
		db:         db,
		maxBuffer:  maxBufferSize,
		maxRetries: maxFlushRetries,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AppendActivity 活动记录进缓冲，缓冲满则立即整批落库
func (s *Store) AppendActivity(rec model.ActivityRecord) {
	s.mu.Lock()
	s.activities = append(s.activities, rec)
	full := s.buffered() >= s.maxBuffer
	s.mu.Unlock()
	if full {
		s.flushAuto()
	}
}

// AppendAlert 告警进缓冲
func (s *Store) AppendAlert(a model.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	full := s.buffered() >= s.maxBuffer
	s.mu.Unlock()
	if full {
		s.flushAuto()
	}
}

// EnqueueSignal 实时信号进缓冲
func (s *Store) EnqueueSignal(sig model.LiveSignal) {
	s.mu.Lock()
	s.signals = append(s.signals, sig)
	full := s.buffered() >= s.maxBuffer
	s.mu.Unlock()
	if full {
		s.flushAuto()
	}
}

// buffered 须持有 s.mu
func (s *Store) buffered() int {
	return len(s.activities) + len(s.alerts) + len(s.signals)
}

// Buffered 当前缓冲中的记录数
func (s *Store) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered()
}

func (s *Store) flushAuto() {
	if err := s.Flush(); err != nil {
		sysutil.Log.Error("auto flush failed, records retained", zap.Error(err))
	}
}

// Flush 把缓冲内容在一个事务里整批写入。幂等：空缓冲直接返回。
// 失败时全部塞回缓冲头部，保持事件顺序，等下个周期重试。
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.buffered() == 0 {
		s.mu.Unlock()
		return nil
	}
	activities := s.activities
	alerts := s.alerts
	signals := s.signals
	s.activities = nil
	s.alerts = nil
	s.signals = nil
	s.mu.Unlock()

	err := s.writeBatch(activities, alerts, signals)
	if err != nil {
		// 塞回缓冲，后写入的排在取走的之后
		s.mu.Lock()
		s.activities = append(activities, s.activities...)
		s.alerts = append(alerts, s.alerts...)
		s.signals = append(signals, s.signals...)
		s.mu.Unlock()

		s.failures++
		if s.failures >= s.maxRetries {
			s.degraded = true
			sysutil.Log.Error("flush retries exhausted, store degraded",
				zap.Int("failures", s.failures), zap.Error(err))
		}
		return fmt.Errorf("flush batch: %w", err)
	}

	s.failures = 0
	s.degraded = false
	s.flushCount++
	s.totalsMu.Lock()
	s.totalActivities += int64(len(activities))
	s.totalAlerts += int64(len(alerts))
	s.totalsMu.Unlock()
	return nil
}

// writeBatch 时间戳一律转 UTC 再写入：
// 列按字符串比较，只有统一时区字典序才等于时间序。
func (s *Store) writeBatch(activities []model.ActivityRecord, alerts []model.Alert, signals []model.LiveSignal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range activities {
		rec := &activities[i]
		_, err := tx.Exec(`INSERT INTO file_activities
			(id, timestamp, username, process_name, process_id, action, file_path, destination_path, file_size, risk_level, status, failed, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Username, rec.ProcessName, rec.ProcessID,
			string(rec.Action), rec.FilePath, rec.DestinationPath, rec.FileSize,
			string(rec.RiskLevel), rec.Status, boolInt(rec.Failed), rec.Detail)
		if err != nil {
			return err
		}
	}

	for i := range alerts {
		a := &alerts[i]
		_, err := tx.Exec(`INSERT INTO alerts
			(id, timestamp, username, description, file_path, risk_level, risk_score, status, policy_id, policy_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Timestamp.UTC().Format(time.RFC3339Nano), a.Username, a.Description, a.FilePath,
			string(a.RiskLevel), a.RiskScore, a.Status, a.PolicyID, a.PolicyName)
		if err != nil {
			return err
		}
	}

	for i := range signals {
		sig := &signals[i]
		_, err := tx.Exec(`INSERT INTO live_signals (id, signal_type, payload, timestamp, processed)
			VALUES (?, ?, ?, ?, ?)`,
			sig.ID, sig.SignalType, sig.Payload, sig.Timestamp.UTC().Format(time.RFC3339Nano), boolInt(sig.Processed))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Degraded 刷盘是否已连续失败到上限
func (s *Store) Degraded() bool {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.degraded
}

// FlushCount 成功的批量写入次数
func (s *Store) FlushCount() int64 {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.flushCount
}

// Totals 已落库的活动数与告警数
func (s *Store) Totals() (activities, alerts int64) {
	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()
	return s.totalActivities, s.totalAlerts
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
