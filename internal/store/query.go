package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
)

// 仪表盘侧的读取与受限修改。核心进程只追加；
// 状态流转（告警确认、信号置已处理）是外部 UI 的专属操作。

// ActivityFilter 活动查询条件，零值字段不参与过滤
type ActivityFilter struct {
	From      time.Time
	To        time.Time
	RiskLevel model.RiskLevel
	Status    string
	Limit     int
}

// AlertFilter 告警查询条件
type AlertFilter struct {
	From      time.Time
	To        time.Time
	RiskLevel model.RiskLevel
	Status    string
	Limit     int
}

// QueryActivities 按时间/等级/状态过滤，时间倒序
func (s *Store) QueryActivities(f ActivityFilter) ([]model.ActivityRecord, error) {
	query := "SELECT id, timestamp, username, process_name, process_id, action, file_path, destination_path, file_size, risk_level, status, failed, detail FROM file_activities WHERE 1=1"
	var args []any

	if !f.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.From.UTC().Format(time.RFC3339Nano))
	}
	if !f.To.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.To.UTC().Format(time.RFC3339Nano))
	}
	if f.RiskLevel != "" {
		query += " AND risk_level = ?"
		args = append(args, string(f.RiskLevel))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityRecord
	for rows.Next() {
		var rec model.ActivityRecord
		var ts string
		var action, risk string
		var failed int
		if err := rows.Scan(&rec.ID, &ts, &rec.Username, &rec.ProcessName, &rec.ProcessID,
			&action, &rec.FilePath, &rec.DestinationPath, &rec.FileSize, &risk,
			&rec.Status, &failed, &rec.Detail); err != nil {
			return nil, err
		}
		rec.Action = model.Action(action)
		rec.RiskLevel = model.RiskLevel(risk)
		rec.Failed = failed != 0
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// QueryAlerts 按时间/等级/状态过滤，时间倒序
func (s *Store) QueryAlerts(f AlertFilter) ([]model.Alert, error) {
	query := "SELECT id, timestamp, username, description, file_path, risk_level, risk_score, status, policy_id, policy_name FROM alerts WHERE 1=1"
	var args []any

	if !f.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.From.UTC().Format(time.RFC3339Nano))
	}
	if !f.To.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.To.UTC().Format(time.RFC3339Nano))
	}
	if f.RiskLevel != "" {
		query += " AND risk_level = ?"
		args = append(args, string(f.RiskLevel))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var ts, risk string
		if err := rows.Scan(&a.ID, &ts, &a.Username, &a.Description, &a.FilePath,
			&risk, &a.RiskScore, &a.Status, &a.PolicyID, &a.PolicyName); err != nil {
			return nil, err
		}
		a.RiskLevel = model.RiskLevel(risk)
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

var validAlertStatus = map[string]struct{}{
	model.AlertStatusNew:           {},
	model.AlertStatusAcknowledged:  {},
	model.AlertStatusInvestigating: {},
	model.AlertStatusResolved:      {},
	model.AlertStatusDismissed:     {},
}

// UpdateAlertStatus 告警状态流转，取值受限
func (s *Store) UpdateAlertStatus(id, status string) error {
	if _, ok := validAlertStatus[status]; !ok {
		return fmt.Errorf("invalid alert status %q", status)
	}
	res, err := s.db.Exec("UPDATE alerts SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %q not found", id)
	}
	return nil
}

// PendingSignals 未消费的实时信号，先进先出
func (s *Store) PendingSignals(limit int) ([]model.LiveSignal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, signal_type, payload, timestamp, processed FROM live_signals WHERE processed = 0 ORDER BY timestamp ASC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []model.LiveSignal
	for rows.Next() {
		var sig model.LiveSignal
		var ts string
		var processed int
		if err := rows.Scan(&sig.ID, &sig.SignalType, &sig.Payload, &ts, &processed); err != nil {
			return nil, err
		}
		sig.Processed = processed != 0
		sig.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// MarkSignalProcessed 信号至多消费一次
func (s *Store) MarkSignalProcessed(id string) error {
	_, err := s.db.Exec("UPDATE live_signals SET processed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark signal processed: %w", err)
	}
	return nil
}

// UpdateServiceStatus 覆盖单行状态（id 固定为 1）
func (s *Store) UpdateServiceStatus(st model.ServiceStatus) error {
	paths, err := json.Marshal(st.MonitoredPaths)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO service_status
		(id, status, last_update, monitored_paths, total_activities, alerts_count, degraded)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		st.Status, st.LastUpdate.UTC().Format(time.RFC3339Nano), string(paths),
		st.TotalActivities, st.AlertsCount, boolInt(st.Degraded))
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	return nil
}

// ServiceStatus 读取状态行，不存在时返回零值
func (s *Store) ServiceStatus() (model.ServiceStatus, error) {
	var st model.ServiceStatus
	var lastUpdate, paths string
	var degraded int
	err := s.db.QueryRow(
		"SELECT status, last_update, monitored_paths, total_activities, alerts_count, degraded FROM service_status WHERE id = 1").
		Scan(&st.Status, &lastUpdate, &paths, &st.TotalActivities, &st.AlertsCount, &degraded)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read service status: %w", err)
	}
	st.LastUpdate, _ = time.Parse(time.RFC3339Nano, lastUpdate)
	st.Degraded = degraded != 0
	_ = json.Unmarshal([]byte(paths), &st.MonitoredPaths)
	return st, nil
}
