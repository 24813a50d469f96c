package alert

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 评分基数与加项。上限 100。
const (
	scoreBaseLow    = 25
	scoreBaseMedium = 50
	scoreBaseHigh   = 75

	scoreDestructive = 10 // 删除/移动
	scoreFailed      = 15 // 操作失败
	scoreCap         = 100
)

// Engine 有状态的告警引擎：逐条策略评估记录，
// 同一 (路径, 策略) 在抑制窗口内只告警一次，压掉一次用户操作
// 引起的通知连环爆。
type Engine struct {
	policies []Policy
	window   time.Duration
	now      func() time.Time // 测试注入

	mu        sync.Mutex
	recent    map[string]time.Time // path|policyID -> 上次触发时刻
	lastPrune time.Time
}

func NewEngine(policies []Policy, suppressionWindow time.Duration) *Engine {
	return &Engine{
		policies: policies,
		window:   suppressionWindow,
		now:      time.Now,
		recent:   make(map[string]time.Time),
	}
}

// Evaluate 评估一条记录，返回触发的告警（可能多条，每策略至多一条）。
// 单条策略评估崩溃只丢那一条，不中断流水线。
func (e *Engine) Evaluate(rec *model.ActivityRecord) []model.Alert {
	var alerts []model.Alert
	for i := range e.policies {
		p := &e.policies[i]

		matched, err := e.safeMatch(p, rec)
		if err != nil {
			sysutil.Log.Error("policy evaluation failed, skipped",
				zap.String("policy", p.Name), zap.Error(err))
			continue
		}
		if !matched {
			continue
		}
		if e.suppressed(rec.FilePath, p.ID) {
			continue
		}

		alerts = append(alerts, e.build(p, rec))
	}
	return alerts
}

// safeMatch 带 recover 的条件评估，坏数据不炸引擎
func (e *Engine) safeMatch(p *Policy, rec *model.ActivityRecord) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.match(p, rec)
}

func (e *Engine) match(p *Policy, rec *model.ActivityRecord) (bool, error) {
	switch p.Kind {
	case KindFileAction:
		_, ok := p.Actions[rec.Action]
		return ok, nil

	case KindFileExtension:
		ext := strings.ToLower(filepath.Ext(rec.FilePath))
		_, ok := p.Extensions[ext]
		return ok, nil

	case KindFileSizeThreshold:
		return p.SizeThreshold > 0 && rec.FileSize >= p.SizeThreshold, nil

	case KindFailedOperation:
		return rec.Failed, nil

	case KindOffHours:
		// 用事件时间而非当前时间，保证可重放
		return inOffWindow(p, rec.Timestamp), nil

	case KindFileMasquerade:
		// 补全阶段只在检出伪装时写 Detail
		return rec.Detail != "", nil
	}
	return false, fmt.Errorf("unknown policy kind %q", p.Kind)
}

// inOffWindow 命中非工作时段：休息日全天算，工作日按小时窗口算。
// 窗口允许跨零点（22 点到 6 点）。
func inOffWindow(p *Policy, t time.Time) bool {
	if _, ok := p.OffDays[t.Weekday()]; ok {
		return true
	}
	if p.OffHoursStart == p.OffHoursEnd {
		return false
	}
	h := t.Hour()
	if p.OffHoursStart < p.OffHoursEnd {
		return h >= p.OffHoursStart && h < p.OffHoursEnd
	}
	return h >= p.OffHoursStart || h < p.OffHoursEnd
}

// suppressed 抑制窗口判定。触发即登记，窗口内的重复命中直接压掉。
func (e *Engine) suppressed(path, policyID string) bool {
	if e.window <= 0 {
		return false
	}
	key := path + "|" + policyID
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.recent[key]; ok && now.Sub(last) < e.window {
		return true
	}
	e.recent[key] = now

	// 顺手清理过期项，避免长期运行下 map 无界膨胀
	if now.Sub(e.lastPrune) > e.window {
		for k, ts := range e.recent {
			if now.Sub(ts) >= e.window {
				delete(e.recent, k)
			}
		}
		e.lastPrune = now
	}
	return false
}

func (e *Engine) build(p *Policy, rec *model.ActivityRecord) model.Alert {
	score := baseScore(p.Severity)
	if rec.Action.Destructive() {
		score += scoreDestructive
	}
	if rec.Failed {
		score += scoreFailed
	}
	if score > scoreCap {
		score = scoreCap
	}

	return model.Alert{
		ID:        uuid.NewString(),
		Timestamp: rec.Timestamp,
		Username:  rec.Username,
		Description: fmt.Sprintf("%s: %s operation detected on %s",
			p.Name, strings.ToLower(string(rec.Action)), filepath.Base(rec.FilePath)),
		FilePath: rec.FilePath,
		// 告警等级不得低于触发事件本身的分级
		RiskLevel:  model.MaxRisk(p.Severity, rec.RiskLevel),
		RiskScore:  score,
		Status:     model.AlertStatusNew,
		PolicyID:   p.ID,
		PolicyName: p.Name,
	}
}

func baseScore(severity model.RiskLevel) int {
	switch severity {
	case model.RiskHigh:
		return scoreBaseHigh
	case model.RiskMedium:
		return scoreBaseMedium
	}
	return scoreBaseLow
}
