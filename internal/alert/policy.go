package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hara602/fsSentry/internal/config"
	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind 策略类型，封闭枚举。条件字段按类型各取所需，
// 不做运行期的字典派发。
type Kind string

const (
	KindFileAction        Kind = "file_action"
	KindFileExtension     Kind = "file_extension"
	KindFileSizeThreshold Kind = "file_size_threshold"
	KindFailedOperation   Kind = "failed_operation"
	KindOffHours          Kind = "off_hours"
	KindFileMasquerade    Kind = "file_masquerade"
)

// Policy 单条告警策略
type Policy struct {
	ID       string
	Name     string
	Kind     Kind
	Severity model.RiskLevel

	// 条件载荷，按 Kind 取用
	Actions       map[model.Action]struct{} // file_action
	Extensions    map[string]struct{}       // file_extension，小写带点
	SizeThreshold int64                     // file_size_threshold，字节
	OffHoursStart int                       // off_hours，小时 0-23
	OffHoursEnd   int
	OffDays       map[time.Weekday]struct{}
}

// PoliciesFromConfig 解析配置里的策略。类型非法的条目记日志后丢弃，
// 不让一条坏策略拖垮启动。配置为空时按风险规则生成默认策略集。
func PoliciesFromConfig(cfg config.AlertsConfig, riskCfg config.RiskConfig) []Policy {
	if len(cfg.Policies) == 0 {
		return defaultPolicies(riskCfg)
	}

	var out []Policy
	for _, pc := range cfg.Policies {
		p, err := parsePolicy(pc)
		if err != nil {
			sysutil.Log.Warn("skip invalid alert policy", zap.String("name", pc.Name), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

func parsePolicy(pc config.PolicyConfig) (Policy, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(pc.Kind)))
	switch kind {
	case KindFileAction, KindFileExtension, KindFileSizeThreshold,
		KindFailedOperation, KindOffHours, KindFileMasquerade:
	default:
		return Policy{}, fmt.Errorf("unknown policy kind %q", pc.Kind)
	}

	p := Policy{
		ID:            pc.ID,
		Name:          pc.Name,
		Kind:          kind,
		Severity:      parseSeverity(pc.Severity),
		SizeThreshold: pc.SizeThreshold,
		OffHoursStart: pc.OffHoursStart,
		OffHoursEnd:   pc.OffHoursEnd,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Name == "" {
		p.Name = string(kind)
	}

	if len(pc.Actions) > 0 {
		p.Actions = make(map[model.Action]struct{})
		for _, a := range pc.Actions {
			p.Actions[model.Action(strings.ToUpper(strings.TrimSpace(a)))] = struct{}{}
		}
	}
	if len(pc.Extensions) > 0 {
		p.Extensions = make(map[string]struct{})
		for _, e := range pc.Extensions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e != "" && !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			p.Extensions[e] = struct{}{}
		}
	}
	if len(pc.OffDays) > 0 {
		p.OffDays = make(map[time.Weekday]struct{})
		for _, d := range pc.OffDays {
			if wd, ok := parseWeekday(d); ok {
				p.OffDays[wd] = struct{}{}
			} else {
				return Policy{}, fmt.Errorf("unknown weekday %q", d)
			}
		}
	}

	switch kind {
	case KindFileAction:
		if len(p.Actions) == 0 {
			return Policy{}, fmt.Errorf("file_action policy %q has no actions", p.Name)
		}
	case KindFileExtension:
		if len(p.Extensions) == 0 {
			return Policy{}, fmt.Errorf("file_extension policy %q has no extensions", p.Name)
		}
	case KindFileSizeThreshold:
		if p.SizeThreshold <= 0 {
			return Policy{}, fmt.Errorf("file_size_threshold policy %q has no threshold", p.Name)
		}
	}
	return p, nil
}

// defaultPolicies 按风险配置生成内置策略集，
// 对应原始部署里种子数据的 "Critical File Deletion" 一类规则。
func defaultPolicies(riskCfg config.RiskConfig) []Policy {
	actions := make(map[model.Action]struct{})
	for _, a := range riskCfg.HighRiskActions {
		actions[model.Action(strings.ToUpper(strings.TrimSpace(a)))] = struct{}{}
	}
	exts := make(map[string]struct{})
	for _, e := range riskCfg.HighRiskExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}

	return []Policy{
		{
			ID:       "builtin-high-risk-action",
			Name:     "High-risk file operation",
			Kind:     KindFileAction,
			Severity: model.RiskHigh,
			Actions:  actions,
		},
		{
			ID:         "builtin-high-risk-extension",
			Name:       "High-risk file type",
			Kind:       KindFileExtension,
			Severity:   model.RiskHigh,
			Extensions: exts,
		},
		{
			ID:       "builtin-failed-operation",
			Name:     "Failed file operation",
			Kind:     KindFailedOperation,
			Severity: model.RiskMedium,
		},
		{
			ID:       "builtin-masquerade",
			Name:     "Masquerade file",
			Kind:     KindFileMasquerade,
			Severity: model.RiskHigh,
		},
	}
}

func parseSeverity(s string) model.RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical":
		return model.RiskHigh
	case "medium":
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func parseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	}
	return 0, false
}
