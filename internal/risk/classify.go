package risk

import (
	"path/filepath"
	"strings"

	"github.com/Hara602/fsSentry/internal/config"
	"github.com/Hara602/fsSentry/internal/model"
)

// Rules 分级规则，由配置构造后只读
type Rules struct {
	highExts       map[string]struct{}
	highActions    map[model.Action]struct{}
	sensitivePaths []string // 小写片段
	personalPaths  []string
}

func NewRules(cfg config.RiskConfig) Rules {
	r := Rules{
		highExts:    make(map[string]struct{}),
		highActions: make(map[model.Action]struct{}),
	}
	for _, ext := range cfg.HighRiskExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.highExts[ext] = struct{}{}
	}
	for _, a := range cfg.HighRiskActions {
		r.highActions[model.Action(strings.ToUpper(strings.TrimSpace(a)))] = struct{}{}
	}
	for _, p := range cfg.SensitivePaths {
		r.sensitivePaths = append(r.sensitivePaths, strings.ToLower(p))
	}
	for _, p := range cfg.PersonalPaths {
		r.personalPaths = append(r.personalPaths, strings.ToLower(p))
	}
	return r
}

// Classify 纯函数：相同输入永远得到相同等级。
// 判定优先级：高危操作 > 高危扩展名 > 敏感路径 > 个人数据目录 > Low。
func (r Rules) Classify(rec *model.ActivityRecord) model.RiskLevel {
	if _, ok := r.highActions[rec.Action]; ok {
		return model.RiskHigh
	}

	lower := strings.ToLower(rec.FilePath)

	if _, ok := r.highExts[strings.ToLower(filepath.Ext(lower))]; ok {
		return model.RiskHigh
	}

	for _, frag := range r.sensitivePaths {
		if frag != "" && strings.Contains(lower, frag) {
			return model.RiskHigh
		}
	}

	for _, frag := range r.personalPaths {
		if frag != "" && strings.Contains(lower, frag) {
			return model.RiskMedium
		}
	}

	return model.RiskLow
}
