package alert

import (
	"testing"
	"time"

	"github.com/Hara602/fsSentry/internal/config"
	"github.com/Hara602/fsSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoliciesFromConfig(t *testing.T) {
	cfg := config.AlertsConfig{
		Policies: []config.PolicyConfig{
			{
				ID: "p1", Name: "deletion", Kind: "file_action",
				Severity: "high", Actions: []string{"delete", "MOVE"},
			},
			{
				ID: "p2", Name: "scripts", Kind: "file_extension",
				Severity: "medium", Extensions: []string{"ps1", ".BAT"},
			},
			{
				// 未知类型，应被丢弃而不中断解析
				ID: "p3", Name: "bogus", Kind: "regex_match",
			},
			{
				ID: "p4", Name: "weekend", Kind: "off_hours",
				Severity: "low", OffDays: []string{"saturday", "Sunday"},
			},
		},
	}

	policies := PoliciesFromConfig(cfg, config.RiskConfig{})
	require.Len(t, policies, 3)

	p1 := policies[0]
	assert.Equal(t, KindFileAction, p1.Kind)
	assert.Equal(t, model.RiskHigh, p1.Severity)
	assert.Contains(t, p1.Actions, model.ActionDelete)
	assert.Contains(t, p1.Actions, model.ActionMove)

	p2 := policies[1]
	assert.Contains(t, p2.Extensions, ".ps1", "扩展名归一化为小写带点")
	assert.Contains(t, p2.Extensions, ".bat")

	p4 := policies[2]
	assert.Contains(t, p4.OffDays, time.Saturday)
	assert.Contains(t, p4.OffDays, time.Sunday)
}

func TestPolicyConditionRequired(t *testing.T) {
	cfg := config.AlertsConfig{
		Policies: []config.PolicyConfig{
			{ID: "a", Name: "no actions", Kind: "file_action", Severity: "high"},
			{ID: "b", Name: "no exts", Kind: "file_extension", Severity: "high"},
			{ID: "c", Name: "no threshold", Kind: "file_size_threshold", Severity: "high"},
			{ID: "d", Name: "ok", Kind: "failed_operation", Severity: "medium"},
		},
	}
	policies := PoliciesFromConfig(cfg, config.RiskConfig{})
	require.Len(t, policies, 1)
	assert.Equal(t, "d", policies[0].ID)
}

func TestDefaultPoliciesWhenEmpty(t *testing.T) {
	riskCfg := config.RiskConfig{
		HighRiskActions:    []string{"DELETE"},
		HighRiskExtensions: []string{".exe"},
	}
	policies := PoliciesFromConfig(config.AlertsConfig{}, riskCfg)
	require.NotEmpty(t, policies)

	var kinds []Kind
	for _, p := range policies {
		kinds = append(kinds, p.Kind)
	}
	assert.Contains(t, kinds, KindFileAction)
	assert.Contains(t, kinds, KindFileExtension)
	assert.Contains(t, kinds, KindFailedOperation)
	assert.Contains(t, kinds, KindFileMasquerade)
}
