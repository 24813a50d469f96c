package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// PE 文件头（MZ 魔数）
var peHeader = append([]byte{0x4D, 0x5A}, make([]byte, 64)...)

// PNG 文件头
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestInspectMasquerade(t *testing.T) {
	ins := NewTypeInspector()

	// 可执行文件改名成 pdf
	res, err := ins.Inspect(writeTemp(t, "invoice.pdf", peHeader))
	require.NoError(t, err)
	assert.True(t, res.IsMasquerade)
	assert.Equal(t, "exe", res.RealExt)
	assert.Equal(t, "pdf", res.DeclaredExt)
	assert.Equal(t, model.RiskHigh, res.Risk)
	assert.NotEmpty(t, res.Message)
}

func TestInspectHonestFile(t *testing.T) {
	ins := NewTypeInspector()

	res, err := ins.Inspect(writeTemp(t, "pic.png", pngHeader))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
	assert.Equal(t, "png", res.RealExt)
}

func TestInspectAliasWhitelist(t *testing.T) {
	ins := NewTypeInspector()

	// docx 本质是 zip，不算伪装
	zipHeader := []byte{0x50, 0x4B, 0x03, 0x04}
	res, err := ins.Inspect(writeTemp(t, "report.docx", zipHeader))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
	assert.Equal(t, "zip", res.RealExt)
}

func TestInspectUnknownTypeTrusted(t *testing.T) {
	ins := NewTypeInspector()

	// 纯文本没有魔数，识别不出类型时默认信任
	res, err := ins.Inspect(writeTemp(t, "notes.txt", []byte("hello world")))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
	assert.Equal(t, "unknown", res.RealExt)
}

func TestInspectEdgeCases(t *testing.T) {
	ins := NewTypeInspector()

	res, err := ins.Inspect(writeTemp(t, "noext", peHeader))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade, "无后缀不做比对")

	res, err = ins.Inspect(writeTemp(t, "empty.exe", nil))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)

	_, err = ins.Inspect(filepath.Join(t.TempDir(), "missing.exe"))
	assert.Error(t, err)
}
