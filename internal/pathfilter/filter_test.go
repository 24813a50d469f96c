package pathfilter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInScope(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(sub, 0755))

	inside := filepath.Join(sub, "report.docx")
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0644))

	f := New([]string{root}, []string{"node_modules"}, []string{".tmp"}, "")

	assert.True(t, f.InScope(inside))
	assert.False(t, f.InScope(filepath.Join(t.TempDir(), "outside.txt")), "不在监控根之下")
	assert.False(t, f.InScope(filepath.Join(sub, "scratch.tmp")), "排除扩展名")
	assert.False(t, f.InScope(filepath.Join(root, "node_modules", "pkg", "index.js")), "排除路径片段")
}

func TestInScopeDeletedFile(t *testing.T) {
	root := t.TempDir()
	f := New([]string{root}, nil, nil, "")

	// DELETE 事件到达时文件已不存在，仍须按词法路径判定
	assert.True(t, f.InScope(filepath.Join(root, "gone.txt")))
}

func TestSelfDatabaseExcluded(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "monitor_data.db")
	f := New([]string{root}, nil, nil, dbPath)

	assert.False(t, f.InScope(dbPath))
	assert.False(t, f.InScope(dbPath+"-wal"))
	assert.False(t, f.InScope(dbPath+"-journal"))
	assert.True(t, f.InScope(filepath.Join(root, "other.db")))
}

func TestAddRoot(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	f := New([]string{rootA}, nil, nil, "")

	outside := filepath.Join(rootB, "file.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))
	assert.False(t, f.InScope(outside))

	assert.True(t, f.AddRoot(rootB))
	assert.True(t, f.InScope(outside))

	// 重复追加与无效根都返回 false
	assert.False(t, f.AddRoot(rootB))
	assert.False(t, f.AddRoot(filepath.Join(rootB, "no-such-dir")))
	assert.Len(t, f.Roots(), 2)
}

func TestInvalidRootDropped(t *testing.T) {
	root := t.TempDir()
	f := New([]string{root, "/no/such/root"}, nil, nil, "")
	assert.Len(t, f.Roots(), 1)
}
