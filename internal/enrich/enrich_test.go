package enrich

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/pathfilter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	info  ProcessInfo
	found bool
}

func (f *fakeResolver) Resolve(ctx context.Context, path string) (ProcessInfo, bool) {
	return f.info, f.found
}

func setup(t *testing.T, resolver ProcessResolver) (*Enricher, string) {
	t.Helper()
	root := t.TempDir()
	f := pathfilter.New([]string{root}, nil, []string{".tmp"}, "")
	return New(f, resolver), root
}

func TestEnrichOutOfScope(t *testing.T) {
	e, _ := setup(t, &fakeResolver{})
	ev := model.RawEvent{Action: model.ActionWrite, Path: "/somewhere/else.txt", OccurredAt: time.Now()}
	assert.Nil(t, e.Enrich(ev))
}

func TestEnrichCreate(t *testing.T) {
	e, root := setup(t, &fakeResolver{
		info:  ProcessInfo{Name: "vim", PID: 4321, Username: "alice"},
		found: true,
	})

	path := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	at := time.Now()
	rec := e.Enrich(model.RawEvent{Action: model.ActionCreate, Path: path, OccurredAt: at})
	require.NotNil(t, rec)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, at, rec.Timestamp)
	assert.Equal(t, model.ActionCreate, rec.Action)
	assert.Equal(t, path, rec.FilePath)
	assert.Empty(t, rec.DestinationPath)
	assert.Equal(t, "vim", rec.ProcessName)
	assert.EqualValues(t, 4321, rec.ProcessID)
	assert.Equal(t, "alice", rec.Username)
	assert.EqualValues(t, 5, rec.FileSize)
	assert.False(t, rec.Failed)
}

func TestEnrichUnknownProcess(t *testing.T) {
	e, root := setup(t, &fakeResolver{found: false})

	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	rec := e.Enrich(model.RawEvent{Action: model.ActionWrite, Path: path, OccurredAt: time.Now()})
	require.NotNil(t, rec)
	assert.Equal(t, "Unknown", rec.ProcessName)
	// 进程拿不到时用户名退回文件属主，最差也是占位值
	assert.NotEmpty(t, rec.Username)
}

func TestEnrichMoveCarriesBothPaths(t *testing.T) {
	e, root := setup(t, &fakeResolver{})

	dst := filepath.Join(root, "dst.txt")
	require.NoError(t, os.WriteFile(dst, []byte("x"), 0644))
	src := filepath.Join(root, "src.txt")

	rec := e.Enrich(model.RawEvent{
		Action: model.ActionMove, Path: dst, OldPath: src, OccurredAt: time.Now(),
	})
	require.NotNil(t, rec)
	assert.Equal(t, src, rec.FilePath, "MOVE 的主路径是源")
	assert.Equal(t, dst, rec.DestinationPath)
}

func TestEnrichFailedWhenFileVanishes(t *testing.T) {
	e, root := setup(t, &fakeResolver{})

	// WRITE 事件到达时文件已经没了
	rec := e.Enrich(model.RawEvent{
		Action: model.ActionWrite, Path: filepath.Join(root, "gone.txt"), OccurredAt: time.Now(),
	})
	require.NotNil(t, rec)
	assert.True(t, rec.Failed)

	// DELETE 事件没有文件属正常，不算失败
	rec = e.Enrich(model.RawEvent{
		Action: model.ActionDelete, Path: filepath.Join(root, "gone2.txt"), OccurredAt: time.Now(),
	})
	require.NotNil(t, rec)
	assert.False(t, rec.Failed)
}

func TestEnrichDetectsMasquerade(t *testing.T) {
	e, root := setup(t, &fakeResolver{})

	path := filepath.Join(root, "invoice.pdf")
	pe := append([]byte{0x4D, 0x5A}, make([]byte, 64)...)
	require.NoError(t, os.WriteFile(path, pe, 0644))

	rec := e.Enrich(model.RawEvent{Action: model.ActionCreate, Path: path, OccurredAt: time.Now()})
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.Detail, "伪装检测结果写入 Detail")
	assert.Contains(t, rec.Detail, "exe")
}
