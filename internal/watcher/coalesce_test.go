package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []model.RawEvent
}

func (c *collector) emit(ev model.RawEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) snapshot() []model.RawEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.RawEvent, len(c.events))
	copy(out, c.events)
	return out
}

func TestCoalesceDuplicates(t *testing.T) {
	col := &collector{}
	c := newCoalescer(30*time.Millisecond, col.emit)

	first := time.Now()
	// 一次逻辑写入，内核连发三条
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/a.txt", OccurredAt: first})
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/a.txt", OccurredAt: first.Add(time.Millisecond)})
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/a.txt", OccurredAt: first.Add(2 * time.Millisecond)})

	require.Eventually(t, func() bool {
		return len(col.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	got := col.snapshot()[0]
	assert.Equal(t, model.ActionWrite, got.Action)
	assert.Equal(t, first, got.OccurredAt, "保留首条事件的时间戳")
}

func TestCoalesceKeyIsPathAndAction(t *testing.T) {
	col := &collector{}
	c := newCoalescer(30*time.Millisecond, col.emit)

	now := time.Now()
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/a.txt", OccurredAt: now})
	c.Add(model.RawEvent{Action: model.ActionDelete, Path: "/data/a.txt", OccurredAt: now})
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/b.txt", OccurredAt: now})

	require.Eventually(t, func() bool {
		return len(col.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestCoalesceZeroWindowPassthrough(t *testing.T) {
	col := &collector{}
	c := newCoalescer(0, col.emit)

	now := time.Now()
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/a.txt", OccurredAt: now})
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/a.txt", OccurredAt: now})

	assert.Len(t, col.snapshot(), 2)
}

func TestCoalesceStopFlushesPending(t *testing.T) {
	col := &collector{}
	c := newCoalescer(time.Hour, col.emit)

	c.Add(model.RawEvent{Action: model.ActionCreate, Path: "/data/a.txt", OccurredAt: time.Now()})
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/b.txt", OccurredAt: time.Now()})

	c.Stop()
	assert.Len(t, col.snapshot(), 2, "停机时滞留事件立即下发")

	// 停机后拒收
	c.Add(model.RawEvent{Action: model.ActionWrite, Path: "/data/c.txt", OccurredAt: time.Now()})
	assert.Len(t, col.snapshot(), 2)
}
