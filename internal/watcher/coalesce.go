package watcher

import (
	"sync"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
)

// coalescer 把合并窗口内同一 (路径, 操作) 的重复事件压成一条。
// 很多内核后端对一次逻辑写入会连发多条通知，不合并会造成事件风暴。
type coalescer struct {
	window time.Duration
	emit   func(model.RawEvent)

	mu      sync.Mutex
	pending map[string]model.RawEvent
	stopped bool
}

func newCoalescer(window time.Duration, emit func(model.RawEvent)) *coalescer {
	return &coalescer{
		window:  window,
		emit:    emit,
		pending: make(map[string]model.RawEvent),
	}
}

// Add 收录一条事件。窗口内首条事件启动定时器，后续重复事件被吸收；
// 窗口到期后以首条事件的时间戳下发。窗口为 0 时直通。
func (c *coalescer) Add(ev model.RawEvent) {
	if c.window <= 0 {
		c.emit(ev)
		return
	}

	key := ev.Path + "|" + string(ev.Action)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if existing, ok := c.pending[key]; ok {
		// 吸收重复：保留首次时间戳，补全可能缺失的源路径
		if existing.OldPath == "" && ev.OldPath != "" {
			existing.OldPath = ev.OldPath
			c.pending[key] = existing
		}
		c.mu.Unlock()
		return
	}
	c.pending[key] = ev
	c.mu.Unlock()

	time.AfterFunc(c.window, func() { c.flushKey(key) })
}

func (c *coalescer) flushKey(key string) {
	c.mu.Lock()
	ev, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if ok {
		c.emit(ev)
	}
}

// Stop 立即下发所有滞留事件，之后拒收新事件
func (c *coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	rest := make([]model.RawEvent, 0, len(c.pending))
	for _, ev := range c.pending {
		rest = append(rest, ev)
	}
	c.pending = make(map[string]model.RawEvent)
	c.mu.Unlock()

	for _, ev := range rest {
		c.emit(ev)
	}
}
