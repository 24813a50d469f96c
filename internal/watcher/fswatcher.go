package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// fsWatcher 基于 fsnotify 的目录树监控。
// inotify 这类后端不递归，所以遍历根目录逐个加目录，新建目录再动态补挂。
type fsWatcher struct {
	opts Options
	fw   *fsnotify.Watcher

	out      chan model.RawEvent
	coal     *coalescer
	stopc    chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.Mutex
	watchedDirs map[string]struct{}
	roots       map[string]*rootState

	renameMu       sync.Mutex
	pendingRenames map[string]time.Time
}

// rootState 记录单个监控根的健康状况，失联后按退避间隔重试
type rootState struct {
	healthy   bool
	nextRetry time.Time
	backoff   time.Duration
}

func newFsWatcher(opts Options) *fsWatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.RenameMatchWindow <= 0 {
		opts.RenameMatchWindow = 2 * time.Second
	}
	if opts.RootRetryInterval <= 0 {
		opts.RootRetryInterval = 5 * time.Second
	}

	w := &fsWatcher{
		opts:           opts,
		out:            make(chan model.RawEvent, opts.QueueSize),
		stopc:          make(chan struct{}),
		watchedDirs:    make(map[string]struct{}),
		roots:          make(map[string]*rootState),
		pendingRenames: make(map[string]time.Time),
	}
	// 通道已满时阻塞投递：宁可拖慢监控回调也不丢审计记录
	w.coal = newCoalescer(opts.CoalesceWindow, func(ev model.RawEvent) { w.out <- ev })
	return w
}

func (w *fsWatcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fw = fw

	ok := 0
	for _, root := range w.opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			sysutil.Log.Warn("skip unresolvable watch root", zap.String("path", root), zap.Error(err))
			continue
		}
		st := &rootState{backoff: w.opts.RootRetryInterval}
		w.mu.Lock()
		w.roots[abs] = st
		w.mu.Unlock()

		if err := w.addTree(abs); err != nil {
			// 单个根失败不终止服务，留给重试循环
			sysutil.Log.Warn("watch root unavailable, will retry", zap.String("path", abs), zap.Error(err))
			st.nextRetry = time.Now().Add(st.backoff)
			continue
		}
		st.healthy = true
		ok++
		sysutil.Log.Info("👀 Watching", zap.String("path", abs))
	}
	if ok == 0 && len(w.opts.Roots) > 0 {
		sysutil.Log.Warn("no watch root is currently accessible, retrying in background")
	}

	w.wg.Add(3)
	go w.eventLoop()
	go w.renameCleanupLoop()
	go w.rootRetryLoop()
	return nil
}

// Stop 关闭底层监控、等协程退出、冲掉合并窗口里的滞留事件，最后关闭输出通道。
// 调用方必须持续消费 Events() 直到通道关闭，否则排水会阻塞。
func (w *fsWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopc)
		if w.fw != nil {
			_ = w.fw.Close()
		}
		w.wg.Wait()
		w.coal.Stop()
		close(w.out)
	})
}

func (w *fsWatcher) Events() <-chan model.RawEvent { return w.out }

// AddRoot 运行期追加监控根（可移动介质挂载等场景）
func (w *fsWatcher) AddRoot(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if _, exists := w.roots[abs]; exists {
		w.mu.Unlock()
		return nil
	}
	st := &rootState{backoff: w.opts.RootRetryInterval}
	w.roots[abs] = st
	w.mu.Unlock()

	err = w.addTree(abs)
	w.mu.Lock()
	if err != nil {
		st.nextRetry = time.Now().Add(st.backoff)
	} else {
		st.healthy = true
	}
	w.mu.Unlock()
	if err != nil {
		return err
	}
	sysutil.Log.Info("👀 Watching", zap.String("path", abs))
	return nil
}

func (w *fsWatcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			sysutil.Log.Error("watcher backend error", zap.Error(err))
		}
	}
}

// handle 把 fsnotify 的原始通知翻译成 RawEvent。
// RENAME 先暂存等配对的 CREATE；配对成功按新旧路径是否同目录判定 RENAME/MOVE。
func (w *fsWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	now := time.Now()

	switch {
	case ev.Op&fsnotify.Rename != 0:
		w.renameMu.Lock()
		w.pendingRenames[path] = now
		w.renameMu.Unlock()
		return

	case ev.Op&fsnotify.Create != 0:
		oldPath := w.matchRename(path)

		fi, statErr := os.Stat(path)
		if statErr == nil && fi.IsDir() {
			// 新目录动态补挂，否则其内部变更全部漏报
			if err := w.addTree(path); err != nil {
				sysutil.Log.Warn("failed to watch new directory", zap.String("path", path), zap.Error(err))
			}
			return
		}

		raw := model.RawEvent{Action: model.ActionCreate, Path: path, OccurredAt: now}
		if oldPath != "" {
			raw.OldPath = oldPath
			if filepath.Dir(oldPath) == filepath.Dir(path) {
				raw.Action = model.ActionRename
			} else {
				raw.Action = model.ActionMove
			}
		}
		w.coal.Add(raw)

	case ev.Op&fsnotify.Write != 0:
		w.coal.Add(model.RawEvent{Action: model.ActionWrite, Path: path, OccurredAt: now})

	case ev.Op&fsnotify.Remove != 0:
		// 源路径还挂着待配对的 RENAME 说明文件在配对前就没了
		w.renameMu.Lock()
		delete(w.pendingRenames, path)
		w.renameMu.Unlock()

		w.mu.Lock()
		if _, wasDir := w.watchedDirs[path]; wasDir {
			delete(w.watchedDirs, path)
		}
		if st, isRoot := w.roots[path]; isRoot {
			st.healthy = false
			st.backoff = w.opts.RootRetryInterval
			st.nextRetry = time.Now().Add(st.backoff)
			sysutil.Log.Warn("watch root lost, will retry", zap.String("path", path))
		}
		w.mu.Unlock()
		// 目录删除同样入审计：整树移除至少留下目录本身的 DELETE
		w.coal.Add(model.RawEvent{Action: model.ActionDelete, Path: path, OccurredAt: now})

	default:
		// Chmod 等操作不构成审计动作
	}
}

// matchRename 为 CREATE 目标挑一条仍在窗口内的待配对 RENAME 源。
// 多条候选时同名优先（跨目录移动），其次同目录（原地改名）；
// 都对不上且只剩一条才取它，多条歧义宁可不配对，免得张冠李戴。
func (w *fsWatcher) matchRename(newPath string) string {
	w.renameMu.Lock()
	defer w.renameMu.Unlock()

	var candidates []string
	for oldPath, ts := range w.pendingRenames {
		if time.Since(ts) < w.opts.RenameMatchWindow {
			candidates = append(candidates, oldPath)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	take := func(p string) string {
		delete(w.pendingRenames, p)
		return p
	}
	for _, c := range candidates {
		if filepath.Base(c) == filepath.Base(newPath) {
			return take(c)
		}
	}
	for _, c := range candidates {
		if filepath.Dir(c) == filepath.Dir(newPath) {
			return take(c)
		}
	}
	if len(candidates) == 1 {
		return take(candidates[0])
	}
	return ""
}

// renameCleanupLoop 清理始终等不到 CREATE 的 RENAME 源：
// 目标移出了监控范围，等价于本地删除。
func (w *fsWatcher) renameCleanupLoop() {
	defer w.wg.Done()
	interval := w.opts.RenameMatchWindow
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopc:
			return
		case <-ticker.C:
			var expired []string
			w.renameMu.Lock()
			for oldPath, ts := range w.pendingRenames {
				if time.Since(ts) >= w.opts.RenameMatchWindow {
					delete(w.pendingRenames, oldPath)
					expired = append(expired, oldPath)
				}
			}
			w.renameMu.Unlock()
			for _, p := range expired {
				w.coal.Add(model.RawEvent{Action: model.ActionDelete, Path: p, OccurredAt: time.Now()})
			}
		}
	}
}

// rootRetryLoop 按退避间隔重挂失联的监控根
func (w *fsWatcher) rootRetryLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.RootRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopc:
			return
		case <-ticker.C:
			w.retryLostRoots()
		}
	}
}

func (w *fsWatcher) retryLostRoots() {
	now := time.Now()

	w.mu.Lock()
	type retryTarget struct {
		path string
		st   *rootState
	}
	var targets []retryTarget
	for path, st := range w.roots {
		if st.healthy {
			// 根还在不在？目录被整个删掉时未必能等到 Remove 事件
			if _, err := os.Stat(path); err != nil {
				st.healthy = false
				st.backoff = w.opts.RootRetryInterval
				st.nextRetry = now.Add(st.backoff)
				sysutil.Log.Warn("watch root became inaccessible", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		if now.After(st.nextRetry) {
			targets = append(targets, retryTarget{path, st})
		}
	}
	w.mu.Unlock()

	for _, t := range targets {
		err := w.addTree(t.path)
		w.mu.Lock()
		if err != nil {
			// 指数退避，上限 8 倍起始间隔
			t.st.backoff *= 2
			if max := 8 * w.opts.RootRetryInterval; t.st.backoff > max {
				t.st.backoff = max
			}
			t.st.nextRetry = now.Add(t.st.backoff)
		} else {
			t.st.healthy = true
			t.st.backoff = w.opts.RootRetryInterval
		}
		w.mu.Unlock()
		if err == nil {
			sysutil.Log.Info("✅ watch root recovered", zap.String("path", t.path))
		}
	}
}

// addTree 递归把 root 下所有目录加入监控
func (w *fsWatcher) addTree(root string) error {
	fi, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return w.addDir(root)
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			sysutil.Log.Warn("walk error during watch setup", zap.String("path", path), zap.Error(walkErr))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return w.addDir(path)
		}
		return nil
	})
}

func (w *fsWatcher) addDir(dir string) error {
	w.mu.Lock()
	if _, exists := w.watchedDirs[dir]; exists {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.fw.Add(dir); err != nil {
		// inotify 实例数/监控数到顶时内核报 no space left on device
		if strings.Contains(err.Error(), "no space left on device") {
			sysutil.Log.Warn("inotify watch limit reached", zap.String("path", dir), zap.Error(err))
		}
		return err
	}

	w.mu.Lock()
	w.watchedDirs[dir] = struct{}{}
	w.mu.Unlock()
	return nil
}
