package pathfilter

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Filter 判定路径是否在监控范围内：
// 必须位于某个监控根之下，且扩展名和路径片段都不在排除名单里。
// 自身的数据库文件永远排除，避免“写库触发事件再写库”的自激循环。
type Filter struct {
	mu           sync.RWMutex
	roots        []string // 已归一化的绝对路径
	excludePaths []string // 小写片段
	excludeExts  map[string]struct{}
	selfPaths    []string // 进程自己产生的文件（db、wal、journal）
}

// New 构造过滤器。根目录做符号链接解析，解析失败的根被丢弃。
func New(watchPaths, excludedPaths, excludedExtensions []string, dbPath string) *Filter {
	f := &Filter{
		excludeExts: make(map[string]struct{}),
	}
	for _, p := range watchPaths {
		if r, ok := normalizeRoot(p); ok {
			f.roots = append(f.roots, r)
		}
	}
	for _, p := range excludedPaths {
		f.excludePaths = append(f.excludePaths, strings.ToLower(p))
	}
	for _, e := range excludedExtensions {
		f.excludeExts[normalizeExt(e)] = struct{}{}
	}
	if dbPath != "" {
		// sqlite 主文件 + 附属文件
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			if abs, err := filepath.Abs(dbPath + suffix); err == nil {
				f.selfPaths = append(f.selfPaths, strings.ToLower(abs))
			}
		}
	}
	return f
}

// AddRoot 运行期追加监控根（可移动介质挂载时）
func (f *Filter) AddRoot(path string) bool {
	r, ok := normalizeRoot(path)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.roots {
		if existing == r {
			return false
		}
	}
	f.roots = append(f.roots, r)
	return true
}

// Roots 当前监控根快照
func (f *Filter) Roots() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.roots))
	copy(out, f.roots)
	return out
}

// InScope 判定单个路径。无法解析的路径一律排除。
func (f *Filter) InScope(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)

	// 符号链接解析：EvalSymlinks 自带链接深度上限，环会报错。
	// 已删除文件（DELETE 事件）解析不到属正常情况，按词法路径判断。
	resolved := abs
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		resolved = r
	} else if !os.IsNotExist(err) {
		return false
	}

	lower := strings.ToLower(resolved)
	for _, self := range f.selfPaths {
		if strings.HasPrefix(lower, self) {
			return false
		}
	}

	f.mu.RLock()
	roots := f.roots
	f.mu.RUnlock()

	under := false
	for _, root := range roots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			under = true
			break
		}
	}
	if !under {
		return false
	}

	if _, excluded := f.excludeExts[normalizeExt(filepath.Ext(resolved))]; excluded {
		return false
	}

	for _, frag := range f.excludePaths {
		if frag != "" && strings.Contains(lower, frag) {
			return false
		}
	}
	return true
}

// normalizeRoot 根目录归一化：绝对化 + 符号链接解析。
// 根必须真实存在，解析失败视为无效根。
func normalizeRoot(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	return filepath.Clean(resolved), true
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
