package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp 表示监视器在清单文件上观察到的变更类型.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 是一次去抖后的清单变更.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// WatcherOption 配置 Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval 设置清单文件的轮询间隔.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay 设置变更在应用前的合并等待时间.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger 设置日志记录器.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher 使 Registry 与磁盘上的清单文件保持同步.
// 通过轮询修改时间检测变更，各平台行为一致。
// 解析失败的清单不会覆盖已注册的旧版本。
type Watcher struct {
	registry *Registry
	dir      string
	files    []string

	pollInterval  time.Duration
	debounceDelay time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	modTimes map[string]time.Time
	owners   map[string]string // 文件路径 -> 技能 ID
	pending  map[string]FileEvent
	timer    *time.Timer
	onApply  []func(FileEvent, error)

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWatcher 监视 dir 目录下的清单以及额外指定的文件，两者均可为空.
func NewWatcher(registry *Registry, dir string, files []string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		registry:      registry,
		dir:           dir,
		files:         append([]string(nil), files...),
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
		modTimes:      make(map[string]time.Time),
		owners:        make(map[string]string),
		pending:       make(map[string]FileEvent),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "skill_watcher"))
	return w
}

// OnApply 注册回调，每次变更应用到注册表后调用. err 为加载错误（若有）。
func (w *Watcher) OnApply(fn func(FileEvent, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onApply = append(w.onApply, fn)
}

// Start 记录当前文件快照并开始轮询.
// 已注册的清单会关联到其来源文件，文件删除时随之注销。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("skill watcher already running")
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	for path, info := range w.scan() {
		w.modTimes[path] = info
		if m, err := ReadManifest(path); err == nil {
			w.owners[path] = m.ID
		}
	}
	w.mu.Unlock()

	go w.pollLoop(ctx)

	w.logger.Info("skill watcher started",
		zap.String("dir", w.dir),
		zap.Strings("files", w.files),
		zap.Duration("poll_interval", w.pollInterval),
	)
	return nil
}

// Stop 停止轮询并等待循环退出，未应用的变更将被丢弃.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	if w.timer != nil {
		w.timer.Stop()
	}
	done := w.done
	w.mu.Unlock()
	<-done
	w.logger.Info("skill watcher stopped")
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// scan 返回每个已存在的被监视清单的修改时间.
func (w *Watcher) scan() map[string]time.Time {
	out := make(map[string]time.Time)
	if w.dir != "" {
		if entries, err := os.ReadDir(w.dir); err == nil {
			for _, e := range entries {
				if e.IsDir() || !isManifestFile(e.Name()) {
					continue
				}
				if info, err := e.Info(); err == nil {
					out[filepath.Join(w.dir, e.Name())] = info.ModTime()
				}
			}
		}
	}
	for _, path := range w.files {
		if info, err := os.Stat(path); err == nil {
			out[path] = info.ModTime()
		}
	}
	return out
}

func (w *Watcher) check() {
	current := w.scan()
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	changed := false
	for path, mod := range current {
		last, seen := w.modTimes[path]
		switch {
		case !seen:
			w.pending[path] = FileEvent{Path: path, Op: FileOpCreate, Timestamp: now}
		case mod.After(last):
			w.pending[path] = FileEvent{Path: path, Op: FileOpWrite, Timestamp: now}
		default:
			continue
		}
		w.modTimes[path] = mod
		changed = true
	}
	for path := range w.modTimes {
		if _, ok := current[path]; !ok {
			delete(w.modTimes, path)
			w.pending[path] = FileEvent{Path: path, Op: FileOpRemove, Timestamp: now}
			changed = true
		}
	}
	if !changed {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceDelay, w.flush)
}

// flush 按路径顺序应用所有待处理事件.
func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	events := make([]FileEvent, 0, len(w.pending))
	for _, evt := range w.pending {
		events = append(events, evt)
	}
	w.pending = make(map[string]FileEvent)
	callbacks := slices.Clone(w.onApply)
	w.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	for _, evt := range events {
		err := w.apply(evt)
		if err != nil {
			w.logger.Warn("skill manifest reload failed",
				zap.String("path", evt.Path),
				zap.String("op", evt.Op.String()),
				zap.Error(err),
			)
		}
		for _, cb := range callbacks {
			cb(evt, err)
		}
	}
}

func (w *Watcher) apply(evt FileEvent) error {
	w.mu.Lock()
	owner := w.owners[evt.Path]
	w.mu.Unlock()

	if evt.Op == FileOpRemove {
		if owner != "" {
			w.registry.Remove(owner)
			w.mu.Lock()
			delete(w.owners, evt.Path)
			w.mu.Unlock()
		}
		return nil
	}

	m, err := ReadManifest(evt.Path)
	if err != nil {
		return err
	}
	if _, err := w.registry.Upsert(m); err != nil {
		return err
	}
	// 文件的技能 ID 变化后，旧技能随之移除
	if owner != "" && owner != m.ID {
		w.registry.Remove(owner)
	}
	w.mu.Lock()
	w.owners[evt.Path] = m.ID
	w.mu.Unlock()
	return nil
}
