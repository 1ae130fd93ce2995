package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// ReloadFunc is called after every reload attempt.
type ReloadFunc func(snap DataSnapshot, err error)

// Watcher reloads a DataStore when its files change on disk.
type Watcher struct {
	store    *DataStore
	onReload ReloadFunc
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	OnReload ReloadFunc
	Logger   *slog.Logger
	Debounce time.Duration // Default: 200ms
}

// NewWatcher creates a watcher for store.
func NewWatcher(store *DataStore, cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{store: store, onReload: cfg.OnReload, logger: logger, debounce: debounce}
}

// Start begins watching in the background. The parent directories are
// watched so that editors which replace files are still noticed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopChan != nil {
		return fmt.Errorf("watcher is already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	targets := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range w.store.Paths() {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, targets, w.stopChan, w.done)
	return nil
}

// Stop halts the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, done := w.stopChan, w.done
	w.stopChan, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, targets map[string]bool, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() { _ = fsw.Close() }()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				name = event.Name
			}
			if !targets[name] || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Data file watcher error", "error", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	snap, err := w.store.Reload()
	if err != nil {
		w.logger.Error("Failed to reload data files", "error", err)
	} else {
		w.logger.Info("Reloaded data files",
			"new_songs", len(snap.NewSongs.All()),
			"overrides", len(snap.Overrides))
	}
	if w.onReload != nil {
		w.onReload(snap, err)
	}
}
