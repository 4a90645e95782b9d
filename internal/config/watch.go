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

const defaultDebounce = 300 * time.Millisecond

// Holder hands out the current config and swaps it on reload.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewHolder(cfg *Config) *Holder {
	return &Holder{cfg: cfg}
}

func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *Holder) Set(cfg *Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

// Watcher reloads the workspace config when the file changes. An invalid
// file is logged and the previous config stays in effect.
type Watcher struct {
	path     string
	holder   *Holder
	logger   *slog.Logger
	debounce time.Duration
	onReload func(*Config)
}

func NewWatcher(workspace string, holder *Holder, logger *slog.Logger, onReload func(*Config)) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := filepath.Abs(Path(workspace))
	if err != nil {
		path = Path(workspace)
	}
	return &Watcher{path: path, holder: holder, logger: logger, debounce: defaultDebounce, onReload: onReload}
}

// Run watches until ctx is done. The directory is watched rather than the
// file so editors that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	w.logger.Info("config watcher started", "path", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case evt, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != w.path || evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "err", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := FromFile(w.path)
	if err != nil {
		w.logger.Error("config reload rejected", "path", w.path, "err", err)
		return
	}
	w.holder.Set(cfg)
	w.logger.Info("config reloaded", "path", w.path, "checklists", len(cfg.Checklists), "cocktails", len(cfg.Cocktails))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
