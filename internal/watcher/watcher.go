// Package watcher hot-reloads the configuration file. Saves are detected with
// fsnotify, debounced, and applied only when the file content actually changed.
package watcher

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/CopilotAPI/internal/config"
	log "github.com/sirupsen/logrus"
)

// settleDelay coalesces the burst of events editors emit for one save.
const settleDelay = 150 * time.Millisecond

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Watcher reloads one configuration file and hands each accepted version to onReload.
type Watcher struct {
	path     string
	onReload func(*config.Config)
	fs       *fsnotify.Watcher

	mu     sync.RWMutex
	active *config.Config
	digest string

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher prepares a watcher for path. Nothing is observed until Run.
func NewWatcher(path string, onReload func(*config.Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: abs, onReload: onReload, fs: fs}, nil
}

// Run blocks until ctx is done. The parent directory is watched rather than the
// file itself so replace-by-rename saves keep being seen.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		log.Errorf("watcher: cannot watch %s: %v", dir, err)
		_ = w.fs.Close()
		return err
	}
	w.primeDigest()
	log.Debugf("watcher: watching %s", w.path)

	for {
		select {
		case <-ctx.Done():
			return w.Stop()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return w.Stop()
			}
			if ev.Op&relevantOps != 0 && samePath(ev.Name, w.path) {
				log.Debugf("watcher: %s %s", ev.Op, ev.Name)
				w.debounce()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return w.Stop()
			}
			log.Errorf("watcher: %v", err)
		}
	}
}

// Stop cancels a pending reload and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()
	return w.fs.Close()
}

// SetConfig records the configuration currently in effect.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	w.active = cfg
	w.mu.Unlock()
}

// Config returns the configuration currently in effect.
func (w *Watcher) Config() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Reset(settleDelay)
		return
	}
	w.timer = time.AfterFunc(settleDelay, func() {
		w.timerMu.Lock()
		w.timer = nil
		w.timerMu.Unlock()
		w.reloadIfChanged()
	})
}

func samePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
