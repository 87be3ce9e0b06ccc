package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/watcher/diff"
	log "github.com/sirupsen/logrus"
)

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// primeDigest records the current file content so the first event for an
// unchanged file is ignored.
func (w *Watcher) primeDigest() {
	if data, err := os.ReadFile(w.path); err == nil && len(data) > 0 {
		w.mu.Lock()
		w.digest = digestOf(data)
		w.mu.Unlock()
	}
}

// reloadIfChanged applies the file when its content differs from the last
// accepted version. Empty reads are skipped; editors truncate before writing.
func (w *Watcher) reloadIfChanged() {
	data, err := os.ReadFile(w.path)
	switch {
	case err != nil:
		log.Errorf("watcher: read %s: %v", w.path, err)
		return
	case len(data) == 0:
		log.Debug("watcher: config file is empty, waiting for the next write")
		return
	}

	next := digestOf(data)
	w.mu.RLock()
	unchanged := w.digest != "" && w.digest == next
	w.mu.RUnlock()
	if unchanged {
		log.Debug("watcher: config content unchanged")
		return
	}

	log.Infof("watcher: config file changed, reloading %s", w.path)
	if w.apply() {
		w.mu.Lock()
		w.digest = next
		w.mu.Unlock()
	}
}

// apply loads, validates and publishes the file. A rejected file leaves the
// running configuration untouched.
func (w *Watcher) apply() bool {
	cfg, err := config.LoadConfig(w.path, false)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Errorf("watcher: keeping current config: %v", err)
		return false
	}

	if prev := w.Config(); prev != nil {
		changes := diff.BuildConfigChangeDetails(prev, cfg)
		if len(changes) == 0 {
			log.Debug("watcher: no setting changed")
		}
		for _, change := range changes {
			log.Debugf("watcher:   %s", change)
		}
	}

	if w.onReload != nil {
		w.onReload(cfg)
	}
	w.SetConfig(cfg)
	log.Info("watcher: config reloaded")
	return true
}
