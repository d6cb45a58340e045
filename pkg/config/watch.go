package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the bursts of events editors produce on save.
const reloadDelay = 250 * time.Millisecond

// Watch calls onChange with the new configuration each time the file at path
// is rewritten with valid, different content. Invalid files are logged and
// skipped. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, current *Config, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
		last  = current
	)
	reload := func() {
		cfg, err := Read(path)
		if err != nil {
			logger.Warn("config reload failed", "path", path, "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("config rejected", "path", path, "error", err)
			return
		}

		mu.Lock()
		unchanged := last != nil && reflect.DeepEqual(last, cfg)
		if !unchanged {
			last = cfg
		}
		mu.Unlock()
		if unchanged {
			logger.Debug("config unchanged", "path", path)
			return
		}

		logger.Info("config reloaded", "path", path)
		onChange(cfg)
	}
	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDelay, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "path", path, "error", err)
		}
	}
}
