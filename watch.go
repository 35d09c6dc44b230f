package rsbus

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle coalesces bursts of file events (editors write a config
// file several times) into one reload.
const watchSettle = 200 * time.Millisecond

// WatchConfig reloads the process-wide default configuration whenever
// one of the rsb.conf cascade files changes. Already created
// participants keep their configuration; new ones pick up the reload.
// The watch ends with ctx.
func WatchConfig(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rsbus: config watch: %w", err)
	}

	files := make(map[string]bool)
	for _, f := range configFiles() {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		files[abs] = true
		// Watch the directory so atomic replace (write + rename), the
		// common editor save strategy, is seen. Directories that do not
		// exist are skipped.
		watcher.Add(filepath.Dir(abs))
	}

	go func() {
		defer watcher.Close()
		var settle <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !files[ev.Name] {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				settle = time.After(watchSettle)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger().Warn("config watch error", "error", err)
			case <-settle:
				settle = nil
				cfg, err := LoadConfig()
				if err != nil {
					logger().Warn("config reload failed", "error", err)
					continue
				}
				SetDefaultConfig(cfg)
				logger().Info("configuration reloaded")
			}
		}
	}()
	return nil
}
