package etl

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch calls reload whenever CSV files in dir change, coalescing bursts of
// events that arrive within debounce. It returns when ctx is done.
// Reload errors are logged and do not stop the watch.
func Watch(ctx context.Context, dir string, debounce time.Duration, logger *slog.Logger, reload func(context.Context) error) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info("Watching for CSV changes", "dir", dir)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isCSVChange(ev) {
				continue
			}
			logger.Debug("CSV changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", "error", err)
		case <-fire:
			fire = nil
			if err := reload(ctx); err != nil {
				logger.Error("Reload failed", "error", err, "dir", dir)
			}
		}
	}
}

func isCSVChange(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".csv") {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
