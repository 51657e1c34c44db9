package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the database file (and its -wal/-journal siblings) and
// calls onChange once per burst of writes made by other processes, after
// debounce of quiet. Bursts that end within debounce of one of this handle's
// own commits are ignored. Watch blocks until ctx is cancelled.
func (db *DB) Watch(ctx context.Context, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(db.path)
	if err != nil {
		return err
	}
	dir, base := filepath.Split(abs)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("db", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			if own := db.lastWrite.Load(); own != 0 && lastEvent.Sub(time.Unix(0, own)) < debounce {
				logger.Debug("watcher: ignoring own write")
				continue
			}
			logger.Debug("watcher: external change detected")
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			lastEvent = time.Now()
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
