// Package settings holds the live configuration and reloads it when the
// config file changes on disk.
package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 200 * time.Millisecond

// Source is a value that readers fetch on every use, so a reload takes
// effect at the next read.
type Source[T any] struct {
	cur atomic.Pointer[T]
}

// New returns a Source holding initial.
func New[T any](initial *T) *Source[T] {
	s := &Source[T]{}
	s.cur.Store(initial)
	return s
}

// Load returns the current value. Callers must not modify it.
func (s *Source[T]) Load() *T {
	return s.cur.Load()
}

// Store replaces the current value.
func (s *Source[T]) Store(v *T) {
	s.cur.Store(v)
}

// LoadFunc builds a fresh, validated value from the file at path.
type LoadFunc[T any] func(path string) (*T, error)

// Watch reloads the file at path after it changes, until ctx is cancelled.
// The parent directory is watched so that editors replacing the file are
// seen. A reload that fails keeps the previous value. onChange, if non-nil,
// is called after each successful reload.
func (s *Source[T]) Watch(ctx context.Context, path string, load LoadFunc[T], logger *slog.Logger, onChange func(*T)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info("settings: watching", slog.String("path", path))

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case <-timerCh:
			timerCh = nil
			next, err := load(path)
			if err != nil {
				logger.Warn("settings: reload rejected",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			s.Store(next)
			logger.Info("settings: reloaded", slog.String("path", path))
			if onChange != nil {
				onChange(next)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			timerCh = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("settings: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
