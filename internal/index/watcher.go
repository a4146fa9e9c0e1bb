package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/timethings/internal/checksum"
	"github.com/starford/timethings/internal/models"
	"github.com/starford/timethings/internal/storage"
)

// Change kinds reported by Watch.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after the watcher records a change made outside
// this process.
type EventCallback func(kind string, path string)

// Watch follows the vault with fsnotify until ctx is cancelled.
//
// Content changes are compared against the stored checksum and against
// writes, the log of this process's own writes; only real outside edits are
// reported as ChangeModified. Removed documents lose their statistics. New
// directories are watched as they appear, and a rename schedules a
// reconciliation pass.
func Watch(ctx context.Context, db *DB, store storage.Provider, writes *storage.WriteLog, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	notify := func(kind, path string) {
		if cb != nil {
			cb(kind, path)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcileCh = nil
			reconcile(db, store, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					trackNewDir(db, store, ev.Name, logger, notify)
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind, changed := recordContent(db, store, writes, rel, ev.Op&fsnotify.Create != 0, logger)
				if changed {
					logger.Debug("watcher: changed", slog.String("path", rel), slog.String("op", kind))
					notify(kind, rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				forget(db, writes, rel, logger, notify)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old name only; the new one arrives as
				// a Create if it stays inside a watched directory.
				forget(db, writes, rel, logger, notify)
				if reconcileTimer == nil {
					reconcileTimer = time.NewTimer(reconcileDelay)
				} else {
					reconcileTimer.Reset(reconcileDelay)
				}
				reconcileCh = reconcileTimer.C
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// recordContent stores the new checksum of rel and reports whether the
// change came from outside this process.
func recordContent(db *DB, store storage.Provider, writes *storage.WriteLog, rel string, created bool, logger *slog.Logger) (string, bool) {
	data, err := store.Read(rel)
	if err != nil {
		logger.Debug("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return "", false
	}
	sum := checksum.Sum(data)
	prev, err := db.GetChecksum(rel)
	if err != nil {
		logger.Warn("watcher: checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return "", false
	}
	if prev == sum {
		return "", false
	}
	if err := db.UpsertDocument(models.DocumentInfo{Path: rel, Checksum: sum, Size: int64(len(data))}); err != nil {
		logger.Warn("watcher: upsert failed", slog.String("path", rel), slog.String("error", err.Error()))
		return "", false
	}
	if writes != nil && writes.IsSelfWrite(rel, data) {
		return "", false
	}
	if created && prev == "" {
		return ChangeCreated, true
	}
	return ChangeModified, true
}

func forget(db *DB, writes *storage.WriteLog, rel string, logger *slog.Logger, notify EventCallback) {
	if err := db.DeletePath(rel); err != nil {
		logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if writes != nil {
		writes.Forget(rel)
	}
	logger.Debug("watcher: deleted", slog.String("path", rel))
	notify(ChangeDeleted, rel)
}

// reconcile drops documents that no longer exist and tracks ones that
// appeared without an event.
func reconcile(db *DB, store storage.Provider, logger *slog.Logger, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	docs, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]models.DocumentInfo, len(docs))
	for _, d := range docs {
		disk[d.Path] = d
	}
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeletePath(p); err == nil {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
			notify(ChangeDeleted, p)
		}
	}
	for p, d := range disk {
		if _, known := checksums[p]; known {
			continue
		}
		if err := db.UpsertDocument(d); err == nil {
			logger.Debug("reconcile: tracked new", slog.String("path", p))
			notify(ChangeCreated, p)
		}
	}
}

// trackNewDir records any .md files found in a newly created directory.
func trackNewDir(db *DB, store storage.Provider, dir string, logger *slog.Logger, notify EventCallback) {
	root := store.Root()
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, readErr := store.Read(rel)
		if readErr != nil {
			return nil
		}
		doc := models.DocumentInfo{Path: rel, Checksum: checksum.Sum(data), Size: int64(len(data))}
		if err := db.UpsertDocument(doc); err == nil {
			logger.Debug("watcher: tracked from new dir", slog.String("path", rel))
			notify(ChangeCreated, rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
