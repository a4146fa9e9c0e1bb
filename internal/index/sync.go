package index

import (
	"log/slog"

	"github.com/starford/timethings/internal/storage"
)

// Sync brings the document table up to date with the vault:
//   - new/changed files get their checksum stored
//   - files removed from disk are dropped together with their statistics
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	docs, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		disk[d.Path] = struct{}{}
		if checksums[d.Path] == d.Checksum {
			continue
		}
		if err := db.UpsertDocument(d); err != nil {
			logger.Warn("sync: upsert failed", slog.String("path", d.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: tracked", slog.String("path", d.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeletePath(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return nil
}
