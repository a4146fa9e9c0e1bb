package index

import (
	"time"

	"github.com/starford/timethings/internal/models"
)

// StatsIndex defines the edit statistics operations. Consumers should depend
// on this interface rather than the concrete *DB type.
type StatsIndex interface {
	UpsertDocument(doc models.DocumentInfo) error
	DeletePath(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	RecordFlush(path, duration string, at time.Time) error
	RecordSession(s models.SessionRecord) error
	Stat(path string) (*models.EditStat, error)
	MostEdited(limit int) ([]models.EditStat, error)
	Sessions(path string, limit int) ([]models.SessionRecord, error)
	Close() error
}

// Verify *DB satisfies StatsIndex at compile time.
var _ StatsIndex = (*DB)(nil)
