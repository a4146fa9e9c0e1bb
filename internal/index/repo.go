package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/timethings/internal/apperr"
	"github.com/starford/timethings/internal/models"
)

// UpsertDocument stores the checksum last seen for a document.
func (db *DB) UpsertDocument(doc models.DocumentInfo) error {
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO documents (path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, doc.Path, doc.Checksum, updated.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}
	return nil
}

// DeletePath forgets a document together with its statistics and sessions.
func (db *DB) DeletePath(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM sessions WHERE path = ?`,
		`DELETE FROM edit_stats WHERE path = ?`,
		`DELETE FROM documents WHERE path = ?`,
	} {
		if _, err := tx.Exec(q, path); err != nil {
			return fmt.Errorf("index: delete %s: %w", path, err)
		}
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if
// it is unknown.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every known document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// RecordFlush counts one header flush. duration, when non-empty, is the
// edit duration value just written to the document.
func (db *DB) RecordFlush(path, duration string, at time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO edit_stats (path, flushes, duration, last_edited)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			flushes     = flushes + 1,
			duration    = CASE WHEN excluded.duration = '' THEN duration ELSE excluded.duration END,
			last_edited = excluded.last_edited
	`, path, duration, at.UTC())
	if err != nil {
		return fmt.Errorf("index: record flush: %w", err)
	}
	return nil
}

// RecordSession stores a finished session and adds its active time to the
// document's totals.
func (db *DB) RecordSession(s models.SessionRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO sessions (id, path, started_at, ended_at, active_ms, flushes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.Path, s.Start.UTC(), s.End.UTC(), s.Active.Milliseconds(), s.Flushes)
	if err != nil {
		return fmt.Errorf("index: insert session: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO edit_stats (path, sessions, active_ms, last_edited)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			sessions    = sessions + 1,
			active_ms   = active_ms + excluded.active_ms,
			last_edited = MAX(last_edited, excluded.last_edited)
	`, s.Path, s.Active.Milliseconds(), s.End.UTC())
	if err != nil {
		return fmt.Errorf("index: update stats: %w", err)
	}
	return tx.Commit()
}

const statColumns = `path, flushes, sessions, active_ms, duration, last_edited`

func scanStat(sc interface{ Scan(...any) error }) (models.EditStat, error) {
	var st models.EditStat
	var activeMS int64
	if err := sc.Scan(&st.Path, &st.Flushes, &st.Sessions, &activeMS, &st.Duration, &st.LastEdited); err != nil {
		return st, err
	}
	st.ActiveTotal = time.Duration(activeMS) * time.Millisecond
	return st, nil
}

// Stat returns the statistics of one document.
func (db *DB) Stat(path string) (*models.EditStat, error) {
	st, err := scanStat(db.conn.QueryRow(`SELECT `+statColumns+` FROM edit_stats WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: stat: %w", err)
	}
	return &st, nil
}

// MostEdited returns documents ordered by total active editing time, then by
// number of flushes.
func (db *DB) MostEdited(limit int) ([]models.EditStat, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(`SELECT `+statColumns+` FROM edit_stats
		ORDER BY active_ms DESC, flushes DESC, path ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: most edited: %w", err)
	}
	defer rows.Close()

	var out []models.EditStat
	for rows.Next() {
		st, err := scanStat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Sessions returns the most recent sessions, newest first. An empty path
// returns sessions of every document.
func (db *DB) Sessions(path string, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, path, started_at, ended_at, active_ms, flushes FROM sessions
		WHERE ? = '' OR path = ?
		ORDER BY started_at DESC
		LIMIT ?`, path, path, limit)
	if err != nil {
		return nil, fmt.Errorf("index: sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		var s models.SessionRecord
		var activeMS int64
		if err := rows.Scan(&s.ID, &s.Path, &s.Start, &s.End, &activeMS, &s.Flushes); err != nil {
			return nil, err
		}
		s.Active = time.Duration(activeMS) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}
