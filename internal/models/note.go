// Package models defines the domain types shared by storage, statistics and
// the outer surfaces.
package models

import "time"

// DocumentInfo is a lightweight description of a vault document.
type DocumentInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EditStat is the accumulated editing activity of one document.
type EditStat struct {
	Path        string        `json:"path"`
	Flushes     int           `json:"flushes"`
	Sessions    int           `json:"sessions"`
	ActiveTotal time.Duration `json:"active_total"`
	Duration    string        `json:"duration,omitempty"`
	LastEdited  time.Time     `json:"last_edited"`
}

// SessionRecord is a finished editing session.
type SessionRecord struct {
	ID      string        `json:"id"`
	Path    string        `json:"path"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Active  time.Duration `json:"active"`
	Flushes int           `json:"flushes"`
}
