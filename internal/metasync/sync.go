// Package metasync writes the "modified" timestamp and "edit duration" fields
// of a document header at the end of an activity burst.
package metasync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/timethings/internal/duration"
	"github.com/starford/timethings/internal/frontmatter"
	"github.com/starford/timethings/internal/timefmt"
)

// KeySettings configures one managed header field.
type KeySettings struct {
	Enabled bool
	Name    string
	Format  string
}

// Settings is the part of the tracking configuration the synchronizer reads.
type Settings struct {
	Modified KeySettings
	// ModifiedThreshold is the active editing time a session needs before
	// the modified field is touched.
	ModifiedThreshold time.Duration
	Duration          KeySettings
	// UTC renders the modified timestamp in UTC instead of local time.
	UTC bool
}

// Result reports what a Sync call wrote.
type Result struct {
	Path string `json:"path"`
	// Modified is the timestamp written, empty when the field was untouched.
	Modified string `json:"modified,omitempty"`
	// Duration is the new duration value, empty when the field was untouched.
	Duration string `json:"duration,omitempty"`
	// DurationSkipped is set when the stored duration could not be parsed.
	DurationSkipped bool `json:"duration_skipped,omitempty"`
}

// Changed reports whether any field was written.
func (r Result) Changed() bool {
	return r.Modified != "" || r.Duration != ""
}

var errUnchanged = errors.New("metasync: nothing to write")

// Synchronizer applies the modified/duration policy to a Target.
type Synchronizer struct {
	store    HeaderStore
	settings func() Settings
	clock    clockwork.Clock
	logger   *slog.Logger
}

// New creates a Synchronizer. settings is called on every Sync so that
// configuration reloads take effect without rebuilding the synchronizer.
func New(store HeaderStore, settings func() Settings, clock clockwork.Clock, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{store: store, settings: settings, clock: clock, logger: logger}
}

// Sync updates the header of target. active is the session's active editing
// time so far; tick is the debounce interval that triggered this flush and is
// what the duration field grows by.
//
// An unparseable stored duration skips that field only and is logged. Errors
// are returned for I/O failures of the backend.
func (s *Synchronizer) Sync(ctx context.Context, target Target, active, tick time.Duration) (Result, error) {
	cfg := s.settings()
	now := s.clock.Now()
	if cfg.UTC {
		now = now.UTC()
	}

	switch t := target.(type) {
	case Fast:
		return s.syncFast(t, cfg, now, active, tick)
	case Structured:
		return s.syncStructured(ctx, t, cfg, now, active, tick)
	default:
		return Result{}, fmt.Errorf("metasync: unsupported target %T", target)
	}
}

func (s *Synchronizer) syncFast(t Fast, cfg Settings, now time.Time, active, tick time.Duration) (res Result, err error) {
	if t.Editor == nil {
		return Result{}, fmt.Errorf("metasync: fast target %s has no editor", t.Path)
	}
	if tx, ok := t.Editor.(Transactional); ok {
		if err := tx.Begin(); err != nil {
			return Result{}, fmt.Errorf("metasync: begin %s: %w", t.Path, err)
		}
		defer func() {
			if cerr := tx.Commit(); cerr != nil && err == nil {
				err = fmt.Errorf("metasync: commit %s: %w", t.Path, cerr)
			}
		}()
	}
	res = s.apply(lineFields{t.Editor}, t.Path, cfg, now, active, tick)
	return res, nil
}

func (s *Synchronizer) syncStructured(ctx context.Context, t Structured, cfg Settings, now time.Time, active, tick time.Duration) (Result, error) {
	var res Result
	err := s.store.WithHeader(ctx, t.Path, func(h *frontmatter.Header) error {
		res = s.apply(headerFields{h}, t.Path, cfg, now, active, tick)
		if !res.Changed() {
			return errUnchanged
		}
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return Result{Path: t.Path}, fmt.Errorf("metasync: structured %s: %w", t.Path, err)
	}
	return res, nil
}

// apply is the backend-independent policy: modified when the threshold is
// met, duration on every flush.
func (s *Synchronizer) apply(f fields, path string, cfg Settings, now time.Time, active, tick time.Duration) Result {
	res := Result{Path: path}

	if cfg.Modified.Enabled && active >= cfg.ModifiedThreshold {
		res.Modified = timefmt.Format(now, cfg.Modified.Format)
		f.set(cfg.Modified.Name, res.Modified)
	}

	if cfg.Duration.Enabled {
		prev, _ := f.get(cfg.Duration.Name)
		if !f.scalar(cfg.Duration.Name) || !duration.Valid(prev, cfg.Duration.Format) {
			s.logger.Warn("metasync: stored duration is not a value in the configured format, skipping",
				slog.String("path", path),
				slog.String("key", cfg.Duration.Name),
				slog.String("value", prev),
				slog.String("format", cfg.Duration.Format))
			res.DurationSkipped = true
		} else {
			res.Duration = duration.Increment(prev, tick, cfg.Duration.Format)
			f.set(cfg.Duration.Name, res.Duration)
		}
	}

	s.logger.Debug("metasync: applied",
		slog.String("path", path),
		slog.Duration("active", active),
		slog.String("modified", res.Modified),
		slog.String("duration", res.Duration))
	return res
}

// fields is the get/set surface shared by both backends.
type fields interface {
	get(path string) (string, bool)
	scalar(path string) bool
	set(path, value string)
}

type lineFields struct{ ed frontmatter.Editor }

func (l lineFields) get(path string) (string, bool) { return frontmatter.Value(l.ed, path) }
func (l lineFields) scalar(path string) bool        { return frontmatter.Scalar(l.ed, path) }
func (l lineFields) set(path, value string)         { frontmatter.SetValue(l.ed, path, value) }

type headerFields struct{ h *frontmatter.Header }

func (f headerFields) get(path string) (string, bool) { return f.h.Get(path) }
func (f headerFields) scalar(path string) bool        { return f.h.Scalar(path) }
func (f headerFields) set(path, value string)         { f.h.Set(path, value) }
