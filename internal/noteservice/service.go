// Package noteservice joins the activity filter, the session tracker and the
// header synchronizer into the operations exposed over HTTP, WebSocket, MCP
// and the CLI.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/starford/timethings/internal/activity"
	"github.com/starford/timethings/internal/apperr"
	"github.com/starford/timethings/internal/frontmatter"
	"github.com/starford/timethings/internal/index"
	"github.com/starford/timethings/internal/metasync"
	"github.com/starford/timethings/internal/models"
	"github.com/starford/timethings/internal/sse"
	"github.com/starford/timethings/internal/tracker"
	"github.com/starford/timethings/internal/workspace"
)

// Backend names.
const (
	BackendFast       = "fast"
	BackendStructured = "structured"
)

// Mode is the part of the tracking configuration read per event.
type Mode struct {
	Fast              bool
	IndicatorActive   string
	IndicatorInactive string
}

// Publisher receives events for connected clients.
type Publisher interface {
	Publish(sse.Event)
	PublishStatsChanged(path string)
}

// Options wires a Service. Workspace, Headers, Stats, Mode and Timing are
// required.
type Options struct {
	Workspace *workspace.Workspace
	Headers   metasync.HeaderStore
	Stats     index.StatsIndex
	Publisher Publisher
	Mode      func() Mode
	Timing    func() tracker.Timing
	Settings  func() metasync.Settings
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// TypingStatus is the tracker state with its indicator glyph.
type TypingStatus struct {
	tracker.Status
	Indicator string `json:"indicator"`
	Backend   string `json:"backend"`
}

// Service coordinates tracking, header writes and statistics.
type Service struct {
	ws      *workspace.Workspace
	headers metasync.HeaderStore
	stats   index.StatsIndex
	pub     Publisher
	mode    func() Mode
	clock   clockwork.Clock
	logger  *slog.Logger

	sync    *metasync.Synchronizer
	tracker *tracker.Tracker
}

// New creates a Service and its tracker. Call Run to start tracking.
func New(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Service{
		ws:      opts.Workspace,
		headers: opts.Headers,
		stats:   opts.Stats,
		pub:     opts.Publisher,
		mode:    opts.Mode,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	s.sync = metasync.New(opts.Headers, opts.Settings, opts.Clock, opts.Logger)
	s.tracker = tracker.New(tracker.Options{
		Timing:          opts.Timing,
		Flush:           s.flush,
		OnTyping:        s.onTyping,
		OnSessionClosed: s.onSessionClosed,
		Clock:           opts.Clock,
		Logger:          opts.Logger,
	})
	return s
}

// Run tracks activity until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.tracker.Run(ctx)
}

// HandleEvent filters one raw input event and feeds the tracker. The
// returned decision says what the event counted as.
func (s *Service) HandleEvent(ctx context.Context, ev activity.Event) (activity.Decision, error) {
	if _, err := activity.ParseKind(string(ev.Kind)); err != nil {
		return activity.Drop, fmt.Errorf("%w: %v", apperr.ErrInvalidValue, err)
	}
	if ev.Kind == activity.KindDocumentModified && ev.Path == "" {
		return activity.Drop, fmt.Errorf("%w: document-modified needs a path", apperr.ErrInvalidValue)
	}

	if ev.Kind != activity.KindDocumentModified {
		s.applyFocus(ev)
	}

	mode := s.mode()
	decision := activity.Classify(ev, s.ws.View(), mode.Fast)

	var a tracker.Activity
	switch decision {
	case activity.Drop:
		return decision, nil
	case activity.Full:
		a = tracker.Activity{Target: s.target(ev, mode.Fast), Full: true}
	}
	if err := s.tracker.Record(ctx, a); err != nil {
		return activity.Drop, err
	}
	return decision, nil
}

func (s *Service) applyFocus(ev activity.Event) {
	switch {
	case ev.Path != "" && ev.Path != s.ws.ActivePath():
		s.ws.Focus(ev.Path, ev.Focused == nil || *ev.Focused)
	case ev.Focused != nil:
		s.ws.SetFocused(*ev.Focused)
	}
}

func (s *Service) target(ev activity.Event, fast bool) metasync.Target {
	path := ev.Path
	if path == "" {
		path = s.ws.ActivePath()
	}
	if fast {
		return metasync.Fast{Path: path, Editor: s.ws.Document(path)}
	}
	return metasync.Structured{Path: path}
}

func (s *Service) flush(ctx context.Context, f tracker.Flush) error {
	res, err := s.sync.Sync(ctx, f.Target, f.Active, f.Tick)
	if err != nil {
		return err
	}
	if !res.Changed() {
		return nil
	}
	if err := s.stats.RecordFlush(res.Path, res.Duration, s.clock.Now()); err != nil {
		s.logger.Warn("noteservice: record flush failed",
			slog.String("path", res.Path),
			slog.String("error", err.Error()))
	}
	s.publish(sse.Event{Type: sse.EventHeaderUpdated, Data: res})
	if s.pub != nil {
		s.pub.PublishStatsChanged(res.Path)
	}
	return nil
}

func (s *Service) onTyping(st tracker.Status) {
	s.publish(sse.Event{Type: sse.EventTyping, Data: s.decorate(st)})
}

func (s *Service) onSessionClosed(sess tracker.Session) {
	if sess.Path == "" {
		return
	}
	err := s.stats.RecordSession(models.SessionRecord{
		ID:      sess.ID,
		Path:    sess.Path,
		Start:   sess.Start,
		End:     sess.End,
		Active:  sess.Active,
		Flushes: sess.Flushes,
	})
	if err != nil {
		s.logger.Warn("noteservice: record session failed",
			slog.String("session", sess.ID),
			slog.String("error", err.Error()))
		return
	}
	if s.pub != nil {
		s.pub.PublishStatsChanged(sess.Path)
	}
}

func (s *Service) publish(ev sse.Event) {
	if s.pub != nil {
		s.pub.Publish(ev)
	}
}

func (s *Service) decorate(st tracker.Status) TypingStatus {
	mode := s.mode()
	out := TypingStatus{Status: st, Indicator: mode.IndicatorInactive, Backend: BackendStructured}
	if st.Typing {
		out.Indicator = mode.IndicatorActive
	}
	if mode.Fast {
		out.Backend = BackendFast
	}
	return out
}

// Status returns the current typing state.
func (s *Service) Status(ctx context.Context) (TypingStatus, error) {
	st, err := s.tracker.Status(ctx)
	if err != nil {
		return TypingStatus{}, err
	}
	return s.decorate(st), nil
}

// MostEdited ranks documents by total active editing time.
func (s *Service) MostEdited(_ context.Context, limit int) ([]models.EditStat, error) {
	return s.stats.MostEdited(limit)
}

// Sessions lists recent sessions, optionally for one document.
func (s *Service) Sessions(_ context.Context, path string, limit int) ([]models.SessionRecord, error) {
	return s.stats.Sessions(path, limit)
}

// Stat returns the statistics of one document.
func (s *Service) Stat(_ context.Context, path string) (*models.EditStat, error) {
	return s.stats.Stat(path)
}

var errReadOnly = errors.New("noteservice: read only")

// HeaderValue reads one header field through the configured backend.
func (s *Service) HeaderValue(ctx context.Context, path, key string) (string, error) {
	if path == "" || key == "" {
		return "", fmt.Errorf("%w: path and key are required", apperr.ErrInvalidValue)
	}

	var (
		value string
		found bool
	)
	if s.mode().Fast {
		doc := s.ws.Document(path)
		if err := doc.Begin(); err != nil {
			return "", err
		}
		value, found = frontmatter.Value(doc, key)
		if err := doc.Commit(); err != nil {
			return "", err
		}
	} else {
		err := s.headers.WithHeader(ctx, path, func(h *frontmatter.Header) error {
			value, found = h.Get(key)
			return errReadOnly
		})
		if err != nil && !errors.Is(err, errReadOnly) {
			return "", err
		}
	}
	if !found {
		return "", fmt.Errorf("header %s in %s: %w", key, path, apperr.ErrNotFound)
	}
	return value, nil
}

// SetHeaderValue writes one header field through the configured backend.
func (s *Service) SetHeaderValue(ctx context.Context, path, key, value string) error {
	if path == "" || key == "" {
		return fmt.Errorf("%w: path and key are required", apperr.ErrInvalidValue)
	}
	if err := frontmatter.CheckField(key, value); err != nil {
		return err
	}
	if s.mode().Fast {
		if err := SetLineValue(s.ws.Document(path), key, value); err != nil {
			return err
		}
	} else {
		err := s.headers.WithHeader(ctx, path, func(h *frontmatter.Header) error {
			h.Set(key, value)
			return nil
		})
		if err != nil {
			return err
		}
	}
	s.publish(sse.Event{Type: sse.EventHeaderUpdated, Data: map[string]string{"path": path, "key": key, "value": value}})
	return nil
}

// SetLineValue writes key on an editor that is opened and committed around
// the edit.
func SetLineValue(doc *workspace.Document, key, value string) error {
	if err := frontmatter.CheckField(key, value); err != nil {
		return err
	}
	if err := doc.Begin(); err != nil {
		return err
	}
	frontmatter.SetValue(doc, key, value)
	return doc.Commit()
}

// DocumentChanged turns a watcher notification into a document-modified
// event.
func (s *Service) DocumentChanged(ctx context.Context, kind, path string) {
	s.publish(sse.Event{Type: sse.EventDocument, Data: map[string]string{"kind": kind, "path": path}})
	if kind != index.ChangeModified {
		return
	}
	ev := activity.Event{Kind: activity.KindDocumentModified, Path: path}
	if _, err := s.HandleEvent(ctx, ev); err != nil && !errors.Is(err, tracker.ErrStopped) {
		s.logger.Warn("noteservice: document event failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}
