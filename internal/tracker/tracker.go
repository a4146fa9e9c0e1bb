// Package tracker groups editing activity into sessions and schedules header
// flushes behind two trailing-edge debounce timers.
//
// Concurrency model: a single event loop (Run) owns all session state. Activity
// submissions, timer fires and status queries reach it through channels, so
// timer handlers never race with fresh activity.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/starford/timethings/internal/metasync"
)

// ErrStopped is returned by calls made after Run has exited.
var ErrStopped = errors.New("tracker: stopped")

// Timing holds the debounce intervals. It is re-read every time a timer is
// armed.
type Timing struct {
	// Typing is the idle time after which a session ends.
	Typing time.Duration
	// Flush is the idle time after which pending header updates are written.
	Flush time.Duration
}

// Activity is one accepted input event.
type Activity struct {
	// Target is the document to flush to. Required when Full is set.
	Target metasync.Target
	// Full schedules a header write; otherwise only the session is extended.
	Full bool
}

// Flush is handed to the flush function when the flush timer fires.
type Flush struct {
	SessionID string
	Target    metasync.Target
	// Active is the session's editing time so far.
	Active time.Duration
	// Tick is the flush interval in effect when the flush was scheduled.
	Tick time.Duration
}

// Session describes a finished session.
type Session struct {
	ID      string        `json:"id"`
	Path    string        `json:"path,omitempty"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Active  time.Duration `json:"active"`
	Flushes int           `json:"flushes"`
}

// Status is a snapshot of the tracker.
type Status struct {
	Typing    bool          `json:"typing"`
	SessionID string        `json:"session_id,omitempty"`
	Path      string        `json:"path,omitempty"`
	Since     time.Time     `json:"since,omitzero"`
	Active    time.Duration `json:"active"`
}

// Options configures a Tracker. Timing and Flush are required.
type Options struct {
	Timing func() Timing
	Flush  func(ctx context.Context, f Flush) error
	// OnTyping is called from the loop whenever the typing state flips.
	OnTyping func(Status)
	// OnSessionClosed is called from the loop after a session ends.
	OnSessionClosed func(Session)
	Clock           clockwork.Clock
	Logger          *slog.Logger
}

type activityReq struct {
	activity Activity
	done     chan struct{}
}

// Tracker is the session state machine.
type Tracker struct {
	opts Options

	activityCh chan activityReq
	statusCh   chan chan Status
	stopped    chan struct{}
	typing     atomic.Bool
}

// New creates a Tracker. Nothing happens until Run is called.
func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		opts:       opts,
		activityCh: make(chan activityReq),
		statusCh:   make(chan chan Status),
		stopped:    make(chan struct{}),
	}
}

// state is owned by the Run goroutine.
type state struct {
	active    bool
	sessionID string
	start     time.Time
	last      time.Time
	target    metasync.Target
	tick      time.Duration
	flushes   int

	stop  deadline
	flush deadline
}

// deadline is a re-armable timer that remembers when it is due.
type deadline struct {
	timer clockwork.Timer
	at    time.Time
	armed bool
}

func (d *deadline) arm(clock clockwork.Clock, now time.Time, after time.Duration) {
	if d.timer == nil {
		d.timer = clock.NewTimer(after)
	} else {
		d.disarm()
		d.timer.Reset(after)
	}
	d.at = now.Add(after)
	d.armed = true
}

// disarm stops the timer and drains a fire that has not been received yet.
func (d *deadline) disarm() {
	d.armed = false
	if d.timer == nil {
		return
	}
	if !d.timer.Stop() {
		select {
		case <-d.timer.Chan():
		default:
		}
	}
}

func (d *deadline) C() <-chan time.Time {
	if !d.armed {
		return nil
	}
	return d.timer.Chan()
}

// Run processes activity until ctx is cancelled. A pending flush is written
// and the open session closed before it returns.
func (t *Tracker) Run(ctx context.Context) error {
	defer close(t.stopped)

	var st state
	logger := t.opts.Logger

	for {
		select {
		case <-ctx.Done():
			st.stop.disarm()
			if st.flush.armed {
				st.flush.disarm()
				t.runFlush(context.WithoutCancel(ctx), &st)
			}
			t.closeSession(&st)
			logger.Info("tracker: stopped")
			return nil

		case req := <-t.activityCh:
			t.record(&st, req.activity)
			close(req.done)

		case <-st.flush.C():
			st.flush.armed = false
			t.runFlush(ctx, &st)

		case <-st.stop.C():
			st.stop.armed = false
			// A flush due no later than the stop must capture elapsed time
			// while the session is still open.
			if st.flush.armed && !st.flush.at.After(st.stop.at) {
				st.flush.disarm()
				t.runFlush(ctx, &st)
			}
			t.closeSession(&st)

		case resp := <-t.statusCh:
			resp <- t.snapshot(&st)
		}
	}
}

func (t *Tracker) record(st *state, a Activity) {
	now := t.opts.Clock.Now()
	timing := t.opts.Timing()

	if !st.active {
		st.active = true
		st.sessionID = uuid.NewString()
		st.start = now
		st.flushes = 0
		t.typing.Store(true)
		t.opts.Logger.Debug("tracker: session started", slog.String("session", st.sessionID))
		if t.opts.OnTyping != nil {
			t.opts.OnTyping(t.snapshot(st))
		}
	}
	st.last = now

	st.stop.arm(t.opts.Clock, now, timing.Typing)

	switch {
	case a.Full && a.Target != nil:
		st.target = a.Target
		st.tick = timing.Flush
		st.flush.arm(t.opts.Clock, now, timing.Flush)
	case st.flush.armed:
		st.tick = timing.Flush
		st.flush.arm(t.opts.Clock, now, timing.Flush)
	}
}

func (t *Tracker) runFlush(ctx context.Context, st *state) {
	if !st.active || st.target == nil {
		return
	}
	f := Flush{
		SessionID: st.sessionID,
		Target:    st.target,
		Active:    st.last.Sub(st.start),
		Tick:      st.tick,
	}
	st.flushes++
	if err := t.opts.Flush(ctx, f); err != nil {
		t.opts.Logger.Error("tracker: flush failed",
			slog.String("session", f.SessionID),
			slog.String("path", f.Target.DocumentPath()),
			slog.String("error", err.Error()))
	}
}

func (t *Tracker) closeSession(st *state) {
	if !st.active {
		return
	}
	s := Session{
		ID:      st.sessionID,
		Start:   st.start,
		End:     st.last,
		Active:  st.last.Sub(st.start),
		Flushes: st.flushes,
	}
	if st.target != nil {
		s.Path = st.target.DocumentPath()
	}
	*st = state{stop: st.stop, flush: st.flush}
	t.typing.Store(false)

	t.opts.Logger.Debug("tracker: session closed",
		slog.String("session", s.ID),
		slog.Duration("active", s.Active),
		slog.Int("flushes", s.Flushes))
	if t.opts.OnTyping != nil {
		t.opts.OnTyping(Status{})
	}
	if t.opts.OnSessionClosed != nil {
		t.opts.OnSessionClosed(s)
	}
}

func (t *Tracker) snapshot(st *state) Status {
	if !st.active {
		return Status{}
	}
	s := Status{
		Typing:    true,
		SessionID: st.sessionID,
		Since:     st.start,
		Active:    st.last.Sub(st.start),
	}
	if st.target != nil {
		s.Path = st.target.DocumentPath()
	}
	return s
}

// Record submits accepted activity and returns once the loop has applied it.
func (t *Tracker) Record(ctx context.Context, a Activity) error {
	req := activityReq{activity: a, done: make(chan struct{})}
	select {
	case t.activityCh <- req:
	case <-t.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-t.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the current session.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	resp := make(chan Status, 1)
	select {
	case t.statusCh <- resp:
	case <-t.stopped:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-t.stopped:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Typing reports whether a session is open. It does not go through the loop.
func (t *Tracker) Typing() bool {
	return t.typing.Load()
}
