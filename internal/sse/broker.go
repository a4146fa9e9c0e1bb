// Package sse pushes typing state and header updates to Server-Sent Events
// clients.
package sse

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Event types.
const (
	EventTyping        = "typing"
	EventHeaderUpdated = "header.updated"
	EventStatsUpdated  = "stats.updated"
	EventDocument      = "document"
)

// keepAlive is how often an idle stream gets a comment line.
const keepAlive = 25 * time.Second

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans events out to connected clients.
//
// One goroutine owns the client set, the last typing frame and the stats
// paths waiting for the throttle window. A client that connects mid-session
// receives the last typing frame first. Stats changes inside one window are
// merged into a single stats.updated event listing every path.
type Broker struct {
	throttle time.Duration

	join   chan chan []byte
	leave  chan chan []byte
	events chan Event
	stats  chan string

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewBroker creates a broker that emits at most one stats.updated event per
// throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		throttle: throttle,
		join:     make(chan chan []byte),
		leave:    make(chan chan []byte),
		events:   make(chan Event, 256),
		stats:    make(chan string, 256),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.run()
	return b
}

func frame(ev Event) ([]byte, bool) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, false
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", ev.Type, payload), true
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	pending := make(map[string]struct{})
	var (
		typing    []byte
		lastStats time.Time
		window    <-chan time.Time
	)

	send := func(msg []byte) {
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// Slow client; it misses this frame.
			}
		}
	}
	flushStats := func() {
		paths := slices.Sorted(maps.Keys(pending))
		clear(pending)
		lastStats = time.Now()
		if msg, ok := frame(Event{Type: EventStatsUpdated, Data: map[string][]string{"paths": paths}}); ok {
			send(msg)
		}
	}

	for {
		select {
		case <-b.stop:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}
			if typing != nil {
				ch <- typing
			}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.events:
			msg, ok := frame(ev)
			if !ok {
				continue
			}
			if ev.Type == EventTyping {
				typing = msg
			}
			send(msg)

		case path := <-b.stats:
			pending[path] = struct{}{}
			if window != nil {
				continue
			}
			if wait := b.throttle - time.Since(lastStats); wait > 0 {
				window = time.After(wait)
				continue
			}
			flushStats()

		case <-window:
			window = nil
			flushStats()
		}
	}
}

// Close stops the broker and closes every client stream.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.stop) })
	<-b.stopped
}

// subscribe registers a client. The returned channel is closed by
// unsubscribe or Close.
func (b *Broker) subscribe() chan []byte {
	ch := make(chan []byte, 64)
	select {
	case b.join <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

func (b *Broker) unsubscribe(ch chan []byte) {
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	select {
	case b.events <- event:
	case <-b.stopped:
	}
}

// PublishStatsChanged announces that the statistics of path changed.
func (b *Broker) PublishStatsChanged(path string) {
	select {
	case b.stats <- path:
	case <-b.stopped:
	}
}

// ServeHTTP streams events until the client goes away or the broker closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Register before the headers go out so a client that has seen the
	// response is guaranteed to receive what is published next.
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
