package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/starford/timethings/internal/checksum"
	"github.com/starford/timethings/internal/frontmatter"
)

// PathLocks hands out one mutex per document path.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the lock for path and returns its release function.
func (l *PathLocks) Lock(path string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[path]
	if !ok {
		m = &sync.Mutex{}
		l.locks[path] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// WriteLog remembers the content this process last wrote to each path, so
// that file watchers can tell their own writes from outside edits.
type WriteLog struct {
	mu   sync.Mutex
	sums map[string]string
}

// NewWriteLog returns an empty log.
func NewWriteLog() *WriteLog {
	return &WriteLog{sums: make(map[string]string)}
}

// Record notes that data was written to path.
func (w *WriteLog) Record(path string, data []byte) {
	w.mu.Lock()
	w.sums[path] = checksum.Sum(data)
	w.mu.Unlock()
}

// IsSelfWrite reports whether data is exactly what was last written to path.
func (w *WriteLog) IsSelfWrite(path string, data []byte) bool {
	w.mu.Lock()
	sum := w.sums[path]
	w.mu.Unlock()
	return checksum.Matches(data, sum)
}

// Forget drops the entry for path.
func (w *WriteLog) Forget(path string) {
	w.mu.Lock()
	delete(w.sums, path)
	w.mu.Unlock()
}

// HeaderStore runs structured header rewrites against a Provider, one at a
// time per document.
type HeaderStore struct {
	provider Provider
	locks    *PathLocks
	log      *WriteLog
}

// NewHeaderStore creates a HeaderStore. locks is shared with every other
// writer of the same vault.
func NewHeaderStore(provider Provider, locks *PathLocks, log *WriteLog) *HeaderStore {
	return &HeaderStore{provider: provider, locks: locks, log: log}
}

// WithHeader decodes the header of path, passes it to fn and writes the
// document back. Nothing is written when fn fails or leaves the document
// byte-for-byte unchanged.
func (s *HeaderStore) WithHeader(_ context.Context, path string, fn func(*frontmatter.Header) error) error {
	unlock := s.locks.Lock(path)
	defer unlock()

	data, err := s.provider.Read(path)
	if err != nil {
		return err
	}
	out, err := frontmatter.Process(data, fn)
	if err != nil {
		return fmt.Errorf("storage: header %s: %w", path, err)
	}
	if bytes.Equal(out, data) {
		return nil
	}
	// Recorded before the write so a watcher never sees it unannounced.
	s.log.Record(path, out)
	if err := s.provider.Write(path, out); err != nil {
		s.log.Forget(path)
		return err
	}
	return nil
}
