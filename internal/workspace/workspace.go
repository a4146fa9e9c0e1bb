// Package workspace models the editing host: which document is active, and
// line editors over vault documents.
package workspace

import (
	"fmt"
	"sync"

	"github.com/starford/timethings/internal/activity"
	"github.com/starford/timethings/internal/frontmatter"
	"github.com/starford/timethings/internal/storage"
)

// Workspace tracks the active view.
type Workspace struct {
	provider storage.Provider
	locks    *storage.PathLocks
	log      *storage.WriteLog

	mu      sync.RWMutex
	path    string
	focused bool
}

// New creates a Workspace over provider. locks and log are shared with the
// structured header store.
func New(provider storage.Provider, locks *storage.PathLocks, log *storage.WriteLog) *Workspace {
	return &Workspace{provider: provider, locks: locks, log: log}
}

// Focus makes path the active document. An empty path clears the view.
func (w *Workspace) Focus(path string, focused bool) {
	w.mu.Lock()
	w.path = path
	w.focused = focused && path != ""
	w.mu.Unlock()
}

// SetFocused changes the input focus of the current view.
func (w *Workspace) SetFocused(focused bool) {
	w.mu.Lock()
	w.focused = focused && w.path != ""
	w.mu.Unlock()
}

// ActivePath returns the active document, empty if none.
func (w *Workspace) ActivePath() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.path
}

// View returns the editing context used to filter events.
func (w *Workspace) View() activity.View {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return activity.View{Exists: w.path != "", Focused: w.focused}
}

// Document returns a line editor over path.
func (w *Workspace) Document(path string) *Document {
	return &Document{path: path, provider: w.provider, locks: w.locks, log: w.log}
}

// Document is a frontmatter.Editor over a vault file. Edits are only valid
// between Begin, which locks and loads the file, and Commit, which writes it
// back if anything changed and releases the lock.
type Document struct {
	path     string
	provider storage.Provider
	locks    *storage.PathLocks
	log      *storage.WriteLog

	lines  *frontmatter.Lines
	dirty  bool
	unlock func()
}

var _ frontmatter.Editor = (*Document)(nil)

// Path returns the vault-relative path.
func (d *Document) Path() string { return d.path }

// Begin locks the document and loads its current content.
func (d *Document) Begin() error {
	if d.unlock != nil {
		return fmt.Errorf("workspace: %s: already open", d.path)
	}
	unlock := d.locks.Lock(d.path)
	data, err := d.provider.Read(d.path)
	if err != nil {
		unlock()
		return err
	}
	d.lines = frontmatter.ParseLines(data)
	d.dirty = false
	d.unlock = unlock
	return nil
}

// Commit writes pending edits and unlocks the document.
func (d *Document) Commit() error {
	if d.unlock == nil {
		return fmt.Errorf("workspace: %s: not open", d.path)
	}
	defer func() {
		d.unlock()
		d.unlock = nil
	}()
	if !d.dirty {
		return nil
	}
	data := d.lines.Bytes()
	d.log.Record(d.path, data)
	if err := d.provider.Write(d.path, data); err != nil {
		d.log.Forget(d.path)
		return err
	}
	d.dirty = false
	return nil
}

// Line returns line n, or "" when the document is not open.
func (d *Document) Line(n int) string {
	if d.lines == nil {
		return ""
	}
	return d.lines.Line(n)
}

// SetLine replaces line n. It is a no-op when the document is not open.
func (d *Document) SetLine(n int, text string) {
	if d.lines == nil || d.unlock == nil {
		return
	}
	if d.lines.Line(n) == text && n <= d.lines.LastLine() {
		return
	}
	d.lines.SetLine(n, text)
	d.dirty = true
}

// LastLine returns the index of the last line.
func (d *Document) LastLine() int {
	if d.lines == nil {
		return 0
	}
	return d.lines.LastLine()
}
