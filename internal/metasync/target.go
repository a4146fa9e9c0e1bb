package metasync

import (
	"context"

	"github.com/starford/timethings/internal/frontmatter"
)

// Target names the document a flush writes to and the backend used for it.
// It is either Fast or Structured.
type Target interface {
	// DocumentPath is the vault-relative document path.
	DocumentPath() string
	target()
}

// Fast edits the open document's lines in place.
type Fast struct {
	Path   string
	Editor frontmatter.Editor
}

// Structured rewrites the header through a HeaderStore transaction.
type Structured struct {
	Path string
}

func (f Fast) DocumentPath() string       { return f.Path }
func (s Structured) DocumentPath() string { return s.Path }
func (Fast) target()                      {}
func (Structured) target()                {}

// Transactional is implemented by editors that must be prepared before and
// persisted after a batch of line edits.
type Transactional interface {
	Begin() error
	Commit() error
}

// HeaderStore runs fn as one atomic read-modify-write of a document header.
// fn is invoked exactly once; returning an error discards its changes.
type HeaderStore interface {
	WithHeader(ctx context.Context, path string, fn func(*frontmatter.Header) error) error
}
