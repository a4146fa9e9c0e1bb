// Package storage reads and writes vault documents and serializes header
// rewrites.
package storage

import "github.com/starford/timethings/internal/models"

// Provider is the interface for vault file operations. Paths are relative to
// the vault root.
type Provider interface {
	// List returns every .md document under dir.
	List(dir string) ([]models.DocumentInfo, error)
	// Read returns the raw bytes of a document.
	Read(path string) ([]byte, error)
	// Write atomically replaces a document.
	Write(path string, content []byte) error
	// Root returns the absolute vault directory.
	Root() string
}
