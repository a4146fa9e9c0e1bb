package internal

import (
	"fmt"
	"path/filepath"

	"github.com/starford/timethings/internal/apperr"
	"github.com/starford/timethings/internal/frontmatter"
	"github.com/starford/timethings/internal/noteservice"
	"github.com/starford/timethings/internal/storage"
	"github.com/starford/timethings/internal/workspace"
)

// ReadHeaderValue reads key from the header of the file at path using the
// line editor.
func ReadHeaderValue(path, key string) (string, error) {
	doc, err := fileDocument(path)
	if err != nil {
		return "", err
	}
	if err := doc.Begin(); err != nil {
		return "", err
	}
	value, ok := frontmatter.Value(doc, key)
	if err := doc.Commit(); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("header %s in %s: %w", key, path, apperr.ErrNotFound)
	}
	return value, nil
}

// WriteHeaderValue sets key in the header of the file at path using the line
// editor. A missing header block is created.
func WriteHeaderValue(path, key, value string) error {
	doc, err := fileDocument(path)
	if err != nil {
		return err
	}
	return noteservice.SetLineValue(doc, key, value)
}

func fileDocument(path string) (*workspace.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	ws := workspace.New(store, &storage.PathLocks{}, storage.NewWriteLog())
	return ws.Document(filepath.Base(abs)), nil
}
