// Package apperr holds sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidHeader = errors.New("invalid header")
	ErrInvalidValue  = errors.New("invalid value")
	ErrNoActiveView  = errors.New("no active view")
)
