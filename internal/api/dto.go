package api

import (
	"github.com/starford/timethings/internal/models"
	"github.com/starford/timethings/internal/noteservice"
)

// EventResponse reports how an activity event was classified.
type EventResponse struct {
	Decision string `json:"decision" example:"full" enums:"drop,partial,full" validate:"required"`
}

// StreamReply is sent on the WebSocket for every received event.
type StreamReply struct {
	Decision string `json:"decision,omitempty" example:"partial"`
	Error    string `json:"error,omitempty"`
}

// StatusResponse is the typing state (aliased from the domain layer).
type StatusResponse = noteservice.TypingStatus

// EditStat is a per-document statistics row (aliased from the domain layer).
type EditStat = models.EditStat

// SessionRecord is a finished editing session (aliased from the domain layer).
type SessionRecord = models.SessionRecord

// StatsResponse wraps the most-edited ranking.
type StatsResponse struct {
	Notes []EditStat `json:"notes" validate:"required"`
}

// SessionsResponse wraps recent sessions.
type SessionsResponse struct {
	Sessions []SessionRecord `json:"sessions" validate:"required"`
}

// HeaderField is one header value of a document.
type HeaderField struct {
	Path  string `json:"path" example:"notes/hello.md" validate:"required"`
	Key   string `json:"key" example:"updated_at" validate:"required"`
	Value string `json:"value" example:"2026-10-18T10:30:00.000+02:00"`
}

// PutHeaderRequest is the request body for writing a header value.
type PutHeaderRequest struct {
	Key   string `json:"key" example:"status" validate:"required"`
	Value string `json:"value" example:"draft"`
}
