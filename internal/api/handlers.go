package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/starford/timethings/internal/activity"
	"github.com/starford/timethings/internal/models"
	"github.com/starford/timethings/internal/noteservice"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	maxEventSize = 64 << 10
)

// Handler holds API route handlers.
type Handler struct {
	svc      *noteservice.Service
	upgrader websocket.Upgrader
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Editor clients connect from app:// origins; access is gated by
			// AuthMiddleware instead.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// docPath extracts the document path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

// PostEvent handles POST /api/events.
//
//	@Summary		Submit one editor input event
//	@Tags			activity
//	@Accept			json
//	@Produce		json
//	@Param			body	body		activity.Event	true	"Input event"
//	@Success		200		{object}	EventResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events [post]
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventSize)
	var ev activity.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	d, err := h.svc.HandleEvent(r.Context(), ev)
	if err != nil {
		writeError(w, "handle event", err, slog.String("kind", string(ev.Kind)))
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{Decision: d.String()})
}

// Stream handles GET /api/ws: a WebSocket carrying one JSON event per
// message, each answered with a StreamReply.
//
//	@Summary		Stream editor input events over a WebSocket
//	@Tags			activity
//	@Param			access_token	query	string	false	"Token for clients that cannot set headers"
//	@Success		101
//	@Security		BearerAuth
//	@Router			/ws [get]
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxEventSize)

	ctx := r.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		var reply StreamReply
		var ev activity.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			reply.Error = "invalid JSON message"
		} else if d, err := h.svc.HandleEvent(ctx, ev); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Decision = d.String()
		}

		if err := conn.WriteJSON(reply); err != nil {
			slog.Warn("websocket write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// Status handles GET /api/status.
//
//	@Summary		Current typing state and indicator
//	@Tags			activity
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// MostEdited handles GET /api/stats.
//
//	@Summary		Documents ranked by active editing time
//	@Tags			stats
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) MostEdited(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.MostEdited(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, "most edited", err)
		return
	}
	if stats == nil {
		stats = []models.EditStat{}
	}
	writeJSON(w, http.StatusOK, StatsResponse{Notes: stats})
}

// Sessions handles GET /api/stats/sessions.
//
//	@Summary		Recent editing sessions
//	@Tags			stats
//	@Produce		json
//	@Param			path	query		string	false	"Only sessions of this document"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SessionsResponse
//	@Security		BearerAuth
//	@Router			/stats/sessions [get]
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	sessions, err := h.svc.Sessions(r.Context(), path, limitParam(r))
	if err != nil {
		writeError(w, "sessions", err, slog.String("path", path))
		return
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

// Stat handles GET /api/stats/*.
//
//	@Summary		Statistics of one document
//	@Tags			stats
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	EditStat
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stats/{path} [get]
func (h *Handler) Stat(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	stat, err := h.svc.Stat(r.Context(), path)
	if err != nil {
		writeError(w, "stat", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

// GetHeader handles GET /api/headers/*?key=.
//
//	@Summary		Read one header value
//	@Tags			headers
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Param			key		query		string	true	"Dot-separated header key"
//	@Success		200		{object}	HeaderField
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/headers/{path} [get]
func (h *Handler) GetHeader(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	key := r.URL.Query().Get("key")
	if path == "" || key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and key are required"))
		return
	}
	value, err := h.svc.HeaderValue(r.Context(), path, key)
	if err != nil {
		writeError(w, "get header", err, slog.String("path", path), slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, HeaderField{Path: path, Key: key, Value: value})
}

// PutHeader handles PUT /api/headers/*.
//
//	@Summary		Write one header value
//	@Tags			headers
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Document path"
//	@Param			body	body		PutHeaderRequest	true	"Key and value"
//	@Success		200		{object}	HeaderField
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/headers/{path} [put]
func (h *Handler) PutHeader(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventSize)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req PutHeaderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	if err := h.svc.SetHeaderValue(r.Context(), path, req.Key, req.Value); err != nil {
		writeError(w, "put header", err, slog.String("path", path), slog.String("key", req.Key))
		return
	}
	writeJSON(w, http.StatusOK, HeaderField{Path: path, Key: req.Key, Value: req.Value})
}
