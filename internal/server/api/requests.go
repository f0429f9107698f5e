package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/edgelive/internal/store"
)

// RequestsHandler serves the request and session log.
type RequestsHandler struct {
	store *store.Store
}

// NewRequestsHandler creates a new RequestsHandler with the given store.
func NewRequestsHandler(s *store.Store) *RequestsHandler {
	return &RequestsHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *RequestsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Expected paths: /api/requests, /api/requests/{id}, /api/sessions
	switch {
	case r.URL.Path == "/api/sessions":
		h.listSessions(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/requests"):
		id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/requests"), "/")
		if id == "" {
			h.list(w, r)
			return
		}
		h.get(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

type requestResponse struct {
	ID         string `json:"id"`
	Lane       string `json:"lane"`
	Epoch      uint64 `json:"epoch"`
	SessionID  string `json:"session_id,omitempty"`
	Algorithm  string `json:"algorithm"`
	Params     string `json:"params"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

type listRequestsResponse struct {
	Requests []requestResponse `json:"requests"`
	Counts   map[string]int    `json:"counts"`
}

type sessionResponse struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Resized   bool   `json:"resized"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

func toRequestResponse(req *store.Request) requestResponse {
	return requestResponse{
		ID:         req.ID,
		Lane:       req.Lane,
		Epoch:      req.Epoch,
		SessionID:  req.SessionID,
		Algorithm:  req.Algorithm,
		Params:     req.Params,
		Outcome:    string(req.Outcome),
		Error:      req.Error,
		DurationMs: req.DurationMs,
		CreatedAt:  req.CreatedAt.Format(time.RFC3339Nano),
	}
}

// list handles GET /api/requests?lane=&limit=.
func (h *RequestsHandler) list(w http.ResponseWriter, r *http.Request) {
	lane := r.URL.Query().Get("lane")
	if lane != "" && lane != "upload" && lane != "webcam" {
		writeError(w, http.StatusBadRequest, "Invalid lane")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	requests, err := h.store.Requests().List(lane, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests")
		return
	}

	counts, err := h.store.Requests().Counts(lane)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count requests")
		return
	}

	response := listRequestsResponse{
		Requests: make([]requestResponse, 0, len(requests)),
		Counts:   make(map[string]int, len(counts)),
	}
	for _, req := range requests {
		response.Requests = append(response.Requests, toRequestResponse(req))
	}
	for outcome, n := range counts {
		response.Counts[string(outcome)] = n
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/requests/{id}.
func (h *RequestsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	req, err := h.store.Requests().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get request")
		return
	}

	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// listSessions handles GET /api/sessions.
func (h *RequestsHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, sessionResponse{
			ID:        s.ID,
			Filename:  s.Filename,
			Width:     s.Width,
			Height:    s.Height,
			Resized:   s.Resized,
			Active:    s.Active(),
			CreatedAt: s.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, response)
}
