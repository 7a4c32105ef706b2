package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/publisher"
)

// Handler holds API route handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Encoded slashes (topics%2Fnote.md) are accepted.
func notePath(r *http.Request) string {
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

// ListNotes handles GET /api/notes. ?modified=true limits the result to
// notes with unpublished changes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	modifiedOnly, _ := strconv.ParseBool(r.URL.Query().Get("modified"))
	notes := h.deps.Index.List(modifiedOnly)

	items := make([]NoteSummary, 0, len(notes))
	for _, n := range notes {
		items = append(items, summarize(n))
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/*. The response carries the full record,
// including publication history.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	note, ok := h.deps.Index.Get(path)
	if !ok {
		writeError(w, http.StatusNotFound, "not tracked")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Refresh handles POST /api/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Refresher.Refresh(r.Context())
	if err != nil {
		slog.Error("refresh failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// Publish handles POST /api/publish. An empty body publishes modified notes.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req publisher.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	report, err := h.deps.Publisher.Publish(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, apperr.ErrNothingToPublish):
		writeJSON(w, http.StatusConflict, PublishError{Error: "nothing to publish", Report: report})
	case errors.Is(err, apperr.ErrConfig):
		writeJSON(w, http.StatusUnprocessableEntity, PublishError{Error: err.Error(), Report: report})
	default:
		slog.Error("publish failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, PublishError{Error: err.Error(), Report: report})
	}
}
