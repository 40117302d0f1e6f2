package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/easelhq/easel/internal/canvas"
	"github.com/easelhq/easel/internal/session"
)

// Pagination guards. The store clamps limits on its own; the offset caps
// here just keep pathological offsets from reaching the database.
const (
	maxSessionsOffset = 10_000
	maxMessagesOffset = 100_000
)

// SessionStore is the slice of the session store the API consumes.
// *session.Store satisfies it; tests substitute an in-memory fake.
type SessionStore interface {
	Create(ctx context.Context, title string) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	List(ctx context.Context, limit, offset int32) ([]*session.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*session.Message) error
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*session.Message, error)
}

// sessionHandler serves the /api/v1/sessions routes.
type sessionHandler struct {
	store  SessionStore
	canvas *canvas.Manager
	logger *slog.Logger
}

// parseSessionID reads the {id} path value. On failure it writes the error
// response and returns false.
func parseSessionID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid session ID", logger)
		return uuid.Nil, false
	}
	return id, true
}

// create handles POST /api/v1/sessions. The body is optional:
// {"title": "..."} names the session up front, an empty body creates an
// untitled one.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", h.logger)
		return
	}

	sess, err := h.store.Create(r.Context(), req.Title)
	if err != nil {
		if errors.Is(err, session.ErrTitleTooLong) {
			writeError(w, http.StatusBadRequest, "title_too_long",
				fmt.Sprintf("title exceeds %d characters", session.MaxTitleLength), h.logger)
			return
		}
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, sess, h.logger)
}

// list handles GET /api/v1/sessions, most recently updated first.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 0)
	offset := parseIntParam(r, "offset", 0)
	if offset > maxSessionsOffset {
		writeError(w, http.StatusBadRequest, "invalid_offset",
			fmt.Sprintf("offset must be %d or less", maxSessionsOffset), h.logger)
		return
	}

	sessions, err := h.store.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}

	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sessions}, h.logger)
}

// get handles GET /api/v1/sessions/{id}.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("getting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, sess, h.logger)
}

// rename handles PATCH /api/v1/sessions/{id}. An empty title clears the
// name back to untitled.
func (h *sessionHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", h.logger)
		return
	}

	if err := h.store.UpdateTitle(r.Context(), id, req.Title); err != nil {
		switch {
		case errors.Is(err, session.ErrTitleTooLong):
			writeError(w, http.StatusBadRequest, "title_too_long",
				fmt.Sprintf("title exceeds %d characters", session.MaxTitleLength), h.logger)
		case errors.Is(err, session.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		default:
			h.logger.Error("renaming session", "error", err, "session_id", id)
			writeError(w, http.StatusInternalServerError, "update_failed", "failed to rename session", h.logger)
		}
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("reloading renamed session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, sess, h.logger)
}

// remove handles DELETE /api/v1/sessions/{id}. Messages cascade in the
// database; the canvas snapshot is cleared here once the delete commits.
func (h *sessionHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("deleting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session", h.logger)
		return
	}

	h.canvas.Drop(r.Context(), id)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}

// messages handles GET /api/v1/sessions/{id}/messages in seq order.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	limit := parseIntParam(r, "limit", 0)
	offset := parseIntParam(r, "offset", 0)
	if offset > maxMessagesOffset {
		writeError(w, http.StatusBadRequest, "invalid_offset",
			fmt.Sprintf("offset must be %d or less", maxMessagesOffset), h.logger)
		return
	}

	// Listing an absent session would silently return an empty page, so
	// resolve the session first for a proper 404.
	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("getting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session", h.logger)
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), id, int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("listing messages", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list messages", h.logger)
		return
	}

	if msgs == nil {
		msgs = []*session.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": msgs}, h.logger)
}

// export handles GET /api/v1/sessions/{id}/export. The format query
// parameter selects json (default) or markdown; both download as an
// attachment.
func (h *sessionHandler) export(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("getting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "export_failed", "failed to export session", h.logger)
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), id, session.MaxMessageLimit, 0)
	if err != nil {
		h.logger.Error("listing messages for export", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "export_failed", "failed to export session", h.logger)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		data, err := session.ExportJSON(sess, msgs)
		if err != nil {
			h.logger.Error("rendering JSON export", "error", err, "session_id", id)
			writeError(w, http.StatusInternalServerError, "export_failed", "failed to export session", h.logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", attachmentName(fmt.Sprintf("session-%s.json", id)))
		if _, err := w.Write(data); err != nil {
			h.logger.Debug("writing JSON export", "error", err)
		}
	case "markdown":
		data := session.ExportMarkdown(sess, msgs)
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", attachmentName(fmt.Sprintf("session-%s.md", id)))
		if _, err := w.Write(data); err != nil {
			h.logger.Debug("writing Markdown export", "error", err)
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_format",
			"unsupported export format; use 'json' or 'markdown'", h.logger)
	}
}

// attachmentName builds a Content-Disposition attachment header value.
func attachmentName(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
