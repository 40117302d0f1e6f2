package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/easelhq/easel/internal/canvas"
	"github.com/easelhq/easel/internal/session"
)

// canvasHandler serves the per-session canvas routes. Every mutation
// responds with the full canvas listing so the UI can re-render without a
// follow-up GET.
type canvasHandler struct {
	manager *canvas.Manager
	store   SessionStore
	logger  *slog.Logger
}

// resolveRegistry parses the session ID, verifies the session exists and
// returns its canvas registry. On failure it writes the error response and
// returns false.
func (h *canvasHandler) resolveRegistry(w http.ResponseWriter, r *http.Request) (*canvas.Registry, bool) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return nil, false
	}

	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return nil, false
		}
		h.logger.Error("getting session for canvas", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session", h.logger)
		return nil, false
	}

	reg, err := h.manager.Registry(r.Context(), id)
	if err != nil {
		h.logger.Error("opening canvas registry", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "canvas_failed", "failed to open canvas", h.logger)
		return nil, false
	}
	return reg, true
}

// writeCanvas responds with the current canvas state.
func (h *canvasHandler) writeCanvas(w http.ResponseWriter, reg *canvas.Registry) {
	var active *string
	if id := reg.ActiveID(); id != "" {
		active = &id
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts":          reg.List(),
		"active_artifact_id": active,
	}, h.logger)
}

// decodeArtifactID reads an {"artifact_id": "..."} request body.
func (h *canvasHandler) decodeArtifactID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		ArtifactID string `json:"artifact_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArtifactID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "artifact_id is required", h.logger)
		return "", false
	}
	return req.ArtifactID, true
}

// get handles GET /api/v1/sessions/{id}/canvas.
func (h *canvasHandler) get(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.resolveRegistry(w, r)
	if !ok {
		return
	}
	h.writeCanvas(w, reg)
}

// setActive handles POST /api/v1/sessions/{id}/canvas/active.
func (h *canvasHandler) setActive(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.resolveRegistry(w, r)
	if !ok {
		return
	}
	artifactID, ok := h.decodeArtifactID(w, r)
	if !ok {
		return
	}

	if err := reg.SetActive(r.Context(), artifactID); err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact_not_found", "artifact not open on canvas", h.logger)
			return
		}
		h.logger.Error("setting active artifact", "error", err, "artifact_id", artifactID)
		writeError(w, http.StatusInternalServerError, "canvas_failed", "failed to update canvas", h.logger)
		return
	}
	h.writeCanvas(w, reg)
}

// minimize handles POST /api/v1/sessions/{id}/canvas/minimize.
func (h *canvasHandler) minimize(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.resolveRegistry(w, r)
	if !ok {
		return
	}
	artifactID, ok := h.decodeArtifactID(w, r)
	if !ok {
		return
	}

	if _, err := reg.ToggleMinimize(r.Context(), artifactID); err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact_not_found", "artifact not open on canvas", h.logger)
			return
		}
		h.logger.Error("toggling artifact minimize", "error", err, "artifact_id", artifactID)
		writeError(w, http.StatusInternalServerError, "canvas_failed", "failed to update canvas", h.logger)
		return
	}
	h.writeCanvas(w, reg)
}

// remove handles DELETE /api/v1/sessions/{id}/canvas/{artifactID}.
func (h *canvasHandler) remove(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.resolveRegistry(w, r)
	if !ok {
		return
	}

	artifactID := r.PathValue("artifactID")
	if err := reg.Remove(r.Context(), artifactID); err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact_not_found", "artifact not open on canvas", h.logger)
			return
		}
		h.logger.Error("removing artifact", "error", err, "artifact_id", artifactID)
		writeError(w, http.StatusInternalServerError, "canvas_failed", "failed to update canvas", h.logger)
		return
	}
	h.writeCanvas(w, reg)
}

// clear handles DELETE /api/v1/sessions/{id}/canvas.
func (h *canvasHandler) clear(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.resolveRegistry(w, r)
	if !ok {
		return
	}
	reg.Clear(r.Context())
	h.writeCanvas(w, reg)
}
