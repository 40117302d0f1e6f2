package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easelhq/easel/internal/canvas"
	"github.com/easelhq/easel/internal/enrich"
	"github.com/easelhq/easel/internal/metrics"
	"github.com/easelhq/easel/internal/session"
	"github.com/easelhq/easel/internal/sse"
	"github.com/easelhq/easel/internal/stream"
)

const (
	// chatMaxBodyBytes caps the chat request body.
	chatMaxBodyBytes = 1 << 20

	// defaultHistoryWindow is how many recent turns the source sees as
	// context when no window is configured.
	defaultHistoryWindow = 50

	// autoTitleLimit caps the session title derived from the first message.
	autoTitleLimit = 80

	// maxEnrichLinks caps how many pasted URLs get unfurled per message.
	maxEnrichLinks = 3
)

// chatHandler serves POST /api/v1/chat: it persists the user turn, streams
// the assistant reply as SSE events and persists the finished message.
type chatHandler struct {
	sessions      SessionStore
	canvas        *canvas.Manager
	source        stream.Source
	enricher      *enrich.Enricher
	maxBuffer     int
	timeout       time.Duration
	historyWindow int32
	logger        *slog.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// send handles POST /api/v1/chat.
//
// Validation and persistence of the user turn happen before the SSE
// handshake, so those failures are plain HTTP errors. Once streaming has
// started, failures turn into error events on the stream instead.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, chatMaxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON", h.logger)
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_required", "session_id is required", h.logger)
		return
	}
	content := strings.TrimSpace(req.Message)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content_required", "message must not be empty", h.logger)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "session_id must be a UUID", h.logger)
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("getting session for chat", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session", h.logger)
		return
	}

	history, err := h.loadHistory(r.Context(), sess)
	if err != nil {
		h.logger.Error("loading chat history", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "history_failed", "failed to load history", h.logger)
		return
	}

	userMsg := &session.Message{Role: session.RoleUser, Content: content}
	if h.enricher != nil {
		if urls := enrich.ExtractURLs(content, maxEnrichLinks); len(urls) > 0 {
			userMsg.SearchResults = h.enricher.Lookup(r.Context(), urls)
		}
	}
	if err := h.sessions.AppendMessages(r.Context(), sessionID, []*session.Message{userMsg}); err != nil {
		h.logger.Error("persisting user message", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "persist_failed", "failed to save message", h.logger)
		return
	}

	// First message names the session until the user renames it.
	if sess.Title == "" {
		if err := h.sessions.UpdateTitle(r.Context(), sessionID, truncateForTitle(content)); err != nil {
			h.logger.Warn("auto-titling session", "error", err, "session_id", sessionID)
		}
	}

	registry, err := h.canvas.Registry(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("opening canvas registry", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "canvas_failed", "failed to open canvas", h.logger)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", h.logger)
		return
	}

	h.stream(r, writer, registry, sessionID, content, history)
}

// stream runs the SSE phase of a chat request. The headers are committed at
// this point; every outcome is reported as stream events.
func (h *chatHandler) stream(r *http.Request, writer *sse.Writer, registry *canvas.Registry,
	sessionID uuid.UUID, content string, history []stream.Turn) {

	messageID := uuid.New()
	st := stream.NewState(messageID.String(), h.maxBuffer)

	// The timeout bounds generation only. Final events and persistence run
	// on the request context so a reply that finishes right at the deadline
	// still lands.
	streamCtx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	h.logger.Debug("chat stream started", "session_id", sessionID, "message_id", messageID)

	req := stream.Request{SessionID: sessionID, Message: content, History: history}
	for delta, err := range h.source.Stream(streamCtx, req) {
		if err != nil {
			h.streamFailed(writer, err, sessionID, messageID)
			return
		}
		for _, ev := range st.Push(delta) {
			if err := h.emit(streamCtx, writer, registry, ev); err != nil {
				h.clientGone(err, sessionID, messageID)
				return
			}
		}
	}

	for _, ev := range st.Finish() {
		if err := h.emit(r.Context(), writer, registry, ev); err != nil {
			h.clientGone(err, sessionID, messageID)
			return
		}
	}

	assistantMsg := &session.Message{ID: messageID, Role: session.RoleAssistant, Content: st.Message()}
	if err := h.sessions.AppendMessages(r.Context(), sessionID, []*session.Message{assistantMsg}); err != nil {
		h.logger.Error("persisting assistant message", "error", err,
			"session_id", sessionID, "message_id", messageID)
		metrics.StreamErrors.WithLabelValues("internal").Inc()
		if err := writer.Error("persist_failed", "failed to save assistant message"); err != nil {
			h.logger.Debug("writing persist error event", "error", err)
		}
		return
	}

	done := stream.DonePayload{MessageID: messageID.String(), SessionID: sessionID.String()}
	if err := writer.Event(r.Context(), stream.EventDone, done); err != nil {
		h.clientGone(err, sessionID, messageID)
		return
	}

	h.logger.Debug("chat stream finished", "session_id", sessionID,
		"message_id", messageID, "artifacts", st.ArtifactCount())
}

// emit registers artifact events on the canvas, counts stream metrics and
// writes the event to the client.
func (h *chatHandler) emit(ctx context.Context, writer *sse.Writer, registry *canvas.Registry, ev stream.Event) error {
	switch p := ev.Payload.(type) {
	case stream.ArtifactPayload:
		registry.Add(ctx, p.Artifact, p.MessageID)
		metrics.ArtifactsExtracted.WithLabelValues(string(p.Artifact.Type)).Inc()
		if len(p.Warnings) > 0 {
			metrics.ImportWarnings.Add(float64(len(p.Warnings)))
			h.logger.Debug("artifact has import warnings",
				"artifact_id", p.Artifact.ID, "warnings", len(p.Warnings))
		}
	case stream.ChunkPayload:
		metrics.StreamChunks.Inc()
	}
	return writer.Event(ctx, ev.Name, ev.Payload)
}

// streamFailed reports a source error to the client. Cancellation means the
// client left, so nothing is written for it.
func (h *chatHandler) streamFailed(writer *sse.Writer, err error, sessionID, messageID uuid.UUID) {
	switch {
	case errors.Is(err, context.Canceled):
		metrics.StreamErrors.WithLabelValues("canceled").Inc()
		h.clientGone(err, sessionID, messageID)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.StreamErrors.WithLabelValues("timeout").Inc()
		h.logger.Warn("chat stream timed out", "session_id", sessionID, "message_id", messageID)
		if err := writer.Error("timeout", "response generation timed out"); err != nil {
			h.logger.Debug("writing timeout event", "error", err)
		}
	default:
		metrics.StreamErrors.WithLabelValues("internal").Inc()
		h.logger.Error("chat stream failed", "error", err,
			"session_id", sessionID, "message_id", messageID)
		if err := writer.Error("stream_failed", "response generation failed"); err != nil {
			h.logger.Debug("writing stream error event", "error", err)
		}
	}
}

// clientGone logs a mid-stream disconnect. Nothing can be written back.
func (h *chatHandler) clientGone(err error, sessionID, messageID uuid.UUID) {
	h.logger.Debug("chat client disconnected", "error", err,
		"session_id", sessionID, "message_id", messageID)
}

// loadHistory returns the most recent turns of the session, oldest first.
func (h *chatHandler) loadHistory(ctx context.Context, sess *session.Session) ([]stream.Turn, error) {
	offset := sess.MessageCount - int(h.historyWindow)
	if offset < 0 {
		offset = 0
	}
	msgs, err := h.sessions.ListMessages(ctx, sess.ID, h.historyWindow, int32(offset))
	if err != nil {
		return nil, err
	}
	turns := make([]stream.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, stream.Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns, nil
}

// truncateForTitle derives a session title from the first user message:
// first line only, cut at autoTitleLimit runes.
func truncateForTitle(message string) string {
	title := message
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) > autoTitleLimit {
		title = strings.TrimSpace(string(runes[:autoTitleLimit])) + "…"
	}
	return title
}
