// Package sse implements the Server-Sent Events wire format for the chat
// stream: named events carrying JSON payloads, flushed per event.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Writer wraps an http.ResponseWriter for SSE streaming.
//
// A Writer belongs to one connection and one goroutine; it is not safe for
// concurrent use.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter prepares w for SSE streaming and sets the response headers.
// Fails when w cannot flush, since buffered SSE defeats the point.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// Event sends one named event with a JSON-encoded payload and flushes.
// Returns the context error once ctx is done, so a disconnected client
// stops the producing loop.
func (w *Writer) Event(ctx context.Context, event string, payload any) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("event %s dropped: %w", event, ctx.Err())
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return w.write(event, string(data))
}

// Error sends an error event with a code/message payload. It takes no
// context: an error frame is the last thing written and should go out even
// while the stream is being torn down.
func (w *Writer) Error(code, message string) error {
	data, err := json.Marshal(map[string]string{"code": code, "message": message})
	if err != nil {
		return fmt.Errorf("marshal error payload: %w", err)
	}
	return w.write("error", string(data))
}

// write emits one SSE frame. Every line of content gets its own "data: "
// prefix, the blank line terminates the event.
func (w *Writer) write(event, content string) error {
	if _, err := fmt.Fprintf(w.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}
	for _, line := range strings.Split(content, "\n") {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}
	if _, err := io.WriteString(w.w, "\n"); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	w.flusher.Flush()
	return nil
}
