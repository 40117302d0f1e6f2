// Package stream turns assistant reply deltas into the typed events the
// chat SSE endpoint emits.
//
// A State accumulates deltas for one assistant message. Complete artifact
// blocks are lifted out of the text as they close; a trailing partial
// "<artifact" prefix or an open block is held back so clients never see a
// half-rendered tag. Everything else flows through as chunk events.
//
// # Event vocabulary
//
//   - chunk:       incremental prose text
//   - in_progress: the number of open artifact blocks changed
//   - canvas:      first artifact of the message opened (sent once)
//   - artifact:    a block completed, payload carries the parsed artifact
//   - done:        stream finished, payload carries message and session IDs
//   - error:       stream failed after the SSE handshake
//
// The done and error events are emitted by the HTTP handler, not by State:
// only the handler knows the session and how the stream ended.
package stream

import (
	"strings"

	"github.com/easelhq/easel/internal/artifact"
)

// Event names on the wire.
const (
	EventChunk      = "chunk"
	EventInProgress = "in_progress"
	EventCanvas     = "canvas"
	EventArtifact   = "artifact"
	EventDone       = "done"
	EventError      = "error"
)

// DefaultMaxBuffer caps the held-back tail of a streaming message (1 MiB).
// A block that grows past the cap flushes as plain text.
const DefaultMaxBuffer = 1 << 20

// Event is one SSE event: a name plus its JSON payload.
type Event struct {
	Name    string
	Payload any
}

// ChunkPayload carries incremental prose text.
type ChunkPayload struct {
	Text string `json:"text"`
}

// ProgressPayload carries the count of artifact blocks currently open.
type ProgressPayload struct {
	Count int `json:"count"`
}

// CanvasPayload signals the canvas should open. No fields.
type CanvasPayload struct{}

// ArtifactPayload carries a completed artifact and its source message,
// plus any advisory import warnings for code and react artifacts.
type ArtifactPayload struct {
	Artifact  artifact.Artifact  `json:"artifact"`
	MessageID string             `json:"message_id"`
	Warnings  []artifact.Warning `json:"warnings,omitempty"`
}

// DonePayload closes a successful stream.
type DonePayload struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
}

// ErrorPayload closes a failed stream.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// State accumulates one assistant message during streaming.
// Belongs to a single goroutine; create one per message with NewState.
type State struct {
	messageID string
	maxBuffer int

	full strings.Builder // entire raw message, artifact blocks included
	held string          // unresolved tail: open block or partial tag

	artifactIndex int
	canvasShown   bool
	lastProgress  int
}

// NewState creates the stream state for one assistant message.
// maxBuffer <= 0 uses DefaultMaxBuffer.
func NewState(messageID string, maxBuffer int) *State {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &State{messageID: messageID, maxBuffer: maxBuffer}
}

// Push consumes one delta and returns the events it produced, in emit
// order: prose and artifacts interleaved as they appear in the text, then
// an in_progress update when the open-block count changed.
func (s *State) Push(delta string) []Event {
	s.full.WriteString(delta)

	var events []Event
	work := s.held + delta
	s.held = ""

	for {
		art, before, after := artifact.ScanStream(work)
		if before != "" {
			events = append(events, Event{EventChunk, ChunkPayload{Text: before}})
		}
		if art == nil {
			s.held = after
			break
		}

		art.ID = artifact.DeriveID(art.Content, art.Type, s.artifactIndex)
		s.artifactIndex++

		if !s.canvasShown {
			s.canvasShown = true
			events = append(events, Event{EventCanvas, CanvasPayload{}})
		}
		events = append(events, Event{EventArtifact, ArtifactPayload{
			Artifact:  *art,
			MessageID: s.messageID,
			Warnings:  artifact.ScanImports(*art),
		}})
		work = after
	}

	// A block that outgrew the buffer cap stops being treated as an
	// artifact and flushes as plain text.
	if len(s.held) > s.maxBuffer {
		events = append(events, Event{EventChunk, ChunkPayload{Text: s.held}})
		s.held = ""
	}

	if count := artifact.CountInProgress(s.held); count != s.lastProgress {
		s.lastProgress = count
		events = append(events, Event{EventInProgress, ProgressPayload{Count: count}})
	}

	return events
}

// Finish flushes state at end of stream: a dangling open block or partial
// tag becomes visible prose, and the open-block count drops to zero.
func (s *State) Finish() []Event {
	var events []Event
	if s.held != "" {
		events = append(events, Event{EventChunk, ChunkPayload{Text: s.held}})
		s.held = ""
	}
	if s.lastProgress != 0 {
		s.lastProgress = 0
		events = append(events, Event{EventInProgress, ProgressPayload{Count: 0}})
	}
	return events
}

// Message returns the full raw message accumulated so far, artifact blocks
// included. This is what gets persisted as the assistant turn.
func (s *State) Message() string {
	return s.full.String()
}

// MessageID returns the assistant message ID this state was created with.
func (s *State) MessageID() string {
	return s.messageID
}

// ArtifactCount returns how many artifacts completed so far.
func (s *State) ArtifactCount() int {
	return s.artifactIndex
}
