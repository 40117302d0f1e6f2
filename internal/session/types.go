package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxTitleLength is the longest accepted session title. Longer titles are
// rejected with ErrTitleTooLong.
const MaxTitleLength = 500

// Session is one conversation.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one conversation turn. Content holds the raw text including
// any artifact blocks; clients re-extract artifacts on load, so the stored
// transcript stays the single source of truth.
type Message struct {
	ID            uuid.UUID      `json:"id"`
	SessionID     uuid.UUID      `json:"session_id"`
	Seq           int            `json:"seq"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	Reasoning     string         `json:"reasoning,omitempty"`
	SearchResults []SearchResult `json:"search_results,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// SearchResult is one web source attached to an assistant message.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}
