package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pagination bounds. Zero or negative limits fall back to the default,
// oversized limits are clamped.
const (
	DefaultListLimit int32 = 50
	MaxListLimit     int32 = 500

	DefaultMessageLimit int32 = 1000
	MaxMessageLimit     int32 = 10000
)

// Store persists sessions and messages. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store on pool. A nil logger falls back to
// slog.Default().
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Create starts a new session. An empty title is stored as NULL; the chat
// handler fills it from the first user message.
func (s *Store) Create(ctx context.Context, title string) (*Session, error) {
	if len(title) > MaxTitleLength {
		return nil, fmt.Errorf("create session: %w", ErrTitleTooLong)
	}
	sess, err := scanSession(s.pool.QueryRow(ctx, `
		INSERT INTO sessions (title)
		VALUES (NULLIF($1, ''))
		RETURNING id, title, message_count, created_at, updated_at`,
		title,
	))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Debug("created session", "id", sess.ID, "title", sess.Title)
	return sess, nil
}

// Get retrieves a session by ID. Returns ErrNotFound if no such session
// exists.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, `
		SELECT id, title, message_count, created_at, updated_at
		FROM sessions
		WHERE id = $1`,
		uuidToPg(id),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// List returns sessions ordered by updated_at descending.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]*Session, error) {
	limit = clampLimit(limit, DefaultListLimit, MaxListLimit)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, message_count, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	s.logger.Debug("listed sessions", "count", len(sessions), "limit", limit, "offset", offset)
	return sessions, nil
}

// Delete removes a session; its messages cascade via the schema. Returns
// ErrNotFound if no such session exists.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, uuidToPg(id))
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

// UpdateTitle renames a session. An empty title clears it back to NULL.
func (s *Store) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	if len(title) > MaxTitleLength {
		return fmt.Errorf("update title of session %s: %w", id, ErrTitleTooLong)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET title = NULLIF($2, ''), updated_at = now()
		WHERE id = $1`,
		uuidToPg(id), title,
	)
	if err != nil {
		return fmt.Errorf("update title of session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update title of session %s: %w", id, ErrNotFound)
	}
	return nil
}

// Touch bumps updated_at, moving the session to the top of List.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, uuidToPg(id))
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendMessages inserts messages in order, assigning consecutive seq
// values after the session's current maximum. The whole batch commits or
// rolls back as one transaction. Message IDs are kept when already set
// (streaming assigns them up front) and generated otherwise; SessionID,
// Seq and CreatedAt are filled in place.
func (s *Store) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", err)
		}
	}()

	// Lock the session row so concurrent appends serialize; without it two
	// writers can read the same max seq.
	var locked pgtype.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`,
		uuidToPg(sessionID),
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("append messages to session %s: %w", sessionID, ErrNotFound)
		}
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}

	var maxSeq int32
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = $1`,
		uuidToPg(sessionID),
	).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("read max seq for session %s: %w", sessionID, err)
	}

	for i, msg := range messages {
		if msg == nil {
			return fmt.Errorf("append messages: message %d is nil", i)
		}
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		var results []byte
		if len(msg.SearchResults) > 0 {
			results, err = json.Marshal(msg.SearchResults)
			if err != nil {
				return fmt.Errorf("marshal search results of message %d: %w", i, err)
			}
		}
		seq := maxSeq + int32(i) + 1

		err = tx.QueryRow(ctx, `
			INSERT INTO messages (id, session_id, seq, role, content, reasoning, search_results)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
			RETURNING created_at`,
			uuidToPg(msg.ID), uuidToPg(sessionID), seq, string(msg.Role),
			msg.Content, msg.Reasoning, results,
		).Scan(&msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
		msg.SessionID = sessionID
		msg.Seq = int(seq)
	}

	newCount := maxSeq + int32(len(messages))
	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET message_count = $2, updated_at = now()
		WHERE id = $1`,
		uuidToPg(sessionID), newCount,
	); err != nil {
		return fmt.Errorf("update session metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("appended messages", "session_id", sessionID, "count", len(messages))
	return nil
}

// ListMessages returns a session's messages in seq order. A message whose
// search_results column fails to decode keeps its text and loses the
// results, with a warning; transcript reads never fail over advisory data.
func (s *Store) ListMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*Message, error) {
	limit = clampLimit(limit, DefaultMessageLimit, MaxMessageLimit)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, seq, role, content, reasoning, search_results, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`,
		uuidToPg(sessionID), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages of session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			msg       Message
			id, sid   pgtype.UUID
			seq       int32
			role      string
			reasoning pgtype.Text
			results   []byte
		)
		if err := rows.Scan(&id, &sid, &seq, &role, &msg.Content, &reasoning, &results, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ID = pgToUUID(id)
		msg.SessionID = pgToUUID(sid)
		msg.Seq = int(seq)
		msg.Role = Role(role)
		msg.Reasoning = reasoning.String
		if len(results) > 0 {
			if err := json.Unmarshal(results, &msg.SearchResults); err != nil {
				s.logger.Warn("dropping malformed search results",
					"message_id", msg.ID, "error", err)
				msg.SearchResults = nil
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages of session %s: %w", sessionID, err)
	}

	s.logger.Debug("listed messages", "session_id", sessionID, "count", len(messages))
	return messages, nil
}

// scanSession reads one sessions row. Works for both QueryRow results and
// rows inside a Query loop.
func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess  Session
		id    pgtype.UUID
		title pgtype.Text
	)
	if err := row.Scan(&id, &title, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.ID = pgToUUID(id)
	sess.Title = title.String
	return &sess, nil
}

func clampLimit(limit, def, max int32) int32 {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// uuidToPg converts uuid.UUID to pgtype.UUID.
func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// pgToUUID converts pgtype.UUID to uuid.UUID.
func pgToUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return id.Bytes
}
