//go:build integration
// +build integration

package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/internal/testutil"
)

func setupStore(t *testing.T) (*Store, *testutil.TestDB) {
	t.Helper()
	testDB, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return NewStore(testDB.Pool, testutil.DiscardLogger()), testDB
}

func TestStore_SessionLifecycle(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "First chat")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, "First chat", sess.Title)
	assert.Equal(t, 0, sess.MessageCount)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "First chat", got.Title)

	require.NoError(t, store.UpdateTitle(ctx, sess.ID, "Renamed"))
	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	// Clearing back to empty stores NULL, read back as "".
	require.NoError(t, store.UpdateTitle(ctx, sess.ID, ""))
	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Title)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_NotFound(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	ghost := uuid.New()

	_, err := store.Get(ctx, ghost)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, ghost), ErrNotFound)
	assert.ErrorIs(t, store.UpdateTitle(ctx, ghost, "x"), ErrNotFound)
	assert.ErrorIs(t, store.Touch(ctx, ghost), ErrNotFound)
	assert.ErrorIs(t, store.AppendMessages(ctx, ghost, []*Message{{Role: RoleUser, Content: "hi"}}), ErrNotFound)
}

func TestStore_TitleTooLong(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	long := make([]byte, MaxTitleLength+1)
	for i := range long {
		long[i] = 'a'
	}

	_, err := store.Create(ctx, string(long))
	assert.ErrorIs(t, err, ErrTitleTooLong)

	sess, err := store.Create(ctx, "ok")
	require.NoError(t, err)
	assert.ErrorIs(t, store.UpdateTitle(ctx, sess.ID, string(long)), ErrTitleTooLong)
}

func TestStore_ListOrdering(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "first")
	require.NoError(t, err)
	second, err := store.Create(ctx, "second")
	require.NoError(t, err)

	// Touching moves a session to the top of the list.
	require.NoError(t, store.Touch(ctx, first.ID))

	sessions, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, second.ID, sessions[1].ID)

	// Pagination.
	page, err := store.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}

func TestStore_AppendAndListMessages(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "")
	require.NoError(t, err)

	presetID := uuid.New()
	batch := []*Message{
		{Role: RoleUser, Content: "Build me a page"},
		{
			ID:        presetID,
			Role:      RoleAssistant,
			Content:   "Here:\n<artifact type=\"text/html\" title=\"Page\"><p>hi</p></artifact>",
			Reasoning: "user wants html",
			SearchResults: []SearchResult{
				{Title: "MDN", URL: "https://developer.mozilla.org", Snippet: "docs"},
			},
		},
	}
	require.NoError(t, store.AppendMessages(ctx, sess.ID, batch))

	// In-place fill of server-assigned fields.
	assert.NotEqual(t, uuid.Nil, batch[0].ID)
	assert.Equal(t, presetID, batch[1].ID, "preset message ID must be kept")
	assert.Equal(t, 1, batch[0].Seq)
	assert.Equal(t, 2, batch[1].Seq)
	assert.False(t, batch[0].CreatedAt.IsZero())

	// A second batch continues the sequence.
	require.NoError(t, store.AppendMessages(ctx, sess.ID, []*Message{
		{Role: RoleUser, Content: "thanks"},
	}))

	messages, err := store.ListMessages(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, msg := range messages {
		assert.Equal(t, i+1, msg.Seq)
		assert.Equal(t, sess.ID, msg.SessionID)
	}
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, "user wants html", messages[1].Reasoning)
	require.Len(t, messages[1].SearchResults, 1)
	assert.Equal(t, "MDN", messages[1].SearchResults[0].Title)
	assert.Empty(t, messages[0].Reasoning)
	assert.Empty(t, messages[0].SearchResults)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)

	// Pagination over messages.
	page, err := store.ListMessages(ctx, sess.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 2, page[0].Seq)
}

func TestStore_DeleteCascadesMessages(t *testing.T) {
	store, testDB := setupStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessages(ctx, sess.ID, []*Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	}))

	require.NoError(t, store.Delete(ctx, sess.ID))

	var count int
	err = testDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = $1`, uuidToPg(sess.ID),
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "messages must cascade with their session")
}

func TestStore_ConcurrentAppendsKeepSeqUnique(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "")
	require.NoError(t, err)

	const (
		writers  = 10
		perBatch = 5
	)
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]*Message, perBatch)
			for i := range batch {
				batch[i] = &Message{
					Role:    RoleUser,
					Content: fmt.Sprintf("writer %d message %d", w, i),
				}
			}
			errs <- store.AppendMessages(ctx, sess.ID, batch)
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	messages, err := store.ListMessages(ctx, sess.ID, MaxMessageLimit, 0)
	require.NoError(t, err)
	require.Len(t, messages, writers*perBatch)

	seen := make(map[int]bool, len(messages))
	for _, msg := range messages {
		assert.False(t, seen[msg.Seq], "duplicate seq %d", msg.Seq)
		seen[msg.Seq] = true
	}
	for seq := 1; seq <= writers*perBatch; seq++ {
		assert.True(t, seen[seq], "missing seq %d", seq)
	}

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, writers*perBatch, got.MessageCount)
}
