//go:build integration
// +build integration

package canvas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/internal/artifact"
	"github.com/easelhq/easel/internal/testutil"
)

func TestPGStore(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	store, err := NewPGStore(testDB.Pool)
	require.NoError(t, err)

	t.Run("load absent", func(t *testing.T) {
		data, err := store.Load(ctx, "canvas_missing")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("save load clear", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "canvas_a", []byte(`{"artifacts":{}}`)))

		data, err := store.Load(ctx, "canvas_a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"artifacts":{}}`, string(data))

		// Upsert replaces in place.
		require.NoError(t, store.Save(ctx, "canvas_a", []byte(`{"artifacts":{},"active_artifact_id":null}`)))
		data, err = store.Load(ctx, "canvas_a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"artifacts":{},"active_artifact_id":null}`, string(data))

		require.NoError(t, store.Clear(ctx, "canvas_a"))
		data, err = store.Load(ctx, "canvas_a")
		require.NoError(t, err)
		assert.Nil(t, data)

		// Clearing twice is fine.
		require.NoError(t, store.Clear(ctx, "canvas_a"))
	})

	t.Run("keys are isolated", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "canvas_b", []byte(`{"artifacts":{}}`)))
		require.NoError(t, store.Save(ctx, "canvas_c", []byte(`{"artifacts":{"x":{}}}`)))

		b, err := store.Load(ctx, "canvas_b")
		require.NoError(t, err)
		c, err := store.Load(ctx, "canvas_c")
		require.NoError(t, err)
		assert.NotEqual(t, string(b), string(c))
	})
}

func TestPGStore_BacksRegistry(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	store, err := NewPGStore(testDB.Pool)
	require.NoError(t, err)

	reg, err := New(ctx, Config{Store: store, Key: "canvas_sess"})
	require.NoError(t, err)
	reg.Add(ctx, artifact.Artifact{ID: "a1", Type: artifact.TypeHTML, Title: "Demo", Content: "<p>x</p>"}, "msg-1")
	require.NoError(t, reg.SetActive(ctx, "a1"))

	restored, err := New(ctx, Config{Store: store, Key: "canvas_sess"})
	require.NoError(t, err)
	require.Equal(t, 1, restored.Len())
	assert.Equal(t, "a1", restored.ActiveID())

	st, ok := restored.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "Demo", st.Artifact.Title)
	assert.Equal(t, "msg-1", st.MessageID)
}
