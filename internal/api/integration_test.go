//go:build integration
// +build integration

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/internal/canvas"
	"github.com/easelhq/easel/internal/session"
	"github.com/easelhq/easel/internal/stream"
	"github.com/easelhq/easel/internal/testutil"
)

func setupAPI(t *testing.T) (*Server, *testutil.TestDB) {
	t.Helper()
	testDB, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return newServerOn(t, testDB), testDB
}

// newServerOn builds a full server stack over an existing database, so a
// test can spin up a second stack on the same data to simulate a restart.
func newServerOn(t *testing.T, testDB *testutil.TestDB) *Server {
	t.Helper()
	logger := testutil.DiscardLogger()

	snapshots, err := canvas.NewPGStore(testDB.Pool)
	require.NoError(t, err)
	manager, err := canvas.NewManager(canvas.ManagerConfig{Store: snapshots, Logger: logger})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Logger:      logger,
		Sessions:    session.NewStore(testDB.Pool, logger),
		Canvas:      manager,
		Source:      stream.SimSource{},
		Pool:        testDB.Pool,
		CORSOrigins: []string{"http://localhost:5173"},
		RateRPS:     1000,
		RateBurst:   1000,
		IsDev:       true,
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rdr)
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAPI_FullLifecycle(t *testing.T) {
	srv, testDB := setupAPI(t)
	h := srv.Handler()

	// Create a session.
	w := doJSON(t, h, http.MethodPost, "/api/v1/sessions", `{"title":"Demo"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess session.Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sess))
	assert.Equal(t, "Demo", sess.Title)
	base := "/api/v1/sessions/" + sess.ID.String()

	// Chat: the simulated source answers "code" prompts with two artifacts.
	w = doJSON(t, h, http.MethodPost, "/api/v1/chat",
		`{"session_id":"`+sess.ID.String()+`","message":"Show me some code"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := testutil.ParseSSEEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	require.Equal(t, stream.EventDone, events[len(events)-1].Type)

	var artifactIDs []string
	for _, ev := range testutil.FindAllEvents(events, stream.EventArtifact) {
		var p stream.ArtifactPayload
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &p))
		artifactIDs = append(artifactIDs, p.Artifact.ID)
	}
	require.Len(t, artifactIDs, 2)

	var done stream.DonePayload
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].Data), &done))
	assert.Equal(t, sess.ID.String(), done.SessionID)

	// Both turns are persisted.
	w = doJSON(t, h, http.MethodGet, base+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Items []*session.Message `json:"items"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msgs))
	require.Len(t, msgs.Items, 2)
	assert.Equal(t, session.RoleUser, msgs.Items[0].Role)
	assert.Equal(t, session.RoleAssistant, msgs.Items[1].Role)
	assert.Equal(t, done.MessageID, msgs.Items[1].ID.String())
	assert.Contains(t, msgs.Items[1].Content, "<artifact")

	// Canvas holds both artifacts, first one active.
	w = doJSON(t, h, http.MethodGet, base+"/canvas", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cv canvasBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cv))
	require.Len(t, cv.Artifacts, 2)
	require.NotNil(t, cv.ActiveArtifactID)
	assert.Equal(t, artifactIDs[0], *cv.ActiveArtifactID)
	assert.Equal(t, artifactIDs[0], cv.Artifacts[0].Artifact.ID)
	assert.Equal(t, artifactIDs[1], cv.Artifacts[1].Artifact.ID)

	// Switch focus, then minimize the first artifact.
	w = doJSON(t, h, http.MethodPost, base+"/canvas/active", `{"artifact_id":"`+artifactIDs[1]+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cv))
	assert.Equal(t, artifactIDs[1], *cv.ActiveArtifactID)

	w = doJSON(t, h, http.MethodPost, base+"/canvas/minimize", `{"artifact_id":"`+artifactIDs[0]+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cv))
	assert.True(t, cv.Artifacts[0].Minimized)

	// Removing the active artifact promotes the survivor.
	w = doJSON(t, h, http.MethodDelete, base+"/canvas/"+artifactIDs[1], "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cv))
	require.Len(t, cv.Artifacts, 1)
	require.NotNil(t, cv.ActiveArtifactID)
	assert.Equal(t, artifactIDs[0], *cv.ActiveArtifactID)

	// Export as JSON attachment.
	w = doJSON(t, h, http.MethodGet, base+"/export?format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	var export session.Export
	require.NoError(t, json.NewDecoder(w.Body).Decode(&export))
	assert.Equal(t, sess.ID, export.Session.ID)
	assert.Len(t, export.Messages, 2)

	// Rename shows up in the listing.
	w = doJSON(t, h, http.MethodPatch, base, `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []*session.Session `json:"items"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.NotEmpty(t, list.Items)
	assert.Equal(t, sess.ID, list.Items[0].ID)
	assert.Equal(t, "Renamed", list.Items[0].Title)

	// Readiness passes with a live pool.
	w = doJSON(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Delete takes the session, its messages and its canvas snapshot.
	w = doJSON(t, h, http.MethodDelete, base, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int
	err := testDB.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM canvas_snapshots WHERE key = $1`, canvas.SnapshotKey(sess.ID),
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "canvas snapshot must go with its session")

	w = doJSON(t, h, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_CanvasSurvivesRestart(t *testing.T) {
	srv, testDB := setupAPI(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/sessions", `{"title":"Restart"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var sess session.Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sess))

	w = doJSON(t, h, http.MethodPost, "/api/v1/chat",
		`{"session_id":"`+sess.ID.String()+`","message":"Draw me a diagram"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A fresh stack over the same database stands in for a restarted server.
	restarted := newServerOn(t, testDB).Handler()

	w = doJSON(t, restarted, http.MethodGet, "/api/v1/sessions/"+sess.ID.String()+"/canvas", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cv canvasBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cv))
	require.Len(t, cv.Artifacts, 1)
	assert.Equal(t, "Request flow", cv.Artifacts[0].Artifact.Title)
	require.NotNil(t, cv.ActiveArtifactID)
	assert.Equal(t, cv.Artifacts[0].Artifact.ID, *cv.ActiveArtifactID)
}

// TestAPI_StackPolicies exercises rate limiting and CORS through the full
// middleware chain rather than against handlers in isolation.
func TestAPI_StackPolicies(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Logger:      testutil.DiscardLogger(),
		Sessions:    newFakeStore(),
		Canvas:      newTestManager(t),
		CORSOrigins: []string{"http://localhost:5173"},
		RateRPS:     0.001,
		RateBurst:   2,
		IsDev:       false,
	})
	require.NoError(t, err)
	h := srv.Handler()

	// Preflight is answered before any handler runs.
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	// Burst of 2 is spent by the first two API requests; the third gets 429
	// with the standard error envelope.
	for i := range 2 {
		w = doJSON(t, h, http.MethodGet, "/api/v1/sessions", "")
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, "rate_limited", env.Error.Code)

	// Health endpoints bypass the limiter.
	w = doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
