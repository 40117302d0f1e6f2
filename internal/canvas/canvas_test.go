package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/easelhq/easel/internal/artifact"
)

// testClock is a manually advanced clock for deterministic AddedAt values.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testArtifact(id string) artifact.Artifact {
	return artifact.Artifact{
		ID:      id,
		Type:    artifact.TypeCode,
		Title:   "title " + id,
		Content: "content " + id,
	}
}

func newTestRegistry(t *testing.T) (*Registry, *testClock, *MemoryStore) {
	t.Helper()
	clock := newTestClock()
	store := NewMemoryStore()
	reg, err := New(context.Background(), Config{
		Store: store,
		Now:   clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return reg, clock, store
}

func ids(states []State) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = st.Artifact.ID
	}
	return out
}

func TestNew_NilStore(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	if !errors.Is(err, ErrNilStore) {
		t.Errorf("New() error = %v, want ErrNilStore", err)
	}
}

func TestRegistry_FirstAddBecomesActive(t *testing.T) {
	t.Parallel()

	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "msg-1")

	if got := reg.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if got := reg.ActiveID(); got != "a" {
		t.Errorf("ActiveID() = %q, want a", got)
	}
	st, ok := reg.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	if st.Position != 0 {
		t.Errorf("position = %d, want 0", st.Position)
	}
	if st.MessageID != "msg-1" {
		t.Errorf("message id = %q, want msg-1", st.MessageID)
	}
	if st.Minimized {
		t.Error("new artifact must not start minimized")
	}
}

func TestRegistry_LaterAddsDoNotStealActive(t *testing.T) {
	t.Parallel()

	reg, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "")
	clock.Advance(time.Second)
	reg.Add(ctx, testArtifact("b"), "")

	if got := reg.ActiveID(); got != "a" {
		t.Errorf("ActiveID() = %q, want a (first added stays active)", got)
	}
}

func TestRegistry_EvictsOldestAtLimit(t *testing.T) {
	t.Parallel()

	reg, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		reg.Add(ctx, testArtifact(id), "")
		clock.Advance(time.Second)
	}
	if got := reg.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	if got := reg.ActiveID(); got != "a" {
		t.Fatalf("ActiveID() = %q, want a", got)
	}

	reg.Add(ctx, testArtifact("f"), "")

	if got := reg.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5 after eviction", got)
	}
	if _, ok := reg.Get("a"); ok {
		t.Error("oldest artifact a still present, want evicted")
	}
	// a was active; the first remaining entry takes over.
	if got := reg.ActiveID(); got != "b" {
		t.Errorf("ActiveID() = %q, want b", got)
	}

	want := []string{"b", "c", "d", "e", "f"}
	states := reg.List()
	got := ids(states)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("List() order = %v, want %v", got, want)
	}
	for i, st := range states {
		if st.Position != i {
			t.Errorf("position[%s] = %d, want %d", st.Artifact.ID, st.Position, i)
		}
	}
}

func TestRegistry_SetActiveDoesNotProtectFromEviction(t *testing.T) {
	t.Parallel()

	reg, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		reg.Add(ctx, testArtifact(id), "")
		clock.Advance(time.Second)
	}

	// Activating a does not refresh its AddedAt: it stays the oldest and
	// the next eviction takes it even while displayed.
	if err := reg.SetActive(ctx, "a"); err != nil {
		t.Fatalf("SetActive(a) error = %v", err)
	}
	clock.Advance(time.Second)
	reg.Add(ctx, testArtifact("f"), "")

	if _, ok := reg.Get("a"); ok {
		t.Error("active artifact a survived eviction, want evicted")
	}
	if got := reg.ActiveID(); got != "b" {
		t.Errorf("ActiveID() = %q, want b (first remaining)", got)
	}
}

func TestRegistry_ReAddRefreshesAddedAt(t *testing.T) {
	t.Parallel()

	reg, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		reg.Add(ctx, testArtifact(id), "")
		clock.Advance(time.Second)
	}

	// Touch a: same ID, updated payload. It moves to the back of the
	// eviction order without growing the registry.
	touched := testArtifact("a")
	touched.Content = "revised content"
	reg.Add(ctx, touched, "msg-2")

	if got := reg.Len(); got != 5 {
		t.Fatalf("Len() = %d after re-add, want 5", got)
	}
	st, ok := reg.Get("a")
	if !ok {
		t.Fatal("Get(a) not found after re-add")
	}
	if st.Artifact.Content != "revised content" {
		t.Errorf("content = %q, want revised content", st.Artifact.Content)
	}
	if st.MessageID != "msg-2" {
		t.Errorf("message id = %q, want msg-2", st.MessageID)
	}

	clock.Advance(time.Second)
	reg.Add(ctx, testArtifact("f"), "")

	// b is now the oldest; a was touched and survives.
	if _, ok := reg.Get("a"); !ok {
		t.Error("touched artifact a evicted, want kept")
	}
	if _, ok := reg.Get("b"); ok {
		t.Error("oldest artifact b still present, want evicted")
	}
}

func TestRegistry_ReAddKeepsPositionAndMinimized(t *testing.T) {
	t.Parallel()

	reg, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "")
	clock.Advance(time.Second)
	reg.Add(ctx, testArtifact("b"), "")
	if _, err := reg.ToggleMinimize(ctx, "a"); err != nil {
		t.Fatalf("ToggleMinimize(a) error = %v", err)
	}

	clock.Advance(time.Second)
	reg.Add(ctx, testArtifact("a"), "")

	st, ok := reg.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	if !st.Minimized {
		t.Error("re-add reset the minimized flag, want preserved")
	}
	if st.Position != 0 {
		t.Errorf("position = %d after re-add, want 0 (slot preserved)", st.Position)
	}
}

func TestRegistry_RemoveAbsent(t *testing.T) {
	t.Parallel()

	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "")
	err := reg.Remove(ctx, "ghost")

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(ghost) error = %v, want ErrNotFound", err)
	}
	if got := reg.Len(); got != 1 {
		t.Errorf("Len() = %d after failed remove, want 1", got)
	}
}

func TestRegistry_RemoveActiveReassigns(t *testing.T) {
	t.Parallel()

	reg, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		reg.Add(ctx, testArtifact(id), "")
		clock.Advance(time.Second)
	}
	if err := reg.SetActive(ctx, "b"); err != nil {
		t.Fatalf("SetActive(b) error = %v", err)
	}

	if err := reg.Remove(ctx, "b"); err != nil {
		t.Fatalf("Remove(b) error = %v", err)
	}

	if got := reg.ActiveID(); got != "a" {
		t.Errorf("ActiveID() = %q, want a (first remaining)", got)
	}
	states := reg.List()
	want := []string{"a", "c"}
	if fmt.Sprint(ids(states)) != fmt.Sprint(want) {
		t.Errorf("List() order = %v, want %v", ids(states), want)
	}
	for i, st := range states {
		if st.Position != i {
			t.Errorf("position[%s] = %d, want %d (resequenced)", st.Artifact.ID, st.Position, i)
		}
	}
}

func TestRegistry_RemoveLastClearsActive(t *testing.T) {
	t.Parallel()

	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "")
	if err := reg.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove(a) error = %v", err)
	}

	if got := reg.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
	if got := reg.ActiveID(); got != "" {
		t.Errorf("ActiveID() = %q, want empty", got)
	}
}

func TestRegistry_ToggleMinimize(t *testing.T) {
	t.Parallel()

	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "")

	minimized, err := reg.ToggleMinimize(ctx, "a")
	if err != nil {
		t.Fatalf("ToggleMinimize(a) error = %v", err)
	}
	if !minimized {
		t.Error("first toggle = false, want true")
	}

	minimized, err = reg.ToggleMinimize(ctx, "a")
	if err != nil {
		t.Fatalf("ToggleMinimize(a) error = %v", err)
	}
	if minimized {
		t.Error("second toggle = true, want false")
	}

	if _, err := reg.ToggleMinimize(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleMinimize(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SetActiveAbsent(t *testing.T) {
	t.Parallel()

	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "")
	if err := reg.SetActive(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetActive(ghost) error = %v, want ErrNotFound", err)
	}
	if got := reg.ActiveID(); got != "a" {
		t.Errorf("ActiveID() = %q after failed SetActive, want a", got)
	}
}

func TestRegistry_SizeNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	reg, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		reg.Add(ctx, testArtifact(fmt.Sprintf("art-%02d", i)), "")
		clock.Advance(time.Second)
		if got := reg.Len(); got > DefaultMaxOpen {
			t.Fatalf("Len() = %d after add %d, want <= %d", got, i, DefaultMaxOpen)
		}
	}
	if got := reg.Len(); got != DefaultMaxOpen {
		t.Errorf("Len() = %d, want %d", got, DefaultMaxOpen)
	}

	want := []string{"art-15", "art-16", "art-17", "art-18", "art-19"}
	if got := ids(reg.List()); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestRegistry_ClearRemovesSnapshot(t *testing.T) {
	t.Parallel()

	reg, _, store := newTestRegistry(t)
	ctx := context.Background()

	reg.Add(ctx, testArtifact("a"), "")
	reg.Add(ctx, testArtifact("b"), "")
	reg.Clear(ctx)

	if got := reg.Len(); got != 0 {
		t.Errorf("Len() = %d after Clear, want 0", got)
	}
	if got := reg.ActiveID(); got != "" {
		t.Errorf("ActiveID() = %q after Clear, want empty", got)
	}

	data, err := store.Load(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	if data != nil {
		t.Errorf("snapshot still present after Clear: %s", data)
	}
}

func TestRegistry_PersistAndRestore(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := NewMemoryStore()
	ctx := context.Background()

	reg, err := New(ctx, Config{Store: store, Now: clock.Now})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg.Add(ctx, testArtifact("a"), "msg-1")
	clock.Advance(time.Second)
	reg.Add(ctx, testArtifact("b"), "msg-2")
	if _, err := reg.ToggleMinimize(ctx, "b"); err != nil {
		t.Fatalf("ToggleMinimize(b) error = %v", err)
	}
	if err := reg.SetActive(ctx, "b"); err != nil {
		t.Fatalf("SetActive(b) error = %v", err)
	}

	restored, err := New(ctx, Config{Store: store, Now: clock.Now})
	if err != nil {
		t.Fatalf("New() restore error = %v", err)
	}

	if got := restored.Len(); got != 2 {
		t.Fatalf("restored Len() = %d, want 2", got)
	}
	if got := restored.ActiveID(); got != "b" {
		t.Errorf("restored ActiveID() = %q, want b", got)
	}
	if got := ids(restored.List()); fmt.Sprint(got) != fmt.Sprint([]string{"a", "b"}) {
		t.Errorf("restored order = %v, want [a b]", got)
	}

	orig, _ := reg.Get("b")
	st, ok := restored.Get("b")
	if !ok {
		t.Fatal("restored Get(b) not found")
	}
	if !st.Minimized {
		t.Error("restored b lost its minimized flag")
	}
	if st.MessageID != "msg-2" {
		t.Errorf("restored message id = %q, want msg-2", st.MessageID)
	}
	if !st.AddedAt.Equal(orig.AddedAt) {
		t.Errorf("restored AddedAt = %v, want %v", st.AddedAt, orig.AddedAt)
	}
	if st.Artifact != orig.Artifact {
		t.Errorf("restored artifact = %+v, want %+v", st.Artifact, orig.Artifact)
	}
}

func TestRegistry_RestoreDiscardsCorrupted(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, DefaultKey, []byte(`{"artifacts": [broken`)); err != nil {
		t.Fatalf("store.Save() error = %v", err)
	}

	reg, err := New(ctx, Config{Store: store})
	if err != nil {
		t.Fatalf("New() error = %v, corrupted snapshots must not fail construction", err)
	}
	if got := reg.Len(); got != 0 {
		t.Errorf("Len() = %d after corrupted restore, want 0", got)
	}

	// The corrupted payload is cleared, not retried forever.
	data, err := store.Load(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	if data != nil {
		t.Errorf("corrupted snapshot still stored: %s", data)
	}
}

func TestRegistry_RestoreIgnoresUnknownActive(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	ghost := "ghost"
	snap := snapshot{
		Artifacts: map[string]State{
			"a": {Artifact: testArtifact("a"), AddedAt: time.Now()},
		},
		ActiveArtifactID: &ghost,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if err := store.Save(ctx, DefaultKey, data); err != nil {
		t.Fatalf("store.Save() error = %v", err)
	}

	reg, err := New(ctx, Config{Store: store})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := reg.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if got := reg.ActiveID(); got != "" {
		t.Errorf("ActiveID() = %q, want empty for unknown active id", got)
	}
}

func TestRegistry_RestoreTrimsOverLimit(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	clock := newTestClock()
	ctx := context.Background()

	snap := snapshot{Artifacts: make(map[string]State)}
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("art-%d", i)
		snap.Artifacts[id] = State{
			Artifact: testArtifact(id),
			Position: i,
			AddedAt:  clock.Now().Add(time.Duration(i) * time.Second),
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if err := store.Save(ctx, DefaultKey, data); err != nil {
		t.Fatalf("store.Save() error = %v", err)
	}

	reg, err := New(ctx, Config{Store: store, MaxOpen: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := reg.Len(); got != 5 {
		t.Fatalf("Len() = %d after over-limit restore, want 5", got)
	}
	want := []string{"art-2", "art-3", "art-4", "art-5", "art-6"}
	if got := ids(reg.List()); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("List() = %v, want %v (two oldest trimmed)", got, want)
	}
}

// failStore degrades every operation, exercising the fire-and-forget
// persistence policy.
type failStore struct{}

func (failStore) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("store offline")
}
func (failStore) Save(context.Context, string, []byte) error {
	return errors.New("store offline")
}
func (failStore) Clear(context.Context, string) error {
	return errors.New("store offline")
}

func TestRegistry_KeepsServingWhenStoreFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := New(ctx, Config{Store: failStore{}})
	if err != nil {
		t.Fatalf("New() error = %v, store failures must degrade not fail", err)
	}

	reg.Add(ctx, testArtifact("a"), "")
	if err := reg.SetActive(ctx, "a"); err != nil {
		t.Errorf("SetActive(a) error = %v, want nil despite failing store", err)
	}
	if got := reg.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 (memory stays authoritative)", got)
	}
	reg.Clear(ctx)
	if got := reg.Len(); got != 0 {
		t.Errorf("Len() = %d after Clear, want 0", got)
	}
}
