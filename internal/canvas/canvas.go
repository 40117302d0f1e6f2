package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/easelhq/easel/internal/artifact"
	"github.com/easelhq/easel/internal/metrics"
)

const (
	// DefaultMaxOpen is the open-artifact limit when Config.MaxOpen is zero.
	DefaultMaxOpen = 5

	// DefaultKey is the snapshot key when Config.Key is empty.
	DefaultKey = "canvas_state"
)

// State wraps an open artifact with its canvas bookkeeping.
type State struct {
	Artifact  artifact.Artifact `json:"artifact"`
	MessageID string            `json:"message_id,omitempty"`
	Minimized bool              `json:"minimized"`
	Position  int               `json:"position"`
	AddedAt   time.Time         `json:"added_at"`
}

// Config configures a Registry.
//
// Zero values:
//   - MaxOpen: 0 (uses DefaultMaxOpen)
//   - Store: nil (invalid, New returns ErrNilStore)
//   - Key: "" (uses DefaultKey)
//   - Now: nil (uses time.Now; inject a fake clock in tests)
//   - Logger: nil (uses slog.Default())
type Config struct {
	MaxOpen int
	Store   SnapshotStore
	Key     string
	Now     func() time.Time
	Logger  *slog.Logger
}

// Registry tracks open artifacts for one session scope.
// Safe for concurrent use. Use New to create instances.
type Registry struct {
	store   SnapshotStore
	key     string
	maxOpen int
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.RWMutex
	artifacts map[string]*State
	// order holds IDs in insertion order. It drives position numbering and
	// breaks AddedAt ties during eviction.
	order    []string
	activeID string
}

// New creates a Registry and restores the snapshot stored under cfg.Key.
// A missing snapshot starts empty; a corrupted one is discarded, cleared
// from the store and logged, never returned as an error.
func New(ctx context.Context, cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = DefaultMaxOpen
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Registry{
		store:     cfg.Store,
		key:       cfg.Key,
		maxOpen:   cfg.MaxOpen,
		now:       cfg.Now,
		logger:    cfg.Logger,
		artifacts: make(map[string]*State),
	}
	r.restore(ctx)
	return r, nil
}

// Add opens an artifact on the canvas. An existing ID has its payload
// replaced and AddedAt refreshed (touched, not duplicated). A new ID at the
// open limit first evicts the entry with the oldest AddedAt. The new entry
// becomes active only when nothing was active before.
func (r *Registry) Add(ctx context.Context, art artifact.Artifact, messageID string) {
	r.mu.Lock()
	now := r.now()
	if st, ok := r.artifacts[art.ID]; ok {
		st.Artifact = art
		st.MessageID = messageID
		st.AddedAt = now
	} else {
		if len(r.artifacts) >= r.maxOpen {
			r.evictOldestLocked()
		}
		r.artifacts[art.ID] = &State{
			Artifact:  art,
			MessageID: messageID,
			Position:  len(r.order),
			AddedAt:   now,
		}
		r.order = append(r.order, art.ID)
		if r.activeID == "" {
			r.activeID = art.ID
		}
	}
	data := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, data)
}

// Remove closes an artifact. Returns ErrNotFound if the ID is not open.
// If it was active, the first remaining entry becomes active; remaining
// entries are renumbered sequentially.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.artifacts[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("remove artifact %s: %w", id, ErrNotFound)
	}
	r.removeLocked(id)
	data := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, data)
	return nil
}

// SetActive moves the active pointer. Returns ErrNotFound if the ID is not
// open. It deliberately does not refresh AddedAt, so the active artifact
// stays in eviction order.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.artifacts[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("set active artifact %s: %w", id, ErrNotFound)
	}
	r.activeID = id
	data := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, data)
	return nil
}

// ToggleMinimize flips the minimized flag and returns the new value.
// Returns ErrNotFound if the ID is not open.
func (r *Registry) ToggleMinimize(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	st, ok := r.artifacts[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("toggle minimize artifact %s: %w", id, ErrNotFound)
	}
	st.Minimized = !st.Minimized
	minimized := st.Minimized
	data := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, data)
	return minimized, nil
}

// Clear closes every artifact and removes the persisted snapshot.
func (r *Registry) Clear(ctx context.Context) {
	r.mu.Lock()
	r.artifacts = make(map[string]*State)
	r.order = nil
	r.activeID = ""
	r.mu.Unlock()

	if err := r.store.Clear(ctx, r.key); err != nil {
		metrics.SnapshotFailures.WithLabelValues("clear").Inc()
		r.logger.Warn("clearing canvas snapshot failed",
			"key", r.key, "error", err)
	}
}

// Get returns a copy of the state for id.
func (r *Registry) Get(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.artifacts[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// List returns copies of all open states in position order.
func (r *Registry) List() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]State, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.artifacts[id])
	}
	return out
}

// ActiveID returns the active artifact ID, or "" when nothing is open.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// Len returns the number of open artifacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.artifacts)
}

// evictOldestLocked removes the entry with the smallest AddedAt. The scan
// runs in insertion order, so ties evict the earlier insertion.
func (r *Registry) evictOldestLocked() {
	if len(r.order) == 0 {
		return
	}
	oldest := r.order[0]
	for _, id := range r.order[1:] {
		if r.artifacts[id].AddedAt.Before(r.artifacts[oldest].AddedAt) {
			oldest = id
		}
	}
	r.removeLocked(oldest)
	metrics.CanvasEvictions.Inc()
}

// removeLocked deletes id, renumbers the remaining positions and reassigns
// the active pointer to the first remaining entry when needed.
func (r *Registry) removeLocked(id string) {
	delete(r.artifacts, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for i, v := range r.order {
		r.artifacts[v].Position = i
	}
	if r.activeID == id {
		if len(r.order) > 0 {
			r.activeID = r.order[0]
		} else {
			r.activeID = ""
		}
	}
}

// restore loads the snapshot under r.key. Failures degrade to an empty
// canvas; corrupted payloads are additionally cleared from the store.
func (r *Registry) restore(ctx context.Context) {
	data, err := r.store.Load(ctx, r.key)
	if err != nil {
		metrics.SnapshotFailures.WithLabelValues("load").Inc()
		r.logger.Warn("loading canvas snapshot failed, starting empty",
			"key", r.key, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		metrics.SnapshotFailures.WithLabelValues("load").Inc()
		r.logger.Warn("discarding corrupted canvas snapshot",
			"key", r.key, "error", err)
		if cerr := r.store.Clear(ctx, r.key); cerr != nil {
			r.logger.Warn("clearing corrupted canvas snapshot failed",
				"key", r.key, "error", cerr)
		}
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(snap.Artifacts))
	for id := range snap.Artifacts {
		ids = append(ids, id)
	}
	// Snapshot maps carry no order; positions recorded at save time
	// reconstruct it, AddedAt breaks corrupt duplicates.
	sort.Slice(ids, func(i, j int) bool {
		a, b := snap.Artifacts[ids[i]], snap.Artifacts[ids[j]]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.AddedAt.Before(b.AddedAt)
	})
	for i, id := range ids {
		st := snap.Artifacts[id]
		st.Position = i
		r.artifacts[id] = &st
		r.order = append(r.order, id)
	}
	// A lowered limit since the snapshot was written still holds.
	for len(r.order) > r.maxOpen {
		r.evictOldestLocked()
	}
	if snap.ActiveArtifactID != nil {
		if _, ok := r.artifacts[*snap.ActiveArtifactID]; ok {
			r.activeID = *snap.ActiveArtifactID
		}
	}
}

// snapshotLocked serializes the registry for persistence.
func (r *Registry) snapshotLocked() []byte {
	snap := snapshot{Artifacts: make(map[string]State, len(r.artifacts))}
	for id, st := range r.artifacts {
		snap.Artifacts[id] = *st
	}
	if r.activeID != "" {
		id := r.activeID
		snap.ActiveArtifactID = &id
	}
	data, err := json.Marshal(snap)
	if err != nil {
		r.logger.Error("canvas snapshot marshal failed", "error", err)
		return nil
	}
	return data
}

// persist writes snapshot data, logging instead of failing: the in-memory
// registry stays authoritative when the store degrades.
func (r *Registry) persist(ctx context.Context, data []byte) {
	if data == nil {
		return
	}
	if err := r.store.Save(ctx, r.key, data); err != nil {
		metrics.SnapshotFailures.WithLabelValues("save").Inc()
		r.logger.Warn("saving canvas snapshot failed, state not persisted",
			"key", r.key, "error", err)
	}
}
