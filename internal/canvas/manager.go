package canvas

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultIdleTTL is how long an untouched registry stays cached in
	// memory before the manager forgets it. The snapshot in the store
	// survives, so the next access restores the same state.
	DefaultIdleTTL = 30 * time.Minute

	// managerSweepInterval spaces out idle sweeps. Sweeping happens inline
	// during Registry calls, so the manager needs no background goroutine.
	managerSweepInterval = 5 * time.Minute
)

// SnapshotKey returns the snapshot store key for a session's canvas.
func SnapshotKey(sessionID uuid.UUID) string {
	return "canvas_" + sessionID.String()
}

// ManagerConfig configures a Manager.
//
// Zero values:
//   - MaxOpen: 0 (uses DefaultMaxOpen per registry)
//   - Store: nil (invalid, NewManager returns ErrNilStore)
//   - IdleTTL: 0 (uses DefaultIdleTTL)
//   - Now: nil (uses time.Now)
//   - Logger: nil (uses slog.Default())
type ManagerConfig struct {
	MaxOpen int
	Store   SnapshotStore
	IdleTTL time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

// Manager hands out one Registry per session, creating and restoring them
// lazily and dropping idle ones from memory. Safe for concurrent use.
type Manager struct {
	maxOpen int
	store   SnapshotStore
	idleTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	live      map[uuid.UUID]*liveRegistry
	lastSweep time.Time
}

// liveRegistry pairs a cached registry with its last-access time.
type liveRegistry struct {
	registry *Registry
	lastUsed time.Time
}

// NewManager creates a Manager backed by the given snapshot store.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		maxOpen:   cfg.MaxOpen,
		store:     cfg.Store,
		idleTTL:   idleTTL,
		now:       now,
		logger:    logger,
		live:      make(map[uuid.UUID]*liveRegistry),
		lastSweep: now(),
	}, nil
}

// Registry returns the canvas registry for the given session, restoring it
// from the snapshot store on first access after startup or an idle sweep.
func (m *Manager) Registry(ctx context.Context, sessionID uuid.UUID) (*Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) > managerSweepInterval {
		m.sweepLocked(now)
	}

	if entry, ok := m.live[sessionID]; ok {
		entry.lastUsed = now
		return entry.registry, nil
	}

	// Restore happens under the manager lock. Registries are created once
	// per session per idle period, so the store roundtrip is rare.
	reg, err := New(ctx, Config{
		MaxOpen: m.maxOpen,
		Store:   m.store,
		Key:     SnapshotKey(sessionID),
		Now:     m.now,
		Logger:  m.logger,
	})
	if err != nil {
		return nil, err
	}
	m.live[sessionID] = &liveRegistry{registry: reg, lastUsed: now}
	return reg, nil
}

// Drop clears a session's canvas and removes its registry from memory.
// Called when the owning session is deleted; best effort, store failures
// are logged and the in-memory state is gone either way.
func (m *Manager) Drop(ctx context.Context, sessionID uuid.UUID) {
	m.mu.Lock()
	entry, ok := m.live[sessionID]
	delete(m.live, sessionID)
	m.mu.Unlock()

	if ok {
		entry.registry.Clear(ctx)
		return
	}
	// Never loaded this run; clear any snapshot left from earlier runs.
	if err := m.store.Clear(ctx, SnapshotKey(sessionID)); err != nil {
		m.logger.Warn("clearing canvas snapshot for deleted session",
			"error", err, "session_id", sessionID)
	}
}

// sweepLocked forgets registries idle past the TTL. Their snapshots stay
// in the store, so a later Registry call restores them.
func (m *Manager) sweepLocked(now time.Time) {
	for id, entry := range m.live {
		if now.Sub(entry.lastUsed) > m.idleTTL {
			delete(m.live, id)
		}
	}
	m.lastSweep = now
}
