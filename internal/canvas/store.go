package canvas

import (
	"context"
	"sync"
)

// SnapshotStore persists canvas snapshots keyed by session scope.
//
// Load returns (nil, nil) when no snapshot exists under key; absence is not
// an error. Implementations must be safe for concurrent use.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Clear(ctx context.Context, key string) error
}

// MemoryStore is an in-process SnapshotStore. It backs tests and the
// canvas.store=memory configuration, where state lives for the process only.
//
// The zero value is not useful - use NewMemoryStore.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string][]byte)}
}

// Load returns the snapshot under key, or (nil, nil) when absent.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.snaps[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Save stores a copy of data under key.
func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	in := make([]byte, len(data))
	copy(in, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[key] = in
	return nil
}

// Clear removes the snapshot under key. Clearing an absent key is not an
// error.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, key)
	return nil
}
