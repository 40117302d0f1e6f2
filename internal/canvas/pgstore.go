package canvas

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists snapshots in the canvas_snapshots table, surviving
// process restarts and shared across replicas. Used when canvas.store is
// "postgres".
//
// The zero value is not useful - use NewPGStore.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore on an existing connection pool.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pg store: connection pool required")
	}
	return &PGStore{pool: pool}, nil
}

// Load returns the snapshot under key, or (nil, nil) when no row exists.
func (s *PGStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM canvas_snapshots WHERE key = $1`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return data, nil
}

// Save upserts data under key.
func (s *PGStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO canvas_snapshots (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Clear deletes the row under key. A missing row is not an error.
func (s *PGStore) Clear(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM canvas_snapshots WHERE key = $1`, key,
	); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", key, err)
	}
	return nil
}
