// Package canvas tracks the artifacts a session has open for rendering
// outside the chat transcript.
//
// A [Registry] maps artifact IDs to their canvas state (minimized flag,
// position, added-at timestamp) and keeps one active pointer. At most
// [DefaultMaxOpen] artifacts stay open; adding beyond the limit evicts the
// entry with the oldest AddedAt.
//
// # Eviction
//
// Eviction ranks strictly by AddedAt, not by access: re-adding an artifact
// refreshes its timestamp, activating one does not. An artifact can be
// actively displayed and still be the next eviction candidate. Ties go to
// the earlier insertion.
//
// # Persistence
//
// Every mutation snapshots the registry as JSON through a [SnapshotStore]
// ([MemoryStore], [FileStore] or [PGStore]). Persistence is fire-and-forget:
// a failed save degrades to in-memory state with a logged warning, and a
// corrupted snapshot found at startup is discarded and cleared instead of
// failing construction. Missing IDs surface as [ErrNotFound] so stale
// references stay no-ops for the caller.
//
// # Concurrency
//
// Registry is safe for concurrent use. Snapshot writes happen outside the
// registry lock; under concurrent mutation the last write wins, which is
// acceptable for state that is rebuilt from the live registry on read.
package canvas
