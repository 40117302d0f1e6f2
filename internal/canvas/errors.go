package canvas

import "errors"

// Sentinel errors for canvas operations, checked with errors.Is().
var (
	// ErrNotFound indicates the artifact is not open on the canvas. Callers
	// treat it as a warning and a no-op, never a crash.
	ErrNotFound = errors.New("artifact not open on canvas")

	// ErrNilStore indicates a Registry was constructed without a snapshot
	// store.
	ErrNilStore = errors.New("canvas requires a snapshot store")
)
