package session

import "errors"

// Sentinel errors returned by Store operations. Check with errors.Is:
//
//	sess, err := store.Get(ctx, id)
//	if errors.Is(err, session.ErrNotFound) {
//	    // 404
//	}
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrTitleTooLong indicates a title exceeding MaxTitleLength.
	ErrTitleTooLong = errors.New("session title too long")
)
