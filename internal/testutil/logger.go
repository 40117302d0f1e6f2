package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output, keeping
// test logs quiet. log.Logger is an alias for *slog.Logger, so this is
// interchangeable with log.NewNop().
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
