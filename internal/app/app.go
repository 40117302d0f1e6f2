// Package app assembles the application: it loads dependencies in order
// (tracing, database, session store, canvas, HTTP server), hands back an
// App that owns them, and tears them down again on Close.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/canvas"
	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/session"
)

// App holds the assembled application components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Sessions *session.Store
	Canvas   *canvas.Manager
	Server   *api.Server

	// otelCleanup flushes and stops the tracer provider.
	otelCleanup func()
}

// Run starts the HTTP server on addr and blocks until ctx is canceled
// or the server fails.
func (a *App) Run(ctx context.Context, addr string) error {
	return a.Server.Run(ctx, addr)
}

// Close releases resources in reverse setup order: the connection pool
// first, the tracer provider last so shutdown spans still export.
func (a *App) Close() error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down application")

	if a.Pool != nil {
		a.Pool.Close()
		logger.Debug("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
