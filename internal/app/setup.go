package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easelhq/easel/db"
	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/canvas"
	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/enrich"
	"github.com/easelhq/easel/internal/observability"
	"github.com/easelhq/easel/internal/session"
	"github.com/easelhq/easel/internal/version"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	a.Sessions = session.NewStore(pool, logger.With("component", "session"))

	snapshots, err := provideSnapshotStore(cfg, pool)
	if err != nil {
		return nil, err
	}

	manager, err := canvas.NewManager(canvas.ManagerConfig{
		MaxOpen: cfg.Canvas.MaxOpen,
		Store:   snapshots,
		Logger:  logger.With("component", "canvas"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating canvas manager: %w", err)
	}
	a.Canvas = manager

	server, err := api.NewServer(api.ServerConfig{
		Logger:          logger.With("component", "api"),
		Sessions:        a.Sessions,
		Canvas:          manager,
		Enricher:        provideEnricher(cfg, logger),
		Pool:            pool,
		CORSOrigins:     cfg.CORSOrigins,
		TrustProxy:      cfg.TrustProxy,
		RateRPS:         cfg.RateLimitRPS,
		RateBurst:       cfg.RateLimitBurst,
		StreamMaxBuffer: cfg.Stream.MaxBufferBytes,
		StreamTimeout:   time.Duration(cfg.Stream.SSETimeoutSeconds) * time.Second,
		HistoryWindow:   config.NormalizeMaxHistoryMessages(cfg.Stream.MaxHistoryMessages),
		IsDev:           cfg.Observability.Environment == "dev",
	})
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideTracing wires OTLP trace export. An unreachable collector is not
// fatal: the app runs untraced and logs a warning.
func provideTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:       cfg.Observability.Endpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Observability.Environment,
		SampleRatio:    cfg.Observability.SampleRatio,
		Logger:         logger,
	})
	if err != nil {
		logger.Warn("setting up tracing, continuing without it", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations, then opens the PostgreSQL connection
// pool with sensible connection management defaults.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideSnapshotStore selects the canvas snapshot backend.
// The file backend lives next to the config file under ~/.easel.
func provideSnapshotStore(cfg *config.Config, pool *pgxpool.Pool) (canvas.SnapshotStore, error) {
	switch cfg.Canvas.Store {
	case config.CanvasStoreMemory:
		return canvas.NewMemoryStore(), nil
	case config.CanvasStorePostgres:
		return canvas.NewPGStore(pool)
	case config.CanvasStoreFile, "":
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		return canvas.NewFileStore(filepath.Join(home, ".easel", "canvas"))
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidCanvasStore, cfg.Canvas.Store)
	}
}

// provideEnricher builds the link unfurler, or nil when disabled.
func provideEnricher(cfg *config.Config, logger *slog.Logger) *enrich.Enricher {
	if !cfg.Enrich.Enabled {
		return nil
	}
	return enrich.New(enrich.Config{
		Enabled:     true,
		Parallelism: cfg.Enrich.Parallelism,
		Delay:       time.Duration(cfg.Enrich.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Enrich.TimeoutMs) * time.Millisecond,
		Logger:      logger.With("component", "enrich"),
	})
}
