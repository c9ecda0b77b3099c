// Command server runs the daily-diet HTTP API.
//
// Configuration comes from the environment (and .env), see internal/config.
// The process exits non-zero on invalid configuration, on a store it cannot
// open or migrate, and on a server error.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/config"
	"github.com/sakif/daily-diet/internal/repository"
	"github.com/sakif/daily-diet/internal/repository/postgres"
	"github.com/sakif/daily-diet/internal/repository/sqlite"
	"github.com/sakif/daily-diet/internal/server"
	"github.com/sakif/daily-diet/internal/telemetry"
)

const serviceName = "daily-diet"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; the configured level and format are what failed.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", slog.String("error", err.Error()))
		}
	}()

	hasher, err := auth.NewHasher(cfg.PasswordScheme, cfg.BcryptCost)
	if err != nil {
		return err
	}
	if cfg.PasswordScheme == auth.SchemeSHA256 {
		logger.Warn("passwords are stored as unsalted SHA-256; set PASSWORD_SCHEME=bcrypt for new deployments")
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:                 cfg.Addr(),
		ServiceName:          serviceName,
		SessionSweepInterval: cfg.SessionSweepInterval,
		LoginRatePerMinute:   cfg.LoginRatePerMinute,
		LoginRateBurst:       cfg.LoginRateBurst,
	}, store, hasher, logger)

	// Start closes the store on the way out.
	return srv.Start()
}

// openStore connects to the configured engine and applies pending migrations.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DatabaseEngine {
	case config.EnginePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		store, err := postgres.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("database ready", slog.String("engine", config.EnginePostgres))
		return store, nil

	default:
		if dir := filepath.Dir(cfg.DatabaseURL); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}

		db, err := sqlite.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		logger.Info("database ready",
			slog.String("engine", config.EngineSQLite),
			slog.String("path", cfg.DatabaseURL),
		)
		return db, nil
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
