// Command migrate applies or reverts schema migrations on the configured
// database without starting the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/sakif/daily-diet/internal/config"
	"github.com/sakif/daily-diet/internal/repository"
	"github.com/sakif/daily-diet/internal/repository/postgres"
	"github.com/sakif/daily-diet/internal/repository/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Schema migrations for daily-diet

USAGE:
  migrate <command> [options]

COMMANDS:
  up                 Apply every pending migration
  down [-steps N]    Revert the newest N applied migrations (default 1, 0 = all)
  status             List migrations and whether they are applied

ENVIRONMENT:
  DATABASE_ENGINE    sqlite (default) or pg
  DATABASE_URL       sqlite file path or postgres connection string`)
}

func run(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	command, rest := args[0], args[1:]

	steps := 1
	switch command {
	case "up", "status":
		if len(rest) > 0 {
			return fmt.Errorf("%w: %s takes no arguments", errUsage, command)
		}
	case "down":
		fs := flag.NewFlagSet("down", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		fs.IntVar(&steps, "steps", 1, "number of migrations to revert, 0 for all")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if steps < 0 {
			return fmt.Errorf("%w: -steps must not be negative", errUsage)
		}
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	m, err := openMigrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		n, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "applied %d migration(s)\n", n)
	case "down":
		n, err := m.Rollback(ctx, steps)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "reverted %d migration(s)\n", n)
	case "status":
		status, err := m.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		printStatus(out, status)
	}
	return nil
}

// openMigrator connects without migrating so down and status see the schema
// as it is.
func openMigrator(ctx context.Context, cfg config.Config) (repository.Migrator, error) {
	if cfg.DatabaseEngine == config.EnginePostgres {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	if dir := filepath.Dir(cfg.DatabaseURL); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqlite.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func printStatus(out io.Writer, status []repository.MigrationStatus) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE\tAPPLIED AT")
	for _, s := range status {
		state, at := "pending", "-"
		if s.Applied {
			state, at = "applied", s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, state, at)
	}
	tw.Flush()
}
