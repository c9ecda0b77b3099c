package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/daily-diet/internal/repository"
)

type migration struct {
	version int
	name    string
	up      []string
	down    []string
}

// migrations mirrors the sqlite history version for version so either
// engine reports the same status.
var migrations = []migration{
	{
		version: 1,
		name:    "create-meals",
		up: []string{
			`CREATE TABLE meals (
				id              TEXT PRIMARY KEY,
				user_session_id TEXT NOT NULL,
				name            TEXT NOT NULL,
				description     TEXT NOT NULL,
				date            TIMESTAMPTZ NOT NULL,
				"isCompliant"   BOOLEAN NOT NULL
			)`,
			`CREATE INDEX idx_meals_owner ON meals(user_session_id)`,
		},
		down: []string{`DROP TABLE meals`},
	},
	{
		version: 2,
		name:    "change-meal-isCompliant-column-name",
		up:      []string{`ALTER TABLE meals RENAME COLUMN "isCompliant" TO is_compliant`},
		down:    []string{`ALTER TABLE meals RENAME COLUMN is_compliant TO "isCompliant"`},
	},
	{
		version: 3,
		name:    "create-user-auth",
		up: []string{
			`CREATE TABLE users (
				id        TEXT PRIMARY KEY,
				user_name TEXT NOT NULL,
				password  TEXT NOT NULL
			)`,
			`CREATE INDEX idx_users_user_name ON users(user_name)`,
			`CREATE TABLE session_ids (
				value       TEXT PRIMARY KEY,
				user_id     TEXT REFERENCES users(id) ON DELETE CASCADE ON UPDATE CASCADE,
				expire_date TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX idx_session_ids_user_id ON session_ids(user_id)`,
			`CREATE INDEX idx_session_ids_expire_date ON session_ids(expire_date)`,
		},
		down: []string{
			`DROP TABLE session_ids`,
			`DROP TABLE users`,
		},
	},
	{
		version: 4,
		name:    "switch-user_session_id-by-user_id-on-meals",
		up:      []string{`ALTER TABLE meals RENAME COLUMN user_session_id TO user_id`},
		down:    []string{`ALTER TABLE meals RENAME COLUMN user_id TO user_session_id`},
	},
}

// Migrate applies every pending migration and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, m := range migrations {
		if _, ok := applied[m.version]; ok {
			continue
		}
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			for _, stmt := range m.up {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
				m.version, m.name, time.Now().UTC(),
			)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("applying migration %d (%s): %w", m.version, m.name, err)
		}
		ran++
	}
	return ran, nil
}

// Rollback reverts the newest applied migrations. steps <= 0 reverts all.
func (s *Store) Rollback(ctx context.Context, steps int) (int, error) {
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for i := len(migrations) - 1; i >= 0; i-- {
		if steps > 0 && reverted == steps {
			break
		}
		m := migrations[i]
		if _, ok := applied[m.version]; !ok {
			continue
		}
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			for _, stmt := range m.down {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
			return err
		})
		if err != nil {
			return reverted, fmt.Errorf("reverting migration %d (%s): %w", m.version, m.name, err)
		}
		reverted++
	}
	return reverted, nil
}

func (s *Store) MigrationStatus(ctx context.Context) ([]repository.MigrationStatus, error) {
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]repository.MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		at, ok := applied[m.version]
		out = append(out, repository.MigrationStatus{Version: m.version, Name: m.name, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]time.Time, error) {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("creating schema_migrations table: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations row: %w", err)
		}
		applied[version] = at.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema_migrations: %w", err)
	}
	return applied, nil
}
