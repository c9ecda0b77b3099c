// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the server builds without CGo and
// a single binary carries its own database engine. Tests open ":memory:" and
// get a fresh, isolated database per test.
//
// TIME VALUES:
// All timestamps are normalised to UTC before they are written and the driver
// is asked to store them in SQLite's own text format (_time_format=sqlite).
// With one zone and one layout, the stored strings compare and sort in the
// same order as the instants they encode, which the meal ordering, the exact
// date filter and the expired-session sweep all rely on.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	sqlitedriver "modernc.org/sqlite"

	"github.com/sakif/daily-diet/internal/repository"
)

// compile-time check that *DB satisfies every storage contract
var (
	_ repository.Store    = (*DB)(nil)
	_ repository.Migrator = (*DB)(nil)
)

// SQLite's built-in LOWER folds ASCII only. The name and description filters
// compare against likePattern, which is lowercased in Go, so the column side
// goes through the same strings.ToLower.
func init() {
	sqlitedriver.MustRegisterDeterministicScalarFunction("unicode_lower", 1, unicodeLower)
}

func unicodeLower(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return nil, fmt.Errorf("unicode_lower: unsupported argument type %T", v)
	}
}

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/daily-diet.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	return open(dbPath, true)
}

// Open connects without migrating. cmd/migrate uses it so that "down" and
// "status" see the schema exactly as it is on disk.
func Open(dbPath string) (*DB, error) {
	return open(dbPath, false)
}

func open(dbPath string, migrate bool) (*DB, error) {
	memory := isMemory(dbPath)

	conn, err := sql.Open("sqlite", dsn(dbPath, memory))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate database. Pin the pool to
	// one connection so the whole process sees the same tables.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if migrate {
		if _, err := db.Migrate(context.Background()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: running migrations: %w", err)
		}
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
}

// dsn appends the connection pragmas. Foreign keys are off by default in
// SQLite and are per-connection, so they have to be requested through the DSN
// rather than a one-off PRAGMA statement.
func dsn(dbPath string, memory bool) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	if !memory {
		params = append(params, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(params, "&")
}

// likePattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
