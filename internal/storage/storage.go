// Package storage opens and bootstraps the relational database backing the
// versioned record model. SQLite is the embedded default; Postgres is
// supported through the pgx stdlib driver. All higher layers speak
// database/sql against the handle returned here and write queries with `?`
// placeholders, which Rebind translates for Postgres.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavor of an open database.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Querier is the read/write surface shared by *sql.DB and *sql.Tx. Store
// operations take a Querier so they run identically inside and outside a
// unit of work.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps an open database handle with its dialect.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens a database for the given driver name ("sqlite" or
// "postgres") and DSN.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(dsn)
	case DriverPostgres:
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// OpenSQLite creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// SQLite supports one writer at a time, so the pool is capped at a single
// connection to avoid SQLITE_BUSY errors.
func OpenSQLite(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	return &DB{db: db, dialect: SQLite}, nil
}

// OpenPostgres opens a Postgres database via the pgx stdlib driver.
func OpenPostgres(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage dsn is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{db: db, dialect: Postgres}, nil
}

// Close closes the underlying database. Nil-safe so callers can defer it
// in all startup paths.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Handle returns the underlying sql.DB.
func (d *DB) Handle() *sql.DB { return d.db }

// Dialect returns the SQL flavor of the open database.
func (d *DB) Dialect() Dialect { return d.dialect }

// Begin starts a transaction.
func (d *DB) Begin(ctx context.Context) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, nil)
}

// Rebind rewrites `?` placeholders to `$1..$n` for Postgres. Queries in
// this codebase never contain a literal question mark inside a string, so
// a plain scan suffices.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// InsertReturningPk runs an INSERT written without a RETURNING clause and
// returns the generated surrogate key. SQLite uses LastInsertId; Postgres
// appends RETURNING pk, since its driver does not support LastInsertId.
func (d *DB) InsertReturningPk(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	if d.dialect == Postgres {
		var pk int64
		err := q.QueryRowContext(ctx, d.Rebind(query+" RETURNING pk"), args...).Scan(&pk)
		if err != nil {
			return 0, err
		}
		return pk, nil
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ToMillis converts a time to persisted UTC millisecond form.
func ToMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// FromMillis reverses ToMillis for persisted millisecond timestamps.
func FromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// ToNullMillis maps optional domain times to sql.NullInt64 for nullable
// columns.
func ToNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ToMillis(*value), Valid: true}
}

// FromNullMillis maps nullable SQL timestamps back into optional domain
// time values.
func FromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := FromMillis(value.Int64)
	return &t
}
