// Package db provides database connection helpers, schema migration, and the Store that every
// other component of the bot reads and writes through.
//
// Two drivers are supported: Postgres (pgx, the production default) and SQLite (modernc, used for
// single-box deployments and the test suite). Queries are written with '?' placeholders and
// rebound to '$n' for Postgres.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // pure-go sqlite driver registered as 'sqlite'
)

// Driver names accepted by Connect.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness rule would be violated.
	ErrConflict = errors.New("already exists")
)

// Connect opens a database handle for the given driver. SQLite handles are limited to one open
// connection: the bot is a single writer and ':memory:' databases are per-connection.
func Connect(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			dsn = filepath.Clean(dsn) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		}
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		return sqlDB, nil
	case DriverPostgres, "":
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres db: %w", err)
		}
		return sqlDB, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Store is the bot's persistence contract over rooms, topics, questions, the outbound queue,
// occupancy samples, the audit cursor and the kv table.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewStore wraps an open handle. The schema must already be migrated.
func NewStore(sqlDB *sql.DB, driver string) *Store {
	if driver == "" {
		driver = DriverPostgres
	}
	return &Store{db: sqlDB, driver: driver, now: time.Now}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the driver name the store was created with.
func (s *Store) Driver() string { return s.driver }

// Close closes the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// q rebinds '?' placeholders for the active driver.
func (s *Store) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	return rebind(query)
}

func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) stamp() int64 { return s.now().UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// isUniqueViolation reports whether err came from a UNIQUE / PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

// rollback is used in deferred cleanup; the error after a commit is sql.ErrTxDone and is ignored.
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
