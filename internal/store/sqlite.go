package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// sqliteSchemaVersion is stored in PRAGMA user_version and bumped whenever
// schema_sqlite.sql changes.
const sqliteSchemaVersion = 1

// ErrSchemaMismatch is returned when an existing database file was created by
// a different schema revision.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLite result codes (primary code in the low byte).
const (
	codeBusy       = 5
	codeConstraint = 19
)

// Busy retry policy: up to busyAttempts tries with doubling waits capped at
// busyBackoffCap.
const (
	busyAttempts     = 5
	busyBackoffStart = 10 * time.Millisecond
	busyBackoffCap   = 200 * time.Millisecond
)

// SQLite is the embedded attendance store.
type SQLite struct {
	db     *sql.DB
	path   string
	minGap time.Duration
}

// OpenSQLite opens or creates the database at path. minGap is the minimum
// time between a check-in and the check-out that closes it.
func OpenSQLite(ctx context.Context, path string, minGap time.Duration) (*SQLite, error) {
	ctx = ensureContext(ctx)
	// busy_timeout and foreign_keys apply per connection; pinning the pool to
	// one connection serializes writers and keeps the pragmas in effect.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path, minGap: minGap}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ensureContext(ctx))
}

// migrate switches the file to WAL and creates the schema on a fresh file.
func (s *SQLite) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	switch version {
	case sqliteSchemaVersion:
		return nil
	case 0:
	default:
		return fmt.Errorf("%w: %s is at version %d, this build expects %d (move the file aside to recreate it)",
			ErrSchemaMismatch, s.path, version, sqliteSchemaVersion)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		// PRAGMA does not accept bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	})
}

// sqliteCode extracts the primary result code from a modernc driver error.
func sqliteCode(err error) (int, bool) {
	var coded interface{ Code() int }
	if !errors.As(err, &coded) {
		return 0, false
	}
	return coded.Code() & 0xff, true
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		return code == codeBusy
	}
	return strings.Contains(err.Error(), "database is locked")
}

func isSQLiteConstraint(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		return code == codeConstraint
	}
	return strings.Contains(err.Error(), "constraint failed")
}

// retryOnBusy reruns op while sqlite reports SQLITE_BUSY.
func retryOnBusy(ctx context.Context, op func() error) error {
	wait := busyBackoffStart
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || attempt == busyAttempts || !isSQLiteBusy(err) {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, busyBackoffCap)
	}
}

func (s *SQLite) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// withTx runs fn inside a transaction, retrying the whole transaction while
// the database is busy.
func (s *SQLite) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t sql.NullString) *time.Time {
	if !t.Valid || t.String == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, t.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func nullableDuration(seconds sql.NullInt64) *time.Duration {
	if !seconds.Valid {
		return nil
	}
	d := time.Duration(seconds.Int64) * time.Second
	return &d
}

func nullableInt(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
