// Package storage owns the SQLite database shared by the inventory, request
// and role stores: connection setup, schema migration and transactions.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx so repositories can run
// inside or outside a transaction.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB struct {
	*sqlx.DB
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. Transactions take the write lock up front (_txlock=immediate) so a
// read-validate-write unit cannot interleave with another writer.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
	}
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)
	sqlDB.SetMaxOpenConns(1)

	// modernc registers as "sqlite"; sqlx only knows the bindvar style by the
	// mattn name.
	db := &DB{DB: sqlx.NewDb(sqlDB, "sqlite3")}
	if err := db.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (db *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// IsTransient reports whether err is a lock contention error that is safe to
// retry by re-running the whole unit of work.
func IsTransient(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// MillisToTime converts a stored unix-millisecond column to UTC time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
