// Package sqlite provides a SQLite-backed clan storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/guildworks/clanhall/internal/platform/storage/sqlitemigrate"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
	"github.com/guildworks/clanhall/internal/services/clans/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists clan state in a single SQLite file. That file is the whole
// durable state: copying it while no writes are in flight, or replacing it
// wholesale and reopening, yields a consistent store.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite clan store and applies embedded migrations.
//
// The connection runs in WAL mode with foreign keys on, and every transaction
// begins immediate so concurrent check-then-write operations serialize rather
// than race.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close checkpoints the WAL and closes the SQLite handle. Nil-safe so callers
// can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	// Fold the WAL back into the main file so the database is a single
	// snapshottable artifact after shutdown.
	_, _ = s.sqlDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.sqlDB.Close()
}

// beginTx starts a write transaction. The _txlock=immediate DSN option makes
// the write lock attach at BEGIN, which keeps capacity checks and their
// follow-up writes serialized across concurrent callers.
func (s *Store) beginTx(ctx context.Context) (*sql.Tx, error) {
	return s.sqlDB.BeginTx(ctx, nil)
}

func rollbackWith(tx *sql.Tx, cause error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("%w: rollback: %v", cause, rollbackErr)
	}
	return cause
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

var _ storage.ClanStore = (*Store)(nil)
var _ storage.MemberStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.InvitationStore = (*Store)(nil)
var _ storage.ChannelStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)
