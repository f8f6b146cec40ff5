package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	msPerSecond = 1000

	// pingTimeout bounds the connectivity check in Open.
	pingTimeout = 5 * time.Second

	connMaxIdleTime = 30 * time.Minute
)

// DB is a single-writer SQLite handle with migration support.
type DB struct {
	*sql.DB
	path string
}

// Config contains SQLite connection options.
type Config struct {
	// Path is the database file. Missing parent directories are created.
	Path string

	// WALMode enables write-ahead logging so readers never block the writer.
	WALMode bool

	// BusyTimeout is how long a statement waits for a lock, in seconds.
	BusyTimeout int
}

// Open opens (creating if needed) the SQLite database at cfg.Path and
// verifies it answers within ctx.
//
// Returns:
//   - *DB: Connected database wrapper
//   - error: If the directory, file or connection cannot be set up
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// See https://github.com/mattn/go-sqlite3#connection-string
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer; a single connection serialises access.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file exists after the ping.
	if err := os.Chmod(cfg.Path, filePermissions); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("restricting database permissions: %w", err)
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the database. Safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
//
// Example:
//
//	err := db.WithTx(ctx, func(tx *sql.Tx) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM journal_entries WHERE created_at < ?", cutoff)
//	    return err
//	})
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
