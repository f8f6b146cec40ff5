package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// ErrMigrationMissing is returned by MigrateDown when the latest applied
// version has no file in the supplied filesystem.
var ErrMigrationMissing = errors.New("migration not found")

// Migration is one versioned schema change loaded from a pair of files
// named YYYYMMDD_HHMMSS_name.up.sql and YYYYMMDD_HHMMSS_name.down.sql.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// AppliedMigration is a row in schema_migrations.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// Status describes which migrations in a filesystem have been applied.
type Status struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Migrate applies every migration in fsys that has not been applied yet,
// oldest first. Each migration commits in its own transaction, so a failure
// at migration N leaves 1..N-1 in place and a re-run resumes at N.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	status, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return err
	}

	for _, m := range status.Pending {
		if err := db.WithTx(ctx, func(tx *sql.Tx) error { return applyUp(ctx, tx, m) }); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration. It is a no-op
// on a database with nothing applied.
func (db *DB) MigrateDown(ctx context.Context, fsys fs.FS) error {
	status, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return err
	}
	if len(status.Applied) == 0 {
		return nil
	}

	latest := status.Applied[len(status.Applied)-1].Version

	all, err := loadMigrations(fsys)
	if err != nil {
		return err
	}
	idx := sort.Search(len(all), func(i int) bool { return all[i].Version >= latest })
	if idx == len(all) || all[idx].Version != latest {
		return fmt.Errorf("%w: %s", ErrMigrationMissing, latest)
	}
	m := all[idx]
	if m.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", m.Version)
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return fmt.Errorf("executing down SQL: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
			return fmt.Errorf("removing migration record: %w", err)
		}
		return nil
	})
}

// MigrationStatus reports applied and pending migrations, creating the
// bookkeeping table on first use.
func (db *DB) MigrationStatus(ctx context.Context, fsys fs.FS) (Status, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return Status{}, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return Status{}, err
	}
	all, err := loadMigrations(fsys)
	if err != nil {
		return Status{}, err
	}

	done := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}

	status := Status{Applied: applied}
	for _, m := range all {
		if _, ok := done[m.Version]; !ok {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var at string
		if err := rows.Scan(&a.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by applyUp
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return out, nil
}

func applyUp(ctx context.Context, tx *sql.Tx, m Migration) error {
	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return nil
}

// migrationFile is a parsed migration filename.
type migrationFile struct {
	version string
	name    string
	up      bool
}

// parseMigrationFilename splits "20260118_120000_create_journal.up.sql"
// into its version, name and direction.
func parseMigrationFilename(filename string) (migrationFile, bool) {
	base, ok := strings.CutSuffix(filename, ".sql")
	if !ok {
		return migrationFile{}, false
	}

	var f migrationFile
	if b, ok := strings.CutSuffix(base, ".up"); ok {
		f.up, base = true, b
	} else if b, ok := strings.CutSuffix(base, ".down"); ok {
		base = b
	} else {
		return migrationFile{}, false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 || !allDigits(parts[0], 8) || !allDigits(parts[1], 6) {
		return migrationFile{}, false
	}
	f.version = parts[0] + "_" + parts[1]
	f.name = f.version
	if len(parts) == 3 && parts[2] != "" {
		f.name = parts[2]
	}
	return f, true
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// loadMigrations reads the top level of fsys. Files that do not follow the
// naming scheme are ignored; a down file without an up file is an error.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := parseMigrationFilename(e.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Clean(e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		m := byVersion[f.version]
		if m == nil {
			m = &Migration{Version: f.version}
			byVersion[f.version] = m
		}
		if f.up {
			m.Name = f.name
			m.UpSQL = string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s has a down file but no up file", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
