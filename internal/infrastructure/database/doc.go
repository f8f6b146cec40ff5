// Package database provides the SQLite store behind the fault journal.
//
// Open creates the file (mode 0600) and its directory, enables foreign keys
// and optionally WAL mode, and pins the pool to a single connection so
// SQLite's single-writer model is never contended from inside the process.
//
// Migrations are read from any fs.FS whose top level holds files named
// YYYYMMDD_HHMMSS_name.up.sql and YYYYMMDD_HHMMSS_name.down.sql. The
// migrations package at the repository root embeds the production set:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
