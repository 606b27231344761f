// Package database provides SQLite connectivity for netmuxd.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from any fs.FS
//   - Connection lifecycle and health checks
//
// The database holds device session history only. Losing it never affects
// device supervision.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Migrations are additive: new columns must be
// NULLABLE or have DEFAULT values.
package database
