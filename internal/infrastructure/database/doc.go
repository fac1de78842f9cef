// Package database provides the SQLite store of the controller.
//
// The controller keeps no device state on disk; the database only holds the
// command audit trail. This package owns the connection and the schema:
//   - Open creates the directory and file, enables WAL mode and the busy
//     timeout, and verifies the connection
//   - Migrate applies the embedded, forward-only migrations in order
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named NNNN_description.sql. The number is the
// version; files are applied in ascending order, each in its own
// transaction, and recorded in schema_migrations.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
package database
