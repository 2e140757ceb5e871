// Package database provides SQLite persistence for Nikobus Core.
//
// The database stores the command delivery log: every attempt to push a
// command onto the Nikobus installation bus is recorded with its outcome,
// attempt count, and latency. The store is append-mostly with periodic
// pruning.
//
// # SQLite Configuration
//
//   - WAL mode for concurrent reads during writes
//   - Busy timeout to ride out transient lock contention
//   - Single-writer connection pool (SQLite's natural model)
//   - Foreign keys enforced
//
// # Migrations
//
// Schema migrations are embedded into the binary via the migrations
// package and applied at startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files follow the naming convention
// YYYYMMDD_HHMMSS_description.up.sql with an optional matching .down.sql.
package database
