// Package sqlite provides SQLite-backed persistence for Sentry: the
// time-series store, the incident store with its action-record audit
// trail, the model registry, and the feedback store. Uses WAL mode for
// concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Enriched events persisted from the batcher.
		`CREATE TABLE IF NOT EXISTS events (
			fingerprint  TEXT PRIMARY KEY,
			source       TEXT NOT NULL,
			kind         TEXT NOT NULL,
			severity     TEXT NOT NULL,
			processed_at INTEGER NOT NULL,
			body         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_processed ON events(processed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,

		// Time-series store: one row per metric observation.
		`CREATE TABLE IF NOT EXISTS timeseries (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			metric TEXT NOT NULL,
			ts     INTEGER NOT NULL,
			value  REAL NOT NULL,
			tags   TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timeseries_metric_ts ON timeseries(metric, ts)`,

		// Retention policies applied by the daily sweep.
		`CREATE TABLE IF NOT EXISTS retention_policies (
			name TEXT PRIMARY KEY,
			days INTEGER NOT NULL
		)`,

		// Incident store.
		`CREATE TABLE IF NOT EXISTS incidents (
			id         TEXT PRIMARY KEY,
			threat_id  TEXT NOT NULL,
			severity   TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			body       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_created ON incidents(created_at)`,

		// Append-only remediation audit trail.
		`CREATE TABLE IF NOT EXISTS action_records (
			id           TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			threat_id    TEXT NOT NULL,
			action       TEXT NOT NULL,
			status       TEXT NOT NULL,
			executed_at  INTEGER NOT NULL,
			body         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_execution ON action_records(execution_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_threat ON action_records(threat_id)`,

		// Model registry: versioned metadata plus the active pointer.
		`CREATE TABLE IF NOT EXISTS model_registry (
			id         TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			version    INTEGER NOT NULL,
			trained_at INTEGER NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT 0,
			body       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_models_name ON model_registry(model_name, version)`,

		// Feedback store backing the training buffer across restarts.
		`CREATE TABLE IF NOT EXISTS feedback (
			id           TEXT PRIMARY KEY,
			threat_id    TEXT NOT NULL,
			submitted_at INTEGER NOT NULL,
			body         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_submitted ON feedback(submitted_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
