package sqlite

import (
	"database/sql"
	"fmt"
)

// ApplyMigrations applies all database migrations in order.
func ApplyMigrations(db *sql.DB) error {
	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("could not enable foreign keys: %w", err)
	}

	// Create migrations table
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	// Apply each migration
	migrations := []struct {
		version int
		name    string
		sql     string
	}{
		{1, "create_entity_links_table", createEntityLinksTable},
		{2, "create_checkpoints_table", createCheckpointsTable},
		{3, "create_checkpoint_collections_table", createCheckpointCollectionsTable},
		{4, "create_checkpoint_links_table", createCheckpointLinksTable},
		{5, "create_sync_runs_table", createSyncRunsTable},
		{6, "create_indices", createIndices},
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}

		if applied {
			continue
		}

		// Apply migration
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}

		// Record migration
		if err := recordMigration(db, m.version, m.name); err != nil {
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
	}

	return nil
}

// createMigrationsTable creates the migrations tracking table.
func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// isMigrationApplied checks if a migration has been applied.
func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// recordMigration records that a migration has been applied.
func recordMigration(db *sql.DB, version int, name string) error {
	_, err := db.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", version, name)
	return err
}

// Migration SQL statements

const createEntityLinksTable = `
CREATE TABLE entity_links (
	kind TEXT NOT NULL,
	local_id TEXT NOT NULL,
	remote_id TEXT NOT NULL,
	baseline_hash TEXT,
	remote_revision TEXT,
	last_pushed_at TEXT,
	PRIMARY KEY (kind, local_id)
);
`

const createCheckpointsTable = `
CREATE TABLE checkpoints (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	machine_id TEXT,
	reason TEXT,
	kinds TEXT NOT NULL DEFAULT '[]',
	link_count INTEGER NOT NULL DEFAULT 0,
	size_bytes INTEGER NOT NULL DEFAULT 0
);
`

const createCheckpointCollectionsTable = `
CREATE TABLE checkpoint_collections (
	checkpoint_id TEXT NOT NULL REFERENCES checkpoints(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	present INTEGER NOT NULL,
	data BLOB,
	PRIMARY KEY (checkpoint_id, kind)
);
`

const createCheckpointLinksTable = `
CREATE TABLE checkpoint_links (
	checkpoint_id TEXT NOT NULL REFERENCES checkpoints(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	local_id TEXT NOT NULL,
	remote_id TEXT NOT NULL,
	baseline_hash TEXT,
	remote_revision TEXT,
	last_pushed_at TEXT,
	PRIMARY KEY (checkpoint_id, kind, local_id)
);
`

const createSyncRunsTable = `
CREATE TABLE sync_runs (
	id TEXT PRIMARY KEY,
	checkpoint_id TEXT,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	kinds TEXT NOT NULL DEFAULT '[]',
	pushed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	conflicts INTEGER NOT NULL DEFAULT 0,
	kind_errors INTEGER NOT NULL DEFAULT 0,
	report TEXT,
	machine_id TEXT
);
`

const createIndices = `
CREATE INDEX IF NOT EXISTS idx_entity_links_remote ON entity_links(kind, remote_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
`
