// Package state provides SQLite-based persistence for baton tasks,
// sessions, and verdict history. State lives in the project-local
// .baton/state.db so a task survives across execution sessions.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database connection with baton-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// ProjectDBPath returns the path to the project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".baton", "state.db")
}

// Open opens an SQLite database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenProject opens the project-local database.
func OpenProject(projectRoot string) (*DB, error) {
	return Open(ProjectDBPath(projectRoot))
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
		{2, migrationV2Sessions},
		{3, migrationV3Verdicts},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	description TEXT,
	task_type TEXT NOT NULL DEFAULT 'codegen',
	status TEXT NOT NULL DEFAULT 'pending',
	turn_count INTEGER NOT NULL DEFAULT 0,
	turn_budget INTEGER NOT NULL DEFAULT 5,
	grace_extension_used INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

const migrationV2Sessions = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	context_used REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	started_at DATETIME NOT NULL,
	checkpointed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_task_id ON sessions(task_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

const migrationV3Verdicts = `
CREATE TABLE IF NOT EXISTS verdicts (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	turn INTEGER NOT NULL,
	score REAL NOT NULL,
	outcome TEXT NOT NULL,
	rationale TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_task_id ON verdicts(task_id);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

// PurgeOldSessions deletes non-active sessions older than the given duration.
// Returns the number of sessions deleted.
func (db *DB) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`
		DELETE FROM sessions WHERE started_at < ? AND status != 'active'
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return count, nil
}
