package state

import (
	"database/sql"
	"fmt"

	"github.com/ShayCichocki/baton/pkg/models"
)

// Session CRUD operations

// CreateSession creates a new session.
func (db *DB) CreateSession(s *models.Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, task_id, context_used, status, started_at, checkpointed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.TaskID, s.ContextUsed, string(s.Status), formatTime(s.StartedAt),
		nullableTimeString(s.CheckpointedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil if it does not exist.
func (db *DB) GetSession(id string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT id, task_id, context_used, status, started_at, checkpointed_at
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// UpdateSession updates a session.
func (db *DB) UpdateSession(s *models.Session) error {
	_, err := db.Exec(`
		UPDATE sessions SET task_id = ?, context_used = ?, status = ?, checkpointed_at = ?
		WHERE id = ?
	`, s.TaskID, s.ContextUsed, string(s.Status),
		nullableTimeString(s.CheckpointedAt), s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// ListSessions lists all sessions, newest first, optionally filtered by status.
func (db *DB) ListSessions(status *models.SessionStatus) ([]models.Session, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT id, task_id, context_used, status, started_at, checkpointed_at
			FROM sessions WHERE status = ? ORDER BY started_at DESC
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT id, task_id, context_used, status, started_at, checkpointed_at
			FROM sessions ORDER BY started_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// GetActiveSession returns the current active session, if any.
// At most one session is active at a time; if the database disagrees,
// the most recently started one wins.
func (db *DB) GetActiveSession() (*models.Session, error) {
	status := models.SessionActive
	sessions, err := db.ListSessions(&status)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// scanSession scans one session row.
func scanSession(s scanner) (*models.Session, error) {
	var sess models.Session
	var startedAt string
	var checkpointedAt sql.NullString

	err := s.Scan(&sess.ID, &sess.TaskID, &sess.ContextUsed, &sess.Status, &startedAt, &checkpointedAt)
	if err != nil {
		return nil, err
	}

	sess.StartedAt, _ = parseTime(startedAt)
	sess.CheckpointedAt = parseNullableTime(checkpointedAt)
	return &sess, nil
}
