package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/baton/pkg/models"
)

// Task CRUD operations. Verdict history is stored in its own table and
// loaded alongside the task so callers always see the full history.

// CreateTask creates a new task. The verdict history, if any, is persisted
// through AppendVerdict and is ignored here.
func (db *DB) CreateTask(t *models.Task) error {
	_, err := db.Exec(`
		INSERT INTO tasks (id, project_id, description, task_type, status, turn_count, turn_budget, grace_extension_used, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Description, string(t.Type), string(t.Status),
		t.TurnCount, t.TurnBudget, boolToInt(t.GraceExtensionUsed), t.Error,
		formatTime(t.CreatedAt), nullableTimeString(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID, including its full verdict history.
// Returns nil if the task does not exist.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, project_id, description, task_type, status, turn_count, turn_budget, grace_extension_used, error, created_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	verdicts, err := db.ListVerdicts(id)
	if err != nil {
		return nil, err
	}
	t.Verdicts = verdicts

	return t, nil
}

// UpdateTask updates a task's mutable fields. Verdict history is append-only
// and is not touched here.
func (db *DB) UpdateTask(t *models.Task) error {
	_, err := db.Exec(`
		UPDATE tasks SET project_id = ?, description = ?, task_type = ?, status = ?,
			turn_count = ?, turn_budget = ?, grace_extension_used = ?, error = ?, completed_at = ?
		WHERE id = ?
	`, t.ProjectID, t.Description, string(t.Type), string(t.Status),
		t.TurnCount, t.TurnBudget, boolToInt(t.GraceExtensionUsed), t.Error,
		nullableTimeString(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// ListTasksByProject lists all tasks owned by a project, oldest first.
// Verdict histories are not loaded; use GetTask for the full record.
func (db *DB) ListTasksByProject(projectID string) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, project_id, description, task_type, status, turn_count, turn_budget, grace_extension_used, error, created_at, completed_at
		FROM tasks WHERE project_id = ? ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by project: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// AppendVerdict records one verdict for a task. Verdicts are never updated
// or deleted; the seq column preserves insertion order.
func (db *DB) AppendVerdict(taskID string, turn int, v models.QualityVerdict) error {
	_, err := db.Exec(`
		INSERT INTO verdicts (task_id, turn, score, outcome, rationale, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, taskID, turn, v.Score, string(v.Outcome), v.Rationale, formatTime(nowUTC()))
	if err != nil {
		return fmt.Errorf("append verdict: %w", err)
	}
	return nil
}

// ListVerdicts returns a task's verdicts in insertion order.
func (db *DB) ListVerdicts(taskID string) ([]models.QualityVerdict, error) {
	rows, err := db.Query(`
		SELECT score, outcome, rationale FROM verdicts WHERE task_id = ? ORDER BY seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []models.QualityVerdict
	for rows.Next() {
		var v models.QualityVerdict
		var rationale sql.NullString
		if err := rows.Scan(&v.Score, &v.Outcome, &rationale); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		if rationale.Valid {
			v.Rationale = rationale.String
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

// scanTask scans one task row.
func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	var createdAt string
	var completedAt sql.NullString
	var description, taskErr sql.NullString
	var grace int

	err := s.Scan(&t.ID, &t.ProjectID, &description, &t.Type, &t.Status,
		&t.TurnCount, &t.TurnBudget, &grace, &taskErr, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = description.String
	}
	if taskErr.Valid {
		t.Error = taskErr.String
	}
	t.GraceExtensionUsed = grace != 0
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableTimeString formats an optional time for SQLite storage.
func nullableTimeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
