package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/baton/pkg/models"
)

// setupDB creates a migrated test database in a temp directory.
func setupDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := setupDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("Second Migrate failed: %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	db := setupDB(t)

	task := &models.Task{
		ID:          "task-1",
		ProjectID:   "proj-1",
		Description: "Implement the widget",
		Type:        models.TaskTypeCodegen,
		Status:      models.TaskStatusPending,
		TurnBudget:  5,
		CreatedAt:   time.Now(),
	}

	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetTask returned nil")
	}
	if got.Description != "Implement the widget" {
		t.Errorf("Description = %q", got.Description)
	}
	if got.TurnBudget != 5 {
		t.Errorf("TurnBudget = %d, want 5", got.TurnBudget)
	}
	if got.GraceExtensionUsed {
		t.Error("GraceExtensionUsed should be false")
	}

	// Update and re-read
	got.Status = models.TaskStatusRunning
	got.TurnCount = 3
	got.TurnBudget = 10
	got.GraceExtensionUsed = true
	if err := db.UpdateTask(got); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got2, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got2.Status != models.TaskStatusRunning {
		t.Errorf("Status = %s", got2.Status)
	}
	if got2.TurnCount != 3 || got2.TurnBudget != 10 {
		t.Errorf("TurnCount/TurnBudget = %d/%d", got2.TurnCount, got2.TurnBudget)
	}
	if !got2.GraceExtensionUsed {
		t.Error("GraceExtensionUsed should be true")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	db := setupDB(t)

	got, err := db.GetTask("missing")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got != nil {
		t.Error("Expected nil for missing task")
	}
}

func TestVerdictHistoryAppendOnly(t *testing.T) {
	db := setupDB(t)

	task := &models.Task{
		ID:        "task-1",
		ProjectID: "proj-1",
		Type:      models.TaskTypeCodegen,
		Status:    models.TaskStatusRunning,
		CreatedAt: time.Now(),
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	verdicts := []models.QualityVerdict{
		{Score: 0.3, Outcome: models.OutcomeRetry, Rationale: "missing tests"},
		{Score: 0.6, Outcome: models.OutcomeRetry, Rationale: "tests fail"},
		{Score: 0.95, Outcome: models.OutcomeAccept, Rationale: "looks good"},
	}
	for i, v := range verdicts {
		if err := db.AppendVerdict("task-1", i+1, v); err != nil {
			t.Fatalf("AppendVerdict %d failed: %v", i, err)
		}
	}

	got, err := db.ListVerdicts("task-1")
	if err != nil {
		t.Fatalf("ListVerdicts failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 verdicts, got %d", len(got))
	}
	// Order and content must be preserved verbatim
	for i := range verdicts {
		if got[i].Score != verdicts[i].Score || got[i].Outcome != verdicts[i].Outcome || got[i].Rationale != verdicts[i].Rationale {
			t.Errorf("Verdict %d = %+v, want %+v", i, got[i], verdicts[i])
		}
	}

	// GetTask loads the history
	full, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(full.Verdicts) != 3 {
		t.Errorf("Expected 3 verdicts on task, got %d", len(full.Verdicts))
	}
}

func TestSessionCRUD(t *testing.T) {
	db := setupDB(t)

	sess := &models.Session{
		ID:        "sess-1",
		TaskID:    "task-1",
		Status:    models.SessionActive,
		StartedAt: time.Now(),
	}
	if err := db.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	active, err := db.GetActiveSession()
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if active == nil || active.ID != "sess-1" {
		t.Fatalf("Expected active session sess-1, got %+v", active)
	}

	now := time.Now()
	active.Status = models.SessionCheckpointed
	active.ContextUsed = 82.5
	active.CheckpointedAt = &now
	if err := db.UpdateSession(active); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != models.SessionCheckpointed {
		t.Errorf("Status = %s", got.Status)
	}
	if got.ContextUsed != 82.5 {
		t.Errorf("ContextUsed = %f", got.ContextUsed)
	}
	if got.CheckpointedAt == nil {
		t.Error("CheckpointedAt should be set")
	}

	// No active session remains
	active2, err := db.GetActiveSession()
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if active2 != nil {
		t.Errorf("Expected no active session, got %+v", active2)
	}
}

func TestListTasksByProject(t *testing.T) {
	db := setupDB(t)

	for _, id := range []string{"a", "b"} {
		task := &models.Task{
			ID:        id,
			ProjectID: "proj-1",
			Type:      models.TaskTypeCodegen,
			Status:    models.TaskStatusPending,
			CreatedAt: time.Now(),
		}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("CreateTask %s failed: %v", id, err)
		}
	}
	other := &models.Task{
		ID:        "c",
		ProjectID: "proj-2",
		Type:      models.TaskTypePlanning,
		Status:    models.TaskStatusPending,
		CreatedAt: time.Now(),
	}
	if err := db.CreateTask(other); err != nil {
		t.Fatalf("CreateTask c failed: %v", err)
	}

	tasks, err := db.ListTasksByProject("proj-1")
	if err != nil {
		t.Fatalf("ListTasksByProject failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(tasks))
	}
}
