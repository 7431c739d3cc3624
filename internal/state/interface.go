// Package state provides SQLite-based persistence for baton.
package state

import (
	"io"

	"github.com/ShayCichocki/baton/pkg/models"
)

// TaskStore handles task-related persistence operations.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasksByProject(projectID string) ([]models.Task, error)
}

// SessionStore handles session-related persistence operations.
type SessionStore interface {
	CreateSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)
	UpdateSession(s *models.Session) error
	GetActiveSession() (*models.Session, error)
}

// VerdictStore handles verdict history persistence. The history is
// append-only: there is deliberately no update or delete operation.
type VerdictStore interface {
	AppendVerdict(taskID string, turn int, v models.QualityVerdict) error
	ListVerdicts(taskID string) ([]models.QualityVerdict, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for state persistence.
// This interface allows callers to work with any state backend without
// depending on the concrete SQLite implementation. It composes focused
// sub-interfaces for better modularity.
type StateStore interface {
	io.Closer
	Migrator
	TaskStore
	SessionStore
	VerdictStore
}

// ReadOnlyStore is the subset of StateStore safe to hand to the query path.
// It carries no write operations, so the read path is incapable of mutating
// persisted state by construction.
type ReadOnlyStore interface {
	GetTask(id string) (*models.Task, error)
	ListTasksByProject(projectID string) ([]models.Task, error)
	GetSession(id string) (*models.Session, error)
	GetActiveSession() (*models.Session, error)
	ListSessions(status *models.SessionStatus) ([]models.Session, error)
	ListVerdicts(taskID string) ([]models.QualityVerdict, error)
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore    = (*DB)(nil)
	_ Migrator      = (*DB)(nil)
	_ TaskStore     = (*DB)(nil)
	_ SessionStore  = (*DB)(nil)
	_ VerdictStore  = (*DB)(nil)
	_ ReadOnlyStore = (*DB)(nil)
)
