package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ShayCichocki/baton/pkg/models"
)

// artifactGlob matches handoff artifact filenames. The sequence number
// is embedded in the name so ordering survives filesystem timestamp
// granularity: two artifacts written in the same instant still have a
// total order.
const artifactGlob = "handoff-*.json"

// artifactName formats the filename for a given sequence.
func artifactName(seq int) string {
	return fmt.Sprintf("handoff-%06d.json", seq)
}

// Store is the slice of the state store the checkpoint manager needs.
type Store interface {
	GetTask(id string) (*models.Task, error)
	UpdateTask(task *models.Task) error
	GetSession(id string) (*models.Session, error)
	UpdateSession(session *models.Session) error
}

// Manager writes and restores continuation artifacts in a handoff
// directory.
type Manager struct {
	dir   string
	store Store
}

// NewManager creates a manager over the given handoff directory.
func NewManager(dir string, store Store) *Manager {
	return &Manager{dir: dir, store: store}
}

// Dir returns the handoff directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Snapshot carries the working-state details only the engine knows at
// checkpoint time.
type Snapshot struct {
	// InterruptedTurn is the in-flight turn, or 0 on a turn boundary.
	InterruptedTurn int
	// CompletedSubtasks lists finished work items.
	CompletedSubtasks []string
	// PendingSteps lists remaining work items.
	PendingSteps []string
	// TestStatus summarizes the test suite.
	TestStatus string
	// LastCommitRef is the current git HEAD, if available.
	LastCommitRef string
}

// Checkpoint assembles a continuation artifact for the task and session
// and persists it. The artifact is written and durably renamed into
// place before the session record is flagged, so a crash between the two
// steps leaves the authoritative state (the file) ahead of the advisory
// one (the flag), never behind it.
func (m *Manager) Checkpoint(task *models.Task, session *models.Session, snap Snapshot) (*Artifact, error) {
	if task == nil {
		return nil, fmt.Errorf("checkpoint requires a task")
	}
	if session == nil {
		return nil, fmt.Errorf("checkpoint requires a session")
	}

	seq, err := m.nextSequence()
	if err != nil {
		return nil, err
	}

	art := &Artifact{
		Version:            ArtifactVersion,
		Sequence:           seq,
		GeneratedAt:        time.Now().UTC(),
		TaskID:             task.ID,
		SessionID:          session.ID,
		TurnCount:          task.TurnCount,
		TurnBudget:         task.TurnBudget,
		GraceExtensionUsed: task.GraceExtensionUsed,
		InterruptedTurn:    snap.InterruptedTurn,
		VerdictHistory:     task.Verdicts,
		CompletedSubtasks:  snap.CompletedSubtasks,
		PendingSteps:       snap.PendingSteps,
		TestStatus:         snap.TestStatus,
		LastCommitRef:      snap.LastCommitRef,
	}

	if err := m.write(art); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session.Status = models.SessionCheckpointed
	session.CheckpointedAt = &now
	if err := m.store.UpdateSession(session); err != nil {
		return nil, fmt.Errorf("flag session checkpointed: %w", err)
	}

	return art, nil
}

// write persists the artifact atomically: a full write to a temp file in
// the same directory, then a rename. Readers never observe a partial
// artifact.
func (m *Manager) write(art *Artifact) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("create handoff directory: %w", err)
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	final := filepath.Join(m.dir, artifactName(art.Sequence))
	tmp, err := os.CreateTemp(m.dir, "handoff-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}

// Load reads and validates the artifact at path.
func (m *Manager) Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		var corrupt *CorruptArtifactError
		if errors.As(err, &corrupt) {
			corrupt.Path = path
			return nil, corrupt
		}
		return nil, &CorruptArtifactError{Path: path, Reason: "invalid JSON", Err: err}
	}
	return &art, nil
}

// Latest returns the artifact with the highest sequence number, or
// (nil, nil) when no handoff exists. A corrupt latest artifact is an
// error, not a fallthrough to an older one.
func (m *Manager) Latest() (*Artifact, error) {
	path, ok, err := m.latestPath()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return m.Load(path)
}

// latestPath finds the highest-sequence artifact file.
func (m *Manager) latestPath() (string, bool, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, artifactGlob))
	if err != nil {
		return "", false, fmt.Errorf("scan handoff directory: %w", err)
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	// Zero-padded sequence numbers make lexical order the sequence order.
	sort.Strings(matches)
	return matches[len(matches)-1], true, nil
}

// nextSequence returns one past the highest sequence on disk, starting
// at 1.
func (m *Manager) nextSequence() (int, error) {
	path, ok, err := m.latestPath()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}

	var seq int
	name := filepath.Base(path)
	if _, err := fmt.Sscanf(name, "handoff-%d.json", &seq); err != nil {
		return 0, fmt.Errorf("parse artifact sequence from %q: %w", name, err)
	}
	return seq + 1, nil
}

// Resume restores task state from the latest continuation artifact.
// It returns (nil, nil) when there is nothing to resume. The artifact is
// authoritative: the task and session records are reconciled to match
// it, including the case where a crash left the session record unflagged
// after the artifact was written. Resume is idempotent; running it twice
// against the same artifact converges on the same state.
func (m *Manager) Resume() (*Artifact, error) {
	path, ok, err := m.latestPath()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	art, err := m.Load(path)
	if err != nil {
		return nil, err
	}

	task, err := m.store.GetTask(art.TaskID)
	if err != nil {
		return nil, fmt.Errorf("look up task %s: %w", art.TaskID, err)
	}
	// An artifact pointing outside the store is as untrustworthy as one
	// that fails to parse; it halts resume the same way.
	if task == nil {
		return nil, &CorruptArtifactError{Path: path, Reason: fmt.Sprintf("references unknown task %s", art.TaskID)}
	}
	if task.Status.Terminal() {
		return nil, &CorruptArtifactError{Path: path, Reason: fmt.Sprintf("references completed task %s (status %s)", task.ID, task.Status)}
	}

	task.TurnCount = art.TurnCount
	task.TurnBudget = art.TurnBudget
	task.GraceExtensionUsed = art.GraceExtensionUsed
	task.Status = models.TaskStatusRunning
	if err := m.store.UpdateTask(task); err != nil {
		return nil, fmt.Errorf("reconcile task from artifact: %w", err)
	}

	if art.SessionID != "" {
		sess, err := m.store.GetSession(art.SessionID)
		if err != nil {
			return nil, fmt.Errorf("look up session %s: %w", art.SessionID, err)
		}
		if sess != nil && sess.Status == models.SessionActive {
			now := time.Now().UTC()
			sess.Status = models.SessionCheckpointed
			sess.CheckpointedAt = &now
			if err := m.store.UpdateSession(sess); err != nil {
				return nil, fmt.Errorf("reconcile session from artifact: %w", err)
			}
		}
	}

	return art, nil
}

// Clear removes all handoff artifacts. Called when a task reaches a
// terminal state and no continuation remains to hand off.
func (m *Manager) Clear() error {
	matches, err := filepath.Glob(filepath.Join(m.dir, artifactGlob))
	if err != nil {
		return fmt.Errorf("scan handoff directory: %w", err)
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove artifact %s: %w", path, err)
		}
	}
	return nil
}
