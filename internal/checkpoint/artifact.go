// Package checkpoint persists and restores continuation artifacts so a
// task can be handed off across sessions. The artifact file on disk is
// the source of truth for whether a handoff exists; database flags are
// advisory and reconciled from it.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/baton/pkg/models"
)

// ArtifactVersion is the current continuation artifact schema version.
const ArtifactVersion = 1

// Artifact is the continuation state written at a checkpoint. Fields the
// current version does not know about are preserved verbatim across a
// load/save cycle, so artifacts written by newer versions survive being
// resumed by older ones.
type Artifact struct {
	// Version is the artifact schema version.
	Version int `json:"artifact_version"`
	// Sequence is the monotonic handoff counter. Higher wins on resume.
	Sequence int `json:"sequence"`
	// GeneratedAt is when the checkpoint was taken.
	GeneratedAt time.Time `json:"generated_at"`
	// TaskID is the task being handed off.
	TaskID string `json:"task_id"`
	// SessionID is the session that wrote the artifact.
	SessionID string `json:"session_id"`
	// TurnCount is the number of fully scored turns so far.
	TurnCount int `json:"turn_count"`
	// TurnBudget is the effective budget, including any grace extension.
	TurnBudget int `json:"turn_budget"`
	// GraceExtensionUsed records whether the one-time extension was spent.
	GraceExtensionUsed bool `json:"grace_extension_used"`
	// InterruptedTurn is the turn that was in flight when the checkpoint
	// fired, or 0 if the checkpoint landed on a turn boundary. A resumed
	// engine re-issues this turn; it was never scored or counted.
	InterruptedTurn int `json:"interrupted_turn"`
	// VerdictHistory is the full verdict record up to the checkpoint.
	VerdictHistory []models.QualityVerdict `json:"verdict_history"`
	// CompletedSubtasks lists work items finished before the handoff.
	CompletedSubtasks []string `json:"completed_subtasks"`
	// PendingSteps lists work items the resuming session should pick up.
	PendingSteps []string `json:"pending_steps"`
	// TestStatus is a freeform summary of the test suite at handoff time.
	TestStatus string `json:"test_status"`
	// LastCommitRef is the git HEAD at handoff time, if available.
	LastCommitRef string `json:"last_commit_ref"`

	// extra holds fields from artifact versions this build does not know.
	extra map[string]json.RawMessage
}

// knownArtifactFields are the JSON keys the current version owns.
var knownArtifactFields = map[string]bool{
	"artifact_version":     true,
	"sequence":             true,
	"generated_at":         true,
	"task_id":              true,
	"session_id":           true,
	"turn_count":           true,
	"turn_budget":          true,
	"grace_extension_used": true,
	"interrupted_turn":     true,
	"verdict_history":      true,
	"completed_subtasks":   true,
	"pending_steps":        true,
	"test_status":          true,
	"last_commit_ref":      true,
}

// requiredArtifactFields must be present for an artifact to be usable.
var requiredArtifactFields = []string{
	"artifact_version",
	"task_id",
	"turn_count",
	"turn_budget",
}

// artifactAlias avoids MarshalJSON/UnmarshalJSON recursion.
type artifactAlias Artifact

// UnmarshalJSON decodes an artifact, validating required fields and
// retaining unrecognized ones.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &CorruptArtifactError{Reason: "not a JSON object", Err: err}
	}

	for _, field := range requiredArtifactFields {
		if _, ok := raw[field]; !ok {
			return &CorruptArtifactError{Reason: fmt.Sprintf("missing required field %q", field)}
		}
	}

	var alias artifactAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return &CorruptArtifactError{Reason: "malformed field", Err: err}
	}
	*a = Artifact(alias)

	if a.Version < 1 {
		return &CorruptArtifactError{Reason: fmt.Sprintf("invalid artifact_version %d", a.Version)}
	}
	if a.TaskID == "" {
		return &CorruptArtifactError{Reason: "empty task_id"}
	}
	if a.TurnBudget <= 0 {
		return &CorruptArtifactError{Reason: fmt.Sprintf("invalid turn_budget %d", a.TurnBudget)}
	}
	if a.TurnCount < 0 {
		return &CorruptArtifactError{Reason: fmt.Sprintf("invalid turn_count %d", a.TurnCount)}
	}

	for key, val := range raw {
		if knownArtifactFields[key] {
			continue
		}
		if a.extra == nil {
			a.extra = make(map[string]json.RawMessage)
		}
		a.extra[key] = val
	}
	return nil
}

// MarshalJSON encodes the artifact, merging back any fields preserved
// from an unknown version. Known fields always win over preserved ones.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(artifactAlias(*a))
	if err != nil {
		return nil, err
	}
	if len(a.extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for key, val := range a.extra {
		if _, ok := merged[key]; !ok {
			merged[key] = val
		}
	}
	return json.Marshal(merged)
}

// ExtraFields returns the JSON keys preserved from an unknown artifact
// version, for diagnostics.
func (a *Artifact) ExtraFields() []string {
	keys := make([]string, 0, len(a.extra))
	for k := range a.extra {
		keys = append(keys, k)
	}
	return keys
}

// CorruptArtifactError indicates an artifact file that exists but cannot
// be trusted. A corrupt artifact halts resume; it is never silently
// skipped in favor of an older one.
type CorruptArtifactError struct {
	// Path is the offending file, when known.
	Path string
	// Reason describes the corruption.
	Reason string
	// Err is the underlying decode error, if any.
	Err error
}

func (e *CorruptArtifactError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corrupt continuation artifact %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("corrupt continuation artifact: %s", e.Reason)
}

func (e *CorruptArtifactError) Unwrap() error {
	return e.Err
}
