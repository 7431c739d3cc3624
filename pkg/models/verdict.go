package models

import "time"

// VerdictOutcome is the discrete hint a scorer attaches to a verdict.
type VerdictOutcome string

const (
	// OutcomeAccept indicates the work is accept-worthy.
	OutcomeAccept VerdictOutcome = "accept"
	// OutcomeRetry indicates the work needs another turn.
	OutcomeRetry VerdictOutcome = "retry"
	// OutcomeEscalate indicates the work needs a human decision.
	OutcomeEscalate VerdictOutcome = "escalate"
)

// Valid returns true if the outcome is a known value.
func (o VerdictOutcome) Valid() bool {
	switch o {
	case OutcomeAccept, OutcomeRetry, OutcomeEscalate:
		return true
	default:
		return false
	}
}

// QualityVerdict is a scorer's judgment of one turn's output.
// Verdicts are immutable once produced and are only ever appended
// to a task's history.
type QualityVerdict struct {
	// Score is the quality score in [0.0, 1.0].
	Score float64 `json:"score"`
	// Outcome is the discrete decision hint.
	Outcome VerdictOutcome `json:"outcome"`
	// Rationale is the scorer's free-form explanation.
	Rationale string `json:"rationale"`
}

// WorkArtifact is one unit of implementer output for a single turn.
type WorkArtifact struct {
	// TaskID identifies the task this work belongs to.
	TaskID string `json:"task_id"`
	// Turn is the turn number this artifact was produced for (1-indexed).
	Turn int `json:"turn"`
	// Content is the generated output.
	Content string `json:"content"`
	// CostTokens is the context cost of producing this artifact,
	// as reported by the backing implementer.
	CostTokens int64 `json:"cost_tokens"`
	// ProducedAt is when the artifact was generated.
	ProducedAt time.Time `json:"produced_at"`
}
