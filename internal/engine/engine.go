// Package engine drives a task turn-by-turn to completion: it requests
// work from an implementer, has each turn scored, and decides accept,
// retry, or escalate under a turn budget. When the session's context
// budget runs out mid-task, it hands the task off through a checkpoint
// instead of losing progress.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/baton/internal/budget"
	"github.com/ShayCichocki/baton/internal/checkpoint"
	"github.com/ShayCichocki/baton/pkg/models"
)

const (
	// DefaultTurnBudget is the initial number of scored turns a task gets.
	DefaultTurnBudget = 5
	// DefaultTransientRetries is how many times a transiently failing
	// implementer or scorer call is re-issued within the same turn.
	DefaultTransientRetries = 2
)

// Implementer produces one unit of work for a task. The call may be slow
// and must honor cancellation through the context.
type Implementer interface {
	GenerateWork(ctx context.Context, task *models.Task, feedback string) (*models.WorkArtifact, error)
}

// Scorer judges a work artifact and returns a verdict plus the context
// cost of the scoring call itself.
type Scorer interface {
	ScoreWork(ctx context.Context, task *models.Task, art *models.WorkArtifact) (*models.QualityVerdict, int64, error)
}

// Store is the slice of the state store the engine mutates.
type Store interface {
	UpdateTask(task *models.Task) error
	AppendVerdict(taskID string, turn int, v models.QualityVerdict) error
	UpdateSession(session *models.Session) error
}

// Result is how a Run ended.
type Result int

const (
	// ResultAccepted means the task reached ACCEPTED.
	ResultAccepted Result = iota
	// ResultFailed means the task reached FAILED; task.Error has the cause.
	ResultFailed
	// ResultEscalationPending means the task is escalated and checkpointed,
	// waiting for an operator in a later session.
	ResultEscalationPending
	// ResultCheckpointed means the session's context budget ran out and the
	// task was handed off to the next session.
	ResultCheckpointed
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	switch r {
	case ResultAccepted:
		return "accepted"
	case ResultFailed:
		return "failed"
	case ResultEscalationPending:
		return "escalation-pending"
	case ResultCheckpointed:
		return "checkpointed"
	default:
		return "unknown"
	}
}

// Config assembles an engine's collaborators.
type Config struct {
	// Store persists task, session, and verdict state.
	Store Store
	// Implementer produces work output.
	Implementer Implementer
	// Scorer judges work output.
	Scorer Scorer
	// Tracker accounts for the session's context budget.
	Tracker *budget.Tracker
	// Checkpoints writes and restores continuation artifacts.
	Checkpoints *checkpoint.Manager
	// Escalations raises escalations and waits for operator responses.
	Escalations *EscalationWaiter
	// Logger receives debug output. Optional.
	Logger *DebugLogger
	// TransientRetries overrides DefaultTransientRetries when positive.
	TransientRetries int
	// SnapshotInfo supplies working-state details for checkpoints
	// (pending steps, test status, commit ref). Optional.
	SnapshotInfo func() checkpoint.Snapshot
}

// Engine is the per-task decision state machine. One engine drives one
// task at a time on a single logical thread of control.
type Engine struct {
	store            Store
	implementer      Implementer
	scorer           Scorer
	tracker          *budget.Tracker
	checkpoints      *checkpoint.Manager
	escalations      *EscalationWaiter
	logger           *DebugLogger
	transientRetries int
	snapshotInfo     func() checkpoint.Snapshot
}

// New creates an engine from the config.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}
	if cfg.Implementer == nil {
		return nil, fmt.Errorf("engine requires an implementer")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("engine requires a scorer")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("engine requires a context budget tracker")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("engine requires a checkpoint manager")
	}
	if cfg.Escalations == nil {
		return nil, fmt.Errorf("engine requires an escalation waiter")
	}

	retries := cfg.TransientRetries
	if retries <= 0 {
		retries = DefaultTransientRetries
	}

	return &Engine{
		store:            cfg.Store,
		implementer:      cfg.Implementer,
		scorer:           cfg.Scorer,
		tracker:          cfg.Tracker,
		checkpoints:      cfg.Checkpoints,
		escalations:      cfg.Escalations,
		logger:           cfg.Logger,
		transientRetries: retries,
		snapshotInfo:     cfg.SnapshotInfo,
	}, nil
}

// Run drives the task until it reaches a terminal state, defers to an
// operator, or hands off through a checkpoint. Turn count and turn
// budget never decrease; the verdict history only grows.
func (e *Engine) Run(ctx context.Context, task *models.Task, sess *models.Session) (Result, error) {
	if task.Status.Terminal() {
		return ResultFailed, fmt.Errorf("task %s is already %s", task.ID, task.Status)
	}
	if task.TurnBudget <= 0 {
		task.TurnBudget = DefaultTurnBudget
	}

	task.Status = models.TaskStatusRunning
	if err := e.store.UpdateTask(task); err != nil {
		return ResultFailed, fmt.Errorf("mark task running: %w", err)
	}

	feedback := ""
	if last := task.LastVerdict(); last != nil && last.Outcome == models.OutcomeRetry {
		feedback = last.Rationale
	}

	for {
		if ctx.Err() != nil {
			return e.checkpointNow(task, sess, 0)
		}

		// Exhaustion is checked before any work is generated, so a task
		// resumed with its budget already spent (a deferred escalation, for
		// example) goes straight back to the escalation path instead of
		// burning turns past the budget.
		if task.TurnCount >= task.TurnBudget {
			if !task.GraceExtensionUsed {
				task.TurnBudget *= 2
				task.GraceExtensionUsed = true
				if err := e.store.UpdateTask(task); err != nil {
					return ResultFailed, fmt.Errorf("persist grace extension: %w", err)
				}
				e.logger.Log("[engine] task %s: grace extension granted, budget now %d", task.ID, task.TurnBudget)
			} else {
				exhausted := &BudgetExhaustedError{TaskID: task.ID, TurnCount: task.TurnCount, TurnBudget: task.TurnBudget}
				return e.escalate(ctx, task, sess, exhausted.Error())
			}
		}

		// A turn is counted only once it has been scored. Until then it is
		// in flight and a checkpoint records it as interrupted, to be
		// re-issued on resume.
		turn := task.TurnCount + 1
		e.logger.Log("[engine] task %s: turn %d of %d", task.ID, turn, task.TurnBudget)

		var verdict models.QualityVerdict
		art, err := e.generate(ctx, task, feedback)
		switch {
		case err == nil:
			e.tracker.Record(art.CostTokens)
			if e.tracker.Consume() || ctx.Err() != nil {
				return e.checkpointNow(task, sess, turn)
			}

			v, cost, serr := e.score(ctx, task, art)
			switch {
			case serr == nil:
				e.tracker.Record(cost)
				verdict = *v
			case ctx.Err() != nil:
				return e.checkpointNow(task, sess, turn)
			case IsTransient(serr):
				verdict = e.syntheticVerdict("scorer", serr)
			default:
				return e.fail(task, sess, fmt.Errorf("score turn %d: %w", turn, serr))
			}
		case ctx.Err() != nil:
			return e.checkpointNow(task, sess, turn)
		case IsTransient(err):
			verdict = e.syntheticVerdict("implementer", err)
		default:
			return e.fail(task, sess, fmt.Errorf("generate turn %d: %w", turn, err))
		}

		task.TurnCount = turn
		task.AppendVerdict(verdict)
		if err := e.store.AppendVerdict(task.ID, turn, verdict); err != nil {
			return ResultFailed, fmt.Errorf("record verdict: %w", err)
		}
		if err := e.store.UpdateTask(task); err != nil {
			return ResultFailed, fmt.Errorf("persist turn %d: %w", turn, err)
		}
		e.logger.Log("[engine] task %s: turn %d scored %.2f (%s)", task.ID, turn, verdict.Score, verdict.Outcome)

		switch verdict.Outcome {
		case models.OutcomeAccept:
			return e.accept(task, sess)
		case models.OutcomeEscalate:
			return e.escalate(ctx, task, sess, fmt.Sprintf("scorer requested escalation: %s", verdict.Rationale))
		}

		feedback = verdict.Rationale

		if e.tracker.Consume() {
			return e.checkpointNow(task, sess, 0)
		}
	}
}

// generate requests one unit of work, re-issuing the call on transient
// failures up to the retry bound.
func (e *Engine) generate(ctx context.Context, task *models.Task, feedback string) (*models.WorkArtifact, error) {
	var lastErr error
	for attempt := 1; attempt <= e.transientRetries+1; attempt++ {
		art, err := e.implementer.GenerateWork(ctx, task, feedback)
		if err == nil {
			return art, nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, err
		}
		lastErr = err
		e.logger.Log("[engine] task %s: transient implementer failure (attempt %d of %d): %v",
			task.ID, attempt, e.transientRetries+1, err)
	}
	return nil, lastErr
}

// score submits an artifact for judgment, with the same transient retry
// bound as generate.
func (e *Engine) score(ctx context.Context, task *models.Task, art *models.WorkArtifact) (*models.QualityVerdict, int64, error) {
	var lastErr error
	for attempt := 1; attempt <= e.transientRetries+1; attempt++ {
		v, cost, err := e.scorer.ScoreWork(ctx, task, art)
		if err == nil {
			return v, cost, nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, 0, err
		}
		lastErr = err
		e.logger.Log("[engine] task %s: transient scorer failure (attempt %d of %d): %v",
			task.ID, attempt, e.transientRetries+1, err)
	}
	return nil, 0, lastErr
}

// syntheticVerdict consumes a turn on behalf of a call that kept failing
// transiently, so a flaky collaborator still burns budget instead of
// looping forever.
func (e *Engine) syntheticVerdict(op string, cause error) models.QualityVerdict {
	return models.QualityVerdict{
		Score:     0,
		Outcome:   models.OutcomeRetry,
		Rationale: fmt.Sprintf("%s failed after %d attempts: %v", op, e.transientRetries+1, cause),
	}
}

// snapshot collects working-state details for a checkpoint.
func (e *Engine) snapshot() checkpoint.Snapshot {
	if e.snapshotInfo != nil {
		return e.snapshotInfo()
	}
	return checkpoint.Snapshot{}
}

// checkpointNow hands the task off. interruptedTurn is the in-flight
// turn, or 0 when the checkpoint lands on a turn boundary.
func (e *Engine) checkpointNow(task *models.Task, sess *models.Session, interruptedTurn int) (Result, error) {
	snap := e.snapshot()
	snap.InterruptedTurn = interruptedTurn
	if _, err := e.checkpoints.Checkpoint(task, sess, snap); err != nil {
		return ResultFailed, fmt.Errorf("checkpoint task %s: %w", task.ID, err)
	}
	if interruptedTurn > 0 {
		e.logger.Log("[engine] task %s: checkpointed mid-turn %d, turn will be re-issued", task.ID, interruptedTurn)
	} else {
		e.logger.Log("[engine] task %s: checkpointed at turn boundary (%d turns)", task.ID, task.TurnCount)
	}
	return ResultCheckpointed, nil
}

// accept finishes the task as ACCEPTED and clears any handoff state.
func (e *Engine) accept(task *models.Task, sess *models.Session) (Result, error) {
	now := time.Now().UTC()
	task.Status = models.TaskStatusAccepted
	task.CompletedAt = &now
	task.Error = ""
	if err := e.store.UpdateTask(task); err != nil {
		return ResultFailed, fmt.Errorf("mark task accepted: %w", err)
	}
	if err := e.closeSession(sess); err != nil {
		return ResultFailed, err
	}
	if err := e.checkpoints.Clear(); err != nil {
		e.logger.Log("[engine] task %s: clear handoffs: %v", task.ID, err)
	}
	e.escalations.Clear(task.ID)
	e.logger.Log("[engine] task %s: accepted after %d turns", task.ID, task.TurnCount)
	return ResultAccepted, nil
}

// fail finishes the task as FAILED, recording the cause on the task.
func (e *Engine) fail(task *models.Task, sess *models.Session, cause error) (Result, error) {
	now := time.Now().UTC()
	task.Status = models.TaskStatusFailed
	task.CompletedAt = &now
	task.Error = cause.Error()
	if err := e.store.UpdateTask(task); err != nil {
		return ResultFailed, fmt.Errorf("mark task failed: %w", err)
	}
	if err := e.closeSession(sess); err != nil {
		return ResultFailed, err
	}
	e.logger.Log("[engine] task %s: failed after %d turns: %v", task.ID, task.TurnCount, cause)
	return ResultFailed, nil
}

// escalate hands the task to an operator and waits, bounded, for a
// decision. No response within the wait means terminal failure.
func (e *Engine) escalate(ctx context.Context, task *models.Task, sess *models.Session, reason string) (Result, error) {
	task.Status = models.TaskStatusEscalated
	task.Error = reason
	if err := e.store.UpdateTask(task); err != nil {
		return ResultFailed, fmt.Errorf("mark task escalated: %w", err)
	}
	if err := e.escalations.Raise(task, reason); err != nil {
		return ResultFailed, err
	}

	resp, err := e.escalations.Await(ctx, task.ID)
	if err != nil {
		if ctx.Err() != nil {
			// Aborted while waiting: leave the escalation pending for the
			// next session.
			return e.deferEscalation(task, sess)
		}
		return ResultFailed, err
	}
	if resp == nil {
		return e.fail(task, sess, fmt.Errorf("no escalation response: %s", reason))
	}

	e.logger.Log("[engine] task %s: escalation resolved as %s", task.ID, resp.Action)
	switch resp.Action {
	case EscalationAccept:
		e.escalations.Clear(task.ID)
		return e.accept(task, sess)
	case EscalationFail:
		e.escalations.Clear(task.ID)
		msg := resp.Message
		if msg == "" {
			msg = reason
		}
		return e.fail(task, sess, fmt.Errorf("escalation resolved as failed: %s", msg))
	case EscalationDefer:
		return e.deferEscalation(task, sess)
	default:
		return ResultFailed, fmt.Errorf("unknown escalation action %q", resp.Action)
	}
}

// deferEscalation checkpoints an escalated task so a later session (or
// operator) can pick it up.
func (e *Engine) deferEscalation(task *models.Task, sess *models.Session) (Result, error) {
	snap := e.snapshot()
	if _, err := e.checkpoints.Checkpoint(task, sess, snap); err != nil {
		return ResultFailed, fmt.Errorf("checkpoint escalated task %s: %w", task.ID, err)
	}
	e.logger.Log("[engine] task %s: escalation deferred to a later session", task.ID)
	return ResultEscalationPending, nil
}

// closeSession marks the session CLOSED unless a checkpoint already
// moved it to CHECKPOINTED.
func (e *Engine) closeSession(sess *models.Session) error {
	if sess == nil || sess.Status != models.SessionActive {
		return nil
	}
	sess.Status = models.SessionClosed
	if err := e.store.UpdateSession(sess); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
