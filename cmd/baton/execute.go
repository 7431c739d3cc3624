package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/baton/internal/api"
	"github.com/ShayCichocki/baton/internal/budget"
	"github.com/ShayCichocki/baton/internal/checkpoint"
	"github.com/ShayCichocki/baton/internal/config"
	"github.com/ShayCichocki/baton/internal/engine"
	"github.com/ShayCichocki/baton/internal/git"
	"github.com/ShayCichocki/baton/internal/query"
	"github.com/ShayCichocki/baton/internal/router"
	"github.com/ShayCichocki/baton/internal/state"
	"github.com/ShayCichocki/baton/pkg/models"
)

// Exit codes for the execute command.
const (
	exitAccepted          = 0
	exitFailed            = 2
	exitEscalationPending = 3
)

var (
	executeTaskID  string
	executeProject string
	executeType    string
	executeBudget  int
)

var executeCmd = &cobra.Command{
	Use:   "execute [description]",
	Short: "Start or resume a task",
	Long: `Execute drives a task to completion. If a continuation artifact from a
previous session exists, that task is resumed exactly where it left off;
otherwise a fresh task is created from the given description.

Exit codes: 0 when the task was accepted (or checkpointed for the next
session), 2 when it failed, 3 when it is escalated and waiting on an
operator.`,
	RunE: runExecute,
}

func init() {
	executeCmd.Flags().StringVar(&executeTaskID, "task", "", "Resume or run a specific task ID")
	executeCmd.Flags().StringVar(&executeProject, "project", "", "Project identifier (defaults to the directory name)")
	executeCmd.Flags().StringVar(&executeType, "type", string(models.TaskTypeCodegen), "Task type: codegen or planning")
	executeCmd.Flags().IntVar(&executeBudget, "budget", 0, "Turn budget for a fresh task (default from config)")
}

// executeHandler is the write path handed to the intent router. Only
// requests the router classifies as mutating ever reach it.
type executeHandler struct {
	cfg    *config.Config
	cwd    string
	args   []string
	result engine.Result
}

func runExecute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	handler := &executeHandler{cfg: cfg, cwd: cwd, args: args}
	r := router.New(query.NewBuilder(), handler)

	req := router.Request{
		Op:        "execute",
		TaskID:    executeTaskID,
		ProjectID: executeProject,
	}
	if _, err := r.Dispatch(cmd.Context(), req); err != nil {
		return err
	}

	switch handler.result {
	case engine.ResultAccepted, engine.ResultCheckpointed:
		return nil
	case engine.ResultEscalationPending:
		os.Exit(exitEscalationPending)
	default:
		os.Exit(exitFailed)
	}
	return nil
}

// HandleMutating runs the decision loop for a mutating request.
func (h *executeHandler) HandleMutating(ctx context.Context, req router.Request) error {
	db, err := state.OpenProject(h.cwd)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	logger := engine.NewDebugLoggerForRepo(h.cwd)
	defer logger.Close()

	mgr := checkpoint.NewManager(config.ResolveProjectPath(h.cwd, h.cfg.Defaults.CheckpointDir), db)

	task, sess, err := h.resumeOrCreate(db, mgr, req)
	if err != nil {
		return err
	}

	client, err := newAPIClient(h.cfg)
	if err != nil {
		return err
	}

	tracker := budget.NewTracker(h.cfg.Defaults.ContextCapacity)
	repo := git.NewRunner(h.cwd)

	e, err := engine.New(engine.Config{
		Store:            db,
		Implementer:      withImplementerTimeout(api.NewImplementer(client), h.cfg.Timeouts.Implementer),
		Scorer:           withScorerTimeout(api.NewScorer(client), h.cfg.Timeouts.Scorer),
		Tracker:          tracker,
		Checkpoints:      mgr,
		Escalations:      engine.NewEscalationWaiter(filepath.Join(h.cwd, ".baton", "escalations"), h.cfg.Escalation.Wait, logger),
		Logger:           logger,
		TransientRetries: h.cfg.Defaults.TransientRetries,
		SnapshotInfo: func() checkpoint.Snapshot {
			return buildSnapshot(repo)
		},
	})
	if err != nil {
		return err
	}

	// SIGINT mid-turn triggers a checkpoint, not a lost turn.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := e.Run(ctx, task, sess)
	if err != nil {
		return err
	}
	h.result = result

	// Persist the final usage estimate on the session record.
	sess.ContextUsed = tracker.PercentUsed()
	if uerr := db.UpdateSession(sess); uerr != nil {
		logger.Log("[execute] persist context usage: %v", uerr)
	}

	printResult(task, result, tracker)
	printTokenSpend(client.Tracker())
	return nil
}

// resumeOrCreate restores the task from the latest continuation artifact
// when one exists; the artifact, not any flag or argument, decides
// whether there is unresumed work. Without one it loads the requested
// task or creates a fresh one.
func (h *executeHandler) resumeOrCreate(db *state.DB, mgr *checkpoint.Manager, req router.Request) (*models.Task, *models.Session, error) {
	art, err := mgr.Resume()
	if err != nil {
		var corrupt *checkpoint.CorruptArtifactError
		if errors.As(err, &corrupt) {
			return nil, nil, fmt.Errorf("cannot resume: %w (fix or remove the artifact; progress is not discarded silently)", corrupt)
		}
		return nil, nil, err
	}

	var task *models.Task
	switch {
	case art != nil:
		if req.TaskID != "" && req.TaskID != art.TaskID {
			return nil, nil, fmt.Errorf("task %s has an unresumed handoff; finish it before starting %s", art.TaskID, req.TaskID)
		}
		task, err = db.GetTask(art.TaskID)
		if err != nil {
			return nil, nil, err
		}
		color.Yellow("Resuming task %s at turn %d of %d", task.ID, task.TurnCount, task.TurnBudget)

	case req.TaskID != "":
		task, err = db.GetTask(req.TaskID)
		if err != nil {
			return nil, nil, err
		}
		if task == nil {
			return nil, nil, fmt.Errorf("task %s not found", req.TaskID)
		}
		if task.Status.Terminal() {
			return nil, nil, fmt.Errorf("task %s is already %s", task.ID, task.Status)
		}

	default:
		description := strings.TrimSpace(strings.Join(h.args, " "))
		if description == "" {
			return nil, nil, fmt.Errorf("a task description is required to start a fresh task")
		}

		taskType := models.TaskType(executeType)
		if taskType != models.TaskTypeCodegen && taskType != models.TaskTypePlanning {
			return nil, nil, fmt.Errorf("unknown task type %q", executeType)
		}

		turnBudget := executeBudget
		if turnBudget <= 0 {
			turnBudget = h.cfg.Defaults.TurnBudget
		}

		project := req.ProjectID
		if project == "" {
			project = filepath.Base(h.cwd)
		}

		task = &models.Task{
			ID:          uuid.New().String(),
			ProjectID:   project,
			Description: description,
			Type:        taskType,
			Status:      models.TaskStatusPending,
			TurnBudget:  turnBudget,
			CreatedAt:   time.Now().UTC(),
		}
		if err := db.CreateTask(task); err != nil {
			return nil, nil, err
		}
		color.Cyan("Created task %s (budget %d turns)", task.ID, task.TurnBudget)
	}

	sess := &models.Session{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Status:    models.SessionActive,
		StartedAt: time.Now().UTC(),
	}
	if err := db.CreateSession(sess); err != nil {
		return nil, nil, err
	}

	return task, sess, nil
}

// buildSnapshot ties a checkpoint to the repository's durable state.
func buildSnapshot(repo *git.ExecRunner) checkpoint.Snapshot {
	var snap checkpoint.Snapshot
	if head, err := repo.HeadRef(); err == nil {
		snap.LastCommitRef = head
	}
	if dirty, err := repo.HasChanges(); err == nil && dirty {
		snap.TestStatus = "uncommitted changes present"
	}
	return snap
}

func printResult(task *models.Task, result engine.Result, tracker *budget.Tracker) {
	switch result {
	case engine.ResultAccepted:
		color.Green("Task %s accepted after %d turns.", task.ID, task.TurnCount)
	case engine.ResultFailed:
		color.Red("Task %s failed after %d turns: %s", task.ID, task.TurnCount, task.Error)
	case engine.ResultEscalationPending:
		color.Yellow("Task %s escalated; respond in .baton/escalations/%s.json", task.ID, task.ID)
	case engine.ResultCheckpointed:
		color.Yellow("Context budget reached (%.0f%% used); task %s handed off at turn %d. Run 'baton execute' to continue.",
			tracker.PercentUsed(), task.ID, task.TurnCount)
	}
}

// printTokenSpend summarizes the session's API usage.
func printTokenSpend(tokens *api.TokenTracker) {
	if tokens.Calls() == 0 {
		return
	}
	input, output := tokens.Total()
	fmt.Printf("Session usage: %d API calls, %d input + %d output tokens (~$%.2f)\n",
		tokens.Calls(), input, output, tokens.Cost())
}

// implementerTimeout bounds each work-generation call.
type implementerTimeout struct {
	inner engine.Implementer
	d     time.Duration
}

func withImplementerTimeout(inner engine.Implementer, d time.Duration) engine.Implementer {
	if d <= 0 {
		return inner
	}
	return &implementerTimeout{inner: inner, d: d}
}

func (t *implementerTimeout) GenerateWork(ctx context.Context, task *models.Task, feedback string) (*models.WorkArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.GenerateWork(ctx, task, feedback)
}

// scorerTimeout bounds each scoring call.
type scorerTimeout struct {
	inner engine.Scorer
	d     time.Duration
}

func withScorerTimeout(inner engine.Scorer, d time.Duration) engine.Scorer {
	if d <= 0 {
		return inner
	}
	return &scorerTimeout{inner: inner, d: d}
}

func (t *scorerTimeout) ScoreWork(ctx context.Context, task *models.Task, art *models.WorkArtifact) (*models.QualityVerdict, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.ScoreWork(ctx, task, art)
}
