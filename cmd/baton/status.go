package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/baton/internal/checkpoint"
	"github.com/ShayCichocki/baton/internal/config"
	"github.com/ShayCichocki/baton/internal/router"
	"github.com/ShayCichocki/baton/internal/state"
	"github.com/ShayCichocki/baton/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task and handoff state without mutating it",
	Long: `Display the current state of tasks, sessions, and any pending
continuation artifact. Status is a read-only operation: it never creates,
updates, or checkpoints anything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	req := router.Request{Op: "status"}
	if len(args) > 0 {
		req.TaskID = args[0]
	}
	// The read path is guarded: a misclassified request fails loudly here
	// instead of reaching any write-capable collaborator.
	if err := router.GuardQuery(req); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No task state. Run 'baton execute <description>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Read-only view from here on.
	var store state.ReadOnlyStore = db

	if req.TaskID != "" {
		return displayTask(store, req.TaskID)
	}

	if sess, err := store.GetActiveSession(); err != nil {
		return err
	} else if sess != nil {
		displaySession(sess)
		if sess.TaskID != "" {
			fmt.Println()
			if err := displayTask(store, sess.TaskID); err != nil {
				return err
			}
		}
	} else {
		fmt.Println("No active session.")
	}

	fmt.Println()
	handoffDir := config.ResolveProjectPath(cwd, cfg.Defaults.CheckpointDir)
	if err := displayHandoff(handoffDir, db); err != nil {
		return err
	}

	fmt.Println()
	return displayRecentSessions(store)
}

func displaySession(s *models.Session) {
	fmt.Printf("Current session: %s\n", s.ID)
	fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(s.StartedAt)))
	fmt.Printf("  Status: %s\n", s.Status)
	fmt.Printf("  Context used: %.1f%%\n", s.ContextUsed)
}

func displayTask(store state.ReadOnlyStore, id string) error {
	task, err := store.GetTask(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}

	fmt.Printf("Task %s\n", task.ID)
	fmt.Printf("  Description: %s\n", task.Description)
	fmt.Printf("  Status: %s\n", colorStatus(task.Status))
	fmt.Printf("  Turns: %d of %d", task.TurnCount, task.TurnBudget)
	if task.GraceExtensionUsed {
		fmt.Print(" (grace extension used)")
	}
	fmt.Println()
	if task.Error != "" {
		fmt.Printf("  Error: %s\n", task.Error)
	}

	if len(task.Verdicts) > 0 {
		fmt.Println("  Verdicts:")
		for i, v := range task.Verdicts {
			fmt.Printf("    %d. %.2f %s: %s\n", i+1, v.Score, v.Outcome, truncate(v.Rationale, 70))
		}
	}
	return nil
}

// displayHandoff reports the latest continuation artifact, if any. The
// checkpoint manager is used strictly as a reader here.
func displayHandoff(dir string, db *state.DB) error {
	mgr := checkpoint.NewManager(dir, db)
	art, err := mgr.Latest()
	if err != nil {
		return err
	}
	if art == nil {
		fmt.Println("No pending handoff.")
		return nil
	}

	color.Yellow("Pending handoff (sequence %d, generated %s ago):", art.Sequence, formatDuration(time.Since(art.GeneratedAt)))
	fmt.Printf("  Task: %s at turn %d of %d\n", art.TaskID, art.TurnCount, art.TurnBudget)
	if art.InterruptedTurn > 0 {
		fmt.Printf("  Turn %d was interrupted and will be re-issued.\n", art.InterruptedTurn)
	}
	fmt.Println("  Run 'baton execute' to resume.")
	return nil
}

func displayRecentSessions(store state.ReadOnlyStore) error {
	sessions, err := store.ListSessions(nil)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	var recent []models.Session
	for _, s := range sessions {
		if s.Status != models.SessionActive {
			recent = append(recent, s)
			if len(recent) >= 5 {
				break
			}
		}
	}
	if len(recent) == 0 {
		return nil
	}

	fmt.Println("Recent sessions:")
	for _, s := range recent {
		fmt.Printf("  %s: %s (%s ago, %.1f%% context)\n",
			s.ID, s.Status, formatDuration(time.Since(s.StartedAt)), s.ContextUsed)
	}
	return nil
}

func colorStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusAccepted:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	case models.TaskStatusEscalated:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
