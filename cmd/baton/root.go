package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "baton",
	Short: "Iterative task runner with cross-session handoff",
	Long: `Baton drives long-running code-generation tasks turn by turn: an
implementer produces work, a scorer judges it, and baton decides whether to
accept, retry, or escalate under a turn budget.

Because any single session has a bounded context budget, baton checkpoints
in-flight state into a continuation artifact when the budget runs out and
resumes from it in the next session with zero loss of progress.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
