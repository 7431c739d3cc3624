// Package git provides the small set of git operations the handoff
// protocol needs to tie continuation artifacts to a durable commit point.
package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Runner is the capability the checkpoint path depends on.
type Runner interface {
	HeadRef() (string, error)
	CurrentBranch() (string, error)
	HasChanges() (bool, error)
}

// ExecRunner implements Runner using exec.Command.
type ExecRunner struct {
	repoPath string
}

var _ Runner = (*ExecRunner)(nil)

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// run executes a git command and returns its output.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// HeadRef returns the commit hash of HEAD.
func (r *ExecRunner) HeadRef() (string, error) {
	return r.run("rev-parse", "HEAD")
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// Status returns the output of git status --porcelain.
func (r *ExecRunner) Status() (string, error) {
	return r.run("status", "--porcelain")
}

// HasChanges returns true if there are uncommitted changes.
func (r *ExecRunner) HasChanges() (bool, error) {
	status, err := r.Status()
	if err != nil {
		return false, err
	}
	return len(status) > 0, nil
}
