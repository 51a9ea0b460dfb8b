// Package workspace prepares an isolated working directory for a
// worktree-mode teammate: add and remove a git worktree. Branch/merge/
// checkout management stays the leader's own business.
package workspace

import (
	"bytes"
	"fmt"
	"os/exec"
)

// Prepare creates a git worktree at wtPath on branch, based on base. If
// the branch already exists it is attached rather than created.
func Prepare(repoPath, wtPath, branch, base string) error {
	if _, err := run(repoPath, "worktree", "add", wtPath, "-b", branch, base); err != nil {
		if _, err2 := run(repoPath, "worktree", "add", wtPath, branch); err2 != nil {
			return fmt.Errorf("prepare worktree %s: %w", wtPath, err2)
		}
	}
	return nil
}

// Cleanup force-removes the worktree at wtPath.
func Cleanup(repoPath, wtPath string) error {
	if _, err := run(repoPath, "worktree", "remove", "--force", wtPath); err != nil {
		return fmt.Errorf("remove worktree %s: %w", wtPath, err)
	}
	return nil
}

func run(repoPath string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s\nstdout: %s\nstderr: %s", err, stdout.String(), stderr.String())
	}
	return stdout.String(), nil
}
