package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ytnobody/teamsctl/internal/taskstore"
)

// execHookRunner formalizes the post-completion hook subprocess contract
// left underspecified by the source beyond its exit-code convention
// (Design Note (c)): the hook command runs as one argv with the task and
// task-list ids appended, PI_TEAMS_* environment variables available, cwd
// set to the team directory, and both stdout/stderr captured to a capped
// per-task log file under hook-logs/, mirroring claude_stream.go's
// limitedWriter idiom so a runaway hook can't exhaust memory or disk.
type execHookRunner struct {
	// Command is the hook executable. Empty means "no hook configured",
	// which Run treats as an immediate pass.
	Command string
}

const hookLogCap = 64 * 1024

func (r execHookRunner) Run(ctx context.Context, teamDir string, task taskstore.Task, taskListID string, timeout time.Duration) (bool, error) {
	if r.Command == "" {
		return true, nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Command, task.ID, taskListID)
	cmd.Dir = teamDir
	cmd.Env = append(os.Environ(),
		"PI_TEAMS_TEAM_ID="+filepath.Base(teamDir),
		"PI_TEAMS_TASK_LIST_ID="+taskListID,
		"PI_TEAMS_HOOK_TASK_ID="+task.ID,
	)

	var buf bytes.Buffer
	capped := &limitedWriter{w: &buf, max: hookLogCap}
	cmd.Stdout = capped
	cmd.Stderr = capped

	runErr := cmd.Run()

	if err := writeHookLog(teamDir, task.ID, buf.Bytes()); err != nil {
		return false, fmt.Errorf("hooks: write log: %w", err)
	}

	if runErr == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(runErr, &exitErr); ok {
		return false, nil
	}
	return false, fmt.Errorf("hooks: run %s: %w", r.Command, runErr)
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func writeHookLog(teamDir, taskID string, content []byte) error {
	dir := filepath.Join(teamDir, "hook-logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d.log", taskID, time.Now().UnixNano())
	return os.WriteFile(filepath.Join(dir, name), content, 0644)
}

// limitedWriter writes up to max bytes and silently discards the rest.
type limitedWriter struct {
	w   *bytes.Buffer
	max int
	n   int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.n >= lw.max {
		return len(p), nil
	}
	remaining := lw.max - lw.n
	if len(p) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.n += n
	return len(p), err
}
