// Package spawner launches one teammate child process end to end:
// name validation, model-policy resolution, optional worktree
// preparation, and RPC bring-up (worktree-provider hook, registering
// the running child), generalized to one worker per call rather than
// a fixed architect/engineer/reviewer trio.
package spawner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ytnobody/teamsctl/internal/kerr"
	"github.com/ytnobody/teamsctl/internal/logging"
	"github.com/ytnobody/teamsctl/internal/modelpolicy"
	"github.com/ytnobody/teamsctl/internal/rpc"
	"github.com/ytnobody/teamsctl/internal/sanitize"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
	"github.com/ytnobody/teamsctl/internal/workspace"
)

// ContextMode selects how a new teammate's conversation is seeded.
type ContextMode string

const (
	ModeFresh  ContextMode = "fresh"
	ModeBranch ContextMode = "branch"
)

// WorkspaceMode selects whether a teammate gets an isolated worktree.
type WorkspaceMode string

const (
	WorkspaceShared   WorkspaceMode = "shared"
	WorkspaceWorktree WorkspaceMode = "worktree"
)

// Options configure one spawnTeammate call.
type Options struct {
	Name          string
	Mode          ContextMode
	WorkspaceMode WorkspaceMode
	PlanRequired  bool
	ModelOverride string

	ThinkingLevel string

	// RepoPath/TeamDir/LeaderCwd/Command/Args/Env feed workspace
	// preparation and the RPC launch.
	RepoPath  string
	TeamDir   string
	LeaderCwd string
	Command   string
	Args      []string
	Env       []string

	LeaderProvider string
	LeaderModelID  string
}

// Result is the outcome of spawning one teammate.
type Result struct {
	OK            bool
	Name          string
	Mode          ContextMode
	WorkspaceMode WorkspaceMode
	Note          string
	Warnings      []string
}

// IsRunning reports whether a teammate by that name is already tracked.
type IsRunning func(name string) bool

// Spawner launches teammates and registers them with a coordinator.
type Spawner struct {
	isRunning IsRunning
	register  func(name string, handle *rpc.TeammateRpc)
}

// New constructs a Spawner. isRunning and register let the coordinator
// own the live-teammate map while this package owns the launch sequence.
func New(isRunning IsRunning, register func(name string, handle *rpc.TeammateRpc)) *Spawner {
	return &Spawner{isRunning: isRunning, register: register}
}

// Spawn validates, resolves the model, optionally prepares a worktree,
// launches the RPC child, and marks the member online.
func (s *Spawner) Spawn(ctx context.Context, opts Options) (Result, error) {
	name := sanitize.Name(opts.Name)
	if name == "" {
		return Result{}, kerr.New(kerr.InvalidInput, "spawnTeammate: name is required")
	}
	if s.isRunning != nil && s.isRunning(name) {
		return Result{}, kerr.New(kerr.Conflict, fmt.Sprintf("spawnTeammate: %q is already running", name))
	}

	policy, err := modelpolicy.Resolve(modelpolicy.Input{
		ModelOverride:  opts.ModelOverride,
		LeaderProvider: opts.LeaderProvider,
		LeaderModelID:  opts.LeaderModelID,
	})
	if err != nil {
		return Result{}, kerr.Wrap(kerr.InvalidInput, "spawnTeammate: model policy", err)
	}

	workDir := opts.LeaderCwd
	if opts.WorkspaceMode == WorkspaceWorktree {
		wtPath := filepath.Join(opts.TeamDir, "worktrees", name)
		branch := "teammate/" + name
		if err := workspace.Prepare(opts.RepoPath, wtPath, branch, "HEAD"); err != nil {
			return Result{}, kerr.Wrap(kerr.IoFault, "spawnTeammate: prepare worktree", err)
		}
		workDir = wtPath
	}

	handle := rpc.New()
	if err := handle.Start(ctx, rpc.StartOptions{
		Cmd:  opts.Command,
		Args: opts.Args,
		Cwd:  workDir,
		Env:  opts.Env,
	}); err != nil {
		return Result{}, kerr.Wrap(kerr.ProcessExit, "spawnTeammate: start process", err)
	}

	if s.register != nil {
		s.register(name, handle)
	}

	now := time.Now()
	meta := map[string]any{
		"model":         policy.ModelID,
		"thinkingLevel": opts.ThinkingLevel,
		"spawnedAt":     now.UTC().Format(time.RFC3339),
		"mode":          string(opts.Mode),
		"workspaceMode": string(opts.WorkspaceMode),
	}
	if opts.WorkspaceMode == WorkspaceWorktree {
		meta["workspacePath"] = workDir
	}
	if _, err := teamconfig.SetMemberStatus(opts.TeamDir, name, teamconfig.StatusOnline, meta, now); err != nil {
		logging.Warn().Err(err).Str("name", name).Msg("spawnTeammate: member status update failed")
	}

	res := Result{
		OK:            true,
		Name:          name,
		Mode:          opts.Mode,
		WorkspaceMode: opts.WorkspaceMode,
		Warnings:      policy.Warnings,
	}
	if policy.Source == modelpolicy.SourceDefault {
		res.Note = "no model override or inheritable leader model; using runtime default"
	}
	return res, nil
}
