// Package widget derives the renderable lines of the leader's interactive
// team widget from the data model alone: role-prefix-driven coloring of a
// flat line stream. Kept as a pure function — no I/O, no clock reads,
// nothing but (teammates, tasks, teamConfig, delegateMode) -> lines.
package widget

import (
	"fmt"
	"sort"

	"github.com/ytnobody/teamsctl/internal/rpc"
	"github.com/ytnobody/teamsctl/internal/taskstore"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
)

// TeammateView is the subset of live RPC state the widget needs for one
// worker, decoupled from *rpc.TeammateRpc so the function stays pure and
// testable without spawning a process.
type TeammateView struct {
	Name  string
	State rpc.State
}

// Line is one rendered row.
type Line struct {
	Text  string
	Color string // cosmetic hint; empty means default
}

const (
	colorIdle    = "gray"
	colorWorking = "yellow"
	colorStream  = "cyan"
	colorDone    = "green"
	colorError   = "red"
)

// Render derives the widget's display lines. It returns nil (hidden) when
// there are no live teammates, no tasks, and no online workers.
func Render(teammates []TeammateView, tasks []taskstore.Task, cfg teamconfig.TeamConfig, delegateMode bool) []Line {
	onlineWorker := map[string]bool{}
	for _, m := range cfg.Members {
		if m.Role == teamconfig.RoleWorker && m.Status == teamconfig.StatusOnline {
			onlineWorker[m.Name] = true
		}
	}
	if len(teammates) == 0 && len(tasks) == 0 && len(onlineWorker) == 0 {
		return nil
	}

	inProgressOwner := map[string]bool{}
	for _, t := range tasks {
		if t.Status == taskstore.InProgress && t.Owner != "" {
			inProgressOwner[t.Owner] = true
		}
	}

	byName := map[string]TeammateView{}
	for _, m := range teammates {
		byName[m.Name] = m
	}

	names := make([]string, 0, len(byName)+len(inProgressOwner))
	seen := map[string]bool{}
	for _, m := range teammates {
		if !seen[m.Name] {
			seen[m.Name] = true
			names = append(names, m.Name)
		}
	}
	for owner := range inProgressOwner {
		if !seen[owner] {
			seen[owner] = true
			names = append(names, owner)
		}
	}
	for name := range onlineWorker {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var lines []Line
	if delegateMode {
		lines = append(lines, Line{Text: "mode: delegate"})
	}

	for _, name := range names {
		status, color := statusFor(byName[name], inProgressOwner[name])
		if byName[name].Name == "" && !inProgressOwner[name] && onlineWorker[name] {
			status, color = "online", colorIdle
		}
		lines = append(lines, Line{Text: fmt.Sprintf("%s  %s", name, status), Color: color})
	}

	for _, t := range tasks {
		lines = append(lines, Line{Text: fmt.Sprintf("  #%s [%s] %s", t.ID, t.Status, t.Subject)})
	}

	return lines
}

// statusFor decides a worker's displayed status. A worker whose RPC
// reports idle but who owns an in_progress task is shown as "working"
// rather than "idle" — the owning task, not the process state, is the
// ground truth for whether work is underway.
func statusFor(m TeammateView, ownsInProgress bool) (string, string) {
	if m.Name == "" {
		// No live RPC handle (e.g. a prior session's worker whose task
		// is still owned and in progress) but clearly still working.
		if ownsInProgress {
			return "working", colorWorking
		}
		return "offline", ""
	}
	switch m.State {
	case rpc.Idle:
		if ownsInProgress {
			return "working", colorWorking
		}
		return "idle", colorIdle
	case rpc.Streaming:
		return "streaming", colorStream
	case rpc.Stopped:
		return "stopped", colorDone
	case rpc.Errored:
		return "error", colorError
	case rpc.Starting:
		return "starting", colorIdle
	default:
		return string(m.State), ""
	}
}
