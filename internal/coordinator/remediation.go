package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/ytnobody/teamsctl/internal/logging"
	"github.com/ytnobody/teamsctl/internal/mailbox"
	"github.com/ytnobody/teamsctl/internal/sanitize"
	"github.com/ytnobody/teamsctl/internal/taskstore"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
)

// remediationNudge carries the sentinel phrase the quality-gate loop must
// append when it hands a worker a follow-up task, so the worker's own
// runtime knows to act without asking the user first.
const remediationNudge = "Please remediate automatically and continue without waiting for user intervention."

// onTaskCompleted runs whenever a worker reports a task completed. It runs
// the configured post-completion hook (if enabled) and drives the
// quality-gate state machine on a non-zero exit.
func (c *Coordinator) onTaskCompleted(ctx context.Context, from, taskID string) {
	task, ok, err := c.store.GetTask(taskID)
	if err != nil || !ok {
		logging.Warn().Str("task", taskID).Msg("coordinator: idle_notification for unknown task")
		return
	}

	if !c.deps.Config.HooksEnabled {
		return
	}

	ok, err = c.deps.HookRunner.Run(ctx, c.deps.TeamDir, task, c.deps.TaskListID, c.deps.Config.HookTimeout())
	if err != nil {
		logging.Warn().Err(err).Str("task", taskID).Msg("coordinator: hook run failed")
		return
	}
	if ok {
		return
	}

	cfg, loaded, err := teamconfig.Load(c.deps.TeamDir)
	policy := c.deps.Config.DefaultHooks
	if err == nil && loaded {
		policy = cfg.Hooks
	}

	c.runRemediation(task, policy, from)
}

func (c *Coordinator) runRemediation(task taskstore.Task, policy teamconfig.HookPolicy, originalOwner string) {
	reopenCount := intMeta(task.Metadata, "reopenedByQualityGateCount")

	switch policy.FailureAction {
	case teamconfig.ActionWarn:
		c.markQualityGateFailed(task.ID)

	case teamconfig.ActionFollowup:
		c.createFollowup(task, policy, originalOwner)

	case teamconfig.ActionReopen:
		if reopenCount < policy.MaxReopensPerTask {
			c.reopenTask(task.ID, reopenCount)
		} else {
			c.markQualityGateFailed(task.ID)
		}

	case teamconfig.ActionReopenFollowup:
		if reopenCount < policy.MaxReopensPerTask {
			c.reopenTask(task.ID, reopenCount)
		}
		c.createFollowup(task, policy, originalOwner)

	default:
		c.markQualityGateFailed(task.ID)
	}
}

func (c *Coordinator) markQualityGateFailed(taskID string) {
	_, err := c.store.UpdateTask(taskID, func(t taskstore.Task) taskstore.Task {
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		t.Metadata["qualityGateStatus"] = "failed"
		return t
	})
	if err != nil {
		logging.Warn().Err(err).Str("task", taskID).Msg("coordinator: mark quality gate failed")
		return
	}
	c.deps.Notifier.Notify("quality_gate_failed", map[string]any{"taskId": taskID})
}

func (c *Coordinator) reopenTask(taskID string, reopenCount int) {
	if _, err := c.store.SetStatus(taskID, taskstore.Pending, time.Now()); err != nil {
		logging.Warn().Err(err).Str("task", taskID).Msg("coordinator: reopen failed")
		return
	}
	_, err := c.store.UpdateTask(taskID, func(t taskstore.Task) taskstore.Task {
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		t.Metadata["reopenedByQualityGateCount"] = reopenCount + 1
		t.Metadata["qualityGateStatus"] = "failed"
		return t
	})
	if err != nil {
		logging.Warn().Err(err).Str("task", taskID).Msg("coordinator: stamp reopen count")
	}
}

func (c *Coordinator) createFollowup(task taskstore.Task, policy teamconfig.HookPolicy, originalOwner string) {
	subject := fmt.Sprintf("Quality gate failed: %s (task #%s)", truncate(task.Subject, 80), task.ID)

	var owner string
	switch policy.FollowupOwner {
	case teamconfig.FollowupMember:
		owner = originalOwner
	case teamconfig.FollowupLead:
		owner = c.deps.LeadName
	default:
		owner = ""
	}

	followup, err := c.store.CreateTask(subject, subject, sanitize.Name(owner))
	if err != nil {
		logging.Warn().Err(err).Str("task", task.ID).Msg("coordinator: create follow-up task")
		return
	}
	if err := c.store.AddTaskDependency(followup.ID, task.ID); err != nil {
		logging.Warn().Err(err).Str("task", followup.ID).Msg("coordinator: link follow-up to original")
	}

	if owner == "" {
		return
	}
	owner = sanitize.Name(owner)

	if err := c.sendTaskAssignment(followup, owner, c.deps.LeadName); err != nil {
		logging.Warn().Err(err).Str("task", followup.ID).Msg("coordinator: notify follow-up assignee")
	}
	if err := mailbox.Write(c.deps.TeamDir, "team", owner, mailbox.Message{
		From:      c.deps.LeadName,
		Text:      remediationNudge,
		Timestamp: time.Now(),
	}); err != nil {
		logging.Warn().Err(err).Str("task", followup.ID).Msg("coordinator: send remediation nudge")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func intMeta(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
