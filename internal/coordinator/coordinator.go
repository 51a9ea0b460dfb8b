// Package coordinator implements the leader-side core: the single `teams`
// tool action dispatch, the quality-gate remediation loop, and the
// background heartbeat/mailbox-poll loops that keep a leader session alive
// against one team directory. Shaped as a long-lived Manager-like struct
// with a RunBackground that starts the loops, small per-command handleXxx methods, a
// mutex-guarded map of live children ("never let one bad command take
// the process down"), plus a fire-and-forget-goroutine-plus-log idiom
// for spawning and supervising children.
package coordinator

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/ytnobody/teamsctl/internal/activity"
	"github.com/ytnobody/teamsctl/internal/claim"
	"github.com/ytnobody/teamsctl/internal/kerr"
	"github.com/ytnobody/teamsctl/internal/logging"
	"github.com/ytnobody/teamsctl/internal/mailbox"
	"github.com/ytnobody/teamsctl/internal/namepool"
	"github.com/ytnobody/teamsctl/internal/procconfig"
	"github.com/ytnobody/teamsctl/internal/protocol"
	"github.com/ytnobody/teamsctl/internal/rpc"
	"github.com/ytnobody/teamsctl/internal/sanitize"
	"github.com/ytnobody/teamsctl/internal/spawner"
	"github.com/ytnobody/teamsctl/internal/taskstore"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
	"github.com/ytnobody/teamsctl/internal/workspace"
)

// Action enumerates the `teams` tool's action surface.
type Action string

const (
	ActionDelegate         Action = "delegate"
	ActionTaskAssign       Action = "task_assign"
	ActionTaskUnassign     Action = "task_unassign"
	ActionTaskSetStatus    Action = "task_set_status"
	ActionTaskDepAdd       Action = "task_dep_add"
	ActionTaskDepRm        Action = "task_dep_rm"
	ActionTaskDepLs        Action = "task_dep_ls"
	ActionMessageDM        Action = "message_dm"
	ActionMessageBroadcast Action = "message_broadcast"
	ActionMessageSteer     Action = "message_steer"
	ActionMemberSpawn      Action = "member_spawn"
	ActionMemberShutdown   Action = "member_shutdown"
	ActionMemberKill       Action = "member_kill"
	ActionMemberPrune      Action = "member_prune"
	ActionPlanApprove      Action = "plan_approve"
	ActionPlanReject       Action = "plan_reject"
	ActionHooksPolicyGet   Action = "hooks_policy_get"
	ActionHooksPolicySet   Action = "hooks_policy_set"

	// readOnlyInDetached is the set of actions still served once the
	// coordinator has lost its attach claim.
)

var readOnlyInDetached = map[Action]bool{
	ActionTaskDepLs:      true,
	ActionHooksPolicyGet: true,
}

// DelegateTask is one input item to the delegate action.
type DelegateTask struct {
	Text     string
	Assignee string
}

// Params carries every field any action might need, following the flat
// discriminated-struct idiom used for wire envelopes (internal/protocol).
type Params struct {
	// delegate
	Tasks        []DelegateTask
	Teammates    []string
	MaxTeammates int

	// task_* / plan_*
	TaskID   string
	Assignee string
	Status   string
	DepID    string
	Reason   string

	// message_*
	To   string
	Text string

	// member_spawn
	Name          string
	Mode          string
	WorkspaceMode string
	PlanRequired  bool
	Model         string
	Thinking      string

	// member_shutdown / member_kill / member_prune
	All bool

	// plan_approve / plan_reject
	Feedback string

	// hooks_policy_set
	FailureAction     string
	MaxReopensPerTask *int
	FollowupOwner     string
	Reset             bool
}

// Result is the structured, never-panics outcome of one Execute call.
type Result struct {
	OK      bool
	Content string
	Details map[string]any
	Err     *kerr.Error
}

func errResult(err *kerr.Error) Result {
	return Result{OK: false, Content: err.Message, Err: err}
}

func okResult(content string, details map[string]any) Result {
	return Result{OK: true, Content: content, Details: details}
}

type pendingApproval struct {
	requestID string
	taskID    string
	plan      string
}

// Notifier is the leader-UI's interface: the coordinator only needs to
// push it events, never read from it.
type Notifier interface {
	Notify(kind string, payload map[string]any)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, map[string]any) {}

// HookRunner executes the post-completion hook subprocess for one task.
// Abstracted so coordinator tests can substitute a scripted outcome
// instead of spawning a real process.
type HookRunner interface {
	Run(ctx context.Context, teamDir string, task taskstore.Task, taskListID string, timeout time.Duration) (ok bool, err error)
}

// Deps bundles everything a Coordinator needs beyond its own state.
type Deps struct {
	TeamDir         string
	TeamID          string
	TaskListID      string
	LeadName        string
	HolderSessionID string
	LeaderCommand   string
	LeaderArgs      []string
	LeaderEnv       []string
	RepoPath        string
	LeaderProvider  string
	LeaderModelID   string
	HookCommand     string

	Config     procconfig.Config
	Notifier   Notifier
	HookRunner HookRunner
}

// Coordinator owns one leader session's view of one team directory: the
// live teammate map, pending plan approvals, the activity tracker, and the
// remediation state machine. All mutable coordinator state is protected by
// mu; every filesystem mutation instead goes through the component
// packages' own file locks, per the concurrency model's "don't hold an
// in-memory lock across a filesystem lock acquisition" rule — mu is never
// held while calling into taskstore/teamconfig/mailbox/claim.
type Coordinator struct {
	deps  Deps
	store *taskstore.Store

	mu        sync.Mutex
	detached  bool
	teammates map[string]*rpc.TeammateRpc
	approvals map[string]pendingApproval

	activity *activity.Tracker
	spawn    *spawner.Spawner

	cancelBackground context.CancelFunc
}

// New constructs a Coordinator for one team directory. Callers must call
// Attach before Execute will accept mutating actions.
func New(deps Deps) *Coordinator {
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.HookRunner == nil {
		deps.HookRunner = execHookRunner{Command: deps.HookCommand}
	}
	c := &Coordinator{
		deps:      deps,
		store:     taskstore.Open(deps.TeamDir, deps.TaskListID),
		teammates: map[string]*rpc.TeammateRpc{},
		approvals: map[string]pendingApproval{},
		activity:  activity.New(),
	}
	c.spawn = spawner.New(c.isRunning, c.register)
	return c
}

// Attach ensures config.json exists and acquires (or refreshes) the attach
// claim for this leader session.
func (c *Coordinator) Attach(ctx context.Context, force bool) error {
	_, err := teamconfig.Ensure(c.deps.TeamDir, teamconfig.TeamConfig{
		TeamID:     c.deps.TeamID,
		TaskListID: c.deps.TaskListID,
		LeadName:   c.deps.LeadName,
		Hooks:      c.deps.Config.DefaultHooks,
		Members:    []teamconfig.Member{{Name: c.deps.LeadName, Role: teamconfig.RoleLead, Status: teamconfig.StatusOnline}},
	}, time.Now())
	if err != nil {
		return kerr.Wrap(kerr.IoFault, "attach: ensure team config", err)
	}

	res, err := claim.Acquire(ctx, c.deps.TeamDir, c.deps.HolderSessionID, claim.AcquireOptions{
		Force:   force,
		StaleMs: c.deps.Config.StaleMs,
	})
	if err != nil {
		return kerr.Wrap(kerr.IoFault, "attach: acquire claim", err)
	}
	if !res.OK {
		return kerr.New(kerr.Conflict, "claimed_by_other")
	}

	c.mu.Lock()
	c.detached = false
	c.mu.Unlock()
	return nil
}

// Detach releases the attach claim and stops background loops.
func (c *Coordinator) Detach(ctx context.Context) error {
	if c.cancelBackground != nil {
		c.cancelBackground()
	}
	_, err := claim.Release(ctx, c.deps.TeamDir, c.deps.HolderSessionID, claim.ReleaseOptions{})
	return err
}

// RunBackground starts the heartbeat and mailbox-poll loops; it returns
// once ctx is cancelled or the attach claim is lost.
func (c *Coordinator) RunBackground(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelBackground = cancel
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.heartbeatLoop(ctx) }()
	go func() { defer wg.Done(); c.pollLoop(ctx) }()
	wg.Wait()
}

func (c *Coordinator) heartbeatLoop(ctx context.Context) {
	interval := c.deps.Config.Heartbeat()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := claim.Heartbeat(ctx, c.deps.TeamDir, c.deps.HolderSessionID)
			if err != nil {
				logging.Warn().Err(err).Msg("coordinator: heartbeat failed")
				continue
			}
			if status == claim.HeartbeatNotOwner || status == claim.HeartbeatMissing {
				c.enterDetached(string(status))
			}
		}
	}
}

func (c *Coordinator) enterDetached(reason string) {
	c.mu.Lock()
	alreadyDetached := c.detached
	c.detached = true
	c.mu.Unlock()
	if !alreadyDetached {
		logging.Error().Str("reason", reason).Msg("coordinator: lost attach claim, entering detached mode")
		c.deps.Notifier.Notify("detached", map[string]any{"reason": reason})
	}
}

// pollLoop reads the lead's own inbox in both namespaces — per §6.1 every
// worker->leader envelope (idle_notification, plan_approval_request,
// peer_dm_sent, shutdown_approved/rejected) is addressed to the lead, so
// mailbox/<ns>/<leadName>.json is where they all land, never a worker's own
// inbox file (that one holds the leader's outbound task_assignment/
// shutdown_request/plan_approved/rejected envelopes, meant to be consumed by
// the external worker process). The two namespaces are drained in parallel
// via errgroup; envelopes within one namespace are processed in order.
func (c *Coordinator) pollLoop(ctx context.Context) {
	interval := c.deps.Config.PollInterval()
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Coordinator) pollOnce(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, ns := range []string{c.deps.TaskListID, "team"} {
		ns := ns
		g.Go(func() error {
			c.drainInbox(gctx, ns, c.deps.LeadName)
			return nil
		})
	}
	_ = g.Wait()
}

// inboundToLeader reports whether t is one of the envelope types that ever
// flow worker->leader, per the envelope table in §4.D. A leader->worker
// envelope (task_assignment, shutdown_request, plan_approved/rejected,
// abort_request, set_session_name) never matches, so drainInbox below can
// never mistakenly acknowledge one on the external worker's behalf.
func inboundToLeader(t protocol.EnvelopeType) bool {
	switch t {
	case protocol.IdleNotification, protocol.PlanApprovalRequest, protocol.PeerDMSent,
		protocol.ShutdownApproved, protocol.ShutdownRejected:
		return true
	default:
		return false
	}
}

// envelopeKey identifies one envelope for mark-read matching: the envelope's
// own requestId when it carries one, else the (from, timestamp, text)
// composite the protocol doc calls out for requestId-less types like
// idle_notification and peer_dm_sent.
func envelopeKey(env protocol.Envelope, m mailbox.Message) string {
	if env.RequestID != "" {
		return string(env.Type) + ":" + env.RequestID
	}
	h := fnv.New64a()
	h.Write([]byte(m.From))
	h.Write([]byte(m.Text))
	return fmt.Sprintf("%s:%d:%x", env.Type, m.Timestamp.UnixNano(), h.Sum64())
}

// drainInbox reads the lead's unread inbox in namespace ns, processes every
// worker->leader envelope found, and marks read only those exact envelopes
// (matched by envelopeKey) — never the leader->worker ones, and never an
// envelope the coordinator didn't actually hand to processEnvelope.
func (c *Coordinator) drainInbox(ctx context.Context, ns, name string) {
	msgs, err := mailbox.ReadInbox(c.deps.TeamDir, ns, name, true)
	if err != nil {
		logging.Warn().Err(err).Str("ns", ns).Str("member", name).Msg("coordinator: read inbox failed")
		return
	}

	handled := map[string]bool{}
	for _, m := range msgs {
		env, ok := m.Envelope()
		if !ok || !inboundToLeader(env.Type) || !protocol.Valid(env) {
			continue
		}
		c.processEnvelope(ctx, m.From, env)
		handled[envelopeKey(env, m)] = true
	}
	if len(handled) == 0 {
		return
	}
	_ = mailbox.MarkRead(c.deps.TeamDir, ns, name, func(m mailbox.Message) bool {
		env, ok := m.Envelope()
		if !ok || !inboundToLeader(env.Type) {
			return false
		}
		return handled[envelopeKey(env, m)]
	})
}

// processEnvelope handles one worker->leader envelope. Only idle_notification,
// plan_approval_request, shutdown_approved/rejected, and peer_dm_sent ever
// flow in this direction per the envelope table.
func (c *Coordinator) processEnvelope(ctx context.Context, from string, env protocol.Envelope) {
	switch env.Type {
	case protocol.IdleNotification:
		if env.CompletedStatus == "completed" && env.CompletedTaskID != "" {
			c.onTaskCompleted(ctx, from, env.CompletedTaskID)
		}
	case protocol.PlanApprovalRequest:
		c.mu.Lock()
		c.approvals[from] = pendingApproval{requestID: env.RequestID, taskID: env.TaskID, plan: env.Plan}
		c.mu.Unlock()
		c.deps.Notifier.Notify("plan_approval_request", map[string]any{"from": from, "plan": env.Plan, "requestId": env.RequestID})
	case protocol.PeerDMSent:
		c.deps.Notifier.Notify("peer_dm", map[string]any{"from": env.From, "to": env.To, "summary": env.Summary})
	case protocol.ShutdownApproved, protocol.ShutdownRejected:
		c.deps.Notifier.Notify(string(env.Type), map[string]any{"from": from, "requestId": env.RequestID, "reason": env.Reason})
	}
}

// Tasks returns every task in this coordinator's task list, for read-only
// surfaces like the CLI's `task list` that don't need an Action dispatch.
func (c *Coordinator) Tasks() ([]taskstore.Task, error) {
	return c.store.ListTasks()
}

// CreateTask creates one task directly, optionally notifying owner, without
// the delegate action's round-robin assignment or auto-spawn side effects.
// This is the `team task add` CLI's entry point: an operator adding a task
// to an existing roster, as opposed to delegate's "stand up a fresh team
// for this batch of work" semantics.
func (c *Coordinator) CreateTask(subject, owner string) (taskstore.Task, error) {
	owner = sanitize.Name(owner)
	task, err := c.store.CreateTask(subject, subject, owner)
	if err != nil {
		return taskstore.Task{}, classify(err, "task add")
	}
	if owner != "" {
		if err := c.sendTaskAssignment(task, owner, c.deps.LeadName); err != nil {
			return task, classify(err, "task add: notify")
		}
	}
	return task, nil
}

func (c *Coordinator) isRunning(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.teammates[name]
	return ok
}

func (c *Coordinator) register(name string, handle *rpc.TeammateRpc) {
	c.mu.Lock()
	c.teammates[name] = handle
	c.mu.Unlock()
	handle.OnEvent(func(ev rpc.Event) { c.activity.Record(name, ev) })
}

// Execute dispatches one `teams` tool action. It never panics: every
// failure mode, expected or not, comes back as Result.OK == false with a
// classified Err.
func (c *Coordinator) Execute(ctx context.Context, action Action, p Params) Result {
	c.mu.Lock()
	detached := c.detached
	c.mu.Unlock()
	if detached && !readOnlyInDetached[action] {
		return errResult(kerr.New(kerr.Conflict, "coordinator is detached: attach claim was lost"))
	}

	switch action {
	case ActionDelegate:
		return c.doDelegate(ctx, p)
	case ActionTaskAssign:
		return c.doTaskAssign(p)
	case ActionTaskUnassign:
		return c.doTaskUnassign(p)
	case ActionTaskSetStatus:
		return c.doTaskSetStatus(p)
	case ActionTaskDepAdd:
		return c.doTaskDepAdd(p)
	case ActionTaskDepRm:
		return c.doTaskDepRm(p)
	case ActionTaskDepLs:
		return c.doTaskDepLs(p)
	case ActionMessageDM:
		return c.doMessageDM(p)
	case ActionMessageBroadcast:
		return c.doMessageBroadcast(p)
	case ActionMessageSteer:
		return c.doMessageSteer(p)
	case ActionMemberSpawn:
		return c.doMemberSpawn(ctx, p)
	case ActionMemberShutdown:
		return c.doMemberShutdown(p)
	case ActionMemberKill:
		return c.doMemberKill(ctx, p)
	case ActionMemberPrune:
		return c.doMemberPrune(p)
	case ActionPlanApprove:
		return c.doPlanApprove(p)
	case ActionPlanReject:
		return c.doPlanReject(p)
	case ActionHooksPolicyGet:
		return c.doHooksPolicyGet()
	case ActionHooksPolicySet:
		return c.doHooksPolicySet(p)
	default:
		return errResult(kerr.New(kerr.InvalidInput, fmt.Sprintf("unknown action %q", action)))
	}
}

// --- delegate ---------------------------------------------------------

func (c *Coordinator) doDelegate(ctx context.Context, p Params) Result {
	if len(p.Tasks) == 0 {
		return errResult(kerr.New(kerr.InvalidInput, "delegate: at least one task is required"))
	}

	assignees := p.Teammates
	if len(assignees) == 0 {
		maxTeammates := p.MaxTeammates
		if maxTeammates <= 0 {
			maxTeammates = len(p.Tasks)
		}
		n := len(p.Tasks)
		if n > maxTeammates {
			n = maxTeammates
		}
		cfg, _, _ := teamconfig.Load(c.deps.TeamDir)
		taken := map[string]bool{}
		for _, m := range cfg.Members {
			taken[m.Name] = true
		}
		for i := 0; i < n; i++ {
			assignees = append(assignees, namepool.Next(cfg.Style, i, taken))
			taken[assignees[i]] = true
		}
	}

	for _, name := range assignees {
		if c.isRunning(sanitize.Name(name)) {
			continue
		}
		if res := c.doMemberSpawn(ctx, Params{Name: name, Mode: "fresh", WorkspaceMode: "shared"}); !res.OK && res.Err != nil && res.Err.Kind != kerr.Conflict {
			return res
		}
	}

	var assigned []map[string]any
	for i, item := range p.Tasks {
		assignee := item.Assignee
		if assignee == "" {
			assignee = assignees[i%len(assignees)]
		}
		assignee = sanitize.Name(assignee)

		task, err := c.store.CreateTask(item.Text, item.Text, assignee)
		if err != nil {
			return errResult(classify(err, "delegate: create task"))
		}
		if err := c.sendTaskAssignment(task, assignee, c.deps.LeadName); err != nil {
			return errResult(classify(err, "delegate: notify assignee"))
		}
		assigned = append(assigned, map[string]any{"taskId": task.ID, "owner": assignee})
	}

	return okResult(fmt.Sprintf("delegated %d task(s)", len(p.Tasks)), map[string]any{"tasks": assigned})
}

func (c *Coordinator) sendTaskAssignment(task taskstore.Task, assignee, assignedBy string) error {
	env := protocol.Envelope{Type: protocol.TaskAssignment, TaskID: task.ID, Subject: task.Subject, Description: task.Description, AssignedBy: assignedBy}
	text, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return mailbox.Write(c.deps.TeamDir, c.deps.TaskListID, assignee, mailbox.Message{From: assignedBy, Text: text, Timestamp: time.Now()})
}

// --- task_* -------------------------------------------------------------

func (c *Coordinator) doTaskAssign(p Params) Result {
	if p.TaskID == "" || p.Assignee == "" {
		return errResult(kerr.New(kerr.InvalidInput, "task_assign: taskId and assignee are required"))
	}
	assignee := sanitize.Name(p.Assignee)
	task, err := c.store.AssignOwner(p.TaskID, assignee, time.Now())
	if err != nil {
		return errResult(classify(err, "task_assign"))
	}
	if err := c.sendTaskAssignment(task, assignee, c.deps.LeadName); err != nil {
		return errResult(classify(err, "task_assign: notify"))
	}
	return okResult(fmt.Sprintf("assigned %s to %s", task.ID, assignee), map[string]any{"task": task})
}

func (c *Coordinator) doTaskUnassign(p Params) Result {
	if p.TaskID == "" {
		return errResult(kerr.New(kerr.InvalidInput, "task_unassign: taskId is required"))
	}
	task, ok, err := c.store.GetTask(p.TaskID)
	if err != nil {
		return errResult(classify(err, "task_unassign"))
	}
	if !ok {
		return errResult(kerr.New(kerr.NotFound, "task not found: "+p.TaskID))
	}
	updated, err := c.store.UpdateTask(p.TaskID, func(t taskstore.Task) taskstore.Task {
		t.Owner = ""
		if t.Status != taskstore.Completed {
			t.Status = taskstore.Pending
		}
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		t.Metadata["unassignedAt"] = time.Now().UTC().Format(time.RFC3339)
		t.Metadata["unassignedBy"] = c.deps.LeadName
		t.Metadata["unassignedReason"] = p.Reason
		return t
	})
	_ = task
	if err != nil {
		return errResult(classify(err, "task_unassign"))
	}
	return okResult("unassigned "+p.TaskID, map[string]any{"task": updated})
}

func (c *Coordinator) doTaskSetStatus(p Params) Result {
	if p.TaskID == "" || p.Status == "" {
		return errResult(kerr.New(kerr.InvalidInput, "task_set_status: taskId and status are required"))
	}
	task, err := c.store.SetStatus(p.TaskID, taskstore.Status(p.Status), time.Now())
	if err != nil {
		return errResult(classify(err, "task_set_status"))
	}
	return okResult(fmt.Sprintf("%s -> %s", task.ID, task.Status), map[string]any{"task": task})
}

func (c *Coordinator) doTaskDepAdd(p Params) Result {
	if p.TaskID == "" || p.DepID == "" {
		return errResult(kerr.New(kerr.InvalidInput, "task_dep_add: taskId and depId are required"))
	}
	if err := c.store.AddTaskDependency(p.TaskID, p.DepID); err != nil {
		return errResult(classify(err, "task_dep_add"))
	}
	return okResult(fmt.Sprintf("%s now blocked by %s", p.TaskID, p.DepID), nil)
}

func (c *Coordinator) doTaskDepRm(p Params) Result {
	if p.TaskID == "" || p.DepID == "" {
		return errResult(kerr.New(kerr.InvalidInput, "task_dep_rm: taskId and depId are required"))
	}
	if err := c.store.RemoveTaskDependency(p.TaskID, p.DepID); err != nil {
		return errResult(classify(err, "task_dep_rm"))
	}
	return okResult(fmt.Sprintf("%s no longer blocked by %s", p.TaskID, p.DepID), nil)
}

func (c *Coordinator) doTaskDepLs(p Params) Result {
	if p.TaskID == "" {
		return errResult(kerr.New(kerr.InvalidInput, "task_dep_ls: taskId is required"))
	}
	task, ok, err := c.store.GetTask(p.TaskID)
	if err != nil {
		return errResult(classify(err, "task_dep_ls"))
	}
	if !ok {
		return errResult(kerr.New(kerr.NotFound, "task not found: "+p.TaskID))
	}
	blocked, err := c.store.IsTaskBlocked(task)
	if err != nil {
		return errResult(classify(err, "task_dep_ls"))
	}
	label := "unblocked"
	if blocked {
		label = "blocked"
	}
	return okResult(fmt.Sprintf("%s is %s (blockedBy=%v blocks=%v)", task.ID, label, task.BlockedBy, task.Blocks),
		map[string]any{"task": task, "blocked": blocked})
}

// --- message_* ----------------------------------------------------------

func (c *Coordinator) doMessageDM(p Params) Result {
	if p.To == "" || p.Text == "" {
		return errResult(kerr.New(kerr.InvalidInput, "message_dm: to and text are required"))
	}
	to := sanitize.Name(p.To)
	if err := mailbox.Write(c.deps.TeamDir, "team", to, mailbox.Message{From: c.deps.LeadName, Text: p.Text, Timestamp: time.Now()}); err != nil {
		return errResult(classify(err, "message_dm"))
	}
	return okResult("sent DM to "+to, nil)
}

func (c *Coordinator) doMessageBroadcast(p Params) Result {
	if p.Text == "" {
		return errResult(kerr.New(kerr.InvalidInput, "message_broadcast: text is required"))
	}
	recipients := c.broadcastRecipients()
	if err := mailbox.Broadcast(c.deps.TeamDir, "team", recipients, c.deps.LeadName, p.Text, time.Now()); err != nil {
		return errResult(classify(err, "message_broadcast"))
	}
	return okResult(fmt.Sprintf("broadcast to %d recipient(s)", len(recipients)), map[string]any{"recipients": recipients})
}

func (c *Coordinator) broadcastRecipients() []string {
	set := map[string]bool{}
	cfg, ok, _ := teamconfig.Load(c.deps.TeamDir)
	if ok {
		for _, m := range cfg.Members {
			if m.Role == teamconfig.RoleWorker {
				set[m.Name] = true
			}
		}
	}
	c.mu.Lock()
	for name := range c.teammates {
		set[name] = true
	}
	c.mu.Unlock()
	if tasks, err := c.store.ListTasks(); err == nil {
		for _, t := range tasks {
			if t.Owner != "" && t.Owner != c.deps.LeadName {
				set[t.Owner] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) doMessageSteer(p Params) Result {
	if p.To == "" || p.Text == "" {
		return errResult(kerr.New(kerr.InvalidInput, "message_steer: to and text are required"))
	}
	to := sanitize.Name(p.To)
	c.mu.Lock()
	handle, ok := c.teammates[to]
	c.mu.Unlock()
	if !ok {
		return errResult(kerr.New(kerr.NotFound, "no running teammate named "+to))
	}
	if _, err := handle.Send(context.Background(), "steer", map[string]any{"text": p.Text}); err != nil {
		return errResult(classify(err, "message_steer"))
	}
	return okResult("steered "+to, nil)
}

// --- member_* -------------------------------------------------------------

func (c *Coordinator) doMemberSpawn(ctx context.Context, p Params) Result {
	res, err := c.spawn.Spawn(ctx, spawner.Options{
		Name:           p.Name,
		Mode:           spawner.ContextMode(orDefault(p.Mode, string(spawner.ModeFresh))),
		WorkspaceMode:  spawner.WorkspaceMode(orDefault(p.WorkspaceMode, string(spawner.WorkspaceShared))),
		PlanRequired:   p.PlanRequired,
		ModelOverride:  p.Model,
		ThinkingLevel:  p.Thinking,
		RepoPath:       c.deps.RepoPath,
		TeamDir:        c.deps.TeamDir,
		LeaderCwd:      c.deps.RepoPath,
		Command:        c.deps.LeaderCommand,
		Args:           c.deps.LeaderArgs,
		Env:            c.deps.LeaderEnv,
		LeaderProvider: c.deps.LeaderProvider,
		LeaderModelID:  c.deps.LeaderModelID,
	})
	if err != nil {
		return errResult(classify(err, "member_spawn"))
	}
	details := map[string]any{"name": res.Name, "mode": res.Mode, "workspaceMode": res.WorkspaceMode}
	if res.Note != "" {
		details["note"] = res.Note
	}
	if len(res.Warnings) > 0 {
		details["warnings"] = res.Warnings
	}
	return okResult("spawned "+res.Name, details)
}

func (c *Coordinator) doMemberShutdown(p Params) Result {
	targets := []string{}
	if p.Name != "" && p.Name != "all" {
		targets = append(targets, sanitize.Name(p.Name))
	} else {
		cfg, ok, _ := teamconfig.Load(c.deps.TeamDir)
		if ok {
			for _, m := range cfg.Members {
				if m.Role == teamconfig.RoleWorker && m.Status == teamconfig.StatusOnline {
					targets = append(targets, m.Name)
				}
			}
		}
	}
	if len(targets) == 0 {
		return errResult(kerr.New(kerr.NotFound, "no online workers to shut down"))
	}

	now := time.Now()
	for _, name := range targets {
		requestID := uuid.NewString()
		env := protocol.Envelope{Type: protocol.ShutdownRequest, RequestID: requestID, From: c.deps.LeadName, Timestamp: now.UTC().Format(time.RFC3339)}
		text, _ := protocol.Encode(env)
		if err := mailbox.Write(c.deps.TeamDir, "team", name, mailbox.Message{From: c.deps.LeadName, Text: text, Timestamp: now}); err != nil {
			return errResult(classify(err, "member_shutdown"))
		}
		teamconfig.SetMemberStatus(c.deps.TeamDir, name, teamconfig.StatusOnline, map[string]any{"shutdownRequestedAt": now.UTC().Format(time.RFC3339)}, now)
	}
	return okResult(fmt.Sprintf("shutdown requested for %d worker(s)", len(targets)), map[string]any{"targets": targets})
}

func (c *Coordinator) doMemberKill(ctx context.Context, p Params) Result {
	if p.Name == "" {
		return errResult(kerr.New(kerr.InvalidInput, "member_kill: name is required"))
	}
	name := sanitize.Name(p.Name)
	c.mu.Lock()
	handle, ok := c.teammates[name]
	delete(c.teammates, name)
	c.mu.Unlock()
	if ok {
		_ = handle.Stop(ctx)
	}
	c.activity.Reset(name)
	c.cleanupWorktree(name)
	if err := c.store.UnassignTasksForAgent(name, "killed", time.Now()); err != nil {
		return errResult(classify(err, "member_kill"))
	}
	if _, err := teamconfig.SetMemberStatus(c.deps.TeamDir, name, teamconfig.StatusOffline, map[string]any{"killedAt": time.Now().UTC().Format(time.RFC3339)}, time.Now()); err != nil {
		return errResult(classify(err, "member_kill"))
	}
	return okResult("killed "+name, nil)
}

func (c *Coordinator) doMemberPrune(p Params) Result {
	cfg, ok, err := teamconfig.Load(c.deps.TeamDir)
	if err != nil {
		return errResult(classify(err, "member_prune"))
	}
	if !ok {
		return okResult("nothing to prune", nil)
	}
	tasks, err := c.store.ListTasks()
	if err != nil {
		return errResult(classify(err, "member_prune"))
	}
	inProgressOwner := map[string]bool{}
	for _, t := range tasks {
		if t.Status == taskstore.InProgress && t.Owner != "" {
			inProgressOwner[t.Owner] = true
		}
	}

	cutoff := time.Now().Add(-1 * time.Hour)
	var pruned []string
	now := time.Now()
	for _, m := range cfg.Members {
		if m.Role != teamconfig.RoleWorker || m.Status != teamconfig.StatusOnline {
			continue
		}
		if c.isRunning(m.Name) {
			continue
		}
		if inProgressOwner[m.Name] {
			continue
		}
		if !p.All {
			if m.LastSeenAt == nil || m.LastSeenAt.After(cutoff) {
				continue
			}
		}
		c.cleanupWorktree(m.Name)
		if _, err := teamconfig.SetMemberStatus(c.deps.TeamDir, m.Name, teamconfig.StatusOffline,
			map[string]any{"prunedAt": now.UTC().Format(time.RFC3339), "prunedBy": "teams-tool"}, now); err != nil {
			return errResult(classify(err, "member_prune"))
		}
		pruned = append(pruned, m.Name)
	}
	return okResult(fmt.Sprintf("pruned %d member(s)", len(pruned)), map[string]any{"pruned": pruned})
}

// --- plan_* ---------------------------------------------------------------

func (c *Coordinator) doPlanApprove(p Params) Result {
	return c.resolvePlan(p.Name, protocol.PlanApproved, p.Feedback)
}

func (c *Coordinator) doPlanReject(p Params) Result {
	return c.resolvePlan(p.Name, protocol.PlanRejected, p.Feedback)
}

func (c *Coordinator) resolvePlan(name string, outcome protocol.EnvelopeType, feedback string) Result {
	if name == "" {
		return errResult(kerr.New(kerr.InvalidInput, "plan approval: name is required"))
	}
	name = sanitize.Name(name)
	c.mu.Lock()
	approval, ok := c.approvals[name]
	if ok {
		delete(c.approvals, name)
	}
	c.mu.Unlock()
	if !ok {
		return errResult(kerr.New(kerr.NotFound, "no pending plan approval for "+name))
	}

	env := protocol.Envelope{Type: outcome, RequestID: approval.requestID, From: c.deps.LeadName, Feedback: feedback}
	text, err := protocol.Encode(env)
	if err != nil {
		return errResult(classify(err, "plan approval: encode"))
	}
	if err := mailbox.Write(c.deps.TeamDir, "team", name, mailbox.Message{From: c.deps.LeadName, Text: text, Timestamp: time.Now()}); err != nil {
		return errResult(classify(err, "plan approval: notify"))
	}
	return okResult(fmt.Sprintf("%s sent to %s", outcome, name), map[string]any{"taskId": approval.taskID})
}

// --- hooks_policy_* ---------------------------------------------------------

func (c *Coordinator) doHooksPolicyGet() Result {
	cfg, ok, err := teamconfig.Load(c.deps.TeamDir)
	if err != nil {
		return errResult(classify(err, "hooks_policy_get"))
	}
	if !ok {
		return okResult("default policy", map[string]any{"hooks": c.deps.Config.DefaultHooks})
	}
	return okResult("current policy", map[string]any{"hooks": cfg.Hooks})
}

func (c *Coordinator) doHooksPolicySet(p Params) Result {
	now := time.Now()
	cfg, err := teamconfig.UpdateHooksPolicy(c.deps.TeamDir, func(current teamconfig.HookPolicy) teamconfig.HookPolicy {
		if p.Reset {
			return c.deps.Config.DefaultHooks
		}
		next := current
		if p.FailureAction != "" {
			next.FailureAction = teamconfig.FailureAction(p.FailureAction)
		}
		if p.MaxReopensPerTask != nil {
			next.MaxReopensPerTask = *p.MaxReopensPerTask
		}
		if p.FollowupOwner != "" {
			next.FollowupOwner = teamconfig.FollowupOwner(p.FollowupOwner)
		}
		return next
	}, now)
	if err != nil {
		return errResult(classify(err, "hooks_policy_set"))
	}
	return okResult("updated hooks policy", map[string]any{"hooks": cfg.Hooks})
}

// cleanupWorktree force-removes the worktree a member was spawned into, if
// any. Best-effort: a teardown failure is logged, not surfaced, since the
// member is already being killed/pruned regardless.
func (c *Coordinator) cleanupWorktree(name string) {
	cfg, ok, err := teamconfig.Load(c.deps.TeamDir)
	if err != nil || !ok {
		return
	}
	for _, m := range cfg.Members {
		if m.Name != name {
			continue
		}
		mode, _ := m.Meta["workspaceMode"].(string)
		path, _ := m.Meta["workspacePath"].(string)
		if mode != string(spawner.WorkspaceWorktree) || path == "" {
			return
		}
		if err := workspace.Cleanup(c.deps.RepoPath, path); err != nil {
			logging.Warn().Err(err).Str("member", name).Str("path", path).Msg("coordinator: worktree cleanup failed")
		}
		return
	}
}

// --- helpers ---------------------------------------------------------------

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// classify turns an arbitrary error into a *kerr.Error, defaulting to
// IoFault for anything not already classified (the "recovered locally"
// read-path policy does not apply to writes: those propagate).
func classify(err error, context string) *kerr.Error {
	if err == nil {
		return nil
	}
	if k, ok := kerr.KindOf(err); ok {
		return kerr.Wrap(k, context, err)
	}
	return kerr.Wrap(kerr.IoFault, context, err)
}
