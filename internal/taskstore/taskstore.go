// Package taskstore persists one team's task list as a single JSON file
// under a file lock, including the dependency graph and the status state
// machine. Writes use atomic write-temp-then-rename save().
package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ytnobody/teamsctl/internal/kerr"
	"github.com/ytnobody/teamsctl/internal/lock"
)

// Status is a Task's lifecycle state.
type Status string

const (
	Pending    Status = "pending"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
)

// Task is one unit of delegated work.
type Task struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Status      Status         `json:"status"`
	Owner       string         `json:"owner,omitempty"`
	BlockedBy   []string       `json:"blockedBy"`
	Blocks      []string       `json:"blocks"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (t Task) clone() Task {
	c := t
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	c.Blocks = append([]string(nil), t.Blocks...)
	c.Metadata = cloneMeta(t.Metadata)
	return c
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// document is the on-disk shape: a counter plus the ordered task list.
type document struct {
	NextID int    `json:"nextId"`
	Tasks  []Task `json:"tasks"`
}

// Store manages one (teamId, taskListId) task list file.
type Store struct {
	path     string
	lockPath string
}

// Open returns a Store for taskListID inside teamDir. No I/O happens until
// an operation is invoked; the file is created lazily on first write.
func Open(teamDir, taskListID string) *Store {
	path := filepath.Join(teamDir, "tasklists", taskListID+".json")
	return &Store{path: path, lockPath: path + ".lock"}
}

// CreateTask appends a new task with a fresh id, status "pending", and
// empty dependency sets.
func (s *Store) CreateTask(subject, description, owner string) (Task, error) {
	var created Task
	err := s.mutate(func(doc *document) error {
		id := fmt.Sprintf("t%d", doc.NextID)
		doc.NextID++
		created = Task{
			ID:          id,
			Subject:     truncateSubject(subject),
			Description: description,
			Status:      Pending,
			Owner:       owner,
			BlockedBy:   []string{},
			Blocks:      []string{},
		}
		doc.Tasks = append(doc.Tasks, created)
		return nil
	})
	return created, err
}

func truncateSubject(s string) string {
	if len(s) <= 120 {
		return s
	}
	return s[:120]
}

// GetTask returns the task with id, if present.
func (s *Store) GetTask(id string) (Task, bool, error) {
	doc, err := s.read()
	if err != nil {
		return Task{}, false, err
	}
	for _, t := range doc.Tasks {
		if t.ID == id {
			return t.clone(), true, nil
		}
	}
	return Task{}, false, nil
}

// ListTasks returns all tasks in insertion order.
func (s *Store) ListTasks() ([]Task, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]Task, len(doc.Tasks))
	for i, t := range doc.Tasks {
		out[i] = t.clone()
	}
	return out, nil
}

// Transform is a pure function rewriting a task. UpdateTask rejects the
// result if it introduces a dependency cycle.
type Transform func(Task) Task

// UpdateTask applies f to the task with id under the store's lock.
func (s *Store) UpdateTask(id string, f Transform) (Task, error) {
	var result Task
	err := s.mutate(func(doc *document) error {
		idx := indexOf(doc.Tasks, id)
		if idx < 0 {
			return kerr.New(kerr.NotFound, "task not found: "+id)
		}
		next := f(doc.Tasks[idx].clone())
		next.ID = doc.Tasks[idx].ID // identity is not transformable
		if hasCycle(withTask(doc.Tasks, next)) {
			return kerr.New(kerr.Conflict, "update would introduce a dependency cycle")
		}
		doc.Tasks[idx] = next
		result = next.clone()
		return nil
	})
	return result, err
}

// AddTaskDependency records that taskID is blocked by depID, maintaining
// the symmetric blockedBy/blocks invariant in one atomic write. Rejected if
// either id is missing or the edge would create a cycle.
func (s *Store) AddTaskDependency(taskID, depID string) error {
	return s.mutate(func(doc *document) error {
		ti := indexOf(doc.Tasks, taskID)
		di := indexOf(doc.Tasks, depID)
		if ti < 0 || di < 0 {
			return kerr.New(kerr.NotFound, "task or dependency not found")
		}
		if taskID == depID {
			return kerr.New(kerr.Conflict, "a task cannot depend on itself")
		}
		if contains(doc.Tasks[ti].BlockedBy, depID) {
			return nil // idempotent no-op
		}

		trial := cloneTasks(doc.Tasks)
		trial[ti].BlockedBy = append(append([]string{}, trial[ti].BlockedBy...), depID)
		trial[di].Blocks = append(append([]string{}, trial[di].Blocks...), taskID)
		if hasCycle(trial) {
			return kerr.New(kerr.Conflict, "dependency would introduce a cycle")
		}
		doc.Tasks = trial
		return nil
	})
}

// RemoveTaskDependency removes the taskID<-depID edge, if present.
func (s *Store) RemoveTaskDependency(taskID, depID string) error {
	return s.mutate(func(doc *document) error {
		ti := indexOf(doc.Tasks, taskID)
		di := indexOf(doc.Tasks, depID)
		if ti < 0 || di < 0 {
			return kerr.New(kerr.NotFound, "task or dependency not found")
		}
		doc.Tasks[ti].BlockedBy = removeString(doc.Tasks[ti].BlockedBy, depID)
		doc.Tasks[di].Blocks = removeString(doc.Tasks[di].Blocks, taskID)
		return nil
	})
}

// IsTaskBlocked reports whether any task in t's transitive blockedBy
// closure is not completed.
func (s *Store) IsTaskBlocked(t Task) (bool, error) {
	doc, err := s.read()
	if err != nil {
		return false, err
	}
	byID := make(map[string]Task, len(doc.Tasks))
	for _, task := range doc.Tasks {
		byID[task.ID] = task
	}

	visited := map[string]bool{}
	var walk func(id string) bool
	walk = func(id string) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		task, ok := byID[id]
		if !ok {
			return false
		}
		if task.Status != Completed {
			return true
		}
		for _, dep := range task.BlockedBy {
			if walk(dep) {
				return true
			}
		}
		return false
	}

	for _, dep := range t.BlockedBy {
		if walk(dep) {
			return true, nil
		}
	}
	return false, nil
}

// SetStatus applies the lifecycle transition for s per the task status
// state machine. Idempotent: setting the same status is a no-op producing
// byte-identical file content.
func (s *Store) SetStatus(id string, newStatus Status, now time.Time) (Task, error) {
	var result Task
	err := s.mutate(func(doc *document) error {
		idx := indexOf(doc.Tasks, id)
		if idx < 0 {
			return kerr.New(kerr.NotFound, "task not found: "+id)
		}
		t := doc.Tasks[idx]
		if t.Status == newStatus {
			result = t.clone()
			return errNoop
		}

		next := t.clone()
		switch {
		case t.Status == Pending && newStatus == InProgress:
			next.Status = InProgress
		case t.Status == InProgress && newStatus == Completed:
			next.Status = Completed
			setMeta(&next, "completedAt", now.UTC().Format(time.RFC3339))
		case t.Status == InProgress && newStatus == Pending:
			next.Status = Pending
			next.Owner = ""
		case t.Status == Completed && newStatus == Pending:
			next.Status = Pending
			setMeta(&next, "reopenedAt", now.UTC().Format(time.RFC3339))
		default:
			return kerr.New(kerr.InvalidInput, fmt.Sprintf("no transition from %s to %s", t.Status, newStatus))
		}

		doc.Tasks[idx] = next
		result = next.clone()
		return nil
	})
	if err == errNoop {
		err = nil
	}
	return result, err
}

// AssignOwner sets owner on task id. Idempotent when owner is unchanged.
// completed tasks keep their status (reassign); others move to pending
// per the "pending -- assign --> pending" / unassign-then-assign pattern.
func (s *Store) AssignOwner(id, owner string, now time.Time) (Task, error) {
	var result Task
	err := s.mutate(func(doc *document) error {
		idx := indexOf(doc.Tasks, id)
		if idx < 0 {
			return kerr.New(kerr.NotFound, "task not found: "+id)
		}
		t := doc.Tasks[idx]
		if t.Owner == owner {
			result = t.clone()
			return errNoop
		}
		next := t.clone()
		next.Owner = owner
		if t.Status == Completed {
			setMeta(&next, "reassignedTo", owner)
			setMeta(&next, "reassignedAt", now.UTC().Format(time.RFC3339))
		} else if t.Status != Pending {
			next.Status = Pending
		}
		doc.Tasks[idx] = next
		result = next.clone()
		return nil
	})
	if err == errNoop {
		err = nil
	}
	return result, err
}

// UnassignTasksForAgent clears ownership on every non-completed task owned
// by agentName, resetting status to pending and stamping attribution.
func (s *Store) UnassignTasksForAgent(agentName, reason string, now time.Time) error {
	return s.mutate(func(doc *document) error {
		for i, t := range doc.Tasks {
			if t.Owner != agentName || t.Status == Completed {
				continue
			}
			next := t.clone()
			next.Owner = ""
			next.Status = Pending
			setMeta(&next, "unassignedAt", now.UTC().Format(time.RFC3339))
			setMeta(&next, "unassignedBy", "coordinator")
			setMeta(&next, "unassignedReason", reason)
			doc.Tasks[i] = next
		}
		return nil
	})
}

var errNoop = fmt.Errorf("taskstore: no-op")

func setMeta(t *Task, key string, value any) {
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	t.Metadata[key] = value
}

func indexOf(tasks []Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func cloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.clone()
	}
	return out
}

func withTask(tasks []Task, updated Task) []Task {
	out := cloneTasks(tasks)
	if idx := indexOf(out, updated.ID); idx >= 0 {
		out[idx] = updated
	} else {
		out = append(out, updated)
	}
	return out
}

// hasCycle detects a cycle in the blockedBy adjacency via DFS with a
// recursion-stack marker.
func hasCycle(tasks []Task) bool {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case gray:
			return true
		case black:
			return false
		}
		color[id] = gray
		for _, dep := range byID[id].BlockedBy {
			if visit(dep) {
				return true
			}
		}
		color[id] = black
		return false
	}
	for _, t := range tasks {
		if color[t.ID] == white {
			if visit(t.ID) {
				return true
			}
		}
	}
	return false
}

func (s *Store) read() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{Tasks: []Task{}}, nil
		}
		return document{Tasks: []Task{}}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{Tasks: []Task{}}, nil
	}
	if doc.Tasks == nil {
		doc.Tasks = []Task{}
	}
	return doc, nil
}

func (s *Store) write(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("taskstore: create dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstore: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("taskstore: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("taskstore: rename: %w", err)
	}
	return nil
}

// mutate runs f against the current document under the file lock,
// persisting the result unless f returns errNoop (used for idempotent
// short-circuits that must not touch the file's bytes).
func (s *Store) mutate(f func(doc *document) error) error {
	return lock.WithLock(context.Background(), s.lockPath, lock.Options{}, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		if err := f(&doc); err != nil {
			if err == errNoop {
				return errNoop
			}
			return err
		}
		return s.write(doc)
	})
}
