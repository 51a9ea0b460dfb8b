package taskstore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ytnobody/teamsctl/internal/kerr"
)

func TestCreateAndListTasksPreserveInsertionOrder(t *testing.T) {
	s := Open(t.TempDir(), "tl1")
	a, err := s.CreateTask("A", "", "")
	require.NoError(t, err)
	b, err := s.CreateTask("B", "", "")
	require.NoError(t, err)
	c, err := s.CreateTask("C", "", "")
	require.NoError(t, err)

	tasks, err := s.ListTasks()
	require.NoError(t, err)
	require.Equal(t, []string{a.ID, b.ID, c.ID}, []string{tasks[0].ID, tasks[1].ID, tasks[2].ID})
	require.Equal(t, Pending, tasks[0].Status)
}

// TestDependencyCycleRejected covers testable property 2 and scenario S3.
func TestDependencyCycleRejected(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, "tl1")
	t1, err := s.CreateTask("T1", "", "")
	require.NoError(t, err)
	t2, err := s.CreateTask("T2", "", "")
	require.NoError(t, err)

	require.NoError(t, s.AddTaskDependency(t1.ID, t2.ID))

	before, err := s.ListTasks()
	require.NoError(t, err)

	err = s.AddTaskDependency(t2.ID, t1.ID)
	require.Error(t, err)
	require.True(t, kerr.Is(err, kerr.Conflict))

	after, err := s.ListTasks()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

// TestDependencySymmetry covers testable property 3.
func TestDependencySymmetry(t *testing.T) {
	s := Open(t.TempDir(), "tl1")
	t1, _ := s.CreateTask("T1", "", "")
	t2, _ := s.CreateTask("T2", "", "")

	require.NoError(t, s.AddTaskDependency(t1.ID, t2.ID))

	got1, _, _ := s.GetTask(t1.ID)
	got2, _, _ := s.GetTask(t2.ID)
	require.Contains(t, got1.BlockedBy, t2.ID)
	require.Contains(t, got2.Blocks, t1.ID)

	require.NoError(t, s.RemoveTaskDependency(t1.ID, t2.ID))
	got1, _, _ = s.GetTask(t1.ID)
	got2, _, _ = s.GetTask(t2.ID)
	require.NotContains(t, got1.BlockedBy, t2.ID)
	require.NotContains(t, got2.Blocks, t1.ID)
}

func TestIsTaskBlockedTransitive(t *testing.T) {
	s := Open(t.TempDir(), "tl1")
	t1, _ := s.CreateTask("T1", "", "")
	t2, _ := s.CreateTask("T2", "", "")
	t3, _ := s.CreateTask("T3", "", "")

	require.NoError(t, s.AddTaskDependency(t3.ID, t2.ID))
	require.NoError(t, s.AddTaskDependency(t2.ID, t1.ID))

	got3, _, _ := s.GetTask(t3.ID)
	blocked, err := s.IsTaskBlocked(got3)
	require.NoError(t, err)
	require.True(t, blocked)

	_, err = s.SetStatus(t1.ID, InProgress, time.Now())
	require.NoError(t, err)
	_, err = s.SetStatus(t1.ID, Completed, time.Now())
	require.NoError(t, err)
	_, err = s.SetStatus(t2.ID, InProgress, time.Now())
	require.NoError(t, err)
	_, err = s.SetStatus(t2.ID, Completed, time.Now())
	require.NoError(t, err)

	got3, _, _ = s.GetTask(t3.ID)
	blocked, err = s.IsTaskBlocked(got3)
	require.NoError(t, err)
	require.False(t, blocked)
}

// TestSetStatusIdempotent covers testable property 4.
func TestSetStatusIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, "tl1")
	task, _ := s.CreateTask("A", "", "")

	_, err := s.SetStatus(task.ID, InProgress, time.Now())
	require.NoError(t, err)

	path := s.path
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = s.SetStatus(task.ID, InProgress, time.Now())
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestStatusTransitions(t *testing.T) {
	s := Open(t.TempDir(), "tl1")
	task, _ := s.CreateTask("A", "", "")

	_, err := s.SetStatus(task.ID, Completed, time.Now())
	require.Error(t, err) // pending -> completed is not a direct transition

	got, err := s.SetStatus(task.ID, InProgress, time.Now())
	require.NoError(t, err)
	require.Equal(t, InProgress, got.Status)

	got, err = s.SetStatus(task.ID, Completed, time.Now())
	require.NoError(t, err)
	require.Equal(t, Completed, got.Status)
	require.Equal(t, got.Metadata["completedAt"], got.Metadata["completedAt"])

	got, err = s.SetStatus(task.ID, Pending, time.Now())
	require.NoError(t, err)
	require.Equal(t, Pending, got.Status)
	require.NotEmpty(t, got.Metadata["reopenedAt"])
}

func TestUnassignTasksForAgent(t *testing.T) {
	s := Open(t.TempDir(), "tl1")
	a, _ := s.CreateTask("A", "", "w1")
	b, _ := s.CreateTask("B", "", "w1")
	_, err := s.SetStatus(a.ID, InProgress, time.Now())
	require.NoError(t, err)
	_, err = s.SetStatus(a.ID, Completed, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.UnassignTasksForAgent("w1", "killed", time.Now()))

	gotA, _, _ := s.GetTask(a.ID)
	gotB, _, _ := s.GetTask(b.ID)
	require.Equal(t, Completed, gotA.Status) // completed tasks untouched
	require.Equal(t, "w1", gotA.Owner)
	require.Equal(t, Pending, gotB.Status)
	require.Empty(t, gotB.Owner)
	require.Equal(t, "killed", gotB.Metadata["unassignedReason"])
}

func TestAssignOwnerIdempotentAndReassignOnCompleted(t *testing.T) {
	s := Open(t.TempDir(), "tl1")
	task, _ := s.CreateTask("A", "", "")

	got, err := s.AssignOwner(task.ID, "w1", time.Now())
	require.NoError(t, err)
	require.Equal(t, "w1", got.Owner)
	require.Equal(t, Pending, got.Status)

	_, err = s.AssignOwner(task.ID, "w1", time.Now())
	require.NoError(t, err)

	_, err = s.SetStatus(task.ID, InProgress, time.Now())
	require.NoError(t, err)
	_, err = s.SetStatus(task.ID, Completed, time.Now())
	require.NoError(t, err)

	got, err = s.AssignOwner(task.ID, "w2", time.Now())
	require.NoError(t, err)
	require.Equal(t, Completed, got.Status)
	require.Equal(t, "w2", got.Owner)
	require.Equal(t, "w2", got.Metadata["reassignedTo"])
}
