package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytnobody/teamsctl/internal/claim"
	"github.com/ytnobody/teamsctl/internal/taskstore"
)

// runCLI invokes rootCmd with argv using the override-os.Args-and-call-the-command style.
func runCLI(t *testing.T, argv ...string) error {
	t.Helper()
	origArgs := os.Args
	rootCmd.SetArgs(argv[1:])
	os.Args = argv
	defer func() { os.Args = origArgs }()
	return rootCmd.Execute()
}

func TestTeamTaskAddThenList(t *testing.T) {
	root := t.TempDir()
	t.Setenv("PI_TEAMS_ROOT_DIR", root)
	t.Setenv("PI_TEAMS_TEAM_ID", "team-1")

	require.NoError(t, runCLI(t, "teamsctl", "team", "task", "add", "Ship the feature"))

	store := taskstore.Open(filepath.Join(root, "team-1"), "team-1")
	tasks, err := store.ListTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Ship the feature", tasks[0].Subject)

	require.NoError(t, runCLI(t, "teamsctl", "team", "task", "list"))
}

func TestTeamDetachWithoutTeamIDFails(t *testing.T) {
	t.Setenv("PI_TEAMS_ROOT_DIR", t.TempDir())
	t.Setenv("PI_TEAMS_TEAM_ID", "")
	err := runCLI(t, "teamsctl", "team", "detach")
	require.Error(t, err)
}

func TestTeamAttachListEmptyRootPrintsNothingFound(t *testing.T) {
	t.Setenv("PI_TEAMS_ROOT_DIR", t.TempDir())
	require.NoError(t, runCLI(t, "teamsctl", "team", "attach", "list"))
}

// --claim must force-acquire a fresh claim held by another session; without
// it, attach must refuse.
func TestTeamAttachClaimFlagForcesTakeover(t *testing.T) {
	root := t.TempDir()
	t.Setenv("PI_TEAMS_ROOT_DIR", root)
	t.Setenv("PI_TEAMS_TEAM_ID", "team-1")

	teamDir := filepath.Join(root, "team-1")
	res, err := claim.Acquire(context.Background(), teamDir, "other-session", claim.AcquireOptions{})
	require.NoError(t, err)
	require.True(t, res.OK)

	err = runCLI(t, "teamsctl", "team", "attach")
	require.Error(t, err, "attach without --claim must not override a fresh claim held by another session")

	require.NoError(t, runCLI(t, "teamsctl", "team", "attach", "--claim"), "--claim must force-acquire the claim")
}
