package spawner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ytnobody/teamsctl/internal/rpc"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
)

func writeIdleScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "idle.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\n"), 0755))
	return path
}

func TestSpawnSharedWorkspaceMarksMemberOnline(t *testing.T) {
	script := writeIdleScript(t)
	teamDir := t.TempDir()

	registered := map[string]*rpc.TeammateRpc{}
	sp := New(
		func(name string) bool { _, ok := registered[name]; return ok },
		func(name string, h *rpc.TeammateRpc) { registered[name] = h },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := sp.Spawn(ctx, Options{
		Name:           "worker-one",
		Mode:           ModeFresh,
		WorkspaceMode:  WorkspaceShared,
		Command:        "sh",
		Args:           []string{script},
		TeamDir:        teamDir,
		LeaderProvider: "anthropic",
		LeaderModelID:  "claude-sonnet-4-5",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, "worker-one", res.Name)
	require.Contains(t, registered, "worker-one")

	cfg, ok, err := teamconfig.Load(teamDir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cfg.Members, 1)
	require.Equal(t, teamconfig.StatusOnline, cfg.Members[0].Status)
	require.Equal(t, "claude-sonnet-4-5", cfg.Members[0].Meta["model"])

	require.NoError(t, registered["worker-one"].Stop(ctx))
}

func TestSpawnRejectsAlreadyRunning(t *testing.T) {
	sp := New(func(name string) bool { return true }, nil)
	ctx := context.Background()
	_, err := sp.Spawn(ctx, Options{Name: "dup", WorkspaceMode: WorkspaceShared})
	require.Error(t, err)
}

func TestSpawnRejectsEmptyName(t *testing.T) {
	sp := New(nil, nil)
	ctx := context.Background()
	_, err := sp.Spawn(ctx, Options{Name: "", WorkspaceMode: WorkspaceShared, Command: "true"})
	require.Error(t, err)
}
