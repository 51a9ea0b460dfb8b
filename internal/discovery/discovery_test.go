package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ytnobody/teamsctl/internal/claim"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
)

func TestListSkipsUnderscorePrefixedAndSortsByUpdatedAt(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	_, err := teamconfig.Ensure(filepath.Join(root, "alpha"), teamconfig.TeamConfig{TeamID: "alpha"}, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = teamconfig.Ensure(filepath.Join(root, "beta"), teamconfig.TeamConfig{TeamID: "beta"}, now)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_scratch"), 0755))

	teams, err := List(root, now, 0)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	require.Equal(t, "beta", teams[0].Config.TeamID)
	require.Equal(t, "alpha", teams[1].Config.TeamID)
}

func TestListMarksMissingClaimAsStale(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	_, err := teamconfig.Ensure(filepath.Join(root, "alpha"), teamconfig.TeamConfig{TeamID: "alpha"}, now)
	require.NoError(t, err)

	teams, err := List(root, now, 0)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.False(t, teams[0].HasClaim)
	require.True(t, teams[0].IsStale)
}

func TestListAttachesFreshClaim(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	teamDir := filepath.Join(root, "alpha")
	_, err := teamconfig.Ensure(teamDir, teamconfig.TeamConfig{TeamID: "alpha"}, now)
	require.NoError(t, err)

	_, err = claim.Acquire(context.Background(), teamDir, "session-1", claim.AcquireOptions{NowMs: now.UnixMilli()})
	require.NoError(t, err)

	teams, err := List(root, now, 0)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.True(t, teams[0].HasClaim)
	require.False(t, teams[0].IsStale)
}
