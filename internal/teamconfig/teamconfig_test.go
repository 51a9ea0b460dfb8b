package teamconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesThenPreservesExistingFields(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	cfg, err := Ensure(dir, TeamConfig{TeamID: "t1", LeadName: "lead", Style: "pirates"}, now)
	require.NoError(t, err)
	require.Equal(t, "lead", cfg.LeadName)
	require.Equal(t, 3, cfg.Hooks.MaxReopensPerTask)

	cfg2, err := Ensure(dir, TeamConfig{TeamID: "t1", LeadName: "other-lead", Style: "comrades"}, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "lead", cfg2.LeadName, "existing leadName must be preserved")
	require.Equal(t, "pirates", cfg2.Style)
	require.True(t, cfg2.UpdatedAt.After(cfg.UpdatedAt))
}

func TestSetMemberStatusInsertsAndUpdates(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	cfg, err := SetMemberStatus(dir, "w1", StatusOnline, map[string]any{"model": "haiku"}, now)
	require.NoError(t, err)
	require.Len(t, cfg.Members, 1)
	require.Equal(t, StatusOnline, cfg.Members[0].Status)
	require.Equal(t, "haiku", cfg.Members[0].Meta["model"])

	cfg, err = SetMemberStatus(dir, "w1", StatusOffline, map[string]any{"killedAt": "now"}, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, cfg.Members, 1)
	require.Equal(t, StatusOffline, cfg.Members[0].Status)
	require.Equal(t, "haiku", cfg.Members[0].Meta["model"], "prior meta keys survive a merge")
	require.Equal(t, "now", cfg.Members[0].Meta["killedAt"])
}

func TestUpdateHooksPolicySupportsPartialUpdate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	_, err := Ensure(dir, TeamConfig{TeamID: "t1"}, now)
	require.NoError(t, err)

	cfg, err := UpdateHooksPolicy(dir, func(p HookPolicy) HookPolicy {
		p.FailureAction = ActionReopenFollowup
		return p
	}, now)
	require.NoError(t, err)
	require.Equal(t, ActionReopenFollowup, cfg.Hooks.FailureAction)
	require.Equal(t, 3, cfg.Hooks.MaxReopensPerTask, "unspecified fields survive the partial update")
}

func TestLoadMissingReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := Load(dir)
	require.NoError(t, err)
	require.False(t, ok)
}
