package modelpolicy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverrideWithSlashSplitsProviderAndModel(t *testing.T) {
	res, err := Resolve(Input{ModelOverride: "anthropic/claude-sonnet-4-5"})
	require.NoError(t, err)
	require.Equal(t, SourceOverride, res.Source)
	require.Equal(t, "anthropic", res.Provider)
	require.Equal(t, "claude-sonnet-4-5", res.ModelID)
}

func TestOverrideWithSlashRejectsEmptyHalf(t *testing.T) {
	_, err := Resolve(Input{ModelOverride: "anthropic/"})
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ReasonInvalidOverride, perr.Reason)
}

func TestOverrideWithSlashRejectsDeprecatedModel(t *testing.T) {
	_, err := Resolve(Input{ModelOverride: "anthropic/claude-sonnet-4"})
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ReasonDeprecatedOverride, perr.Reason)
}

func TestOverrideWithoutSlashInheritsLeaderProvider(t *testing.T) {
	res, err := Resolve(Input{ModelOverride: "claude-sonnet-4-5", LeaderProvider: "anthropic"})
	require.NoError(t, err)
	require.Equal(t, SourceOverride, res.Source)
	require.Equal(t, "anthropic", res.Provider)
	require.Empty(t, res.Warnings)
}

func TestOverrideWithoutSlashWarnsOnUnknownProvider(t *testing.T) {
	res, err := Resolve(Input{ModelOverride: "claude-sonnet-4-5"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
}

func TestOverrideWithoutSlashRejectsDeprecated(t *testing.T) {
	_, err := Resolve(Input{ModelOverride: "claude-opus-3"})
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ReasonDeprecatedOverride, perr.Reason)
}

func TestInheritsLeaderWhenNoOverride(t *testing.T) {
	res, err := Resolve(Input{LeaderProvider: "anthropic", LeaderModelID: "claude-sonnet-4-5"})
	require.NoError(t, err)
	require.Equal(t, SourceInheritLeader, res.Source)
	require.Equal(t, "anthropic", res.Provider)
	require.Equal(t, "claude-sonnet-4-5", res.ModelID)
}

func TestFallsBackToDefaultWhenLeaderModelDeprecated(t *testing.T) {
	res, err := Resolve(Input{LeaderProvider: "anthropic", LeaderModelID: "claude-sonnet-4"})
	require.NoError(t, err)
	require.Equal(t, SourceDefault, res.Source)
}

func TestFallsBackToDefaultWithNothingSet(t *testing.T) {
	res, err := Resolve(Input{})
	require.NoError(t, err)
	require.Equal(t, SourceDefault, res.Source)
}

// TestModelPolicyTotality covers testable property 8: every input yields
// either ok with a known source, or an error with a known reason.
func TestModelPolicyTotality(t *testing.T) {
	inputs := []Input{
		{},
		{ModelOverride: "x/y"},
		{ModelOverride: "x/"},
		{ModelOverride: "claude-sonnet-4"},
		{LeaderModelID: "gemini-1.0-pro", LeaderProvider: "google"},
	}
	for _, in := range inputs {
		res, err := Resolve(in)
		if err != nil {
			var perr *Error
			require.ErrorAs(t, err, &perr)
			require.Contains(t, []FailureReason{ReasonInvalidOverride, ReasonDeprecatedOverride}, perr.Reason)
			continue
		}
		require.Contains(t, []Source{SourceOverride, SourceInheritLeader, SourceDefault}, res.Source)
	}
}
