// Package procconfig holds operator-level settings that are not part of
// any one team: the default teams root, default hook policy, RPC/claim
// timing, and poll intervals. Environment variables are read once at
// startup into a snapshotted struct rather than consulted live; hot-reload
// belongs to internal/teamconfig (per-team, JSON, reloaded per operation)
// and never to this package.
package procconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
)

// Config is the snapshotted process-level configuration.
type Config struct {
	TeamsRootDir      string                 `toml:"teams_root_dir"`
	DefaultHooks      teamconfig.HookPolicy  `toml:"default_hooks"`
	StaleMs           int64                  `toml:"stale_ms"`
	RPCTimeoutMs      int64                  `toml:"rpc_timeout_ms"`
	HeartbeatMs       int64                  `toml:"heartbeat_ms"`
	PollIntervalMs    int64                  `toml:"poll_interval_ms"`
	HooksEnabled      bool                   `toml:"hooks_enabled"`
	HookTimeoutMs     int64                  `toml:"hook_timeout_ms"`

	// Per-process identity, never persisted to a config file: always
	// derived fresh from the environment by FromEnv.
	Worker      bool   `toml:"-"`
	TeamID      string `toml:"-"`
	AgentName   string `toml:"-"`
	TaskListID  string `toml:"-"`
	LeadName    string `toml:"-"`
	AutoClaim   bool   `toml:"-"`
}

// Defaults returns the built-in baseline before any file or environment
// overrides are applied.
func Defaults() Config {
	return Config{
		TeamsRootDir: defaultTeamsRoot(),
		DefaultHooks: teamconfig.HookPolicy{
			FailureAction:     teamconfig.ActionWarn,
			MaxReopensPerTask: 3,
			FollowupOwner:     teamconfig.FollowupMember,
		},
		StaleMs:        30_000,
		RPCTimeoutMs:   60_000,
		HeartbeatMs:    10_000,
		PollIntervalMs: 500,
		HooksEnabled:   false,
		HookTimeoutMs:  30_000,
	}
}

func defaultTeamsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teams"
	}
	return home + "/.teams"
}

// Load reads a TOML file at path on top of Defaults(), tolerating a
// missing file (defaults apply untouched).
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("procconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv reads the PI_TEAMS_* environment variables once and overlays them onto
// cfg, returning a new snapshotted Config. The per-process identity fields
// (Worker, TeamID, AgentName, TaskListID, LeadName, AutoClaim) are always
// taken from the environment; for the other fields an unset variable
// leaves cfg's existing value untouched.
func FromEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	out := cfg

	if v := getenv("PI_TEAMS_ROOT_DIR"); v != "" {
		out.TeamsRootDir = v
	}
	out.Worker = getenv("PI_TEAMS_WORKER") == "1" || getenv("PI_TEAMS_WORKER") == "true"
	out.TeamID = getenv("PI_TEAMS_TEAM_ID")
	out.AgentName = getenv("PI_TEAMS_AGENT_NAME")
	out.TaskListID = getenv("PI_TEAMS_TASK_LIST_ID")
	out.LeadName = getenv("PI_TEAMS_LEAD_NAME")
	out.AutoClaim = getenv("PI_TEAMS_AUTO_CLAIM") == "1" || getenv("PI_TEAMS_AUTO_CLAIM") == "true"

	if v := getenv("PI_TEAMS_HOOKS_ENABLED"); v != "" {
		out.HooksEnabled = v == "1" || v == "true"
	}
	if v := getenv("PI_TEAMS_HOOK_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			out.HookTimeoutMs = ms
		}
	}
	if v := getenv("PI_TEAMS_DEFAULT_FAILURE_ACTION"); v != "" {
		out.DefaultHooks.FailureAction = teamconfig.FailureAction(v)
	}
	if v := getenv("PI_TEAMS_DEFAULT_FOLLOWUP_OWNER"); v != "" {
		out.DefaultHooks.FollowupOwner = teamconfig.FollowupOwner(v)
	}
	if v := getenv("PI_TEAMS_DEFAULT_MAX_REOPENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			out.DefaultHooks.MaxReopensPerTask = n
		}
	}

	return out
}

// HookTimeout returns HookTimeoutMs as a time.Duration.
func (c Config) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutMs) * time.Millisecond
}

// Heartbeat returns HeartbeatMs as a time.Duration.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// PollInterval returns PollIntervalMs as a time.Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
