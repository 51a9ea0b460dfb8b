// Package teamconfig persists team membership and hook policy in
// config.json, using a JSON wire format, upsert ("ensure") semantics,
// and atomic save-by-rename.
package teamconfig

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ytnobody/teamsctl/internal/lock"
)

// MemberRole distinguishes the lead from workers.
type MemberRole string

const (
	RoleLead   MemberRole = "lead"
	RoleWorker MemberRole = "worker"
)

// MemberStatus tracks liveness.
type MemberStatus string

const (
	StatusOnline  MemberStatus = "online"
	StatusOffline MemberStatus = "offline"
)

// Member is one team participant.
type Member struct {
	Name       string         `json:"name"`
	Role       MemberRole     `json:"role"`
	Status     MemberStatus   `json:"status"`
	LastSeenAt *time.Time     `json:"lastSeenAt,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// FailureAction drives the quality-gate remediation loop.
type FailureAction string

const (
	ActionWarn           FailureAction = "warn"
	ActionFollowup       FailureAction = "followup"
	ActionReopen         FailureAction = "reopen"
	ActionReopenFollowup FailureAction = "reopen_followup"
)

// FollowupOwner selects who gets a remediation follow-up task.
type FollowupOwner string

const (
	FollowupMember FollowupOwner = "member"
	FollowupLead   FollowupOwner = "lead"
	FollowupNone   FollowupOwner = "none"
)

// HookPolicy is the (possibly partial) post-completion hook configuration.
type HookPolicy struct {
	FailureAction     FailureAction `json:"failureAction,omitempty"`
	MaxReopensPerTask int           `json:"maxReopensPerTask"`
	FollowupOwner     FollowupOwner `json:"followupOwner,omitempty"`
}

// TeamConfig is the config.json document.
type TeamConfig struct {
	TeamID     string     `json:"teamId"`
	TaskListID string     `json:"taskListId"`
	LeadName   string     `json:"leadName"`
	Style      string     `json:"style,omitempty"`
	Hooks      HookPolicy `json:"hooks"`
	Members    []Member   `json:"members"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func configPath(teamDir string) string { return filepath.Join(teamDir, "config.json") }
func lockPath(teamDir string) string   { return filepath.Join(teamDir, "config.json.lock") }

// Load reads config.json, returning ok=false if absent.
func Load(teamDir string) (TeamConfig, bool, error) {
	return read(teamDir)
}

// Ensure implements upsert semantics: if a config already exists, only
// UpdatedAt is refreshed and missing LeadName/Style/Members are filled from
// defaults — existing fields are preserved. If none exists, defaults become
// the new config.
func Ensure(teamDir string, defaults TeamConfig, now time.Time) (TeamConfig, error) {
	var result TeamConfig
	err := lock.WithLock(context.Background(), lockPath(teamDir), lock.Options{}, func() error {
		existing, ok, err := read(teamDir)
		if err != nil {
			return err
		}
		if !ok {
			defaults.UpdatedAt = now.UTC()
			if defaults.Hooks.MaxReopensPerTask == 0 {
				defaults.Hooks.MaxReopensPerTask = 3
			}
			result = defaults
			return write(teamDir, defaults)
		}

		merged := existing
		if merged.LeadName == "" {
			merged.LeadName = defaults.LeadName
		}
		if merged.Style == "" {
			merged.Style = defaults.Style
		}
		if merged.TaskListID == "" {
			merged.TaskListID = defaults.TaskListID
		}
		if len(merged.Members) == 0 {
			merged.Members = defaults.Members
		}
		merged.UpdatedAt = now.UTC()
		result = merged
		return write(teamDir, merged)
	})
	return result, err
}

// SetMemberStatus updates (or inserts) a member's status and merges meta.
func SetMemberStatus(teamDir, name string, status MemberStatus, meta map[string]any, now time.Time) (TeamConfig, error) {
	var result TeamConfig
	err := lock.WithLock(context.Background(), lockPath(teamDir), lock.Options{}, func() error {
		cfg, ok, err := read(teamDir)
		if err != nil {
			return err
		}
		if !ok {
			cfg = TeamConfig{Members: []Member{}}
		}

		idx := -1
		for i, m := range cfg.Members {
			if m.Name == name {
				idx = i
				break
			}
		}

		seen := now.UTC()
		if idx < 0 {
			m := Member{Name: name, Role: RoleWorker, Status: status, LastSeenAt: &seen, Meta: meta}
			cfg.Members = append(cfg.Members, m)
		} else {
			m := cfg.Members[idx]
			m.Status = status
			m.LastSeenAt = &seen
			if meta != nil {
				if m.Meta == nil {
					m.Meta = map[string]any{}
				}
				for k, v := range meta {
					m.Meta[k] = v
				}
			}
			cfg.Members[idx] = m
		}

		cfg.UpdatedAt = now.UTC()
		result = cfg
		return write(teamDir, cfg)
	})
	return result, err
}

// UpdateHooksPolicy applies a pure transform to the hook policy.
func UpdateHooksPolicy(teamDir string, f func(HookPolicy) HookPolicy, now time.Time) (TeamConfig, error) {
	var result TeamConfig
	err := lock.WithLock(context.Background(), lockPath(teamDir), lock.Options{}, func() error {
		cfg, ok, err := read(teamDir)
		if err != nil {
			return err
		}
		if !ok {
			cfg = TeamConfig{Members: []Member{}}
		}
		cfg.Hooks = f(cfg.Hooks)
		cfg.UpdatedAt = now.UTC()
		result = cfg
		return write(teamDir, cfg)
	})
	return result, err
}

func read(teamDir string) (TeamConfig, bool, error) {
	data, err := os.ReadFile(configPath(teamDir))
	if err != nil {
		if os.IsNotExist(err) {
			return TeamConfig{}, false, nil
		}
		return TeamConfig{}, false, nil
	}
	var cfg TeamConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return TeamConfig{}, false, nil
	}
	return cfg, true, nil
}

func write(teamDir string, cfg TeamConfig) error {
	if err := os.MkdirAll(teamDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := configPath(teamDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, configPath(teamDir)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
