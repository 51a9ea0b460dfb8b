package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ytnobody/teamsctl/internal/coordinator"
	"github.com/ytnobody/teamsctl/internal/kerr"
	"github.com/ytnobody/teamsctl/internal/procconfig"
)

// session bootstraps one Coordinator for the duration of a single CLI
// invocation: load process config, resolve the team directory from
// PI_TEAMS_TEAM_ID (or --team), attach, run, detach. This mirrors how a
// one-shot CLI observes the same coordination kernel a long-lived leader
// process would; exit codes follow the host process.
type session struct {
	coord  *coordinator.Coordinator
	teamID string
}

func openSession(teamIDFlag string, force bool) (*session, error) {
	cfg := procconfig.FromEnv(procconfig.Defaults(), os.Getenv)

	teamID := teamIDFlag
	if teamID == "" {
		teamID = cfg.TeamID
	}
	if teamID == "" {
		return nil, fmt.Errorf("teamsctl: no team id (set --team or PI_TEAMS_TEAM_ID)")
	}

	teamDir := filepath.Join(cfg.TeamsRootDir, teamID)
	leadName := cfg.LeadName
	if leadName == "" {
		leadName = "lead"
	}

	c := coordinator.New(coordinator.Deps{
		TeamDir:         teamDir,
		TeamID:          teamID,
		TaskListID:      teamID,
		LeadName:        leadName,
		HolderSessionID: uuid.NewString(),
		LeaderCommand:   os.Getenv("PI_TEAMS_LEADER_COMMAND"),
		RepoPath:        mustGetwd(),
		Config:          cfg,
	})

	if err := c.Attach(context.Background(), force || cfg.AutoClaim); err != nil {
		return nil, err
	}
	return &session{coord: c, teamID: teamID}, nil
}

func (s *session) close() {
	_ = s.coord.Detach(context.Background())
}

// envLookup is os.Getenv, named so call sites read as "look up an
// environment variable" rather than reaching for the os package directly.
func envLookup(key string) string { return os.Getenv(key) }

func teamDirFor(cfg procconfig.Config, teamID string) string {
	return filepath.Join(cfg.TeamsRootDir, teamID)
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// report prints a coordinator.Result in the CLI's plain success/error
// convention. A failed result becomes an error (prefixed "usage:" for
// InvalidInput); every error exits the process with status 1.
func report(res coordinator.Result) error {
	if res.OK {
		fmt.Println(res.Content)
		return nil
	}
	if res.Err != nil && res.Err.Kind == kerr.InvalidInput {
		return fmt.Errorf("usage: %s", res.Err.Message)
	}
	return fmt.Errorf("%s", res.Content)
}
