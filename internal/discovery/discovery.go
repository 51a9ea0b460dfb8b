// Package discovery enumerates known teams under a root directory by
// scanning one subdirectory per team and reading its config.json plus
// attach claim.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ytnobody/teamsctl/internal/claim"
	"github.com/ytnobody/teamsctl/internal/teamconfig"
)

// DefaultStaleMs matches the claim package's own staleness window so a
// discovered team's freshness flag agrees with what Acquire would decide.
const DefaultStaleMs = 30_000

// Team is one discovered team, with its config and claim freshness.
type Team struct {
	Dir      string
	Config   teamconfig.TeamConfig
	Claim    claim.Claim
	HasClaim bool
	IsStale  bool
}

// List enumerates subdirectories of root (skipping those starting with
// "_"), loads each config.json, attaches the claim snapshot and a
// freshness flag, and sorts by UpdatedAt descending.
func List(root string, now time.Time, staleMs int64) ([]Team, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if staleMs <= 0 {
		staleMs = DefaultStaleMs
	}

	var teams []Team
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), "_") {
			continue
		}
		teamDir := filepath.Join(root, entry.Name())
		cfg, ok, err := teamconfig.Load(teamDir)
		if err != nil || !ok {
			continue
		}

		t := Team{Dir: teamDir, Config: cfg}
		if c, ok := claim.Snapshot(teamDir); ok {
			t.Claim = c
			t.HasClaim = true
			t.IsStale = claim.Freshness(c, now, staleMs).IsStale
		} else {
			t.IsStale = true
		}
		teams = append(teams, t)
	}

	sort.Slice(teams, func(i, j int) bool {
		return teams[i].Config.UpdatedAt.After(teams[j].Config.UpdatedAt)
	})

	return teams, nil
}
