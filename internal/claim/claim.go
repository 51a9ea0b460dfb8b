// Package claim implements the attach-claim lease: a heartbeated exclusive
// lock on a team directory so at most one leader session owns it at a time.
// State is persisted as JSON via write-temp-then-rename; freshness is
// judged by comparing the stored heartbeatAt timestamp with the current
// time.
package claim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ytnobody/teamsctl/internal/lock"
)

const (
	claimFileName = ".attach-claim.json"
	lockFileName  = ".attach-claim.json.lock"

	// DefaultStaleMs matches the invariant default in the data model.
	DefaultStaleMs = 30_000
)

// Claim is the single JSON document describing the current holder.
type Claim struct {
	HolderSessionID string    `json:"holderSessionId"`
	ClaimedAt       time.Time `json:"claimedAt"`
	HeartbeatAt     time.Time `json:"heartbeatAt"`
	PID             int       `json:"pid"`
}

// AcquireOptions configures one Acquire call.
type AcquireOptions struct {
	Force   bool
	StaleMs int64
	// NowMs overrides the acquisition clock, for deterministic tests.
	NowMs int64
}

// AcquireResult is the structured, never-panics outcome of Acquire.
type AcquireResult struct {
	OK       bool
	Claim    Claim
	Replaced *Claim
	Reason   string // set when OK is false, e.g. "claimed_by_other"
}

func claimPath(teamDir string) string { return filepath.Join(teamDir, claimFileName) }
func lockPath(teamDir string) string  { return filepath.Join(teamDir, lockFileName) }

// Acquire attempts to take ownership of teamDir for holderSessionID.
func Acquire(ctx context.Context, teamDir, holderSessionID string, opts AcquireOptions) (AcquireResult, error) {
	if opts.StaleMs == 0 {
		opts.StaleMs = DefaultStaleMs
	}
	now := nowFromOpts(opts.NowMs)

	var result AcquireResult
	err := lock.WithLock(ctx, lockPath(teamDir), lock.Options{}, func() error {
		existing, ok, err := readClaim(teamDir)
		if err != nil {
			return err
		}

		if !ok {
			return writeNewClaim(teamDir, holderSessionID, now, &result)
		}

		if existing.HolderSessionID == holderSessionID {
			existing.HeartbeatAt = now
			if err := writeClaim(teamDir, existing); err != nil {
				return err
			}
			result = AcquireResult{OK: true, Claim: existing}
			return nil
		}

		fresh := Freshness(existing, now, opts.StaleMs)
		if fresh.IsStale || opts.Force {
			prior := existing
			newClaim := Claim{HolderSessionID: holderSessionID, ClaimedAt: now, HeartbeatAt: now, PID: os.Getpid()}
			if err := writeClaim(teamDir, newClaim); err != nil {
				return err
			}
			result = AcquireResult{OK: true, Claim: newClaim, Replaced: &prior}
			return nil
		}

		result = AcquireResult{OK: false, Claim: existing, Reason: "claimed_by_other"}
		return nil
	})
	return result, err
}

func writeNewClaim(teamDir, holderSessionID string, now time.Time, result *AcquireResult) error {
	newClaim := Claim{HolderSessionID: holderSessionID, ClaimedAt: now, HeartbeatAt: now, PID: os.Getpid()}
	if err := writeClaim(teamDir, newClaim); err != nil {
		return err
	}
	*result = AcquireResult{OK: true, Claim: newClaim}
	return nil
}

// HeartbeatStatus is the outcome of a Heartbeat call.
type HeartbeatStatus string

const (
	HeartbeatUpdated  HeartbeatStatus = "updated"
	HeartbeatNotOwner HeartbeatStatus = "not_owner"
	HeartbeatMissing  HeartbeatStatus = "missing"
)

// Heartbeat refreshes heartbeatAt if holderSessionID currently owns the claim.
func Heartbeat(ctx context.Context, teamDir, holderSessionID string) (HeartbeatStatus, error) {
	var status HeartbeatStatus
	err := lock.WithLock(ctx, lockPath(teamDir), lock.Options{}, func() error {
		existing, ok, err := readClaim(teamDir)
		if err != nil {
			return err
		}
		if !ok {
			status = HeartbeatMissing
			return nil
		}
		if existing.HolderSessionID != holderSessionID {
			status = HeartbeatNotOwner
			return nil
		}
		existing.HeartbeatAt = time.Now().UTC()
		if err := writeClaim(teamDir, existing); err != nil {
			return err
		}
		status = HeartbeatUpdated
		return nil
	})
	return status, err
}

// ReleaseStatus is the outcome of a Release call.
type ReleaseStatus string

const (
	ReleaseReleased ReleaseStatus = "released"
	ReleaseNotOwner ReleaseStatus = "not_owner"
	ReleaseNone     ReleaseStatus = "none"
)

// ReleaseOptions configures Release.
type ReleaseOptions struct {
	Force bool
}

// Release drops teamDir's claim if held by holderSessionID (or unconditionally if Force).
func Release(ctx context.Context, teamDir, holderSessionID string, opts ReleaseOptions) (ReleaseStatus, error) {
	var status ReleaseStatus
	err := lock.WithLock(ctx, lockPath(teamDir), lock.Options{}, func() error {
		existing, ok, err := readClaim(teamDir)
		if err != nil {
			return err
		}
		if !ok {
			status = ReleaseNone
			return nil
		}
		if existing.HolderSessionID != holderSessionID && !opts.Force {
			status = ReleaseNotOwner
			return nil
		}
		if err := os.Remove(claimPath(teamDir)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("claim: release: %w", err)
		}
		status = ReleaseReleased
		return nil
	})
	return status, err
}

// Snapshot reads the current claim without taking the lock, tolerating a
// torn read by treating it as "no claim" — readers never block on writers.
func Snapshot(teamDir string) (Claim, bool) {
	c, ok, err := readClaim(teamDir)
	if err != nil {
		return Claim{}, false
	}
	return c, ok
}

// FreshnessResult is the pure outcome of evaluating staleness.
type FreshnessResult struct {
	IsStale bool
	AgeMs   int64
}

// Freshness is a pure function over (claim, now, staleMs) per the data model.
// An unparseable heartbeatAt (zero time) counts as stale.
func Freshness(c Claim, now time.Time, staleMs int64) FreshnessResult {
	if c.HeartbeatAt.IsZero() {
		return FreshnessResult{IsStale: true, AgeMs: 0}
	}
	age := now.Sub(c.HeartbeatAt)
	ageMs := age.Milliseconds()
	return FreshnessResult{IsStale: ageMs > staleMs, AgeMs: ageMs}
}

func nowFromOpts(nowMs int64) time.Time {
	if nowMs == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(nowMs).UTC()
}

func readClaim(teamDir string) (Claim, bool, error) {
	data, err := os.ReadFile(claimPath(teamDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Claim{}, false, nil
		}
		// IoFault on read is recovered locally as "missing" per error design.
		return Claim{}, false, nil
	}
	var c Claim
	if err := json.Unmarshal(data, &c); err != nil {
		return Claim{}, false, nil
	}
	return c, true, nil
}

func writeClaim(teamDir string, c Claim) error {
	if err := os.MkdirAll(teamDir, 0755); err != nil {
		return fmt.Errorf("claim: create team dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("claim: encode: %w", err)
	}
	tmp := claimPath(teamDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("claim: write temp: %w", err)
	}
	if err := os.Rename(tmp, claimPath(teamDir)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("claim: rename: %w", err)
	}
	return nil
}
