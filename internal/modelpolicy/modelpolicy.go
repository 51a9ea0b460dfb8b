// Package modelpolicy resolves which provider/model a newly spawned
// teammate should run, given an optional override and the leader's own
// provider/model.
package modelpolicy

import "strings"

// Source names how a model selection was derived.
type Source string

const (
	SourceOverride      Source = "override"
	SourceInheritLeader Source = "inherit_leader"
	SourceDefault       Source = "default"
)

// FailureReason names why resolution failed outright.
type FailureReason string

const (
	ReasonInvalidOverride    FailureReason = "invalid_override"
	ReasonDeprecatedOverride FailureReason = "deprecated_override"
)

// Input is the raw resolution request.
type Input struct {
	ModelOverride  string
	LeaderProvider string
	LeaderModelID  string
}

// Result is a successful resolution.
type Result struct {
	Source   Source
	Provider string
	ModelID  string
	Warnings []string
}

// Error is a failed resolution.
type Error struct {
	Reason FailureReason
}

func (e *Error) Error() string { return "model policy: " + string(e.Reason) }

// deprecatedMarkers lists substrings that flag a model id as retired,
// each paired with allow-listed suffixes that rescue a matching id (e.g.
// "claude-sonnet-4" is fine when immediately followed by "-5" or ".5").
var deprecatedMarkers = []struct {
	marker       string
	allowedAfter []string
}{
	{marker: "claude-sonnet-4", allowedAfter: []string{"-5", ".5"}},
	{marker: "claude-opus-3", allowedAfter: []string{}},
	{marker: "gemini-1.0", allowedAfter: []string{}},
}

// isDeprecated reports whether modelID matches a deprecated marker that
// isn't immediately rescued by an allow-listed suffix.
func isDeprecated(modelID string) bool {
	lower := strings.ToLower(modelID)
	for _, d := range deprecatedMarkers {
		idx := strings.Index(lower, d.marker)
		if idx < 0 {
			continue
		}
		rest := lower[idx+len(d.marker):]
		rescued := false
		for _, allowed := range d.allowedAfter {
			if strings.HasPrefix(rest, allowed) {
				rescued = true
				break
			}
		}
		if !rescued {
			return true
		}
	}
	return false
}

// Resolve is the pure model policy function.
func Resolve(in Input) (Result, error) {
	if in.ModelOverride != "" {
		if strings.Contains(in.ModelOverride, "/") {
			parts := strings.SplitN(in.ModelOverride, "/", 2)
			provider, modelID := parts[0], parts[1]
			if provider == "" || modelID == "" {
				return Result{}, &Error{Reason: ReasonInvalidOverride}
			}
			if isDeprecated(modelID) {
				return Result{}, &Error{Reason: ReasonDeprecatedOverride}
			}
			return Result{Source: SourceOverride, Provider: provider, ModelID: modelID}, nil
		}

		if isDeprecated(in.ModelOverride) {
			return Result{}, &Error{Reason: ReasonDeprecatedOverride}
		}
		res := Result{Source: SourceOverride, ModelID: in.ModelOverride}
		if in.LeaderProvider == "" {
			res.Warnings = append(res.Warnings, "leader provider unknown; model override has no associated provider")
		} else {
			res.Provider = in.LeaderProvider
		}
		return res, nil
	}

	if in.LeaderModelID != "" && !isDeprecated(in.LeaderModelID) {
		return Result{Source: SourceInheritLeader, Provider: in.LeaderProvider, ModelID: in.LeaderModelID}, nil
	}

	return Result{Source: SourceDefault}, nil
}
