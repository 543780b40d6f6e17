package types

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names the engine step that produced an error.
type Stage string

const (
	StageInput     Stage = "input"
	StageIndex     Stage = "index"
	StageScoring   Stage = "scoring"
	StageBeatMatch Stage = "beat_match"
	StageSelection Stage = "selection"
	StagePacing    Stage = "pacing"
)

// EmptyCandidateSetError means there was nothing to select from.
type EmptyCandidateSetError struct {
	RunID string
	Stage Stage
}

func (e *EmptyCandidateSetError) Error() string {
	return fmt.Sprintf("run %s: %s: empty candidate set", orDash(e.RunID), e.Stage)
}

// IndexBuildError wraps an embedding failure that survived all retries.
type IndexBuildError struct {
	RunID       string
	Stage       Stage
	CandidateID string
	BeatID      string
	Attempts    int
	Err         error
}

func (e *IndexBuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s: embedding failed", orDash(e.RunID), e.Stage)
	if e.CandidateID != "" {
		fmt.Fprintf(&b, " for candidate %s", e.CandidateID)
	}
	if e.BeatID != "" {
		fmt.Fprintf(&b, " for beat %s", e.BeatID)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// InfeasibleSelectionError carries the best attempt's shortfall.
type InfeasibleSelectionError struct {
	RunID  string
	Stage  Stage
	Reason string

	AchievedDurationMS int64
	AchievedCount      int
	TargetDurationMS   MSRange
	ClipCount          CountRange
	LastRelaxation     string
}

// ShortfallMS is how far the best attempt sat outside the band; negative means over.
func (e *InfeasibleSelectionError) ShortfallMS() int64 {
	switch {
	case e.AchievedDurationMS < e.TargetDurationMS.Min():
		return e.TargetDurationMS.Min() - e.AchievedDurationMS
	case e.AchievedDurationMS > e.TargetDurationMS.Max():
		return e.TargetDurationMS.Max() - e.AchievedDurationMS
	default:
		return 0
	}
}

func (e *InfeasibleSelectionError) Error() string {
	msg := fmt.Sprintf(
		"run %s: %s: infeasible selection: achieved %dms with %d clip(s), want %v with %d..%d clip(s), last relaxation %q",
		orDash(e.RunID), e.Stage,
		e.AchievedDurationMS, e.AchievedCount,
		e.TargetDurationMS, e.ClipCount.Min(), e.ClipCount.Max(),
		e.LastRelaxation,
	)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// PlanningInvariantViolation is an internal consistency failure.
type PlanningInvariantViolation struct {
	RunID     string
	Stage     Stage
	Invariant string
	Detail    string
}

func (e *PlanningInvariantViolation) Error() string {
	return fmt.Sprintf("run %s: %s: invariant %q violated: %s", orDash(e.RunID), e.Stage, e.Invariant, e.Detail)
}

// ErrorKind returns a short stable name for ledger rows. Typed errors are
// found through %w wrapping and errors.Join.
func ErrorKind(err error) string {
	var (
		empty     *EmptyCandidateSetError
		index     *IndexBuildError
		infeas    *InfeasibleSelectionError
		violation *PlanningInvariantViolation
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &empty):
		return "empty_candidate_set"
	case errors.As(err, &index):
		return "index_build"
	case errors.As(err, &infeas):
		return "infeasible_selection"
	case errors.As(err, &violation):
		return "planning_invariant"
	default:
		return "other"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
