package selection

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/forPelevin/recut/internal/types"
)

type Options struct {
	RunID  string
	Logger zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	return o.Logger.With().Str("component", "selector").Logger()
}

// attempt is the outcome of running one ladder step.
type attempt struct {
	step     Step
	clips    []types.SelectedClip
	total    int64
	warnings []string
	reason   string
}

func (a attempt) feasible(count types.CountRange) bool {
	return count.Contains(len(a.clips)) && a.step.Band.Contains(a.total)
}

// gap ranks attempts for diagnostics: count misses dominate duration misses.
func (a attempt) gap(count types.CountRange) int64 {
	var cg int64
	switch n := len(a.clips); {
	case n < count.Min():
		cg = int64(count.Min() - n)
	case n > count.Max():
		cg = int64(n - count.Max())
	}
	var dg int64
	switch {
	case a.total < a.step.Band.Min():
		dg = a.step.Band.Min() - a.total
	case a.total > a.step.Band.Max():
		dg = a.total - a.step.Band.Max()
	}
	return cg*1_000_000_000 + dg
}

func better(best *attempt, a attempt, count types.CountRange) *attempt {
	if best == nil || a.gap(count) < best.gap(count) {
		return &a
	}
	return best
}

func infeasible(opts Options, c types.SelectionConstraint, steps []Step, best *attempt) error {
	last := steps[len(steps)-1]
	e := &types.InfeasibleSelectionError{
		RunID:            opts.RunID,
		Stage:            types.StageSelection,
		TargetDurationMS: last.Band,
		ClipCount:        c.ClipCount,
		LastRelaxation:   last.Name,
	}
	if best != nil {
		e.AchievedDurationMS = best.total
		e.AchievedCount = len(best.clips)
		e.Reason = best.reason
	}
	return e
}

func result(opts Options, strategy types.Strategy, steps []Step, i int, a attempt, warnings []string) types.SelectionResult {
	return types.SelectionResult{
		RunID:               opts.RunID,
		Strategy:            strategy,
		Clips:               a.clips,
		TotalDurationMS:     a.total,
		EffectiveDurationMS: a.step.Band,
		Relaxations:         fired(steps, i),
		Warnings:            warnings,
	}
}

func clipOf(sc types.ScoredCandidate, padding bool) types.SelectedClip {
	c := sc.Candidate
	return types.SelectedClip{
		CandidateID: c.CandidateID,
		SceneID:     c.SceneID,
		StartMS:     c.StartMS,
		EndMS:       c.EndMS,
		InMS:        c.StartMS,
		OutMS:       c.EndMS,
		Score:       sc.Score,
		Similarity:  sc.Similarity,
		BeatID:      sc.BeatID,
		BeatIndex:   sc.BeatIndex,
		Padding:     padding,
		Text:        c.Text,
	}
}

func filterSpoilers(pool []types.ScoredCandidate, c types.SelectionConstraint) (kept []types.ScoredCandidate, dropped int) {
	kept = make([]types.ScoredCandidate, 0, len(pool))
	for _, sc := range pool {
		if c.SpoilerAllowed(sc) {
			kept = append(kept, sc)
		} else {
			dropped++
		}
	}
	return kept, dropped
}

// sortByScore orders by score desc, ties by ascending candidate_id.
func sortByScore(s []types.ScoredCandidate) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Candidate.CandidateID < s[j].Candidate.CandidateID
	})
}

func overlaps(aStart, aEnd, bStart, bEnd int64) bool {
	return aStart < bEnd && bStart < aEnd
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// admissible checks source overlap and start spacing against chosen clips.
func admissible(c types.CandidateSegment, chosen []types.SelectedClip, spacingMS int64) bool {
	for _, s := range chosen {
		if overlaps(c.StartMS, c.EndMS, s.StartMS, s.EndMS) {
			return false
		}
		if spacingMS > 0 && absDiff(c.StartMS, s.StartMS) < spacingMS {
			return false
		}
	}
	return true
}

// smallestSum sums the need shortest durations among candidates not yet
// taken. ok is false when fewer than need remain.
func smallestSum(pool []types.ScoredCandidate, taken map[string]struct{}, skip string, need int) (int64, bool) {
	if need <= 0 {
		return 0, true
	}
	durs := make([]int64, 0, len(pool))
	for _, sc := range pool {
		id := sc.Candidate.CandidateID
		if id == skip {
			continue
		}
		if _, ok := taken[id]; ok {
			continue
		}
		durs = append(durs, sc.Candidate.DurationMS())
	}
	if len(durs) < need {
		return 0, false
	}
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
	var sum int64
	for _, d := range durs[:need] {
		sum += d
	}
	return sum, true
}

// spacingViolations reports pairs closer than minSpacing and logs each one.
// Pairs for which skip returns true are not reported.
func spacingViolations(log zerolog.Logger, clips []types.SelectedClip, minSpacing int64, step Step, skip func(a, b types.SelectedClip) bool) []string {
	if minSpacing <= 0 || step.SpacingMS >= minSpacing {
		return nil
	}
	var out []string
	for i := 0; i < len(clips); i++ {
		for j := i + 1; j < len(clips); j++ {
			d := absDiff(clips[i].StartMS, clips[j].StartMS)
			if d >= minSpacing || (skip != nil && skip(clips[i], clips[j])) {
				continue
			}
			log.Warn().
				Str("candidate_a", clips[i].CandidateID).
				Str("candidate_b", clips[j].CandidateID).
				Int64("apart_ms", d).
				Int64("min_spacing_ms", minSpacing).
				Str("relaxation", step.Name).
				Msg("spacing violated after relaxation")
			out = append(out, fmt.Sprintf("spacing: %s and %s start %dms apart (min %dms, relaxed by %s)",
				clips[i].CandidateID, clips[j].CandidateID, d, minSpacing, step.Name))
		}
	}
	return out
}

func sumDurations(clips []types.SelectedClip) int64 {
	var total int64
	for _, c := range clips {
		total += c.DurationMS()
	}
	return total
}
