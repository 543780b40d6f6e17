package selection

import (
	"fmt"

	"github.com/forPelevin/recut/internal/types"
)

// SelectByScore picks the highest-scoring subset that fits the count and
// duration bands, walking the relaxation ladder until an attempt is feasible.
// Clips are returned in acceptance order (score desc, candidate_id asc).
func SelectByScore(pool []types.ScoredCandidate, c types.SelectionConstraint, opts Options) (types.SelectionResult, error) {
	if len(pool) == 0 {
		return types.SelectionResult{}, &types.EmptyCandidateSetError{RunID: opts.RunID, Stage: types.StageSelection}
	}
	log := opts.logger()
	steps := Ladder(c)

	eligible, dropped := filterSpoilers(pool, c)
	var warnings []string
	if dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("spoiler: %d candidate(s) at or after %dms excluded", dropped, c.SpoilerCutoffMS))
	}
	if len(eligible) == 0 {
		return types.SelectionResult{}, infeasible(opts, c, steps, &attempt{
			step:   steps[len(steps)-1],
			reason: "every candidate is past the spoiler cutoff",
		})
	}
	sortByScore(eligible)

	var best *attempt
	for i, st := range steps {
		a := greedy(eligible, c.ClipCount, st)
		if a.feasible(c.ClipCount) {
			warnings = append(warnings, spacingViolations(log, a.clips, c.MinSpacingMS, st, nil)...)
			log.Debug().
				Str("step", st.Name).
				Int("clips", len(a.clips)).
				Int64("total_ms", a.total).
				Msg("selection feasible")
			return result(opts, types.StrategyEngagementScore, steps, i, a, warnings), nil
		}
		log.Debug().
			Str("step", st.Name).
			Int("clips", len(a.clips)).
			Int64("total_ms", a.total).
			Str("band", st.Band.String()).
			Msg("selection infeasible, relaxing")
		best = better(best, a, c.ClipCount)
	}
	return types.SelectionResult{}, infeasible(opts, c, steps, best)
}

// greedy accepts candidates in score order while they fit the band's upper
// bound, do not overlap chosen source spans, respect the step's spacing and
// still leave room for enough of the shortest remaining candidates to reach
// the minimum count. A pass that ends short of the band is repaired with
// swaps at the same step.
func greedy(eligible []types.ScoredCandidate, count types.CountRange, st Step) attempt {
	a := attempt{step: st}
	taken := make(map[string]struct{}, count.Max())
	var picked []types.ScoredCandidate

	for _, sc := range eligible {
		if len(a.clips) >= count.Max() {
			break
		}
		d := sc.Candidate.DurationMS()
		if a.total+d > st.Band.Max() {
			continue
		}
		if !admissible(sc.Candidate, a.clips, st.SpacingMS) {
			continue
		}
		need := count.Min() - (len(a.clips) + 1)
		if rest, ok := smallestSum(eligible, taken, sc.Candidate.CandidateID, need); ok && a.total+d+rest > st.Band.Max() {
			continue
		}

		a.clips = append(a.clips, clipOf(sc, false))
		a.total += d
		taken[sc.Candidate.CandidateID] = struct{}{}
		picked = append(picked, sc)
	}

	if count.Contains(len(a.clips)) && a.total < st.Band.Min() {
		picked = fillShortfall(nil, picked, eligible, count, st, false)
		a.clips = clipsOf(picked, false)
		a.total = durationOf(picked)
	}

	switch {
	case len(a.clips) < count.Min():
		a.reason = fmt.Sprintf("only %d clip(s) fit under %s", len(a.clips), st.Name)
	case a.total < st.Band.Min():
		a.reason = fmt.Sprintf("pool exhausted %dms short of %s", st.Band.Min()-a.total, st.Band)
	}
	return a
}
