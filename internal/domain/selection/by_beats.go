package selection

import (
	"fmt"
	"sort"

	"github.com/forPelevin/recut/internal/types"
)

// SelectBeats keeps the matched candidates in beat order. Overflow is
// absorbed by proportional shrinking down to MinClipMS, then by dropping the
// last beat. Shortfalls in count or duration are padded from the rest of
// the pool by engagement score; each padding clip is placed after the beat
// nearest to it in source time.
func SelectBeats(matched, pool []types.ScoredCandidate, c types.SelectionConstraint, opts Options) (types.SelectionResult, error) {
	if len(matched) == 0 && len(pool) == 0 {
		return types.SelectionResult{}, &types.EmptyCandidateSetError{RunID: opts.RunID, Stage: types.StageSelection}
	}
	log := opts.logger()
	steps := Ladder(c)

	base, warnings := prepareBeats(matched, c)

	used := make(map[string]struct{}, len(base))
	for _, b := range base {
		used[b.CandidateID] = struct{}{}
	}
	leftover, dropped := filterSpoilers(pool, c)
	if dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("spoiler: %d candidate(s) at or after %dms excluded from padding", dropped, c.SpoilerCutoffMS))
	}
	pad := make([]types.ScoredCandidate, 0, len(leftover))
	for _, sc := range leftover {
		if _, ok := used[sc.Candidate.CandidateID]; ok {
			continue
		}
		sc.BeatID = ""
		sc.BeatIndex = -1
		pad = append(pad, sc)
	}
	sortByScore(pad)

	var best *attempt
	for i, st := range steps {
		a := beatAttempt(base, pad, c, st)
		if a.feasible(c.ClipCount) {
			warnings = append(warnings, a.warnings...)
			warnings = append(warnings, spacingViolations(log, a.clips, c.MinSpacingMS, st, bothBeats)...)
			log.Debug().
				Str("step", st.Name).
				Int("clips", len(a.clips)).
				Int64("total_ms", a.total).
				Msg("beat selection feasible")
			return result(opts, types.StrategyBeatMatch, steps, i, a, warnings), nil
		}
		log.Debug().
			Str("step", st.Name).
			Int("clips", len(a.clips)).
			Int64("total_ms", a.total).
			Str("reason", a.reason).
			Msg("beat selection infeasible, relaxing")
		best = better(best, a, c.ClipCount)
	}
	return types.SelectionResult{}, infeasible(opts, c, steps, best)
}

// prepareBeats applies the hard rules to matched candidates: spoiler
// cutoff, no source overlap with an earlier beat, at most ClipCount.Max.
func prepareBeats(matched []types.ScoredCandidate, c types.SelectionConstraint) ([]types.SelectedClip, []string) {
	var warnings []string
	out := make([]types.SelectedClip, 0, len(matched))
	for _, sc := range matched {
		id := sc.Candidate.CandidateID
		if !c.SpoilerAllowed(sc) {
			warnings = append(warnings, fmt.Sprintf("beat %s: candidate %s is past the spoiler cutoff, dropped", sc.BeatID, id))
			continue
		}
		if !admissible(sc.Candidate, out, 0) {
			warnings = append(warnings, fmt.Sprintf("beat %s: candidate %s overlaps an earlier beat's clip, dropped", sc.BeatID, id))
			continue
		}
		if len(out) >= c.ClipCount.Max() {
			warnings = append(warnings, fmt.Sprintf("beat %s: clip count limit %d reached, dropped", sc.BeatID, c.ClipCount.Max()))
			continue
		}
		out = append(out, clipOf(sc, false))
	}
	return out, warnings
}

func beatAttempt(base []types.SelectedClip, pad []types.ScoredCandidate, c types.SelectionConstraint, st Step) attempt {
	a := attempt{step: st}
	beats := append([]types.SelectedClip(nil), base...)

	var fitted []types.SelectedClip
	for {
		reserve := paddingReserve(beats, pad, c.ClipCount.Min())
		target := st.Band.Max() - reserve
		var ok bool
		fitted, ok = shrinkToFit(beats, target, c.MinClipMS)
		if ok {
			if sumDurations(fitted) < sumDurations(beats) {
				a.warnings = append(a.warnings, fmt.Sprintf("shrink: %d beat clip(s) trimmed proportionally to %dms", len(beats), sumDurations(fitted)))
			}
			break
		}
		if len(beats) <= 1 {
			a.clips = fitted
			a.total = sumDurations(fitted)
			a.reason = fmt.Sprintf("beat clips cannot shrink under %dms with a %dms floor", target, c.MinClipMS)
			return a
		}
		last := beats[len(beats)-1]
		beats = beats[:len(beats)-1]
		a.warnings = append(a.warnings, fmt.Sprintf("beat %s dropped: clips exceed %dms even at the %dms floor", last.BeatID, st.Band.Max(), c.MinClipMS))
	}

	chosen := fitted
	total := sumDurations(chosen)
	var padded []types.ScoredCandidate
	taken := make(map[string]struct{}, len(chosen))
	for _, cl := range chosen {
		taken[cl.CandidateID] = struct{}{}
	}

	for _, sc := range pad {
		if len(chosen) >= c.ClipCount.Min() && total >= st.Band.Min() {
			break
		}
		if len(chosen) >= c.ClipCount.Max() {
			break
		}
		d := sc.Candidate.DurationMS()
		if total+d > st.Band.Max() {
			continue
		}
		if !admissible(sc.Candidate, chosen, st.SpacingMS) {
			continue
		}
		need := c.ClipCount.Min() - (len(chosen) + 1)
		if rest, ok := smallestSum(pad, taken, sc.Candidate.CandidateID, need); ok && total+d+rest > st.Band.Max() {
			continue
		}
		chosen = append(chosen, clipOf(sc, true))
		total += d
		taken[sc.Candidate.CandidateID] = struct{}{}
		padded = append(padded, sc)
	}

	if c.ClipCount.Contains(len(chosen)) && total < st.Band.Min() {
		padded = fillShortfall(fitted, padded, pad, c.ClipCount, st, true)
		chosen = append(append([]types.SelectedClip(nil), fitted...), clipsOf(padded, true)...)
		total = sumDurations(chosen)
	}

	a.clips = orderBeatsAndPadding(chosen)
	a.total = total
	switch {
	case len(a.clips) < c.ClipCount.Min():
		a.reason = fmt.Sprintf("only %d clip(s) after padding under %s", len(a.clips), st.Name)
	case total < st.Band.Min():
		a.reason = fmt.Sprintf("padding exhausted %dms short of %s", st.Band.Min()-total, st.Band)
	case total > st.Band.Max():
		a.reason = fmt.Sprintf("%dms over %s", total-st.Band.Max(), st.Band)
	}
	return a
}

// paddingReserve is the room the shortest padding candidates need to lift
// the beat clips to the minimum count.
func paddingReserve(beats []types.SelectedClip, pad []types.ScoredCandidate, minCount int) int64 {
	need := minCount - len(beats)
	if need <= 0 {
		return 0
	}
	durs := make([]int64, 0, len(pad))
	for _, sc := range pad {
		if admissible(sc.Candidate, beats, 0) {
			durs = append(durs, sc.Candidate.DurationMS())
		}
	}
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
	if need > len(durs) {
		need = len(durs)
	}
	var sum int64
	for _, d := range durs[:need] {
		sum += d
	}
	return sum
}

// orderBeatsAndPadding keeps beat order and slots each padding clip after
// the beat whose clip starts nearest to it.
func orderBeatsAndPadding(clips []types.SelectedClip) []types.SelectedClip {
	type keyed struct {
		anchor int
		pad    bool
		clip   types.SelectedClip
	}
	var beatPos []int
	for i, c := range clips {
		if !c.Padding {
			beatPos = append(beatPos, i)
		}
	}

	ks := make([]keyed, 0, len(clips))
	for i, c := range clips {
		if !c.Padding {
			ks = append(ks, keyed{anchor: i, clip: c})
			continue
		}
		anchor := -1
		var bestD int64 = -1
		for _, bi := range beatPos {
			d := absDiff(c.StartMS, clips[bi].StartMS)
			if bestD < 0 || d < bestD {
				bestD, anchor = d, bi
			}
		}
		ks = append(ks, keyed{anchor: anchor, pad: true, clip: c})
	}

	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].anchor != ks[j].anchor {
			return ks[i].anchor < ks[j].anchor
		}
		if ks[i].pad != ks[j].pad {
			return !ks[i].pad
		}
		return ks[i].clip.StartMS < ks[j].clip.StartMS
	})

	out := make([]types.SelectedClip, len(ks))
	for i, k := range ks {
		out[i] = k.clip
	}
	return out
}

// bothBeats skips beat pairs: beat clips are accepted regardless of spacing.
func bothBeats(a, b types.SelectedClip) bool { return !a.Padding && !b.Padding }
