package selection

import (
	"github.com/forPelevin/recut/internal/types"
)

// maxRepairRounds bounds how many swaps a single step may try.
const maxRepairRounds = 32

// fillShortfall runs when an in-order pass ended with enough clips but a
// total below the step's band. It swaps one picked candidate at a time for
// a longer unpicked one, then tops up with whatever still fits, until the
// band is reached or no swap lengthens the cut. Locked clips never move.
// Among swaps that land in the band it keeps the one with the highest
// summed score; otherwise it takes the longest total.
func fillShortfall(locked []types.SelectedClip, picked, pool []types.ScoredCandidate, count types.CountRange, st Step, padding bool) []types.ScoredCandidate {
	picked = append([]types.ScoredCandidate(nil), picked...)
	base := sumDurations(locked)

	for round := 0; round < maxRepairRounds; round++ {
		cur := base + durationOf(picked)
		if cur >= st.Band.Min() {
			break
		}
		in := idSet(picked)

		var (
			best       []types.ScoredCandidate
			bestInBand bool
			bestScore  float64
			bestTotal  int64
		)
		for ri := range picked {
			others := append(append([]types.SelectedClip(nil), locked...), clipsOf(without(picked, ri), padding)...)
			for _, sc := range pool {
				if _, ok := in[sc.Candidate.CandidateID]; ok {
					continue
				}
				total := cur - picked[ri].Candidate.DurationMS() + sc.Candidate.DurationMS()
				if total <= cur || total > st.Band.Max() {
					continue
				}
				if !admissible(sc.Candidate, others, st.SpacingMS) {
					continue
				}
				next := append(without(picked, ri), sc)
				inBand := total >= st.Band.Min()
				score := scoreOf(next)
				switch {
				case best == nil,
					inBand && !bestInBand,
					inBand && bestInBand && score > bestScore,
					!inBand && !bestInBand && total > bestTotal:
					best, bestInBand, bestScore, bestTotal = next, inBand, score, total
				}
			}
		}
		if best == nil {
			break
		}
		picked = topUp(locked, best, pool, count, st, padding)
	}
	sortByScore(picked)
	return picked
}

// topUp appends unpicked candidates in score order while they fit.
func topUp(locked []types.SelectedClip, picked, pool []types.ScoredCandidate, count types.CountRange, st Step, padding bool) []types.ScoredCandidate {
	total := sumDurations(locked) + durationOf(picked)
	in := idSet(picked)
	chosen := append(append([]types.SelectedClip(nil), locked...), clipsOf(picked, padding)...)
	for _, sc := range pool {
		if len(chosen) >= count.Max() || total >= st.Band.Min() {
			break
		}
		if _, ok := in[sc.Candidate.CandidateID]; ok {
			continue
		}
		d := sc.Candidate.DurationMS()
		if total+d > st.Band.Max() || !admissible(sc.Candidate, chosen, st.SpacingMS) {
			continue
		}
		picked = append(picked, sc)
		chosen = append(chosen, clipOf(sc, padding))
		in[sc.Candidate.CandidateID] = struct{}{}
		total += d
	}
	return picked
}

func without(s []types.ScoredCandidate, i int) []types.ScoredCandidate {
	out := make([]types.ScoredCandidate, 0, len(s))
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func clipsOf(s []types.ScoredCandidate, padding bool) []types.SelectedClip {
	out := make([]types.SelectedClip, 0, len(s))
	for _, sc := range s {
		out = append(out, clipOf(sc, padding))
	}
	return out
}

func idSet(s []types.ScoredCandidate) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, sc := range s {
		out[sc.Candidate.CandidateID] = struct{}{}
	}
	return out
}

func durationOf(s []types.ScoredCandidate) int64 {
	var total int64
	for _, sc := range s {
		total += sc.Candidate.DurationMS()
	}
	return total
}

func scoreOf(s []types.ScoredCandidate) float64 {
	var total float64
	for _, sc := range s {
		total += sc.Score
	}
	return total
}
