package beats

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/forPelevin/recut/internal/domain/index"
	"github.com/forPelevin/recut/internal/domain/scoring"
	"github.com/forPelevin/recut/internal/ports"
	"github.com/forPelevin/recut/internal/types"
)

const (
	DefaultTopN = 20

	weightSimilarity = 0.60
	weightDialogue   = 0.25
	weightEmotion    = 0.15
)

type Options struct {
	RunID  string
	TopN   int
	Policy index.CallPolicy
	Logger zerolog.Logger
}

// Result holds one matched candidate per matched beat, in beat order.
type Result struct {
	Matched   []types.ScoredCandidate
	Unmatched []string
	Warnings  []string
}

type shortlisted struct {
	c      types.CandidateSegment
	sim    float64
	rerank float64
}

// Match assigns at most one candidate to each beat, walking beats in
// narrative order. A candidate serves at most one beat. Beats whose
// shortlist is empty after exclusions stay unmatched and produce a warning.
func Match(
	ctx context.Context,
	ix *index.Index,
	emb ports.Embedder,
	beats []types.Beat,
	cands []types.CandidateSegment,
	constraint types.SelectionConstraint,
	opts Options,
) (Result, error) {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	log := opts.Logger.With().Str("component", "beat_matcher").Logger()

	byID := make(map[string]types.CandidateSegment, len(cands))
	for _, c := range cands {
		byID[c.CandidateID] = c
	}

	var res Result
	assigned := make(map[string]struct{}, len(beats))
	for bi, b := range beats {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		vec, attempts, err := index.Embed(ctx, emb, b.QueryText(), opts.Policy)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, &types.IndexBuildError{
				RunID:    opts.RunID,
				Stage:    types.StageBeatMatch,
				BeatID:   b.BeatID,
				Attempts: attempts,
				Err:      err,
			}
		}

		hits, err := ix.Query(vec, topN, assigned)
		if err != nil {
			return Result{}, &types.IndexBuildError{RunID: opts.RunID, Stage: types.StageBeatMatch, BeatID: b.BeatID, Err: err}
		}

		short := make([]shortlisted, 0, len(hits))
		spoilered := 0
		for _, h := range hits {
			c, ok := byID[h.CandidateID]
			if !ok {
				continue
			}
			sc := types.ScoredCandidate{Candidate: c, SpoilerExempt: b.PostCutoffEligible}
			if !constraint.SpoilerAllowed(sc) {
				spoilered++
				continue
			}
			short = append(short, shortlisted{c: c, sim: h.Similarity, rerank: Rerank(c, h.Similarity)})
		}

		if len(short) == 0 {
			res.Unmatched = append(res.Unmatched, b.BeatID)
			msg := fmt.Sprintf("beat %s: no candidate left after exclusions (%d retrieved, %d past spoiler cutoff)", b.BeatID, len(hits), spoilered)
			res.Warnings = append(res.Warnings, msg)
			log.Warn().Str("beat_id", b.BeatID).Int("retrieved", len(hits)).Int("spoilered", spoilered).Msg("beat unmatched")
			continue
		}

		sortShortlist(short)
		best := short[0]
		assigned[best.c.CandidateID] = struct{}{}
		res.Matched = append(res.Matched, types.ScoredCandidate{
			Candidate:     best.c,
			Score:         best.rerank,
			Similarity:    best.sim,
			BeatID:        b.BeatID,
			BeatIndex:     bi,
			SpoilerExempt: b.PostCutoffEligible,
		})
		log.Debug().
			Str("beat_id", b.BeatID).
			Str("candidate_id", best.c.CandidateID).
			Float64("similarity", best.sim).
			Float64("rerank", best.rerank).
			Int("shortlist", len(short)).
			Msg("beat matched")
	}
	return res, nil
}

// Rerank combines retrieval similarity with dialogue density and the
// emotion-marker bonus.
func Rerank(c types.CandidateSegment, similarity float64) float64 {
	return weightSimilarity*similarity +
		weightDialogue*scoring.DialogueDensity(c) +
		weightEmotion*scoring.EmotionBonus(c)
}

// sortShortlist orders by rerank desc, then earliest start, then id.
func sortShortlist(s []shortlisted) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].rerank != s[j].rerank {
			return s[i].rerank > s[j].rerank
		}
		if s[i].c.StartMS != s[j].c.StartMS {
			return s[i].c.StartMS < s[j].c.StartMS
		}
		return s[i].c.CandidateID < s[j].c.CandidateID
	})
}
