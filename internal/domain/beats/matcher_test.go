package beats

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/forPelevin/recut/internal/domain/index"
	"github.com/forPelevin/recut/internal/types"
)

type mapEmbedder map[string][]float64

func (m mapEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v, ok := m[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func seg(id string, startMS int64, silence float64) types.CandidateSegment {
	return types.CandidateSegment{
		CandidateID: id,
		StartMS:     startMS,
		EndMS:       startMS + 4000,
		Features:    map[string]float64{types.FeatureSilenceRatio: silence, types.FeatureEmotionScore: 0},
	}
}

func setup(t *testing.T) (*index.Index, []types.CandidateSegment) {
	t.Helper()
	cands := []types.CandidateSegment{
		seg("a", 0, 0),
		seg("b", 20000, 0),
		seg("c", 40000, 0),
		seg("d", 90000, 0),
	}
	ix, err := index.FromVectors(
		[]string{"a", "b", "c", "d"},
		[][]float64{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}, {0, 0, 1}},
	)
	if err != nil {
		t.Fatalf("FromVectors: %v", err)
	}
	return ix, cands
}

func TestMatch_StrictDedupInBeatOrder(t *testing.T) {
	t.Parallel()

	ix, cands := setup(t)
	emb := mapEmbedder{"first": {1, 0, 0}, "second": {1, 0, 0}}
	beats := []types.Beat{{BeatID: "b1", Summary: "first"}, {BeatID: "b2", Summary: "second"}}

	res, err := Match(context.Background(), ix, emb, beats, cands, types.DefaultConstraint(), Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Matched) != 2 {
		t.Fatalf("matched: %+v", res.Matched)
	}
	if res.Matched[0].Candidate.CandidateID != "a" || res.Matched[1].Candidate.CandidateID != "b" {
		t.Fatalf("expected a then b, got %s then %s", res.Matched[0].Candidate.CandidateID, res.Matched[1].Candidate.CandidateID)
	}
	if res.Matched[1].BeatIndex != 1 || res.Matched[1].BeatID != "b2" {
		t.Fatalf("attribution: %+v", res.Matched[1])
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings: %v", res.Warnings)
	}
}

func TestMatch_SpoilerCutoff(t *testing.T) {
	t.Parallel()

	ix, cands := setup(t)
	emb := mapEmbedder{"ending": {0, 0, 1}}
	c := types.DefaultConstraint()
	c.SpoilerCutoffMS = 60000

	cases := []struct {
		name      string
		beat      types.Beat
		whitelist []string
		want      string
	}{
		{"excluded past cutoff", types.Beat{BeatID: "x", Summary: "ending"}, nil, "a"},
		{"post cutoff eligible", types.Beat{BeatID: "x", Summary: "ending", PostCutoffEligible: true}, nil, "d"},
		{"whitelisted", types.Beat{BeatID: "x", Summary: "ending"}, []string{"d"}, "d"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cc := c
			cc.SpoilerWhitelist = tc.whitelist
			res, err := Match(context.Background(), ix, emb, []types.Beat{tc.beat}, cands, cc, Options{})
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if len(res.Matched) != 1 || res.Matched[0].Candidate.CandidateID != tc.want {
				t.Fatalf("got %+v want %s", res.Matched, tc.want)
			}
		})
	}
}

func TestMatch_UnmatchedBeatIsWarning(t *testing.T) {
	t.Parallel()

	ix, cands := setup(t)
	emb := mapEmbedder{"anything": {1, 1, 1}}
	c := types.DefaultConstraint()
	c.SpoilerCutoffMS = 1

	res, err := Match(context.Background(), ix, emb,
		[]types.Beat{{BeatID: "late", Summary: "anything"}}, cands, c, Options{TopN: 1})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Matched) != 0 || len(res.Unmatched) != 1 || res.Unmatched[0] != "late" {
		t.Fatalf("result: %+v", res)
	}
	// "a" starts before the cutoff but only "b" is retrieved.
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "beat late") {
		t.Fatalf("warnings: %v", res.Warnings)
	}
}

func TestMatch_RerankPrefersDialogue(t *testing.T) {
	t.Parallel()

	cands := []types.CandidateSegment{seg("quiet", 0, 1), seg("talky", 30000, 0)}
	ix, err := index.FromVectors([]string{"quiet", "talky"}, [][]float64{{1, 0}, {0.95, 0.05}})
	if err != nil {
		t.Fatalf("FromVectors: %v", err)
	}
	res, err := Match(context.Background(), ix, mapEmbedder{"q": {1, 0}},
		[]types.Beat{{BeatID: "b", Summary: "q"}}, cands, types.DefaultConstraint(), Options{})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched[0].Candidate.CandidateID != "talky" {
		t.Fatalf("expected rerank to prefer dialogue, got %s", res.Matched[0].Candidate.CandidateID)
	}
}

func TestMatch_TieBreaksByEarliestStart(t *testing.T) {
	t.Parallel()

	cands := []types.CandidateSegment{seg("z-early", 1000, 0), seg("a-late", 50000, 0)}
	ix, err := index.FromVectors([]string{"z-early", "a-late"}, [][]float64{{1, 0}, {1, 0}})
	if err != nil {
		t.Fatalf("FromVectors: %v", err)
	}
	res, err := Match(context.Background(), ix, mapEmbedder{"q": {1, 0}},
		[]types.Beat{{BeatID: "b", Summary: "q"}}, cands, types.DefaultConstraint(), Options{})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched[0].Candidate.CandidateID != "z-early" {
		t.Fatalf("expected earliest start to win tie, got %s", res.Matched[0].Candidate.CandidateID)
	}
}

func TestMatch_EmbeddingFailure(t *testing.T) {
	t.Parallel()

	ix, cands := setup(t)
	_, err := Match(context.Background(), ix, mapEmbedder{},
		[]types.Beat{{BeatID: "b9", Summary: "unknown"}}, cands, types.DefaultConstraint(),
		Options{RunID: "r", Policy: index.CallPolicy{Attempts: 2}})
	var ibe *types.IndexBuildError
	if !errors.As(err, &ibe) {
		t.Fatalf("expected IndexBuildError, got %v", err)
	}
	if ibe.BeatID != "b9" || ibe.Stage != types.StageBeatMatch || ibe.Attempts != 2 {
		t.Fatalf("context: %+v", ibe)
	}
}
