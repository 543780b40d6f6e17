package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/recut/internal/types"
)

const (
	excitementHitsCap = 5.0
	emotionHitsCap    = 3.0
	wordsPerSecondCap = 3.0
)

type Weights struct {
	W1 float64 // audio energy
	W2 float64 // excitement
	W3 float64 // scene change density
	W4 float64 // silence penalty
}

func DefaultWeights() Weights {
	return Weights{W1: 0.35, W2: 0.30, W3: 0.20, W4: 0.15}
}

// Breakdown is the normalised inputs behind one score.
type Breakdown struct {
	AudioEnergy        float64
	Excitement         float64
	SceneChangeDensity float64
	Silence            float64
	Score              float64

	// Missing lists features that contributed 0 because they were absent.
	Missing []string
}

// Scorer computes engagement scores. The zero value uses zero weights.
type Scorer struct {
	w   Weights
	log zerolog.Logger
}

func New(w Weights, log zerolog.Logger) Scorer {
	return Scorer{w: w, log: log.With().Str("component", "scorer").Logger()}
}

func (s Scorer) Weights() Weights { return s.w }

// Score is pure: the same candidate always yields the same value.
func (s Scorer) Score(c types.CandidateSegment) float64 {
	return s.Explain(c).Score
}

func (s Scorer) Explain(c types.CandidateSegment) Breakdown {
	var b Breakdown

	if v, ok := c.Feature(types.FeatureAudioEnergy); ok {
		b.AudioEnergy = norm(v)
	} else {
		b.Missing = append(b.Missing, types.FeatureAudioEnergy)
	}

	if v, ok := c.Feature(types.FeatureExcitementScore); ok {
		b.Excitement = norm(v)
	} else if strings.TrimSpace(c.Text) != "" {
		b.Excitement = Clamp01(float64(ExcitementHits(c.Text)) / excitementHitsCap)
	} else {
		b.Missing = append(b.Missing, types.FeatureExcitementScore)
	}

	if v, ok := c.Feature(types.FeatureSceneChangeDensity); ok {
		b.SceneChangeDensity = norm(v)
	} else {
		b.Missing = append(b.Missing, types.FeatureSceneChangeDensity)
	}

	if v, ok := c.Feature(types.FeatureSilenceRatio); ok {
		b.Silence = norm(v)
	} else {
		b.Missing = append(b.Missing, types.FeatureSilenceRatio)
	}

	b.Score = s.w.W1*b.AudioEnergy + s.w.W2*b.Excitement + s.w.W3*b.SceneChangeDensity - s.w.W4*b.Silence
	return b
}

// norm clamps to [0,1] and maps NaN to 0.
func norm(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp01(v)
}

// ScoreAll scores every candidate in parallel. Missing features are logged
// per candidate and summarised into one warning per feature.
func (s Scorer) ScoreAll(ctx context.Context, cands []types.CandidateSegment, workers int) ([]types.ScoredCandidate, []string, error) {
	if workers <= 0 {
		workers = 1
	}

	out := make([]types.ScoredCandidate, len(cands))
	missing := make([][]string, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range cands {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := s.Explain(cands[i])
			out[i] = types.ScoredCandidate{Candidate: cands[i], Score: b.Score, BeatIndex: -1}
			missing[i] = b.Missing
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	counts := map[string]int{}
	for i, m := range missing {
		if len(m) == 0 {
			continue
		}
		s.log.Warn().
			Str("candidate_id", cands[i].CandidateID).
			Strs("missing", m).
			Msg("missing scorer features, contributing 0")
		for _, f := range m {
			counts[f]++
		}
	}

	return out, missingWarnings(counts, len(cands)), nil
}

func missingWarnings(counts map[string]int, total int) []string {
	if len(counts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("scoring: feature %s missing on %d/%d candidate(s)", k, counts[k], total))
	}
	return out
}

// DialogueDensity is 1 - silence_ratio, falling back to speaking pace.
func DialogueDensity(c types.CandidateSegment) float64 {
	if v, ok := c.Feature(types.FeatureSilenceRatio); ok {
		return 1 - norm(v)
	}
	return Clamp01(WordsPerSecond(c) / wordsPerSecondCap)
}

// EmotionBonus is emotion_score when present, else normalised marker hits.
func EmotionBonus(c types.CandidateSegment) float64 {
	if v, ok := c.Feature(types.FeatureEmotionScore); ok {
		return norm(v)
	}
	_, total := EmotionHits(c.Text)
	return Clamp01(float64(total) / emotionHitsCap)
}

// WordsPerSecond uses the words_per_second feature or derives it from text.
func WordsPerSecond(c types.CandidateSegment) float64 {
	if v, ok := c.Feature(types.FeatureWordsPerSecond); ok && !math.IsNaN(v) && v >= 0 {
		return v
	}
	words := len(strings.Fields(c.Text))
	if v, ok := c.Feature(types.FeatureWordCount); ok && v > 0 {
		words = int(v)
	}
	sec := math.Max(float64(c.DurationMS())/1000.0, 0.1)
	return float64(words) / sec
}
