package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/recut/internal/domain/beats"
	"github.com/forPelevin/recut/internal/domain/index"
	"github.com/forPelevin/recut/internal/domain/pacing"
	"github.com/forPelevin/recut/internal/domain/scoring"
	"github.com/forPelevin/recut/internal/domain/selection"
	"github.com/forPelevin/recut/internal/ports"
	"github.com/forPelevin/recut/internal/types"
)

// Scorer scores the whole candidate pool. scoring.Scorer implements it.
type Scorer interface {
	ScoreAll(ctx context.Context, cands []types.CandidateSegment, workers int) ([]types.ScoredCandidate, []string, error)
}

type Deps struct {
	Embedder ports.Embedder
	Narrator ports.Narrator
	Scorer   Scorer
	Logger   zerolog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

// Strategy is the selection flow chosen once per run: BeatMatch or
// EngagementScore.
type Strategy interface {
	Kind() types.Strategy
}

// BeatMatch retrieves one candidate per narrative beat and pads to the
// count band.
type BeatMatch struct {
	Beats []types.Beat
	TopN  int
}

func (BeatMatch) Kind() types.Strategy { return types.StrategyBeatMatch }

// EngagementScore selects the best-scoring subset of the whole pool.
type EngagementScore struct{}

func (EngagementScore) Kind() types.Strategy { return types.StrategyEngagementScore }

type Input struct {
	RunID      string
	Candidates []types.CandidateSegment
	Strategy   Strategy
	Constraint types.SelectionConstraint
	Weights    scoring.Weights
	Workers    int
	Policy     index.CallPolicy

	// Boundaries is optional; without it cuts stay on the raw candidate spans.
	Boundaries ports.BoundaryLookup
	Narrate    bool
}

type Result struct {
	Selection types.SelectionResult
	EDL       []types.EDLClip
	Unmatched []string
	Warnings  []string
	Timings   map[string]time.Duration
}

// Run drives index/scoring, matching, selection and pacing for one run. It
// returns either a validated EDL or a typed failure, never both.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	log := u.d.Logger.With().Str("component", "orchestrator").Str("run_id", in.RunID).Logger()
	if in.Strategy == nil {
		in.Strategy = EngagementScore{}
	}
	if len(in.Candidates) == 0 {
		return Result{}, &types.EmptyCandidateSetError{RunID: in.RunID, Stage: types.StageInput}
	}
	if err := types.ValidateCandidates(in.Candidates); err != nil {
		return Result{}, fmt.Errorf("candidates: %w", err)
	}
	if err := in.Constraint.Validate(); err != nil {
		return Result{}, fmt.Errorf("constraint: %w", err)
	}
	bm, isBeatMatch := in.Strategy.(BeatMatch)
	if isBeatMatch {
		if err := types.ValidateBeats(bm.Beats); err != nil {
			return Result{}, fmt.Errorf("beats: %w", err)
		}
	}

	scorer := u.d.Scorer
	if scorer == nil {
		w := in.Weights
		// Unset weights from library callers; config.Validate rejects an
		// all-zero scorer_weights block before it gets here.
		if w == (scoring.Weights{}) {
			w = scoring.DefaultWeights()
		}
		scorer = scoring.New(w, log)
	}

	res := Result{Timings: map[string]time.Duration{}}
	stage := func(name string, start time.Time) { res.Timings[name] = time.Since(start) }

	// Index build and scoring only read the candidate list; both finish
	// before any selection logic starts.
	var (
		ix     *index.Index
		scored []types.ScoredCandidate
	)
	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var (
			warn []string
			err  error
		)
		scored, warn, err = scorer.ScoreAll(gctx, in.Candidates, in.Workers)
		res.Warnings = append(res.Warnings, warn...)
		return err
	})
	if isBeatMatch {
		g.Go(func() error {
			var err error
			ix, err = index.Build(gctx, u.d.Embedder, in.Candidates, index.Options{
				RunID:   in.RunID,
				Workers: in.Workers,
				Policy:  in.Policy,
				Logger:  log,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	stage("prepare", started)

	var (
		sel types.SelectionResult
		err error
	)
	selOpts := selection.Options{RunID: in.RunID, Logger: log}
	switch s := in.Strategy.(type) {
	case BeatMatch:
		started = time.Now()
		m, err := beats.Match(ctx, ix, u.d.Embedder, s.Beats, in.Candidates, in.Constraint, beats.Options{
			RunID:  in.RunID,
			TopN:   s.TopN,
			Policy: in.Policy,
			Logger: log,
		})
		if err != nil {
			return Result{}, err
		}
		stage("beat_match", started)
		res.Unmatched = m.Unmatched
		res.Warnings = append(res.Warnings, m.Warnings...)
		if len(m.Unmatched) > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("partial match: %d of %d beat(s) unmatched", len(m.Unmatched), len(s.Beats)))
		}

		started = time.Now()
		sel, err = selection.SelectBeats(m.Matched, scored, in.Constraint, selOpts)
		if err != nil {
			return Result{}, err
		}
	case EngagementScore:
		started = time.Now()
		sel, err = selection.SelectByScore(scored, in.Constraint, selOpts)
		if err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("unknown strategy %T", in.Strategy)
	}
	stage("selection", started)
	res.Warnings = append(res.Warnings, sel.Warnings...)

	started = time.Now()
	plan, err := pacing.Build(sel, in.Constraint, pacing.Options{
		RunID:      in.RunID,
		Boundaries: in.Boundaries,
		Logger:     log,
	})
	if err != nil {
		return Result{}, err
	}
	stage("pacing", started)

	if in.Narrate && u.d.Narrator != nil {
		started = time.Now()
		captions, err := u.d.Narrator.Narrate(ctx, plan.Selection)
		switch {
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		case err != nil:
			log.Warn().Err(err).Msg("captions skipped")
			res.Warnings = append(res.Warnings, fmt.Sprintf("narration: %v", err))
		default:
			for i := range plan.EDL {
				if i < len(captions) {
					plan.EDL[i].Caption = captions[i]
				}
			}
		}
		stage("narration", started)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res.Selection = plan.Selection
	res.Selection.Warnings = res.Warnings
	res.EDL = plan.EDL
	log.Info().
		Str("strategy", string(res.Selection.Strategy)).
		Int("clips", len(res.EDL)).
		Int64("total_ms", res.Selection.TotalDurationMS).
		Str("relaxation", res.Selection.LastRelaxation()).
		Int("warnings", len(res.Warnings)).
		Msg("run planned")
	return res, nil
}
