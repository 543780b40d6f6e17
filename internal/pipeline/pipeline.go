package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/recut/internal/artifacts"
	"github.com/forPelevin/recut/internal/config"
	"github.com/forPelevin/recut/internal/domain/index"
	"github.com/forPelevin/recut/internal/domain/pacing"
	"github.com/forPelevin/recut/internal/domain/scoring"
	"github.com/forPelevin/recut/internal/ledger"
	"github.com/forPelevin/recut/internal/ports"
	"github.com/forPelevin/recut/internal/ports/adapters/hashembed"
	"github.com/forPelevin/recut/internal/ports/adapters/openaiembed"
	"github.com/forPelevin/recut/internal/ports/adapters/openrouter"
	"github.com/forPelevin/recut/internal/types"
	"github.com/forPelevin/recut/internal/usecase"
)

// Inputs are the per-run files. BeatsPath is required in mode A;
// TranscriptPath is optional and enables boundary snapping.
type Inputs struct {
	CandidatesPath string
	BeatsPath      string
	TranscriptPath string
	RunID          string
}

func (in Inputs) Validate(mode string) error {
	if strings.TrimSpace(in.CandidatesPath) == "" {
		return errors.New("candidates path is empty")
	}
	if mode == config.ModeBeatMatch && strings.TrimSpace(in.BeatsPath) == "" {
		return errors.New("mode A requires a beats file")
	}
	for _, p := range []string{in.CandidatesPath, in.BeatsPath, in.TranscriptPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
	}
	if in.RunID != "" && normalizePathSegment(in.RunID) == "" {
		return fmt.Errorf("run id %q has no usable characters", in.RunID)
	}
	return nil
}

// Runner owns the collaborators shared by every run. A nil Ledger skips
// bookkeeping.
type Runner struct {
	Store    *artifacts.Store
	Ledger   *ledger.Ledger
	Embedder ports.Embedder
	Narrator ports.Narrator
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewRunner opens the store and ledger and builds adapters from cfg.
func NewRunner(cfg *config.Config, log zerolog.Logger) (*Runner, error) {
	store, err := artifacts.NewStore(cfg.Paths.RunsDir)
	if err != nil {
		return nil, err
	}
	emb, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	nar, err := NewNarrator(cfg.Narration)
	if err != nil {
		return nil, err
	}
	led, err := ledger.Open(cfg.Paths.LedgerPath())
	if err != nil {
		return nil, err
	}
	return &Runner{Store: store, Ledger: led, Embedder: emb, Narrator: nar, Logger: log}, nil
}

func (r *Runner) Close() error {
	if r.Ledger == nil {
		return nil
	}
	return r.Ledger.Close()
}

func NewEmbedder(c config.EmbeddingConfig) (ports.Embedder, error) {
	switch c.Provider {
	case config.ProviderHash, "":
		return hashembed.New(c.Dimensions), nil
	case config.ProviderOpenAI:
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY is required for embedding.provider=openai (set it in .env)")
		}
		if err := openaiembed.ValidateBaseURL(c.BaseURL, c.AllowedHosts); err != nil {
			return nil, err
		}
		return openaiembed.New(key, c.Model, c.BaseURL, c.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", c.Provider)
	}
}

// NewNarrator returns nil when narration is disabled.
func NewNarrator(c config.NarrationConfig) (ports.Narrator, error) {
	if !c.Enabled {
		return nil, nil
	}
	key := os.Getenv("OPENROUTER_API_KEY")
	if key == "" {
		return nil, errors.New("OPENROUTER_API_KEY is required when narration is enabled (set it in .env)")
	}
	if err := openrouter.ValidateBaseURL(c.BaseURL, c.AllowedHosts); err != nil {
		return nil, err
	}
	return openrouter.New(key, c.Model, c.BaseURL), nil
}

// RunMeta is written to run.json for every run, successful or not.
type RunMeta struct {
	RunID          string                    `json:"run_id"`
	Mode           string                    `json:"mode"`
	Strategy       types.Strategy            `json:"strategy"`
	Status         string                    `json:"status"`
	Constraint     types.SelectionConstraint `json:"constraint"`
	CandidatesPath string                    `json:"candidates_path"`
	BeatsPath      string                    `json:"beats_path,omitempty"`
	TranscriptPath string                    `json:"transcript_path,omitempty"`
	InputsDigest   string                    `json:"inputs_digest,omitempty"`
	Clips          int                       `json:"clips"`
	TotalMS        int64                     `json:"total_duration_ms"`
	Relaxations    []types.Relaxation        `json:"relaxations,omitempty"`
	Unmatched      []string                  `json:"unmatched_beats,omitempty"`
	Warnings       []string                  `json:"warnings,omitempty"`
	TimingsMS      map[string]int64          `json:"timings_ms,omitempty"`
	ErrorKind      string                    `json:"error_kind,omitempty"`
	Error          string                    `json:"error,omitempty"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
}

type Outcome struct {
	RunID  string
	RunDir string
	Meta   RunMeta
	Result usecase.Result
}

// Run executes one selection run and records it. On failure only run.json is
// written; selection.json and edl.json exist only for successful runs.
func (r *Runner) Run(ctx context.Context, cfg *config.Config, in Inputs) (Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("config: %w", err)
	}
	if err := in.Validate(cfg.Mode); err != nil {
		return Outcome{}, err
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	runID := resolveRunID(in.RunID)
	runDir, err := r.Store.RunDir(runID)
	if err != nil {
		return Outcome{}, err
	}
	if r.Store.Exists(runID, artifacts.RunFile) {
		return Outcome{}, fmt.Errorf("run %s already exists in %s", runID, runDir)
	}
	log := r.Logger.With().Str("component", "pipeline").Str("run_id", runID).Logger()

	strategy := types.StrategyEngagementScore
	if cfg.Mode == config.ModeBeatMatch {
		strategy = types.StrategyBeatMatch
	}
	meta := RunMeta{
		RunID:          runID,
		Mode:           cfg.Mode,
		Strategy:       strategy,
		Status:         ledger.StatusRunning,
		Constraint:     cfg.Constraint(),
		CandidatesPath: in.CandidatesPath,
		BeatsPath:      in.BeatsPath,
		TranscriptPath: in.TranscriptPath,
		StartedAt:      now().UTC(),
	}
	log.Info().Str("mode", cfg.Mode).Str("run_dir", runDir).Msg("run started")

	if r.Ledger != nil {
		if err := r.Ledger.Begin(ctx, ledger.Run{
			RunID:     runID,
			Mode:      cfg.Mode,
			Strategy:  string(strategy),
			RunDir:    runDir,
			StartedAt: meta.StartedAt,
		}); err != nil {
			return Outcome{}, err
		}
	}

	res, runErr := r.execute(ctx, cfg, in, runID, &meta, log)
	meta.FinishedAt = now().UTC()
	out := Outcome{RunID: runID, RunDir: runDir, Result: res}

	if runErr == nil {
		runErr = r.writeResult(runID, res)
	}
	if runErr != nil {
		meta.Status = ledger.StatusFailed
		meta.ErrorKind = types.ErrorKind(runErr)
		meta.Error = runErr.Error()
		// A failed run must not leave a half-written selection behind.
		r.removeResult(runID)
	} else {
		meta.Status = ledger.StatusSucceeded
		meta.Clips = len(res.EDL)
		meta.TotalMS = res.Selection.TotalDurationMS
		meta.Relaxations = res.Selection.Relaxations
	}
	out.Meta = meta

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if _, err := r.Store.Write(runID, artifacts.RunFile, meta); err != nil {
		errs = append(errs, fmt.Errorf("write run metadata: %w", err))
	}
	if err := r.record(context.WithoutCancel(ctx), meta, res); err != nil {
		errs = append(errs, err)
	}

	if runErr != nil {
		log.Error().Err(runErr).Str("kind", meta.ErrorKind).Msg("run failed")
	} else {
		log.Info().
			Int("clips", meta.Clips).
			Int64("total_ms", meta.TotalMS).
			Int("warnings", len(meta.Warnings)).
			Msg("run finished")
	}
	return out, errors.Join(errs...)
}

func (r *Runner) execute(ctx context.Context, cfg *config.Config, in Inputs, runID string, meta *RunMeta, log zerolog.Logger) (usecase.Result, error) {
	cands, err := artifacts.LoadCandidates(in.CandidatesPath)
	if err != nil {
		return usecase.Result{}, fmt.Errorf("load candidates: %w", err)
	}
	digest, err := fileDigest(in.CandidatesPath, in.BeatsPath)
	if err != nil {
		return usecase.Result{}, err
	}
	meta.InputsDigest = digest

	uin := usecase.Input{
		RunID:      runID,
		Candidates: cands,
		Strategy:   usecase.EngagementScore{},
		Constraint: cfg.Constraint(),
		Weights:    scoring.Weights(cfg.ScorerWeights),
		Workers:    cfg.Workers,
		Policy: index.CallPolicy{
			Timeout:  cfg.Embedding.Timeout,
			Attempts: cfg.Embedding.Attempts,
			Backoff:  index.DefaultCallPolicy().Backoff,
		},
		Narrate: r.Narrator != nil,
	}
	if cfg.Mode == config.ModeBeatMatch {
		bs, err := artifacts.LoadBeats(in.BeatsPath)
		if err != nil {
			return usecase.Result{}, fmt.Errorf("load beats: %w", err)
		}
		uin.Strategy = usecase.BeatMatch{Beats: bs, TopN: cfg.BeatMatchTopN}
	}
	if in.TranscriptPath != "" {
		tr, err := artifacts.LoadTranscript(in.TranscriptPath)
		if err != nil {
			return usecase.Result{}, fmt.Errorf("load transcript: %w", err)
		}
		b := pacing.NewTranscriptBoundaries(tr)
		log.Debug().Int("words", b.Len()).Msg("transcript boundaries loaded")
		uin.Boundaries = b
	}

	uc := usecase.New(usecase.Deps{
		Embedder: r.Embedder,
		Narrator: r.Narrator,
		Logger:   r.Logger,
	})
	res, err := uc.Run(ctx, uin)
	meta.Warnings = res.Warnings
	meta.Unmatched = res.Unmatched
	if len(res.Timings) > 0 {
		meta.TimingsMS = make(map[string]int64, len(res.Timings))
		for k, d := range res.Timings {
			meta.TimingsMS[k] = d.Milliseconds()
		}
	}
	return res, err
}

func (r *Runner) writeResult(runID string, res usecase.Result) error {
	if _, err := r.Store.Write(runID, artifacts.SelectionFile, res.Selection); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	if _, err := r.Store.Write(runID, artifacts.EDLFile, res.EDL); err != nil {
		return fmt.Errorf("write edl: %w", err)
	}
	return nil
}

func (r *Runner) removeResult(runID string) {
	for _, name := range []string{artifacts.SelectionFile, artifacts.EDLFile} {
		if p, err := r.Store.Path(runID, name); err == nil {
			_ = os.Remove(p)
		}
	}
}

func (r *Runner) record(ctx context.Context, meta RunMeta, res usecase.Result) error {
	if r.Ledger == nil {
		return nil
	}
	lastRelax := ""
	if meta.Status == ledger.StatusSucceeded {
		lastRelax = res.Selection.LastRelaxation()
	}
	if err := r.Ledger.AddWarnings(ctx, meta.RunID, meta.Warnings); err != nil {
		return fmt.Errorf("ledger warnings: %w", err)
	}
	return r.Ledger.Finish(ctx, meta.RunID, ledger.Outcome{
		Status:          meta.Status,
		ErrorKind:       meta.ErrorKind,
		Error:           meta.Error,
		Clips:           meta.Clips,
		TotalDurationMS: meta.TotalMS,
		LastRelaxation:  lastRelax,
		FinishedAt:      meta.FinishedAt,
	})
}

// resolveRunID normalises a user-supplied id into a single path segment, or
// mints a fresh uuid.
func resolveRunID(given string) string {
	if id := normalizePathSegment(given); id != "" {
		return id
	}
	return uuid.New().String()
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// fileDigest fingerprints the selection inputs so reruns can be compared.
func fileDigest(paths ...string) (string, error) {
	var sb strings.Builder
	for _, p := range paths {
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		sb.WriteString(filepath.Base(p))
		sb.WriteByte(0)
		sb.Write(b)
	}
	return hash(sb.String()), nil
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.Embedder = (*hashembed.Adapter)(nil)
var _ ports.Embedder = (*openaiembed.Adapter)(nil)
var _ ports.Narrator = (*openrouter.Adapter)(nil)
var _ ports.BoundaryLookup = (*pacing.TranscriptBoundaries)(nil)
