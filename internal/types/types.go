package types

import (
	"errors"
	"fmt"
	"strings"
)

type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Scene is a shot/scene boundary produced by the external detector.
type Scene struct {
	SceneID int   `json:"scene_id"`
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}

// Feature keys read from CandidateSegment.Features.
const (
	FeatureAudioEnergy        = "audio_energy"
	FeatureExcitementScore    = "excitement_score"
	FeatureSceneChangeDensity = "scene_change_density"
	FeatureSilenceRatio       = "silence_ratio"
	FeatureEmotionScore       = "emotion_score"
	FeatureWordCount          = "word_count"
	FeatureWordsPerSecond     = "words_per_second"
)

type CandidateSegment struct {
	CandidateID string             `json:"candidate_id"`
	SceneID     int                `json:"scene_id"`
	StartMS     int64              `json:"start_ms"`
	EndMS       int64              `json:"end_ms"`
	Text        string             `json:"text"`
	Features    map[string]float64 `json:"features,omitempty"`
}

func (c CandidateSegment) DurationMS() int64 { return c.EndMS - c.StartMS }

// Feature returns the named feature and whether it was present.
func (c CandidateSegment) Feature(name string) (float64, bool) {
	if c.Features == nil {
		return 0, false
	}
	v, ok := c.Features[name]
	return v, ok
}

func (c CandidateSegment) Validate() error {
	if strings.TrimSpace(c.CandidateID) == "" {
		return errors.New("candidate_id is empty")
	}
	if c.StartMS < 0 {
		return fmt.Errorf("candidate %s: start_ms must be >= 0", c.CandidateID)
	}
	if c.StartMS >= c.EndMS {
		return fmt.Errorf("candidate %s: start_ms (%d) must be < end_ms (%d)", c.CandidateID, c.StartMS, c.EndMS)
	}
	return nil
}

// ValidateCandidates checks every candidate and rejects duplicate ids.
func ValidateCandidates(cands []CandidateSegment) error {
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, ok := seen[c.CandidateID]; ok {
			return fmt.Errorf("duplicate candidate_id %q", c.CandidateID)
		}
		seen[c.CandidateID] = struct{}{}
	}
	return nil
}

type Beat struct {
	BeatID   string   `json:"beat_id"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords,omitempty"`

	// PostCutoffEligible lets this beat match candidates past the spoiler cutoff.
	PostCutoffEligible bool `json:"post_cutoff_eligible,omitempty"`
}

// QueryText is the text embedded to retrieve candidates for the beat.
func (b Beat) QueryText() string {
	parts := make([]string, 0, 2+len(b.Keywords))
	if s := strings.TrimSpace(b.Summary); s != "" {
		parts = append(parts, s)
	} else if s := strings.TrimSpace(b.Title); s != "" {
		parts = append(parts, s)
	}
	for _, k := range b.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ")
}

func ValidateBeats(beats []Beat) error {
	seen := make(map[string]struct{}, len(beats))
	for i, b := range beats {
		if strings.TrimSpace(b.BeatID) == "" {
			return fmt.Errorf("beat #%d: beat_id is empty", i)
		}
		if _, ok := seen[b.BeatID]; ok {
			return fmt.Errorf("duplicate beat_id %q", b.BeatID)
		}
		seen[b.BeatID] = struct{}{}
		if b.QueryText() == "" {
			return fmt.Errorf("beat %s: summary, title and keywords are all empty", b.BeatID)
		}
	}
	return nil
}

// ScoredCandidate is a candidate with the score that justified it.
// BeatIndex is -1 when the candidate is not attributed to a beat.
type ScoredCandidate struct {
	Candidate  CandidateSegment
	Score      float64
	Similarity float64
	BeatID     string
	BeatIndex  int

	// SpoilerExempt is set when the candidate may start past the spoiler cutoff.
	SpoilerExempt bool
}

// MSRange is an inclusive [min,max] range of milliseconds.
type MSRange [2]int64

func (r MSRange) Min() int64 { return r[0] }
func (r MSRange) Max() int64 { return r[1] }

func (r MSRange) Contains(v int64) bool { return v >= r[0] && v <= r[1] }

// Widen grows the range by d on both ends, never below zero.
func (r MSRange) Widen(d int64) MSRange {
	lo := r[0] - d
	if lo < 0 {
		lo = 0
	}
	return MSRange{lo, r[1] + d}
}

func (r MSRange) String() string { return fmt.Sprintf("[%d,%d]ms", r[0], r[1]) }

// CountRange is an inclusive [min,max] clip count range.
type CountRange [2]int

func (r CountRange) Min() int { return r[0] }
func (r CountRange) Max() int { return r[1] }

func (r CountRange) Contains(n int) bool { return n >= r[0] && n <= r[1] }

type SelectionConstraint struct {
	TargetDurationMS MSRange    `json:"target_duration_range_ms"`
	ClipCount        CountRange `json:"clip_count_range"`
	MinSpacingMS     int64      `json:"min_spacing_ms"`

	// SpoilerCutoffMS <= 0 disables the cutoff.
	SpoilerCutoffMS  int64    `json:"spoiler_cutoff_ms"`
	SpoilerWhitelist []string `json:"spoiler_whitelist,omitempty"`
	HookFirst        bool     `json:"hook_first"`

	MinClipMS         int64 `json:"min_clip_ms"`
	MaxBandWideningMS int64 `json:"max_band_widening_ms"`
}

func DefaultConstraint() SelectionConstraint {
	return SelectionConstraint{
		TargetDurationMS:  MSRange{30000, 45000},
		ClipCount:         CountRange{8, 15},
		MinSpacingMS:      10000,
		MinClipMS:         1500,
		MaxBandWideningMS: 5000,
	}
}

func (c SelectionConstraint) Validate() error {
	if c.TargetDurationMS.Min() <= 0 || c.TargetDurationMS.Min() > c.TargetDurationMS.Max() {
		return fmt.Errorf("target_duration_range_ms %v is invalid", c.TargetDurationMS)
	}
	if c.ClipCount.Min() <= 0 || c.ClipCount.Min() > c.ClipCount.Max() {
		return fmt.Errorf("clip_count_range %v is invalid", [2]int(c.ClipCount))
	}
	if c.MinSpacingMS < 0 {
		return fmt.Errorf("min_spacing_ms must be >= 0")
	}
	if c.MinClipMS <= 0 {
		return fmt.Errorf("min_clip_ms must be > 0")
	}
	if c.MaxBandWideningMS < 0 {
		return fmt.Errorf("max_band_widening_ms must be >= 0")
	}
	return nil
}

// SpoilerAllowed reports whether a candidate survives the spoiler cutoff.
func (c SelectionConstraint) SpoilerAllowed(sc ScoredCandidate) bool {
	if c.SpoilerCutoffMS <= 0 || sc.Candidate.StartMS < c.SpoilerCutoffMS {
		return true
	}
	if sc.SpoilerExempt {
		return true
	}
	for _, id := range c.SpoilerWhitelist {
		if id == sc.Candidate.CandidateID {
			return true
		}
	}
	return false
}

type Strategy string

const (
	StrategyBeatMatch       Strategy = "beat_match"
	StrategyEngagementScore Strategy = "engagement_score"
)

// SelectedClip is one chosen candidate plus the trimmed span and attribution.
type SelectedClip struct {
	CandidateID string  `json:"candidate_id"`
	SceneID     int     `json:"scene_id"`
	StartMS     int64   `json:"start_ms"`
	EndMS       int64   `json:"end_ms"`
	InMS        int64   `json:"in_ms"`
	OutMS       int64   `json:"out_ms"`
	Score       float64 `json:"score"`
	Similarity  float64 `json:"similarity,omitempty"`
	BeatID      string  `json:"beat_id,omitempty"`
	BeatIndex   int     `json:"beat_index"`
	Padding     bool    `json:"padding,omitempty"`
	Text        string  `json:"text,omitempty"`
}

func (s SelectedClip) DurationMS() int64 { return s.OutMS - s.InMS }

// Relaxation is one fired step of the constraint relaxation ladder.
type Relaxation struct {
	Step      int     `json:"step"`
	Name      string  `json:"name"`
	SpacingMS int64   `json:"spacing_ms"`
	Band      MSRange `json:"duration_range_ms"`
}

type SelectionResult struct {
	RunID           string         `json:"run_id"`
	Strategy        Strategy       `json:"strategy"`
	Clips           []SelectedClip `json:"clips"`
	TotalDurationMS int64          `json:"total_duration_ms"`

	// EffectiveDurationMS is the band the result satisfies after relaxation.
	EffectiveDurationMS MSRange      `json:"effective_duration_range_ms"`
	Relaxations         []Relaxation `json:"relaxations,omitempty"`
	Warnings            []string     `json:"warnings,omitempty"`
}

// LastRelaxation returns the name of the last fired step, or "none".
func (r SelectionResult) LastRelaxation() string {
	if len(r.Relaxations) == 0 {
		return "none"
	}
	return r.Relaxations[len(r.Relaxations)-1].Name
}

type EDLClip struct {
	ClipID      string `json:"clip_id"`
	CandidateID string `json:"candidate_id"`
	InMS        int64  `json:"in_ms"`
	OutMS       int64  `json:"out_ms"`
	Order       int    `json:"order"`

	// TimelineStartMS is the clip's offset in the rendered sequence.
	TimelineStartMS int64  `json:"timeline_start_ms"`
	Caption         string `json:"caption,omitempty"`
}

func (c EDLClip) DurationMS() int64 { return c.OutMS - c.InMS }

// WordSpan is a transcript word or utterance span in milliseconds.
type WordSpan struct {
	StartMS int64
	EndMS   int64
	Text    string
}
