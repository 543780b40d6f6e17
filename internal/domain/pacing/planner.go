package pacing

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/recut/internal/ports"
	"github.com/forPelevin/recut/internal/types"
)

// DefaultMaxShiftMS bounds how far a cut may move to reach a word boundary.
const DefaultMaxShiftMS = 400

type Options struct {
	RunID      string
	Boundaries ports.BoundaryLookup
	MaxShiftMS int64
	Logger     zerolog.Logger
}

// Plan is the planner output. Selection mirrors the EDL: clips in render
// order with the snapped spans and the matching total.
type Plan struct {
	EDL       []types.EDLClip
	Selection types.SelectionResult
	Snapped   int
}

// Build orders the selected clips, snaps cuts to word boundaries and
// validates the resulting EDL.
func Build(sel types.SelectionResult, c types.SelectionConstraint, opts Options) (Plan, error) {
	log := opts.Logger.With().Str("component", "pacing").Logger()
	maxShift := opts.MaxShiftMS
	if maxShift <= 0 {
		maxShift = DefaultMaxShiftMS
	}

	band := sel.EffectiveDurationMS
	if band == (types.MSRange{}) {
		band = c.TargetDurationMS
	}

	ordered := order(sel.Clips, sel.Strategy, c.HookFirst)

	raw := make([]types.SelectedClip, len(ordered))
	copy(raw, ordered)
	snapped := 0
	if opts.Boundaries != nil {
		for i := range ordered {
			if snap(&ordered[i], opts.Boundaries, maxShift, c.MinClipMS) {
				snapped++
			}
		}
	}

	// Snapping must not push the total out of the band; undo the latest
	// snaps first until it fits again.
	for i := len(ordered) - 1; i >= 0 && !band.Contains(total(ordered)); i-- {
		if ordered[i] != raw[i] {
			ordered[i] = raw[i]
			snapped--
			log.Debug().Str("candidate_id", ordered[i].CandidateID).Msg("snap reverted to keep duration band")
		}
	}

	edl := make([]types.EDLClip, len(ordered))
	var timeline int64
	for i, cl := range ordered {
		edl[i] = types.EDLClip{
			ClipID:          ClipID(opts.RunID, cl.CandidateID),
			CandidateID:     cl.CandidateID,
			InMS:            cl.InMS,
			OutMS:           cl.OutMS,
			Order:           i,
			TimelineStartMS: timeline,
		}
		timeline += cl.DurationMS()
	}

	out := sel
	out.Clips = ordered
	out.TotalDurationMS = total(ordered)
	out.EffectiveDurationMS = band

	if err := Validate(opts.RunID, edl, out); err != nil {
		return Plan{}, err
	}
	log.Debug().Int("clips", len(edl)).Int("snapped", snapped).Int64("total_ms", out.TotalDurationMS).Msg("edl planned")
	return Plan{EDL: edl, Selection: out, Snapped: snapped}, nil
}

// ClipID is stable for a (run, candidate) pair.
func ClipID(runID, candidateID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("recut:"+runID+"/"+candidateID)).String()
}

// order returns the render order: beat order for beat matching (as given by
// the selector), otherwise chronological or highest score first.
func order(clips []types.SelectedClip, strategy types.Strategy, hookFirst bool) []types.SelectedClip {
	out := make([]types.SelectedClip, len(clips))
	copy(out, clips)
	if strategy == types.StrategyBeatMatch {
		return out
	}
	if hookFirst {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			return out[i].CandidateID < out[j].CandidateID
		})
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartMS != out[j].StartMS {
			return out[i].StartMS < out[j].StartMS
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out
}

// snap moves the in-point to the nearest word start and the out-point to the
// nearest word end, both within maxShift and inside the candidate span. A
// sentence-final word end wins over a closer plain one. It reports whether
// anything moved.
func snap(cl *types.SelectedClip, b ports.BoundaryLookup, maxShift, minClipMS int64) bool {
	spans := b.Boundaries(cl.StartMS, cl.EndMS)
	if len(spans) == 0 {
		return false
	}

	in, inOK := nearestStart(spans, cl.InMS, cl.StartMS, cl.EndMS, maxShift)
	if !inOK {
		in = cl.InMS
	}
	out, outOK := nearestEnd(spans, cl.OutMS, in, cl.EndMS, maxShift)
	if !outOK {
		out = cl.OutMS
	}
	if !inOK && !outOK {
		return false
	}

	floor := cl.DurationMS()
	if minClipMS > 0 && minClipMS < floor {
		floor = minClipMS
	}
	if out-in < floor || out <= in {
		return false
	}
	if in == cl.InMS && out == cl.OutMS {
		return false
	}
	cl.InMS, cl.OutMS = in, out
	return true
}

func nearestStart(spans []types.WordSpan, target, lo, hi, maxShift int64) (int64, bool) {
	best, bestD := int64(0), int64(-1)
	for _, s := range spans {
		if s.StartMS < lo || s.StartMS >= hi {
			continue
		}
		d := abs(s.StartMS - target)
		if d > maxShift {
			continue
		}
		if bestD < 0 || d < bestD {
			best, bestD = s.StartMS, d
		}
	}
	return best, bestD >= 0
}

func nearestEnd(spans []types.WordSpan, target, lo, hi, maxShift int64) (int64, bool) {
	best, bestD := int64(0), int64(-1)
	bestTerminal := false
	for _, s := range spans {
		if s.EndMS <= lo || s.EndMS > hi {
			continue
		}
		d := abs(s.EndMS - target)
		if d > maxShift {
			continue
		}
		term := hasTerminalPunctuation(s.Text)
		switch {
		case bestD < 0,
			term && !bestTerminal,
			term == bestTerminal && d < bestD:
			best, bestD, bestTerminal = s.EndMS, d, term
		}
	}
	return best, bestD >= 0
}

// Validate checks the EDL against the selection it was built from. Any
// failure is a PlanningInvariantViolation.
func Validate(runID string, edl []types.EDLClip, sel types.SelectionResult) error {
	violation := func(inv, format string, args ...any) error {
		return &types.PlanningInvariantViolation{
			RunID:     runID,
			Stage:     types.StagePacing,
			Invariant: inv,
			Detail:    fmt.Sprintf(format, args...),
		}
	}

	if len(edl) != len(sel.Clips) {
		return violation("clip_count", "edl has %d clips, selection has %d", len(edl), len(sel.Clips))
	}

	span := make(map[string]types.SelectedClip, len(sel.Clips))
	for _, c := range sel.Clips {
		span[c.CandidateID] = c
	}

	seenCand := make(map[string]struct{}, len(edl))
	seenClip := make(map[string]struct{}, len(edl))
	var sum, timeline int64
	for i, e := range edl {
		if e.Order != i {
			return violation("order", "clip %d has order %d", i, e.Order)
		}
		if _, dup := seenCand[e.CandidateID]; dup {
			return violation("dedup", "candidate %s appears twice", e.CandidateID)
		}
		seenCand[e.CandidateID] = struct{}{}
		if _, dup := seenClip[e.ClipID]; dup {
			return violation("clip_id", "clip_id %s appears twice", e.ClipID)
		}
		seenClip[e.ClipID] = struct{}{}

		s, ok := span[e.CandidateID]
		if !ok {
			return violation("back_reference", "candidate %s is not in the selection", e.CandidateID)
		}
		if e.InMS >= e.OutMS || e.InMS < s.StartMS || e.OutMS > s.EndMS {
			return violation("span", "clip %s [%d,%d] outside candidate [%d,%d]", e.CandidateID, e.InMS, e.OutMS, s.StartMS, s.EndMS)
		}
		if e.TimelineStartMS != timeline {
			return violation("timeline", "clip %s starts at %d, want %d", e.CandidateID, e.TimelineStartMS, timeline)
		}
		timeline += e.DurationMS()
		sum += e.DurationMS()
	}

	for i := 0; i < len(edl); i++ {
		for j := i + 1; j < len(edl); j++ {
			if edl[i].InMS < edl[j].OutMS && edl[j].InMS < edl[i].OutMS {
				return violation("overlap", "clips %s and %s overlap in source", edl[i].CandidateID, edl[j].CandidateID)
			}
		}
	}

	if sum != sel.TotalDurationMS {
		return violation("total", "sum of clips %dms != total_duration_ms %dms", sum, sel.TotalDurationMS)
	}
	if !sel.EffectiveDurationMS.Contains(sum) {
		return violation("duration_band", "total %dms outside %v", sum, sel.EffectiveDurationMS)
	}
	return nil
}

func total(clips []types.SelectedClip) int64 {
	var t int64
	for _, c := range clips {
		t += c.DurationMS()
	}
	return t
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
