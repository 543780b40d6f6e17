package segmentation

import (
	"fmt"
	"math"
	"strings"

	"github.com/forPelevin/recut/internal/types"
)

type Options struct {
	MinWindowMS int64
	MaxWindowMS int64
	Cleanup     CleanupOptions
}

func DefaultOptions() Options {
	return Options{MinWindowMS: 3000, MaxWindowMS: 8000, Cleanup: DefaultCleanupOptions()}
}

// BuildCandidates aligns the cleaned transcript to scenes and chunks each
// scene into windows of MinWindowMS..MaxWindowMS. A scene whose chunks are
// all too short still yields one whole-scene candidate. With no scenes the
// whole transcript is treated as scene 0.
func BuildCandidates(tr types.Transcript, scenes []types.Scene, opt Options) ([]types.CandidateSegment, error) {
	if opt.MaxWindowMS <= 0 || opt.MinWindowMS > opt.MaxWindowMS {
		return nil, fmt.Errorf("window range [%d,%d] is invalid", opt.MinWindowMS, opt.MaxWindowMS)
	}

	utts := Cleanup(tr, opt.Cleanup)
	if len(utts) == 0 {
		return nil, nil
	}

	if len(scenes) == 0 {
		scenes = []types.Scene{{SceneID: 0, StartMS: utts[0].StartMS, EndMS: utts[len(utts)-1].EndMS}}
	}

	var out []types.CandidateSegment
	for _, sc := range scenes {
		if sc.EndMS <= sc.StartMS {
			return nil, fmt.Errorf("scene %d: start_ms (%d) must be < end_ms (%d)", sc.SceneID, sc.StartMS, sc.EndMS)
		}
		inScene := clampToScene(utts, sc)
		if len(inScene) == 0 {
			continue
		}
		out = append(out, chunk(inScene, sc, opt)...)
	}
	return out, nil
}

func clampToScene(utts []Utterance, sc types.Scene) []Utterance {
	var out []Utterance
	for _, u := range utts {
		if u.EndMS <= sc.StartMS || u.StartMS >= sc.EndMS {
			continue
		}
		st := max64(u.StartMS, sc.StartMS)
		en := min64(u.EndMS, sc.EndMS)
		if en <= st {
			continue
		}
		out = append(out, Utterance{StartMS: st, EndMS: en, Text: strings.TrimSpace(u.Text)})
	}
	return out
}

func chunk(utts []Utterance, sc types.Scene, opt Options) []types.CandidateSegment {
	var out []types.CandidateSegment
	var (
		parts      []string
		start, end int64
		open       bool
	)

	flush := func() {
		if !open || end-start < opt.MinWindowMS {
			return
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			return
		}
		out = append(out, candidate(fmt.Sprintf("scene-%d-%d", sc.SceneID, len(out)), sc.SceneID, start, end, text))
	}

	for _, u := range utts {
		if !open {
			start, end, parts, open = u.StartMS, u.EndMS, []string{u.Text}, true
			continue
		}
		if u.EndMS-start > opt.MaxWindowMS {
			flush()
			start, end, parts = u.StartMS, u.EndMS, []string{u.Text}
			continue
		}
		parts = append(parts, u.Text)
		end = u.EndMS
	}
	flush()

	if len(out) == 0 {
		texts := make([]string, 0, len(utts))
		for _, u := range utts {
			texts = append(texts, u.Text)
		}
		if text := strings.TrimSpace(strings.Join(texts, " ")); text != "" {
			out = append(out, candidate(fmt.Sprintf("scene-%d-0", sc.SceneID), sc.SceneID, sc.StartMS, sc.EndMS, text))
		}
	}
	return out
}

func candidate(id string, sceneID int, start, end int64, text string) types.CandidateSegment {
	words := len(strings.Fields(text))
	sec := math.Max(float64(end-start)/1000.0, 0.1)
	return types.CandidateSegment{
		CandidateID: id,
		SceneID:     sceneID,
		StartMS:     start,
		EndMS:       end,
		Text:        text,
		Features: map[string]float64{
			types.FeatureWordCount:      float64(words),
			types.FeatureWordsPerSecond: float64(words) / sec,
		},
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
