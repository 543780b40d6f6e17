package segmentation

import (
	"testing"

	"github.com/forPelevin/recut/internal/types"
)

func TestCleanup_MergesShortAndTight(t *testing.T) {
	t.Parallel()

	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 0.5, Text: " a "},
		{Start: 0.6, End: 2, Text: "b"},
		{Start: 2.5, End: 2.5, Text: "zero length"},
		{Start: 3, End: 5, Text: "c\n\t"},
		{Start: 5.5, End: 5.8, Text: "d"},
		{Start: 7, End: 8, Text: "   "},
	}}
	got := Cleanup(tr, DefaultCleanupOptions())
	want := []Utterance{
		{StartMS: 0, EndMS: 2000, Text: "a b"},
		{StartMS: 3000, EndMS: 5800, Text: "c d"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("utterance %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestCleanup_SplitsLongAtSentences(t *testing.T) {
	t.Parallel()

	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 10, Text: "One two. Three four!"}}}
	got := Cleanup(tr, DefaultCleanupOptions())
	if len(got) != 2 {
		t.Fatalf("expected 2 parts, got %+v", got)
	}
	// 8 of 19 characters belong to the first sentence.
	if got[0].Text != "One two." || got[0].StartMS != 0 || got[0].EndMS != 4210 {
		t.Fatalf("first part: %+v", got[0])
	}
	if got[1].Text != "Three four!" || got[1].StartMS != 4210 || got[1].EndMS != 10000 {
		t.Fatalf("second part: %+v", got[1])
	}

	noPunct := types.Transcript{Segments: []types.Segment{{Start: 0, End: 10, Text: "no sentence break here"}}}
	if got := Cleanup(noPunct, DefaultCleanupOptions()); len(got) != 1 || got[0].EndMS != 10000 {
		t.Fatalf("unsplittable segment must stay whole: %+v", got)
	}
}

func TestBuildCandidates_ScenesAndWindows(t *testing.T) {
	t.Parallel()

	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 2, Text: "hello there"},
		{Start: 3, End: 5, Text: "second line"},
		{Start: 6, End: 9, Text: "third line here"},
		{Start: 10, End: 11, Text: "x"},
	}}
	scenes := []types.Scene{
		{SceneID: 0, StartMS: 0, EndMS: 9500},
		{SceneID: 1, StartMS: 9500, EndMS: 20000},
		{SceneID: 2, StartMS: 30000, EndMS: 40000},
	}

	got, err := BuildCandidates(tr, scenes, DefaultOptions())
	if err != nil {
		t.Fatalf("BuildCandidates: %v", err)
	}

	want := []struct {
		id         string
		scene      int
		start, end int64
		text       string
	}{
		{"scene-0-0", 0, 0, 5000, "hello there second line"},
		{"scene-0-1", 0, 6000, 9000, "third line here"},
		{"scene-1-0", 1, 9500, 20000, "x"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates: %+v", len(got), got)
	}
	for i, w := range want {
		g := got[i]
		if g.CandidateID != w.id || g.SceneID != w.scene || g.StartMS != w.start || g.EndMS != w.end || g.Text != w.text {
			t.Fatalf("candidate %d: got %+v want %+v", i, g, w)
		}
		if err := g.Validate(); err != nil {
			t.Fatalf("candidate %d invalid: %v", i, err)
		}
	}
	if wc, _ := got[0].Feature(types.FeatureWordCount); wc != 4 {
		t.Fatalf("word_count: %v", wc)
	}
	if wps, _ := got[0].Feature(types.FeatureWordsPerSecond); wps != 0.8 {
		t.Fatalf("words_per_second: %v", wps)
	}
	if err := types.ValidateCandidates(got); err != nil {
		t.Fatalf("ids must be unique: %v", err)
	}
}

func TestBuildCandidates_NoScenes(t *testing.T) {
	t.Parallel()

	tr := types.Transcript{Segments: []types.Segment{
		{Start: 1, End: 3, Text: "one"},
		{Start: 4, End: 6, Text: "two"},
	}}
	got, err := BuildCandidates(tr, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("BuildCandidates: %v", err)
	}
	if len(got) != 1 || got[0].CandidateID != "scene-0-0" || got[0].StartMS != 1000 || got[0].EndMS != 6000 {
		t.Fatalf("got %+v", got)
	}
}

func TestBuildCandidates_Errors(t *testing.T) {
	t.Parallel()

	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 4, Text: "words"}}}
	tests := []struct {
		name   string
		scenes []types.Scene
		opt    Options
	}{
		{"inverted scene", []types.Scene{{SceneID: 3, StartMS: 5000, EndMS: 5000}}, DefaultOptions()},
		{"bad window", nil, Options{MinWindowMS: 9000, MaxWindowMS: 8000}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := BuildCandidates(tr, tt.scenes, tt.opt); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	got, err := BuildCandidates(types.Transcript{}, nil, DefaultOptions())
	if err != nil || len(got) != 0 {
		t.Fatalf("empty transcript: %v %v", got, err)
	}
}
