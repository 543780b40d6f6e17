package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forPelevin/recut/internal/types"
)

func TestStore(t *testing.T) {
	tmp := t.TempDir()
	s, err := NewStore(filepath.Join(tmp, "runs"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	t.Run("WriteRead", func(t *testing.T) {
		edl := []types.EDLClip{{ClipID: "x", CandidateID: "a", InMS: 0, OutMS: 1000}}
		path, err := s.Write("run-1", EDLFile, edl)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if path != filepath.Join(tmp, "runs", "run-1", "edl.json") {
			t.Fatalf("path: %s", path)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Fatalf("temp file left behind")
		}
		var got []types.EDLClip
		if err := s.Read("run-1", EDLFile, &got); err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(got) != 1 || got[0] != edl[0] {
			t.Fatalf("got %+v", got)
		}
		if !s.Exists("run-1", EDLFile) || s.Exists("run-1", SelectionFile) {
			t.Fatalf("Exists mismatch")
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		for _, id := range []string{"", "..", "../x", "a/b", `a\b`, "."} {
			if _, err := s.RunDir(id); err == nil {
				t.Errorf("run id %q accepted", id)
			}
		}
		if _, err := s.Path("run-1", "../../etc/passwd"); err == nil {
			t.Errorf("artifact name traversal accepted")
		}
	})
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadCandidatesAndBeats(t *testing.T) {
	p := writeFile(t, "c.json", `[{"candidate_id":"a","scene_id":1,"start_ms":0,"end_ms":1000,"text":"hi","features":{"audio_energy":0.5}}]`)
	cands, err := LoadCandidates(p)
	if err != nil {
		t.Fatalf("LoadCandidates: %v", err)
	}
	if v, ok := cands[0].Feature(types.FeatureAudioEnergy); !ok || v != 0.5 || cands[0].SceneID != 1 {
		t.Fatalf("got %+v", cands[0])
	}

	bad := writeFile(t, "bad.json", `[{"candidate_id":"a","start_ms":5,"end_ms":5}]`)
	if _, err := LoadCandidates(bad); err == nil {
		t.Fatalf("expected validation error")
	}

	bp := writeFile(t, "b.json", `[{"beat_id":"b1","title":"T","summary":"S","keywords":["k"]},{"beat_id":"b1","summary":"x"}]`)
	if _, err := LoadBeats(bp); err == nil {
		t.Fatalf("expected duplicate beat error")
	}
}

func TestLoadTranscript(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantStart float64
		wantText  string
		wantWords int
	}{
		{
			name:      "segments",
			body:      `{"segments":[{"start":1.5,"end":3,"text":"  hello there ","words":[{"start":1.5,"end":2,"word":" hello"}]}]}`,
			wantStart: 1.5,
			wantText:  "hello there",
			wantWords: 1,
		},
		{
			name: "whisper native",
			body: `{"transcription":[{"offsets":{"from":2500,"to":4000},"text":" go now.","tokens":[` +
				`{"text":"[_BEG_]","offsets":{"from":2500,"to":2500}},` +
				`{"text":" go","offsets":{"from":2500,"to":3000}},` +
				`{"text":" now.","offsets":{"from":3000,"to":4000}}]}]}`,
			wantStart: 2.5,
			wantText:  "go now.",
			wantWords: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := LoadTranscript(writeFile(t, "t.json", tt.body))
			if err != nil {
				t.Fatalf("LoadTranscript: %v", err)
			}
			if len(tr.Segments) != 1 {
				t.Fatalf("segments: %+v", tr.Segments)
			}
			s := tr.Segments[0]
			if s.Start != tt.wantStart || s.Text != tt.wantText || len(s.Words) != tt.wantWords {
				t.Fatalf("got %+v", s)
			}
			for _, w := range s.Words {
				if w.Word != "go" && w.Word != "now." && w.Word != "hello" {
					t.Fatalf("word not trimmed: %q", w.Word)
				}
			}
		})
	}

	if _, err := LoadTranscript(writeFile(t, "x.json", `{not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
