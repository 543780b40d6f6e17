//go:build integration

package itest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type edlClip struct {
	CandidateID     string `json:"candidate_id"`
	InMS            int64  `json:"in_ms"`
	OutMS           int64  `json:"out_ms"`
	Order           int    `json:"order"`
	TimelineStartMS int64  `json:"timeline_start_ms"`
}

// writeTranscript produces n sentences of 4s each with a 1s pause, split
// across scenes of five sentences.
func writeTranscript(t *testing.T, dir string, n int) (string, string) {
	t.Helper()
	var segs, scenes []string
	for i := 0; i < n; i++ {
		start := float64(i * 5)
		segs = append(segs, fmt.Sprintf(
			`{"start":%.1f,"end":%.1f,"text":"Line %d is a great and shocking moment.","words":[{"start":%.1f,"end":%.1f,"word":"Line"},{"start":%.1f,"end":%.1f,"word":"moment."}]}`,
			start, start+4, i, start, start+0.5, start+3.5, start+4))
	}
	for s := 0; s*5 < n; s++ {
		scenes = append(scenes, fmt.Sprintf(`{"scene_id":%d,"start_ms":%d,"end_ms":%d}`, s, s*25000, (s+1)*25000))
	}
	tr := filepath.Join(dir, "transcript.json")
	sc := filepath.Join(dir, "scenes.json")
	if err := os.WriteFile(tr, []byte(`{"segments":[`+strings.Join(segs, ",")+`]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sc, []byte("["+strings.Join(scenes, ",")+"]"), 0o644); err != nil {
		t.Fatal(err)
	}
	return tr, sc
}

func TestE2E(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	tmp := t.TempDir()
	runsDir := filepath.Join(tmp, "runs")
	tr, sc := writeTranscript(t, tmp, 40)
	cands := filepath.Join(tmp, "candidates.json")

	res := runCLI(t, repoRoot, []string{"candidates", "--transcript", tr, "--scenes", sc, "--out", cands}, nil)
	if res.exitCode != 0 {
		t.Fatalf("candidates failed:\n%s", res.output)
	}

	res = runCLI(t, repoRoot, []string{
		"run",
		"--candidates", cands,
		"--transcript", tr,
		"--runs-dir", runsDir,
		"--run-id", "e2e",
		"--hook-first",
	}, nil)
	if res.exitCode != 0 {
		t.Fatalf("run failed:\n%s", res.output)
	}

	b, err := os.ReadFile(filepath.Join(runsDir, "e2e", "edl.json"))
	if err != nil {
		t.Fatalf("missing edl: %v", err)
	}
	var edl []edlClip
	if err := json.Unmarshal(b, &edl); err != nil {
		t.Fatalf("decode edl: %v", err)
	}
	var total int64
	for i, c := range edl {
		if c.Order != i || c.TimelineStartMS != total || c.OutMS <= c.InMS {
			t.Fatalf("clip %d malformed: %+v", i, c)
		}
		total += c.OutMS - c.InMS
	}
	if len(edl) < 8 || len(edl) > 15 || total < 30000 || total > 50000 {
		t.Fatalf("edl outside default bands: %d clips, %dms", len(edl), total)
	}

	res = runCLI(t, repoRoot, []string{"runs", "--runs-dir", runsDir}, nil)
	if res.exitCode != 0 || !strings.Contains(res.output, "e2e") {
		t.Fatalf("runs listing:\n%s", res.output)
	}
}
