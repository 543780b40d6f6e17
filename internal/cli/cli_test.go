package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func writeCandidates(t *testing.T, dir string, n int) string {
	t.Helper()
	var parts []string
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(
			`{"candidate_id":"c%02d","start_ms":%d,"end_ms":%d,"text":"moment %d","features":{"audio_energy":0.5,"excitement_score":0.4,"scene_change_density":0.2,"silence_ratio":0.1}}`,
			i, i*12000, i*12000+4000, i))
	}
	p := filepath.Join(dir, "candidates.json")
	if err := os.WriteFile(p, []byte("["+strings.Join(parts, ",")+"]"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConfigCmd(t *testing.T) {
	t.Setenv("RECUT_MODE", "a")
	out, err := execRoot(t, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "mode: A") || !strings.Contains(out, "min_spacing_ms: 10000") {
		t.Fatalf("unexpected dump:\n%s", out)
	}

	t.Setenv("RECUT_MODE", "C")
	if _, err := execRoot(t, "config"); err == nil || !strings.Contains(err.Error(), "mode must be A or B") {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestRunAndRunsCmd(t *testing.T) {
	dir := t.TempDir()
	runsDir := filepath.Join(dir, "runs")
	cands := writeCandidates(t, dir, 12)

	out, err := execRoot(t, "run", "--candidates", cands, "--runs-dir", runsDir, "--min-spacing-ms", "0", "--run-id", "first")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "run first: ") || !strings.Contains(out, "artifacts: "+filepath.Join(runsDir, "first")) {
		t.Fatalf("unexpected run output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(runsDir, "first", "edl.json")); err != nil {
		t.Fatalf("edl.json: %v", err)
	}

	out, err = execRoot(t, "runs", "--runs-dir", runsDir)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "succeeded") {
		t.Fatalf("unexpected runs output:\n%s", out)
	}
}

func TestRunCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	cands := writeCandidates(t, dir, 12)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing candidates flag", args: []string{"run"}, want: `required flag(s) "candidates" not set`},
		{name: "bad mode", args: []string{"run", "--candidates", cands, "--mode", "Z"}, want: "mode must be A or B"},
		{name: "mode A without beats", args: []string{"run", "--candidates", cands, "--mode", "A"}, want: "mode A requires a beats file"},
		{name: "negative spacing", args: []string{"run", "--candidates", cands, "--min-spacing-ms", "-1"}, want: "config:"},
		{name: "unknown flag", args: []string{"run", "--wat"}, want: "unknown flag: --wat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--runs-dir", filepath.Join(dir, "runs"))
			_, err := execRoot(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestCandidatesCmd(t *testing.T) {
	dir := t.TempDir()
	tr := filepath.Join(dir, "t.json")
	body := `{"segments":[{"start":0,"end":2,"text":"hello there"},{"start":2.1,"end":5,"text":"second line"}]}`
	if err := os.WriteFile(tr, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "c.json")

	out, err := execRoot(t, "candidates", "--transcript", tr, "--out", outPath)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if !strings.Contains(out, "written to "+outPath) {
		t.Fatalf("unexpected output: %s", out)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}
