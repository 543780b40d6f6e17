package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recut.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	path := writeYAML(t, "")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	c := cfg.Constraint()
	if c.TargetDurationMS.Min() != 30000 || c.TargetDurationMS.Max() != 45000 {
		t.Fatalf("duration band: got %v", c.TargetDurationMS)
	}
	if c.ClipCount.Min() != 8 || c.ClipCount.Max() != 15 {
		t.Fatalf("count band: got %v", c.ClipCount)
	}
	if cfg.BeatMatchTopN != 20 {
		t.Fatalf("topn: got %d", cfg.BeatMatchTopN)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Fatalf("embedding timeout: got %s", cfg.Embedding.Timeout)
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := writeYAML(t, strings.Join([]string{
		"mode: a",
		"min_spacing_ms: 5000",
		"beat_match_topn: 7",
		"target_duration_range_ms: [20000, 40000]",
		"scorer_weights:",
		"  w1: 0.5",
		"embedding:",
		"  timeout: 5s",
	}, "\n"))

	t.Setenv("RECUT_BEAT_MATCH_TOPN", "9")
	t.Setenv("RECUT_MIN_SPACING_MS", "6000")
	t.Setenv("RECUT_EMBEDDING_ATTEMPTS", "5")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int64("min-spacing-ms", 0, "")
	fs.Int("workers", 4, "")
	if err := fs.Parse([]string{"--min-spacing-ms", "7000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != ModeBeatMatch {
		t.Fatalf("mode from file: got %q", cfg.Mode)
	}
	if cfg.BeatMatchTopN != 9 {
		t.Fatalf("env must override file: got %d", cfg.BeatMatchTopN)
	}
	if cfg.MinSpacingMS != 7000 {
		t.Fatalf("set flag must override env: got %d", cfg.MinSpacingMS)
	}
	if cfg.Workers != 4 {
		t.Fatalf("unset flag must not override: got %d", cfg.Workers)
	}
	if cfg.Embedding.Attempts != 5 {
		t.Fatalf("nested env: got %d", cfg.Embedding.Attempts)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Fatalf("duration from file: got %s", cfg.Embedding.Timeout)
	}
	if cfg.ScorerWeights.W1 != 0.5 || cfg.ScorerWeights.W2 != 0.30 {
		t.Fatalf("weights merge: got %+v", cfg.ScorerWeights)
	}
	if got := cfg.Constraint().TargetDurationMS; got.Min() != 20000 || got.Max() != 40000 {
		t.Fatalf("band from file: got %v", got)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "C" }, "mode must be A or B"},
		{"inverted band", func(c *Config) { c.TargetDurationRangeMS = []int64{45000, 30000} }, "target_duration_range_ms"},
		{"short band", func(c *Config) { c.TargetDurationRangeMS = []int64{1} }, "target_duration_range_ms must be [min,max]"},
		{"zero count", func(c *Config) { c.ClipCountRange = []int{0, 3} }, "clip_count_range"},
		{"negative spacing", func(c *Config) { c.MinSpacingMS = -1 }, "min_spacing_ms"},
		{"topn", func(c *Config) { c.BeatMatchTopN = 0 }, "beat_match_topn"},
		{"provider", func(c *Config) { c.Embedding.Provider = "magic" }, "embedding.provider"},
		{"weights", func(c *Config) { c.ScorerWeights.W4 = -0.1 }, "scorer_weights"},
		{"all-zero weights", func(c *Config) { c.ScorerWeights = Weights{} }, "scorer_weights must not all be 0"},
		{"one weight left", func(c *Config) { c.ScorerWeights = Weights{W3: 1} }, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recut.yaml")
	c := Default()
	c.HookFirst = true
	c.SpoilerWhitelist = []string{"scene-3-0"}
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.HookFirst || len(got.SpoilerWhitelist) != 1 || got.SpoilerWhitelist[0] != "scene-3-0" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	if got := FromContext(context.Background()); got.Mode != ModeScore {
		t.Fatalf("expected defaults, got mode %q", got.Mode)
	}
	c := Default()
	c.Mode = ModeBeatMatch
	if got := FromContext(WithConfig(context.Background(), c)); got != c {
		t.Fatalf("expected stored config")
	}
}
