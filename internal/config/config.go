package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/forPelevin/recut/internal/types"
)

type contextKey string

const configKey contextKey = "config"

const EnvPrefix = "RECUT"

const (
	ModeBeatMatch = "A"
	ModeScore     = "B"
)

const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

type Config struct {
	Mode                  string   `yaml:"mode" mapstructure:"mode"`
	TargetDurationRangeMS []int64  `yaml:"target_duration_range_ms" mapstructure:"target_duration_range_ms"`
	ClipCountRange        []int    `yaml:"clip_count_range" mapstructure:"clip_count_range"`
	MinSpacingMS          int64    `yaml:"min_spacing_ms" mapstructure:"min_spacing_ms"`
	SpoilerCutoffMS       int64    `yaml:"spoiler_cutoff_ms" mapstructure:"spoiler_cutoff_ms"`
	SpoilerWhitelist      []string `yaml:"spoiler_whitelist" mapstructure:"spoiler_whitelist"`
	HookFirst             bool     `yaml:"hook_first" mapstructure:"hook_first"`
	ScorerWeights         Weights  `yaml:"scorer_weights" mapstructure:"scorer_weights"`
	BeatMatchTopN         int      `yaml:"beat_match_topn" mapstructure:"beat_match_topn"`
	MinClipMS             int64    `yaml:"min_clip_ms" mapstructure:"min_clip_ms"`
	MaxBandWideningMS     int64    `yaml:"max_band_widening_ms" mapstructure:"max_band_widening_ms"`
	Workers               int      `yaml:"workers" mapstructure:"workers"`

	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Narration NarrationConfig `yaml:"narration" mapstructure:"narration"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// Weights are the engagement scorer coefficients.
type Weights struct {
	W1 float64 `yaml:"w1" mapstructure:"w1"`
	W2 float64 `yaml:"w2" mapstructure:"w2"`
	W3 float64 `yaml:"w3" mapstructure:"w3"`
	W4 float64 `yaml:"w4" mapstructure:"w4"`
}

type EmbeddingConfig struct {
	Provider     string        `yaml:"provider" mapstructure:"provider"`
	Model        string        `yaml:"model" mapstructure:"model"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	AllowedHosts []string      `yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
	Dimensions   int           `yaml:"dimensions" mapstructure:"dimensions"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Attempts     int           `yaml:"attempts" mapstructure:"attempts"`
}

type NarrationConfig struct {
	Enabled      bool     `yaml:"enabled" mapstructure:"enabled"`
	Model        string   `yaml:"model" mapstructure:"model"`
	BaseURL      string   `yaml:"base_url" mapstructure:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
}

type PathsConfig struct {
	RunsDir string `yaml:"runs_dir" mapstructure:"runs_dir"`
	// Ledger defaults to <runs_dir>/ledger.db.
	Ledger string `yaml:"ledger" mapstructure:"ledger"`
}

func (p PathsConfig) LedgerPath() string {
	if strings.TrimSpace(p.Ledger) != "" {
		return p.Ledger
	}
	return filepath.Join(p.RunsDir, "ledger.db")
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func Default() *Config {
	c := types.DefaultConstraint()
	return &Config{
		Mode:                  ModeScore,
		TargetDurationRangeMS: []int64{c.TargetDurationMS.Min(), c.TargetDurationMS.Max()},
		ClipCountRange:        []int{c.ClipCount.Min(), c.ClipCount.Max()},
		MinSpacingMS:          c.MinSpacingMS,
		SpoilerCutoffMS:       0,
		SpoilerWhitelist:      []string{},
		HookFirst:             false,
		ScorerWeights:         Weights{W1: 0.35, W2: 0.30, W3: 0.20, W4: 0.15},
		BeatMatchTopN:         20,
		MinClipMS:             c.MinClipMS,
		MaxBandWideningMS:     c.MaxBandWideningMS,
		Workers:               4,
		Embedding: EmbeddingConfig{
			Provider:     ProviderHash,
			Model:        "text-embedding-3-small",
			BaseURL:      "https://api.openai.com/v1",
			AllowedHosts: []string{"api.openai.com"},
			Dimensions:   0,
			Timeout:      30 * time.Second,
			Attempts:     3,
		},
		Narration: NarrationConfig{
			Enabled:      false,
			Model:        "google/gemini-3-flash-preview",
			BaseURL:      "https://openrouter.ai",
			AllowedHosts: []string{"openrouter.ai"},
		},
		Paths: PathsConfig{
			RunsDir: "runs",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// flagKeys maps CLI flag names to config keys. Only flags that exist and
// were set on the command line override lower layers.
var flagKeys = map[string]string{
	"mode":              "mode",
	"hook-first":        "hook_first",
	"min-spacing-ms":    "min_spacing_ms",
	"spoiler-cutoff-ms": "spoiler_cutoff_ms",
	"spoiler-whitelist": "spoiler_whitelist",
	"topn":              "beat_match_topn",
	"workers":           "workers",
	"embedder":          "embedding.provider",
	"narrate":           "narration.enabled",
	"runs-dir":          "paths.runs_dir",
	"ledger":            "paths.ledger",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// Load layers defaults, the YAML file, RECUT_* env vars and set flags.
// An empty path looks for ./recut.yaml and friends; a missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	explicit := path != ""
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				path = ""
			} else {
				return nil, fmt.Errorf("config file: %w", err)
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Mode = strings.ToUpper(strings.TrimSpace(cfg.Mode))
	cfg.Embedding.Provider = strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider))
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeBeatMatch, ModeScore:
	default:
		return fmt.Errorf("mode must be A or B, got %q", c.Mode)
	}
	if len(c.TargetDurationRangeMS) != 2 {
		return fmt.Errorf("target_duration_range_ms must be [min,max]")
	}
	if len(c.ClipCountRange) != 2 {
		return fmt.Errorf("clip_count_range must be [min,max]")
	}
	if err := c.Constraint().Validate(); err != nil {
		return err
	}
	w := c.ScorerWeights
	if w.W1 < 0 || w.W2 < 0 || w.W3 < 0 || w.W4 < 0 {
		return fmt.Errorf("scorer_weights must be >= 0")
	}
	if w == (Weights{}) {
		return fmt.Errorf("scorer_weights must not all be 0")
	}
	if c.BeatMatchTopN <= 0 {
		return fmt.Errorf("beat_match_topn must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	switch c.Embedding.Provider {
	case ProviderHash, ProviderOpenAI:
	default:
		return fmt.Errorf("embedding.provider must be hash or openai, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("embedding.timeout must be > 0")
	}
	if c.Embedding.Attempts <= 0 {
		return fmt.Errorf("embedding.attempts must be > 0")
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be >= 0")
	}
	if strings.TrimSpace(c.Paths.RunsDir) == "" {
		return fmt.Errorf("paths.runs_dir is required")
	}
	return nil
}

// Constraint builds the selection constraint. Call Validate first.
func (c *Config) Constraint() types.SelectionConstraint {
	var dur types.MSRange
	if len(c.TargetDurationRangeMS) == 2 {
		dur = types.MSRange{c.TargetDurationRangeMS[0], c.TargetDurationRangeMS[1]}
	}
	var cnt types.CountRange
	if len(c.ClipCountRange) == 2 {
		cnt = types.CountRange{c.ClipCountRange[0], c.ClipCountRange[1]}
	}
	return types.SelectionConstraint{
		TargetDurationMS:  dur,
		ClipCount:         cnt,
		MinSpacingMS:      c.MinSpacingMS,
		SpoilerCutoffMS:   c.SpoilerCutoffMS,
		SpoilerWhitelist:  append([]string(nil), c.SpoilerWhitelist...),
		HookFirst:         c.HookFirst,
		MinClipMS:         c.MinClipMS,
		MaxBandWideningMS: c.MaxBandWideningMS,
	}
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func findConfigFile() string {
	candidates := []string{
		"./recut.yaml",
		"./recut.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".recut", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext returns the config stored by WithConfig, or the defaults.
func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(configKey).(*Config); ok {
			return cfg
		}
	}
	return Default()
}
