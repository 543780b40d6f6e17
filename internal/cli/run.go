package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/forPelevin/recut/internal/config"
	"github.com/forPelevin/recut/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Select clips from a candidate set and write selection.json and edl.json",
		Args:  cobra.NoArgs,
		RunE:  run,
	}

	f := cmd.Flags()
	f.String("candidates", "", "Candidate segments JSON (required)")
	f.String("beats", "", "Narrative beats JSON (mode A)")
	f.String("transcript", "", "Transcript JSON with word timings, for boundary snapping")
	f.String("run-id", "", "Run id (default: random uuid)")
	f.String("mode", "B", "Strategy: A (beat match) or B (engagement score)")
	f.Bool("hook-first", false, "Open with the highest-scoring clip")
	f.Int64("min-spacing-ms", 10000, "Minimum source gap between selected clips")
	f.Int64("spoiler-cutoff-ms", 0, "Exclude candidates at or after this source time (0 disables)")
	f.StringSlice("spoiler-whitelist", nil, "Candidate ids exempt from the spoiler cutoff")
	f.Int("topn", 20, "Beat match retrieval depth")
	f.Int("workers", 4, "Parallel embedding and scoring workers")
	f.String("embedder", "hash", "Embedding provider: hash or openai")
	f.Bool("narrate", false, "Generate clip captions via OpenRouter")
	f.Duration("timeout", 30*time.Minute, "Overall run timeout")
	_ = cmd.MarkFlagRequired("candidates")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.FromContext(cmd.Context())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	in := pipeline.Inputs{}
	in.CandidatesPath, _ = cmd.Flags().GetString("candidates")
	in.BeatsPath, _ = cmd.Flags().GetString("beats")
	in.TranscriptPath, _ = cmd.Flags().GetString("transcript")
	in.RunID, _ = cmd.Flags().GetString("run-id")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	r, err := pipeline.NewRunner(cfg, log.Logger)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.Run(ctx, cfg, in)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	sel := out.Result.Selection
	fmt.Fprintf(w, "run %s: %d clip(s), %dms, relaxation %s\n", out.RunID, len(out.Result.EDL), sel.TotalDurationMS, sel.LastRelaxation())
	for _, c := range out.Result.EDL {
		line := fmt.Sprintf("  %2d  %-20s %8d..%-8d", c.Order, c.CandidateID, c.InMS, c.OutMS)
		if c.Caption != "" {
			line += "  " + c.Caption
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	for _, warn := range out.Result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	fmt.Fprintf(w, "artifacts: %s\n", out.RunDir)
	return nil
}
