package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/forPelevin/recut/internal/domain/segmentation"
	"github.com/forPelevin/recut/internal/pipeline"
)

func newCandidatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Build candidate segments from a transcript and scene boundaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			transcript, _ := cmd.Flags().GetString("transcript")
			scenes, _ := cmd.Flags().GetString("scenes")
			out, _ := cmd.Flags().GetString("out")
			minMS, _ := cmd.Flags().GetInt64("min-window-ms")
			maxMS, _ := cmd.Flags().GetInt64("max-window-ms")

			opt := segmentation.DefaultOptions()
			opt.MinWindowMS = minMS
			opt.MaxWindowMS = maxMS

			cands, err := pipeline.BuildCandidates(pipeline.CandidatesConfig{
				TranscriptPath: transcript,
				ScenesPath:     scenes,
				OutPath:        out,
				Options:        opt,
				Logger:         log.Logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d candidate(s) written to %s\n", len(cands), out)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("transcript", "", "Transcript JSON (segments or whisper.cpp -oj output)")
	f.String("scenes", "", "Scene boundaries JSON (optional)")
	f.String("out", "candidates.json", "Output file")
	f.Int64("min-window-ms", 3000, "Shortest candidate window")
	f.Int64("max-window-ms", 8000, "Longest candidate window")
	_ = cmd.MarkFlagRequired("transcript")

	return cmd
}
