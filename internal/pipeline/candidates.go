package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/forPelevin/recut/internal/artifacts"
	"github.com/forPelevin/recut/internal/domain/segmentation"
	"github.com/forPelevin/recut/internal/types"
)

type CandidatesConfig struct {
	TranscriptPath string
	ScenesPath     string
	OutPath        string
	Options        segmentation.Options
	Logger         zerolog.Logger
}

func (c CandidatesConfig) Validate() error {
	if c.TranscriptPath == "" {
		return errors.New("transcript path is empty")
	}
	if c.OutPath == "" {
		return errors.New("output path is empty")
	}
	if _, err := os.Stat(c.TranscriptPath); err != nil {
		return fmt.Errorf("stat transcript: %w", err)
	}
	if c.ScenesPath != "" {
		if _, err := os.Stat(c.ScenesPath); err != nil {
			return fmt.Errorf("stat scenes: %w", err)
		}
	}
	return nil
}

// BuildCandidates aligns a transcript with optional scene boundaries and
// writes the candidate list to OutPath.
func BuildCandidates(c CandidatesConfig) ([]types.CandidateSegment, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	log := c.Logger.With().Str("component", "candidates").Logger()

	tr, err := artifacts.LoadTranscript(c.TranscriptPath)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	var scenes []types.Scene
	if c.ScenesPath != "" {
		if scenes, err = artifacts.LoadScenes(c.ScenesPath); err != nil {
			return nil, fmt.Errorf("load scenes: %w", err)
		}
	}

	opt := c.Options
	if opt == (segmentation.Options{}) {
		opt = segmentation.DefaultOptions()
	}
	cands, err := segmentation.BuildCandidates(tr, scenes, opt)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, &types.EmptyCandidateSetError{Stage: types.StageInput}
	}

	if dir := filepath.Dir(c.OutPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := artifacts.WriteJSON(c.OutPath, cands); err != nil {
		return nil, err
	}
	log.Info().
		Int("segments", len(tr.Segments)).
		Int("scenes", len(scenes)).
		Int("candidates", len(cands)).
		Str("out", c.OutPath).
		Msg("candidates written")
	return cands, nil
}
