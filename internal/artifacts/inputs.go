package artifacts

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/forPelevin/recut/internal/types"
)

func LoadCandidates(path string) ([]types.CandidateSegment, error) {
	var out []types.CandidateSegment
	if err := ReadJSON(path, &out); err != nil {
		return nil, err
	}
	if err := types.ValidateCandidates(out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func LoadBeats(path string) ([]types.Beat, error) {
	var out []types.Beat
	if err := ReadJSON(path, &out); err != nil {
		return nil, err
	}
	if err := types.ValidateBeats(out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func LoadScenes(path string) ([]types.Scene, error) {
	var out []types.Scene
	if err := ReadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTranscript reads either {"segments":[...]} in seconds or whisper.cpp's
// native -oj output ({"transcription":[{"offsets":{"from","to"},...}]} in ms).
// Text is whitespace-trimmed.
func LoadTranscript(path string) (types.Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Transcript{}, err
	}
	if !gjson.ValidBytes(b) {
		return types.Transcript{}, fmt.Errorf("decode %s: invalid JSON", path)
	}

	var tr types.Transcript
	if native := gjson.GetBytes(b, "transcription"); native.IsArray() {
		tr = fromWhisperNative(native)
	} else if err := ReadJSON(path, &tr); err != nil {
		return types.Transcript{}, err
	}

	for i := range tr.Segments {
		tr.Segments[i].Text = strings.TrimSpace(tr.Segments[i].Text)
		for j := range tr.Segments[i].Words {
			tr.Segments[i].Words[j].Word = strings.TrimSpace(tr.Segments[i].Words[j].Word)
		}
	}
	return tr, nil
}

func fromWhisperNative(items gjson.Result) types.Transcript {
	var tr types.Transcript
	items.ForEach(func(_, it gjson.Result) bool {
		seg := types.Segment{
			Start: it.Get("offsets.from").Float() / 1000,
			End:   it.Get("offsets.to").Float() / 1000,
			Text:  it.Get("text").String(),
		}
		it.Get("tokens").ForEach(func(_, tok gjson.Result) bool {
			text := tok.Get("text").String()
			// Special tokens such as [_BEG_] carry no speech.
			if strings.HasPrefix(strings.TrimSpace(text), "[_") {
				return true
			}
			seg.Words = append(seg.Words, types.Word{
				Start: tok.Get("offsets.from").Float() / 1000,
				End:   tok.Get("offsets.to").Float() / 1000,
				Word:  text,
			})
			return true
		})
		tr.Segments = append(tr.Segments, seg)
		return true
	})
	return tr
}
