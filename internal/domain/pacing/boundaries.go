package pacing

import (
	"math"
	"sort"
	"strings"

	"github.com/forPelevin/recut/internal/types"
)

// TranscriptBoundaries answers word-boundary lookups from a transcript.
// Segments stand in for words when the transcript has no word timings.
type TranscriptBoundaries struct {
	spans []types.WordSpan
}

func NewTranscriptBoundaries(tr types.Transcript) *TranscriptBoundaries {
	words := make([]types.WordSpan, 0, 1024)
	segs := make([]types.WordSpan, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		if st, en := ms(s.Start), ms(s.End); en > st {
			segs = append(segs, types.WordSpan{StartMS: st, EndMS: en, Text: strings.TrimSpace(s.Text)})
		}
		for _, w := range s.Words {
			ws, we := ms(w.Start), ms(w.End)
			if we <= ws {
				continue
			}
			txt := strings.TrimSpace(w.Word)
			if txt == "" {
				continue
			}
			words = append(words, types.WordSpan{StartMS: ws, EndMS: we, Text: txt})
		}
	}

	spans := words
	if len(spans) == 0 {
		spans = segs
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].StartMS == spans[j].StartMS {
			return spans[i].EndMS < spans[j].EndMS
		}
		return spans[i].StartMS < spans[j].StartMS
	})
	return &TranscriptBoundaries{spans: spans}
}

func (b *TranscriptBoundaries) Len() int { return len(b.spans) }

// Boundaries returns spans overlapping [startMS, endMS], in start order.
func (b *TranscriptBoundaries) Boundaries(startMS, endMS int64) []types.WordSpan {
	if b == nil || len(b.spans) == 0 || endMS <= startMS {
		return nil
	}
	// spans are sorted by start; skip everything starting at or after endMS.
	hi := sort.Search(len(b.spans), func(i int) bool { return b.spans[i].StartMS >= endMS })
	var out []types.WordSpan
	for _, s := range b.spans[:hi] {
		if s.EndMS > startMS {
			out = append(out, s)
		}
	}
	return out
}

func ms(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

func hasTerminalPunctuation(s string) bool {
	s = strings.TrimSpace(s)
	trimTail := `"'` + "`" + ")]}"
	for len(s) > 0 && strings.ContainsRune(trimTail, rune(s[len(s)-1])) {
		s = s[:len(s)-1]
	}
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last == '.' || last == '!' || last == '?'
}
