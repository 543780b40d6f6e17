package segmentation

import (
	"math"
	"regexp"
	"strings"

	"github.com/forPelevin/recut/internal/types"
)

// Utterance is a cleaned transcript span in milliseconds.
type Utterance struct {
	StartMS int64
	EndMS   int64
	Text    string
}

type CleanupOptions struct {
	MinSegmentMS int64
	MaxGapMS     int64
	MaxSegmentMS int64
}

func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{MinSegmentMS: 600, MaxGapMS: 200, MaxSegmentMS: 8000}
}

var reSentenceSplit = regexp.MustCompile(`([.!?])\s+`)

// Cleanup normalises whitespace, merges segments that are too short or
// separated by a tiny gap, and splits overly long ones at sentence ends.
func Cleanup(tr types.Transcript, opt CleanupOptions) []Utterance {
	var out []Utterance
	var cur *Utterance

	for _, s := range tr.Segments {
		text := normalizeText(s.Text)
		if text == "" {
			continue
		}
		u := Utterance{StartMS: ms(s.Start), EndMS: ms(s.End), Text: text}
		if u.EndMS <= u.StartMS {
			continue
		}
		if cur == nil {
			cur = &u
			continue
		}

		gap := u.StartMS - cur.EndMS
		if u.EndMS-u.StartMS < opt.MinSegmentMS || gap <= opt.MaxGapMS {
			cur.EndMS = u.EndMS
			cur.Text = cur.Text + " " + u.Text
			continue
		}
		out = append(out, splitLong(*cur, opt.MaxSegmentMS)...)
		cur = &u
	}
	if cur != nil {
		out = append(out, splitLong(*cur, opt.MaxSegmentMS)...)
	}
	return out
}

// splitLong splits at sentence punctuation, timing each part by its share
// of characters.
func splitLong(u Utterance, maxMS int64) []Utterance {
	d := u.EndMS - u.StartMS
	if maxMS <= 0 || d <= maxMS {
		return []Utterance{u}
	}

	parts := splitSentences(u.Text)
	if len(parts) <= 1 {
		return []Utterance{u}
	}

	totalChars := 0
	for _, p := range parts {
		totalChars += len(p)
	}
	if totalChars == 0 {
		totalChars = 1
	}

	out := make([]Utterance, 0, len(parts))
	start := u.StartMS
	for i, p := range parts {
		end := u.EndMS
		if i < len(parts)-1 {
			step := d * int64(len(p)) / int64(totalChars)
			if step < 1 {
				step = 1
			}
			end = start + step
		}
		out = append(out, Utterance{StartMS: start, EndMS: end, Text: p})
		start = end
	}
	return out
}

func splitSentences(text string) []string {
	marked := reSentenceSplit.ReplaceAllString(strings.TrimSpace(text), "$1\n")
	var out []string
	for _, p := range strings.Split(marked, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ms(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}
