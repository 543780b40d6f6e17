package scoring

import (
	"regexp"
	"strings"
)

var (
	reHype = regexp.MustCompile(`(?i)\b(wow|amazing|incredible|insane|unbelievable|crazy|huge|shocking|epic|no\s+way|oh\s+my\s+god|look\s+at\s+this|watch\s+this)\b`)
	reHook = regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|here\s+is\s+why|remember)\b`)
)

// Emotion markers in a stable order; neutral carries no bonus.
var emotionKeys = []string{"joy", "sadness", "anger", "surprise", "fear"}

var reEmotion = map[string]*regexp.Regexp{
	"joy":      regexp.MustCompile(`(?i)\b(laugh\w*|happy|love|yay|haha|finally|smil\w*)\b`),
	"sadness":  regexp.MustCompile(`(?i)\b(sorry|miss(?:ed)?|lost|cry\w*|tears?|goodbye|alone)\b`),
	"anger":    regexp.MustCompile(`(?i)\b(hate|angry|furious|enough|liar|damn|shut\s+up)\b`),
	"surprise": regexp.MustCompile(`(?i)\b(what|really|wait|suddenly|no\s+way|whoa)\b[?!]?`),
	"fear":     regexp.MustCompile(`(?i)\b(afraid|scared|run|help|danger\w*|terrif\w*|careful)\b`),
}

// ExcitementHits counts lexical excitement markers in text.
func ExcitementHits(text string) int {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	hits := len(reHype.FindAllStringIndex(t, -1))
	hits += len(reHook.FindAllStringIndex(t, -1))
	hits += strings.Count(t, "!")
	hits += strings.Count(t, "?")
	return hits
}

// EmotionHits counts emotion markers per key, plus the total.
func EmotionHits(text string) (map[string]int, int) {
	t := strings.TrimSpace(text)
	out := make(map[string]int, len(emotionKeys))
	if t == "" {
		return out, 0
	}
	total := 0
	for _, k := range emotionKeys {
		n := len(reEmotion[k].FindAllStringIndex(t, -1))
		out[k] = n
		total += n
	}
	return out, total
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}

// Clamp01 clamps x into [0,1].
func Clamp01(x float64) float64 { return clamp(x, 0, 1) }
