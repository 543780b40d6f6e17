package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/forPelevin/recut/internal/types"
)

// Adapter writes one short caption per selected clip via OpenRouter chat
// completions.
type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

const (
	requestTimeout = 90 * time.Second
	maxCaptionLen  = 80
)

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "google/gemini-3-flash-preview"
	}
	baseURL = normalizeBaseURL(baseURL)
	return &Adapter{key: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
}

// Narrate returns captions aligned with sel.Clips. Unusable model output
// falls back to the clip transcript; transport errors are returned.
func (a *Adapter) Narrate(ctx context.Context, sel types.SelectionResult) ([]string, error) {
	if len(sel.Clips) == 0 {
		return nil, nil
	}

	type clip struct {
		Idx    int    `json:"idx"`
		BeatID string `json:"beat_id,omitempty"`
		Secs   int64  `json:"duration_sec"`
		Text   string `json:"text"`
	}
	arr := make([]clip, 0, len(sel.Clips))
	for i, c := range sel.Clips {
		arr = append(arr, clip{Idx: i, BeatID: c.BeatID, Secs: c.DurationMS() / 1000, Text: truncate(c.Text, 600)})
	}
	pb, err := json.Marshal(map[string]any{"maxChars": maxCaptionLen, "clips": arr})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": string(buildPrompt(pb))},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "recut_captions",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"captions": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"idx":     map[string]any{"type": "integer"},
									"caption": map[string]any{"type": "string"},
								},
								"required": []string{"idx", "caption"},
							},
						},
					},
					"required": []string{"captions"},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return nil, err
	}
	defer resp.Body.Close()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openrouter read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	fallback := fallbackCaptions(sel)

	content, err := messageContent(gjson.GetBytes(rb, "choices.0.message.content"))
	if err != nil {
		return fallback, nil
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return fallback, nil
	}

	out := fallback
	gjson.Get(clean, "captions").ForEach(func(_, item gjson.Result) bool {
		idx := item.Get("idx")
		if !idx.Exists() {
			return true
		}
		i := int(idx.Int())
		if i < 0 || i >= len(out) {
			return true
		}
		if c := normalizeCaption(item.Get("caption").String()); c != "" {
			out[i] = c
		}
		return true
	})
	return out, nil
}

func buildPrompt(clipsJSON []byte) []byte {
	return []byte(
		"Write one short on-screen caption for each clip of a video recap. " +
			"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
			"Keep each caption under maxChars characters, in the language of the clip text. " +
			"Do not reveal events that happen after the clip." +
			"\n\nClips JSON:\n" + string(clipsJSON),
	)
}

// messageContent accepts a plain string or an array of {type,text} parts.
func messageContent(v gjson.Result) (string, error) {
	switch {
	case !v.Exists():
		return "", errors.New("openrouter: no choices")
	case v.IsArray():
		var b strings.Builder
		for _, part := range v.Get("#.text").Array() {
			b.WriteString(part.String())
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	case v.Type == gjson.String:
		return v.String(), nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %s", v.Type)
	}
}

func fallbackCaptions(sel types.SelectionResult) []string {
	out := make([]string, len(sel.Clips))
	for i, c := range sel.Clips {
		out[i] = normalizeCaption(c.Text)
		if out[i] == "" {
			out[i] = "Highlight"
		}
	}
	return out
}

func normalizeCaption(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= maxCaptionLen {
		return s
	}
	cut := truncate(s, maxCaptionLen-1)
	if i := strings.LastIndex(cut, " "); i > maxCaptionLen/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "…"
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the first JSON object found.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start && gjson.Valid(t[start:end+1]) {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
