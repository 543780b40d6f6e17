package openaiembed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/forPelevin/recut/internal/ports/adapters/endpoint"
)

const DefaultModel = "text-embedding-3-small"

// Endpoint guards embedding.base_url.
var Endpoint = endpoint.Policy{
	Section:      "embedding",
	DefaultURL:   "https://api.openai.com/v1",
	DefaultHosts: []string{"api.openai.com"},
}

// ValidateBaseURL checks baseURL before OPENAI_API_KEY is sent to it.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	return Endpoint.Validate(baseURL, allowedHosts)
}

// Adapter is an Embedder over the OpenAI embeddings endpoint. Retries are
// left to the caller's call policy.
type Adapter struct {
	client     openai.Client
	model      string
	dimensions int
}

func New(apiKey, model, baseURL string, dimensions int) *Adapter {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Adapter{client: openai.NewClient(opts...), model: model, dimensions: dimensions}
}

func (a *Adapter) Embed(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(a.model),
	}
	if a.dimensions > 0 {
		params.Dimensions = openai.Int(int64(a.dimensions))
	}

	resp, err := a.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings (model=%s): %w", a.model, err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}
