package openrouter

import "github.com/forPelevin/recut/internal/ports/adapters/endpoint"

const defaultBaseURL = "https://openrouter.ai"

// Endpoint guards narration.base_url.
var Endpoint = endpoint.Policy{
	Section:      "narration",
	DefaultURL:   defaultBaseURL,
	DefaultHosts: []string{"openrouter.ai", "api.openrouter.ai"},
}

func normalizeBaseURL(baseURL string) string {
	return Endpoint.Normalize(baseURL)
}

func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	return Endpoint.Validate(baseURL, allowedHosts)
}
