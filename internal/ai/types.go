package ai

import (
    "net/http"

    "github.com/local/aibatch/internal/config"
)

// Prompt is one fully-assembled inference request, provider-agnostic.
type Prompt struct {
    Model       string
    System      string
    Text        string
    ImageBase64 string // base64 image payload, empty for text-only rows
    ImageMIME   string
    Temperature float64
    MaxTokens   int
}

// Adapter maps the generic Prompt onto one API family's wire format and
// pulls the model text back out of its response body. Everything else
// (timeouts, retries, row bookkeeping) is family-agnostic.
type Adapter interface {
    Name() string
    BuildRequest(p Prompt) (*http.Request, error)
    ExtractText(body []byte) (string, error)
}

// New selects the adapter for the provider's API family.
func New(p config.Provider) (Adapter, error) {
    switch p.APIType {
    case "openai":
        return &OpenAIAdapter{url: p.APIURL, apiKey: p.APIKey}, nil
    case "anthropic":
        return &AnthropicAdapter{url: p.APIURL, apiKey: p.APIKey}, nil
    case "google":
        return &GoogleAdapter{baseURL: p.APIURL, apiKey: p.APIKey}, nil
    default:
        return nil, &config.ConfigError{Reason: "unsupported api_type " + p.APIType}
    }
}
