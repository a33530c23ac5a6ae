package ai

import (
    "bytes"
    "encoding/json"
    "errors"
    "net/http"
    "strings"
)

// AnthropicAdapter speaks the messages API dialect.
type AnthropicAdapter struct {
    url    string
    apiKey string
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

type anthropicMsgReq struct {
    Model       string         `json:"model"`
    MaxTokens   int            `json:"max_tokens"`
    System      string         `json:"system,omitempty"`
    Temperature float64        `json:"temperature"`
    Messages    []anthropicMsg `json:"messages"`
}

type anthropicMsg struct {
    Role    string           `json:"role"`
    Content []map[string]any `json:"content"`
}

type anthropicMsgResp struct {
    Content []struct {
        Type string `json:"type"`
        Text string `json:"text"`
    } `json:"content"`
}

func (a *AnthropicAdapter) BuildRequest(p Prompt) (*http.Request, error) {
    var parts []map[string]any
    if p.ImageBase64 != "" {
        parts = append(parts, map[string]any{
            "type": "image",
            "source": map[string]any{
                "type":       "base64",
                "media_type": p.ImageMIME,
                "data":       p.ImageBase64,
            },
        })
    }
    parts = append(parts, map[string]any{"type": "text", "text": p.Text})

    maxTokens := p.MaxTokens
    if maxTokens <= 0 { maxTokens = 1024 } // max_tokens is mandatory here

    payload := anthropicMsgReq{
        Model:       p.Model,
        MaxTokens:   maxTokens,
        System:      p.System,
        Temperature: p.Temperature,
        Messages:    []anthropicMsg{{Role: "user", Content: parts}},
    }

    body, err := json.Marshal(payload)
    if err != nil { return nil, err }
    req, err := http.NewRequest(http.MethodPost, a.url, bytes.NewReader(body))
    if err != nil { return nil, err }
    req.Header.Set("x-api-key", a.apiKey)
    req.Header.Set("anthropic-version", "2023-06-01")
    req.Header.Set("Content-Type", "application/json")
    return req, nil
}

func (a *AnthropicAdapter) ExtractText(body []byte) (string, error) {
    var r anthropicMsgResp
    if err := json.Unmarshal(body, &r); err != nil {
        return "", err
    }
    var sb strings.Builder
    for _, c := range r.Content {
        if c.Type == "" || c.Type == "text" {
            sb.WriteString(c.Text)
        }
    }
    if sb.Len() == 0 {
        return "", errors.New("no text content in response")
    }
    return sb.String(), nil
}
