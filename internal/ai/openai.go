package ai

import (
    "bytes"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
)

// OpenAIAdapter speaks the chat-completions dialect. Most hosted gateways
// (Moonshot, DeepSeek, local proxies) accept the same payload.
type OpenAIAdapter struct {
    url    string
    apiKey string
}

func (a *OpenAIAdapter) Name() string { return "openai" }

type openAIChatReq struct {
    Model       string          `json:"model"`
    Messages    []openAIMessage `json:"messages"`
    Temperature float64         `json:"temperature"`
    MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
    Role    string `json:"role"`
    Content any    `json:"content"` // string for text, []part for vision
}

type openAIChatResp struct {
    Choices []struct {
        Message struct {
            Content string `json:"content"`
        } `json:"message"`
    } `json:"choices"`
}

func (a *OpenAIAdapter) BuildRequest(p Prompt) (*http.Request, error) {
    var messages []openAIMessage
    if p.System != "" {
        messages = append(messages, openAIMessage{Role: "system", Content: p.System})
    }

    if p.ImageBase64 != "" {
        imageURL := fmt.Sprintf("data:%s;base64,%s", p.ImageMIME, p.ImageBase64)
        parts := []map[string]any{}
        if p.Text != "" {
            parts = append(parts, map[string]any{"type": "text", "text": p.Text})
        }
        parts = append(parts, map[string]any{
            "type":      "image_url",
            "image_url": map[string]string{"url": imageURL},
        })
        messages = append(messages, openAIMessage{Role: "user", Content: parts})
    } else {
        messages = append(messages, openAIMessage{Role: "user", Content: p.Text})
    }

    payload := openAIChatReq{
        Model:       p.Model,
        Messages:    messages,
        Temperature: p.Temperature,
        MaxTokens:   p.MaxTokens,
    }

    body, err := json.Marshal(payload)
    if err != nil { return nil, err }
    req, err := http.NewRequest(http.MethodPost, a.url, bytes.NewReader(body))
    if err != nil { return nil, err }
    req.Header.Set("Authorization", "Bearer "+a.apiKey)
    req.Header.Set("Content-Type", "application/json")
    return req, nil
}

func (a *OpenAIAdapter) ExtractText(body []byte) (string, error) {
    var r openAIChatResp
    if err := json.Unmarshal(body, &r); err != nil {
        return "", err
    }
    if len(r.Choices) == 0 {
        return "", errors.New("no choices in response")
    }
    return r.Choices[0].Message.Content, nil
}
