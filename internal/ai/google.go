package ai

import (
    "bytes"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
)

// GoogleAdapter speaks the generateContent dialect. The configured api_url
// is the API base (e.g. https://generativelanguage.googleapis.com/v1beta);
// the model is part of the path.
type GoogleAdapter struct {
    baseURL string
    apiKey  string
}

func (a *GoogleAdapter) Name() string { return "google" }

type googleGenReq struct {
    SystemInstruction *googleContent  `json:"systemInstruction,omitempty"`
    Contents          []googleContent `json:"contents"`
    GenerationConfig  struct {
        Temperature     float64 `json:"temperature"`
        MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
    } `json:"generationConfig"`
}

type googleContent struct {
    Role  string       `json:"role,omitempty"`
    Parts []googlePart `json:"parts"`
}

type googlePart struct {
    Text       string            `json:"text,omitempty"`
    InlineData *googleInlineData `json:"inlineData,omitempty"`
}

type googleInlineData struct {
    MIMEType string `json:"mimeType"`
    Data     string `json:"data"`
}

type googleGenResp struct {
    Candidates []struct {
        Content struct {
            Parts []struct {
                Text string `json:"text"`
            } `json:"parts"`
        } `json:"content"`
    } `json:"candidates"`
}

func (a *GoogleAdapter) BuildRequest(p Prompt) (*http.Request, error) {
    var parts []googlePart
    if p.Text != "" {
        parts = append(parts, googlePart{Text: p.Text})
    }
    if p.ImageBase64 != "" {
        parts = append(parts, googlePart{InlineData: &googleInlineData{
            MIMEType: p.ImageMIME,
            Data:     p.ImageBase64,
        }})
    }

    payload := googleGenReq{
        Contents: []googleContent{{Role: "user", Parts: parts}},
    }
    if p.System != "" {
        payload.SystemInstruction = &googleContent{Parts: []googlePart{{Text: p.System}}}
    }
    payload.GenerationConfig.Temperature = p.Temperature
    payload.GenerationConfig.MaxOutputTokens = p.MaxTokens

    body, err := json.Marshal(payload)
    if err != nil { return nil, err }

    url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(a.baseURL, "/"), p.Model)
    req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
    if err != nil { return nil, err }
    req.Header.Set("x-goog-api-key", a.apiKey)
    req.Header.Set("Content-Type", "application/json")
    return req, nil
}

func (a *GoogleAdapter) ExtractText(body []byte) (string, error) {
    var r googleGenResp
    if err := json.Unmarshal(body, &r); err != nil {
        return "", err
    }
    if len(r.Candidates) == 0 {
        return "", errors.New("no candidates in response")
    }
    var sb strings.Builder
    for _, part := range r.Candidates[0].Content.Parts {
        sb.WriteString(part.Text)
    }
    if sb.Len() == 0 {
        return "", errors.New("empty candidate content")
    }
    return sb.String(), nil
}
