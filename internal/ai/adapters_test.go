package ai

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/aibatch/internal/config"
)

func decodeBody(t *testing.T, a Adapter, p Prompt) map[string]any {
	t.Helper()
	req, err := a.BuildRequest(p)
	require.NoError(t, err)
	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestNew_SelectsFamily(t *testing.T) {
	for apiType, name := range map[string]string{
		"openai":    "openai",
		"anthropic": "anthropic",
		"google":    "google",
	} {
		a, err := New(config.Provider{APIType: apiType, APIURL: "http://x", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, name, a.Name())
	}

	_, err := New(config.Provider{APIType: "mystery"})
	require.Error(t, err)
}

func TestOpenAIAdapter(t *testing.T) {
	a := &OpenAIAdapter{url: "http://api.test/v1/chat/completions", apiKey: "sk-test"}

	t.Run("text only request", func(t *testing.T) {
		req, err := a.BuildRequest(Prompt{Model: "gpt-4o", System: "sys", Text: "hi", Temperature: 0.6})
		require.NoError(t, err)
		assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

		m := decodeBody(t, a, Prompt{Model: "gpt-4o", System: "sys", Text: "hi"})
		assert.Equal(t, "gpt-4o", m["model"])
		msgs := m["messages"].([]any)
		require.Len(t, msgs, 2)
		user := msgs[1].(map[string]any)
		assert.Equal(t, "hi", user["content"], "text-only rows use plain string content")
	})

	t.Run("vision request uses content parts", func(t *testing.T) {
		m := decodeBody(t, a, Prompt{Model: "gpt-4o", Text: "hi", ImageBase64: "QUJD", ImageMIME: "image/png"})
		msgs := m["messages"].([]any)
		user := msgs[0].(map[string]any)
		parts := user["content"].([]any)
		require.Len(t, parts, 2)
		img := parts[1].(map[string]any)
		assert.Equal(t, "image_url", img["type"])
		assert.Contains(t, img["image_url"].(map[string]any)["url"], "data:image/png;base64,QUJD")
	})

	t.Run("extract text", func(t *testing.T) {
		text, err := a.ExtractText([]byte(`{"choices":[{"message":{"content":"out"}}]}`))
		require.NoError(t, err)
		assert.Equal(t, "out", text)

		_, err = a.ExtractText([]byte(`{"choices":[]}`))
		require.Error(t, err)
	})
}

func TestAnthropicAdapter(t *testing.T) {
	a := &AnthropicAdapter{url: "http://api.test/v1/messages", apiKey: "sk-ant"}

	t.Run("request headers and defaults", func(t *testing.T) {
		req, err := a.BuildRequest(Prompt{Model: "claude-3-haiku", Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "sk-ant", req.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))

		m := decodeBody(t, a, Prompt{Model: "claude-3-haiku", Text: "hi"})
		assert.Equal(t, float64(1024), m["max_tokens"], "max_tokens is mandatory and defaulted")
	})

	t.Run("extract joins text blocks", func(t *testing.T) {
		text, err := a.ExtractText([]byte(`{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "ab", text)
	})
}

func TestGoogleAdapter(t *testing.T) {
	a := &GoogleAdapter{baseURL: "http://api.test/v1beta/", apiKey: "g-key"}

	t.Run("model in url path", func(t *testing.T) {
		req, err := a.BuildRequest(Prompt{Model: "gemini-pro", Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "http://api.test/v1beta/models/gemini-pro:generateContent", req.URL.String())
		assert.Equal(t, "g-key", req.Header.Get("x-goog-api-key"))
	})

	t.Run("extract candidate parts", func(t *testing.T) {
		text, err := a.ExtractText([]byte(`{"candidates":[{"content":{"parts":[{"text":"x"},{"text":"y"}]}}]}`))
		require.NoError(t, err)
		assert.Equal(t, "xy", text)

		_, err = a.ExtractText([]byte(`{"candidates":[]}`))
		require.Error(t, err)
	})
}
