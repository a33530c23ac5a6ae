package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRun(t *testing.T) {
	t.Run("missing file creates default and rejects the run", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		_, err := LoadRun(path)

		require.Error(t, err)
		var ce *ConfigError
		assert.ErrorAs(t, err, &ce)

		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, "default config is written for the operator to edit")
	})

	t.Run("numeric seconds and overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		doc := `{
			"csv_input_file": "data.csv",
			"user_prompt_column": "user_prompt",
			"progress_file": "progress.json",
			"max_workers": 3,
			"request_delay": 0.5
		}`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		cfg, err := LoadRun(path)
		require.NoError(t, err)
		assert.Equal(t, "data.csv", cfg.InputFile)
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, 500*time.Millisecond, cfg.RequestDelay.Duration())
		assert.True(t, cfg.AutoRetryFailed(), "retry_failed defaults to true")
		assert.Equal(t, "data.csv", cfg.Output(), "output defaults to the input path")
	})

	t.Run("invalid workers rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		doc := `{"csv_input_file":"a.csv","user_prompt_column":"p","progress_file":"pr.json","max_workers":0}`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		_, err := LoadRun(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_workers")
	})
}

const providersJSON = `{
  "moonshot": {
    "api_url": "https://api.moonshot.cn/v1/chat/completions",
    "api_key_env": "MOONSHOT_API_KEY",
    "api_type": "openai",
    "timeout": 30,
    "max_retries": 3,
    "retry_delay": 1,
    "available_models": ["kimi-k2-0905-preview"]
  },
  "anthropic": {
    "api_url": "https://api.anthropic.com/v1/messages",
    "api_key": "sk-ant-test",
    "api_type": "anthropic"
  }
}`

func writeProviders(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProviders(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		ps, err := LoadProviders(writeProviders(t, "providers.json", providersJSON))
		require.NoError(t, err)
		assert.Equal(t, []string{"anthropic", "moonshot"}, ps.Names())
		assert.Equal(t, "moonshot", ps["moonshot"].Name)
	})

	t.Run("yaml", func(t *testing.T) {
		doc := `
gemini:
  api_url: https://generativelanguage.googleapis.com/v1beta
  api_key: test-key
  api_type: google
  timeout: 45s
  max_retries: 2
`
		ps, err := LoadProviders(writeProviders(t, "providers.yaml", doc))
		require.NoError(t, err)
		p, err := ps.Resolve("gemini", "")
		require.NoError(t, err)
		assert.Equal(t, "google", p.APIType)
		assert.Equal(t, 45*time.Second, p.Timeout.Duration())
	})
}

func TestProviders_Resolve(t *testing.T) {
	ps, err := LoadProviders(writeProviders(t, "providers.json", providersJSON))
	require.NoError(t, err)

	t.Run("credential from environment", func(t *testing.T) {
		t.Setenv("MOONSHOT_API_KEY", "sk-env-key")
		p, err := ps.Resolve("moonshot", "kimi-k2-0905-preview")
		require.NoError(t, err)
		assert.Equal(t, "sk-env-key", p.APIKey)
		assert.Equal(t, 30*time.Second, p.Timeout.Duration())
		assert.Equal(t, time.Second, p.RetryDelay.Duration())
	})

	t.Run("missing credential rejected", func(t *testing.T) {
		t.Setenv("MOONSHOT_API_KEY", "")
		_, err := ps.Resolve("moonshot", "kimi-k2-0905-preview")
		require.Error(t, err)
	})

	t.Run("model not in allow-list", func(t *testing.T) {
		t.Setenv("MOONSHOT_API_KEY", "sk-env-key")
		_, err := ps.Resolve("moonshot", "gpt-4o")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not available")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := ps.Resolve("nope", "")
		require.Error(t, err)
		var ce *ConfigError
		assert.ErrorAs(t, err, &ce)
	})

	t.Run("placeholder key rejected", func(t *testing.T) {
		doc := `{"p": {"api_url":"u","api_key":"sk-your-api-key-here","api_type":"openai"}}`
		ps, err := LoadProviders(writeProviders(t, "providers.json", doc))
		require.NoError(t, err)
		_, err = ps.Resolve("p", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "placeholder")
	})
}

func TestLoadSystemPrompt(t *testing.T) {
	t.Run("plain markdown", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.md")
		require.NoError(t, os.WriteFile(path, []byte("  Classify the listing.\n"), 0o644))

		got, err := LoadSystemPrompt(path)
		require.NoError(t, err)
		assert.Equal(t, "Classify the listing.", got)
	})

	t.Run("python-wrapped prompt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.md")
		doc := "# notes\nsystem_prompt = \"\"\"\nYou are a classifier.\n\"\"\"\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		got, err := LoadSystemPrompt(path)
		require.NoError(t, err)
		assert.Equal(t, "You are a classifier.", got)
	})

	t.Run("empty path allowed", func(t *testing.T) {
		got, err := LoadSystemPrompt("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
