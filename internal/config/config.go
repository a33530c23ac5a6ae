package config

import (
    "encoding/json"
    "fmt"
    "os"
    "strings"
    "time"
)

// ConfigError marks invalid or missing configuration. Fatal before any
// processing starts.
type ConfigError struct {
    Reason string
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }

func errf(format string, args ...any) error {
    return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// Seconds is a duration that unmarshals from a bare number of seconds
// (the historical config format) or a Go duration string like "30s".
type Seconds time.Duration

func (s *Seconds) UnmarshalJSON(b []byte) error {
    var n float64
    if err := json.Unmarshal(b, &n); err == nil {
        *s = Seconds(time.Duration(n * float64(time.Second)))
        return nil
    }
    var str string
    if err := json.Unmarshal(b, &str); err != nil {
        return err
    }
    d, err := time.ParseDuration(str)
    if err != nil { return err }
    *s = Seconds(d)
    return nil
}

func (s *Seconds) UnmarshalYAML(unmarshal func(any) error) error {
    var n float64
    if err := unmarshal(&n); err == nil {
        *s = Seconds(time.Duration(n * float64(time.Second)))
        return nil
    }
    var str string
    if err := unmarshal(&str); err != nil { return err }
    d, err := time.ParseDuration(str)
    if err != nil { return err }
    *s = Seconds(d)
    return nil
}

// MarshalJSON writes the value back as a number of seconds so generated
// config files round-trip.
func (s Seconds) MarshalJSON() ([]byte, error) {
    return json.Marshal(time.Duration(s).Seconds())
}

func (s Seconds) Duration() time.Duration { return time.Duration(s) }

// UploadConfig enables optional upload of run artifacts to S3.
type UploadConfig struct {
    Bucket     string `json:"bucket"`
    Prefix     string `json:"prefix"`
    Passphrase string `json:"passphrase"` // artifacts are encrypted when set
}

// Run is the per-run configuration loaded from the --config file.
type Run struct {
    InputFile        string       `json:"csv_input_file"`
    OutputFile       string       `json:"output_file"` // defaults to InputFile
    PromptColumn     string       `json:"user_prompt_column"`
    ImageColumn      string       `json:"image_path_column"`
    ImageBasePath    string       `json:"image_base_path"`
    PromptFile       string       `json:"prompt_file"`
    ProgressFile     string       `json:"progress_file"`
    Provider         string       `json:"provider"`
    Model            string       `json:"model_name"`
    Workers          int          `json:"max_workers"`
    RequestDelay     Seconds      `json:"request_delay"`
    Temperature      float64      `json:"temperature"`
    MaxTokens        int          `json:"max_tokens"`
    RetryFailed      *bool        `json:"retry_failed"`
    FailureThreshold int          `json:"permanent_failure_threshold"`
    Upload           UploadConfig `json:"upload"`
}

// DefaultRun mirrors the sample config written on first run.
func DefaultRun() Run {
    yes := true
    return Run{
        InputFile:        "sample_data.csv",
        PromptColumn:     "user_prompt",
        ImageColumn:      "image_path",
        PromptFile:       "system_prompt.md",
        ProgressFile:     "progress.json",
        Model:            "gpt-4o",
        Workers:          4,
        RequestDelay:     Seconds(100 * time.Millisecond),
        Temperature:      0.6,
        MaxTokens:        2000,
        RetryFailed:      &yes,
        FailureThreshold: 9,
    }
}

// LoadRun reads the run configuration. A missing file is created with
// defaults so the operator has something to edit; that case is reported
// as a ConfigError to stop the run.
func LoadRun(path string) (Run, error) {
    data, err := os.ReadFile(path)
    if os.IsNotExist(err) {
        def := DefaultRun()
        b, _ := json.MarshalIndent(def, "", "  ")
        if werr := os.WriteFile(path, append(b, '\n'), 0o644); werr != nil {
            return Run{}, errf("create default config %s: %v", path, werr)
        }
        return Run{}, errf("created default config %s; edit it and re-run", path)
    }
    if err != nil {
        return Run{}, errf("read config %s: %v", path, err)
    }

    cfg := DefaultRun()
    if err := json.Unmarshal(data, &cfg); err != nil {
        return Run{}, errf("parse config %s: %v", path, err)
    }
    return cfg, cfg.validate()
}

func (c Run) validate() error {
    if c.InputFile == "" { return errf("csv_input_file is required") }
    if c.PromptColumn == "" { return errf("user_prompt_column is required") }
    if c.ProgressFile == "" { return errf("progress_file is required") }
    if c.Workers <= 0 { return errf("max_workers must be positive, got %d", c.Workers) }
    return nil
}

// AutoRetryFailed reports whether rows that failed on a previous run are
// retried automatically. Defaults to true when unset.
func (c Run) AutoRetryFailed() bool {
    if c.RetryFailed == nil { return true }
    return *c.RetryFailed
}

// Output returns the effective output path.
func (c Run) Output() string {
    if c.OutputFile != "" { return c.OutputFile }
    return c.InputFile
}

// LoadSystemPrompt reads the system prompt file. Prompt files inherited
// from the old tooling wrap the text in a system_prompt = """...""" block;
// the inner text is extracted in that case.
func LoadSystemPrompt(path string) (string, error) {
    if path == "" { return "", nil }
    data, err := os.ReadFile(path)
    if err != nil {
        return "", errf("read prompt file %s: %v", path, err)
    }
    content := string(data)
    const marker = `system_prompt = """`
    if idx := strings.Index(content, marker); idx >= 0 {
        start := idx + len(marker)
        end := strings.LastIndex(content, `"""`)
        if end > start {
            content = content[start:end]
        }
    }
    return strings.TrimSpace(content), nil
}
