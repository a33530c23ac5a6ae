package config

import (
    "encoding/json"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

const placeholderKey = "sk-your-api-key-here"

// Provider describes one API endpoint. Immutable once resolved; the rest
// of the system only ever reads it.
type Provider struct {
    Name            string   `json:"-" yaml:"-"`
    APIURL          string   `json:"api_url" yaml:"api_url"`
    APIKey          string   `json:"api_key" yaml:"api_key"`
    APIKeyEnv       string   `json:"api_key_env" yaml:"api_key_env"`
    APIType         string   `json:"api_type" yaml:"api_type"` // openai | anthropic | google
    Timeout         Seconds  `json:"timeout" yaml:"timeout"`
    MaxRetries      int      `json:"max_retries" yaml:"max_retries"`
    RetryDelay      Seconds  `json:"retry_delay" yaml:"retry_delay"`
    AvailableModels []string `json:"available_models" yaml:"available_models"`
}

// Providers is the named provider catalogue from the --providers file.
type Providers map[string]Provider

// LoadProviders reads the providers file; JSON or YAML by extension.
func LoadProviders(path string) (Providers, error) {
    data, err := os.ReadFile(path)
    if err != nil {
        return nil, errf("read providers file %s: %v", path, err)
    }

    var ps Providers
    switch strings.ToLower(filepath.Ext(path)) {
    case ".yaml", ".yml":
        err = yaml.Unmarshal(data, &ps)
    default:
        err = json.Unmarshal(data, &ps)
    }
    if err != nil {
        return nil, errf("parse providers file %s: %v", path, err)
    }
    if len(ps) == 0 {
        return nil, errf("providers file %s defines no providers", path)
    }
    for name, p := range ps {
        p.Name = name
        ps[name] = p
    }
    return ps, nil
}

// Names lists provider names in stable order, for --list-providers.
func (ps Providers) Names() []string {
    names := make([]string, 0, len(ps))
    for name := range ps {
        names = append(names, name)
    }
    sort.Strings(names)
    return names
}

// Resolve returns the named provider with its credential resolved and the
// model checked against the allow-list.
func (ps Providers) Resolve(name, model string) (Provider, error) {
    p, ok := ps[name]
    if !ok {
        return Provider{}, errf("unknown provider %q (have: %s)", name, strings.Join(ps.Names(), ", "))
    }

    if p.APIKeyEnv != "" {
        if v := os.Getenv(p.APIKeyEnv); v != "" { p.APIKey = v }
    }
    if p.APIKey == "" {
        return Provider{}, errf("provider %q has no API key (set api_key or %s)", name, p.APIKeyEnv)
    }
    if p.APIKey == placeholderKey {
        return Provider{}, errf("provider %q still uses the placeholder API key", name)
    }

    switch p.APIType {
    case "openai", "anthropic", "google":
    case "":
        return Provider{}, errf("provider %q has no api_type", name)
    default:
        return Provider{}, errf("provider %q has unsupported api_type %q", name, p.APIType)
    }

    if len(p.AvailableModels) > 0 && model != "" {
        found := false
        for _, m := range p.AvailableModels {
            if m == model { found = true; break }
        }
        if !found {
            return Provider{}, errf("model %q not available on provider %q (have: %s)",
                model, name, strings.Join(p.AvailableModels, ", "))
        }
    }

    if p.Timeout <= 0 { p.Timeout = Seconds(30 * time.Second) }
    if p.RetryDelay <= 0 { p.RetryDelay = Seconds(time.Second) }
    if p.MaxRetries < 0 { p.MaxRetries = 0 }

    return p, nil
}
