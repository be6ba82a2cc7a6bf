package settings

import (
	"time"
)

// Config is the typed view over the raw settings map. It is re-derived after
// every load and merge-update; keys the daemon does not recognize stay in the
// raw map untouched.
type Config struct {
	Model   ModelConfig
	Stage1  Stage1Config
	Context ContextConfig
	Prompt  PromptConfig
	History HistoryConfig
	UI      UIConfig
}

type ModelConfig struct {
	Provider string
	Name     string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	TextOnly bool
}

type Stage1Config struct {
	MaxCandidates int
}

type ContextConfig struct {
	ProbeCommand      []string
	ScreenshotEnabled bool
}

type PromptConfig struct {
	BaseDir string
}

type HistoryConfig struct {
	Path string
}

type UIConfig struct {
	Locale string
}

func deriveConfig(raw map[string]any) Config {
	cfg := Config{
		Model: ModelConfig{
			Provider: lookupString(raw, "openai", "model", "provider"),
			Name:     lookupString(raw, "", "model", "name"),
			APIKey:   lookupString(raw, "", "model", "api_key"),
			BaseURL:  lookupString(raw, "", "model", "base_url"),
			Timeout:  time.Duration(lookupFloat(raw, 60, "model", "timeout") * float64(time.Second)),
			TextOnly: lookupBool(raw, false, "model", "text_only"),
		},
		Stage1: Stage1Config{
			MaxCandidates: lookupInt(raw, 4, "stage1", "max_candidates"),
		},
		Context: ContextConfig{
			ProbeCommand:      lookupStrings(raw, "context", "probe_command"),
			ScreenshotEnabled: lookupBool(raw, true, "context", "screenshot", "enabled"),
		},
		Prompt: PromptConfig{
			BaseDir: lookupString(raw, "prompts", "prompt", "base_dir"),
		},
		History: HistoryConfig{
			Path: lookupString(raw, "history/history.jsonl", "history", "path"),
		},
		UI: UIConfig{
			Locale: lookupString(raw, "en-US", "ui", "locale"),
		},
	}
	if cfg.Stage1.MaxCandidates < 1 {
		cfg.Stage1.MaxCandidates = 1
	}
	if cfg.Model.Timeout <= 0 {
		cfg.Model.Timeout = 60 * time.Second
	}
	return cfg
}

func lookup(raw map[string]any, keys ...string) (any, bool) {
	var cursor any = raw
	for _, key := range keys {
		m, ok := cursor.(map[string]any)
		if !ok {
			return nil, false
		}
		cursor, ok = m[key]
		if !ok || cursor == nil {
			return nil, false
		}
	}
	return cursor, true
}

func lookupString(raw map[string]any, fallback string, keys ...string) string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

func lookupBool(raw map[string]any, fallback bool, keys ...string) bool {
	v, ok := lookup(raw, keys...)
	if !ok {
		return fallback
	}
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

func lookupInt(raw map[string]any, fallback int, keys ...string) int {
	v, ok := lookup(raw, keys...)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}

func lookupFloat(raw map[string]any, fallback float64, keys ...string) float64 {
	v, ok := lookup(raw, keys...)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return fallback
}

func lookupStrings(raw map[string]any, keys ...string) []string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
