package models

import "strings"

// Provider adapter kinds. Sentient endpoints speak the OpenAI wire format,
// so they share KindOpenAI with a custom base URL.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
)

// ProviderConfig holds static per-provider settings. Providers are listed in
// priority order; the first one with at least one key is the default.
type ProviderConfig struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind,omitempty"`
	APIKeys      string            `yaml:"api_keys"` // delimited secret string, may be empty
	BaseURL      string            `yaml:"base_url,omitempty"`
	DefaultModel string            `yaml:"default_model"`
	TimeoutMs    int               `yaml:"timeout_ms,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
}

// Keys parses the delimited credential string into an ordered list. Empty
// entries are dropped so a trailing comma in a secret does not count as a key.
func (p ProviderConfig) Keys() []string {
	var keys []string
	for _, part := range strings.Split(p.APIKeys, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// AdapterKind resolves the wire format for this provider. Unset kinds default
// to the provider name for the known SDKs and to OpenAI-compatible otherwise.
func (p ProviderConfig) AdapterKind() string {
	if p.Kind != "" {
		return p.Kind
	}
	switch p.Name {
	case KindAnthropic:
		return KindAnthropic
	case KindGemini:
		return KindGemini
	default:
		return KindOpenAI
	}
}
