package config

import "time"

// LLMConfig configures the primary classifier model and any secondary
// validators. The pipeline treats every provider as the same opaque
// chat-completion capability.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutMs   int     `yaml:"timeout_ms"`

	// Secondaries run concurrently during validation. Weight feeds the
	// weighted_average ensemble strategy.
	Secondaries []SecondaryModel `yaml:"secondaries"`
}

// SecondaryModel describes one cross-validation classifier.
type SecondaryModel struct {
	Provider string  `yaml:"provider"`
	APIKey   string  `yaml:"api_key"`
	Model    string  `yaml:"model"`
	BaseURL  string  `yaml:"base_url"`
	Weight   float64 `yaml:"weight"`
}

// DefaultLLMConfig returns sensible defaults. Low temperature: the engine
// asks for strict JSON and refinement, not prose.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   512,
		TimeoutMs:   8000,
	}
}

// Timeout returns the provider call budget.
func (c LLMConfig) Timeout() time.Duration {
	return msToDuration(c.TimeoutMs, 8*time.Second)
}
