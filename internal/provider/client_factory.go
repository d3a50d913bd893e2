package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"voxnav/internal/config"
)

// NewFromConfig builds an LLMClient for the configured primary provider.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	return newClient(ctx, Provider(cfg.Provider), cfg.APIKey, cfg.Model, cfg.BaseURL,
		cfg.Temperature, cfg.MaxTokens, cfg.Timeout())
}

// NewSecondary builds one cross-validation client.
func NewSecondary(ctx context.Context, sec config.SecondaryModel, base config.LLMConfig) (LLMClient, error) {
	apiKey := sec.APIKey
	if apiKey == "" {
		apiKey = base.APIKey
	}
	return newClient(ctx, Provider(sec.Provider), apiKey, sec.Model, sec.BaseURL,
		base.Temperature, base.MaxTokens, base.Timeout())
}

func newClient(ctx context.Context, p Provider, apiKey, model, baseURL string, temp float64, maxTokens int, timeout time.Duration) (LLMClient, error) {
	switch p {
	case ProviderOpenAI, "":
		c := DefaultOpenAIConfig(apiKey)
		c.Model = firstNonEmpty(model, c.Model)
		c.BaseURL = firstNonEmpty(baseURL, c.BaseURL)
		c.Temperature = temp
		c.MaxTokens = maxTokens
		c.Timeout = timeout
		return NewOpenAIClient(c), nil
	case ProviderAnthropic:
		c := DefaultAnthropicConfig(apiKey)
		c.Model = firstNonEmpty(model, c.Model)
		c.BaseURL = firstNonEmpty(baseURL, c.BaseURL)
		c.Temperature = temp
		c.MaxTokens = maxTokens
		c.Timeout = timeout
		return NewAnthropicClient(c), nil
	case ProviderGemini:
		c := DefaultGeminiConfig(apiKey)
		c.Model = firstNonEmpty(model, c.Model)
		c.Temperature = temp
		c.MaxTokens = maxTokens
		return NewGeminiClient(ctx, c)
	default:
		return nil, fmt.Errorf("unknown provider %q", p)
	}
}

// DetectAPIKey falls back through well-known environment variables when the
// config carries no key. Priority: OPENAI > ANTHROPIC > GEMINI.
func DetectAPIKey() (Provider, string) {
	candidates := []struct {
		envVar   string
		provider Provider
	}{
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"GEMINI_API_KEY", ProviderGemini},
	}
	for _, c := range candidates {
		if key := os.Getenv(c.envVar); key != "" {
			return c.provider, key
		}
	}
	return "", ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
