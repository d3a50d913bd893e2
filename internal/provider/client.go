// Package provider abstracts the chat-completion capability of external
// language-model providers. The pipeline assumes nothing beyond
// CompleteWithSystem: configurable model, temperature, max tokens, and a
// context deadline.
package provider

import (
	"context"
	"strings"
)

// Provider identifies a supported LLM backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// LLMClient defines the interface for LLM providers.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ModelID() string
}

// truncateForLog shortens s for log lines.
func truncateForLog(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
