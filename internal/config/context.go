package config

import "time"

// ContextConfig configures the context analyzer.
type ContextConfig struct {
	// MaxElements truncates the importance-sorted element list to bound
	// prompt size.
	MaxElements int `yaml:"max_elements"`

	// AnalysisCacheTTLMs caches page-level analysis keyed by normalized
	// path+query across rapid repeated requests.
	AnalysisCacheTTLMs int `yaml:"analysis_cache_ttl_ms"`

	// MaxHistory truncates recent-intent history passed to prompts.
	MaxHistory int `yaml:"max_history"`
}

// DefaultContextConfig returns analyzer defaults.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		MaxElements:        50,
		AnalysisCacheTTLMs: 5 * 60 * 1000,
		MaxHistory:         5,
	}
}

// AnalysisCacheTTL returns the page-analysis cache lifetime.
func (c ContextConfig) AnalysisCacheTTL() time.Duration {
	return msToDuration(c.AnalysisCacheTTLMs, 5*time.Minute)
}
