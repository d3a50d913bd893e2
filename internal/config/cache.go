package config

import "time"

// KeyStrategy controls how much context is folded into a cache key.
type KeyStrategy string

const (
	KeyTextOnly    KeyStrategy = "text_only"
	KeyTextContext KeyStrategy = "text_context" // text + page type + mode
	KeyFullContext KeyStrategy = "full_context" // text + page type + mode + role + task
)

// CacheConfig configures the cache and pattern store.
type CacheConfig struct {
	Enabled     bool        `yaml:"enabled"`
	KeyStrategy KeyStrategy `yaml:"key_strategy"`
	MaxEntries  int         `yaml:"max_entries"`
	TTLMs       int         `yaml:"ttl_ms"`

	// MemoryBudgetKB bounds the estimated footprint of cached entries;
	// exceeding it triggers eviction just like MaxEntries does.
	MemoryBudgetKB int `yaml:"memory_budget_kb"`

	MaintenanceIntervalMs int `yaml:"maintenance_interval_ms"`

	// Pattern generalization across users.
	EnablePatterns        bool `yaml:"enable_patterns"`
	MinPatternOccurrences int  `yaml:"min_pattern_occurrences"`

	// Per-user phrase learning and next-intent prediction.
	EnableLearning bool `yaml:"enable_learning"`

	// PersistPath, when set, snapshots learned global patterns to a SQLite
	// database across restarts. Best effort; no durability guarantee.
	PersistPath string `yaml:"persist_path"`
}

// DefaultCacheConfig returns production cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:               true,
		KeyStrategy:           KeyTextContext,
		MaxEntries:            5000,
		TTLMs:                 30 * 60 * 1000,
		MemoryBudgetKB:        32 * 1024,
		MaintenanceIntervalMs: 5 * 60 * 1000,
		EnablePatterns:        true,
		MinPatternOccurrences: 3,
		EnableLearning:        true,
	}
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return msToDuration(c.TTLMs, 30*time.Minute)
}

// MaintenanceInterval returns the sweep period.
func (c CacheConfig) MaintenanceInterval() time.Duration {
	return msToDuration(c.MaintenanceIntervalMs, 5*time.Minute)
}
