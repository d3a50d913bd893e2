// Package config holds the runtime configuration of the intent pipeline.
// The core consumes this surface but does not own it: it is loaded from a
// YAML file by cmd/voxnav (or constructed directly in tests) and handed to
// the orchestrator at build time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all voxnav configuration.
type Config struct {
	Name string `yaml:"name"`

	LLM      LLMConfig      `yaml:"llm"`
	Cache    CacheConfig    `yaml:"cache"`
	Context  ContextConfig  `yaml:"context"`
	Ensemble EnsembleConfig `yaml:"ensemble"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Dir       string `yaml:"dir"`
	Level     string `yaml:"level"` // debug, info, warn, error
}

// Default returns a complete configuration with production defaults.
func Default() *Config {
	return &Config{
		Name:     "voxnav",
		LLM:      DefaultLLMConfig(),
		Cache:    DefaultCacheConfig(),
		Context:  DefaultContextConfig(),
		Ensemble: DefaultEnsembleConfig(),
		Pipeline: DefaultPipelineConfig(),
		Logging: LoggingConfig{
			DebugMode: false,
			Dir:       ".voxnav",
			Level:     "info",
		},
	}
}

// Load reads a YAML config file, layering it over defaults and then applying
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject secrets and the most
// commonly tuned knobs without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VOXNAV_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("VOXNAV_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("VOXNAV_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("VOXNAV_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.TimeoutMs <= 0 {
		return fmt.Errorf("pipeline.timeout_ms must be positive, got %d", c.Pipeline.TimeoutMs)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	switch c.Cache.KeyStrategy {
	case KeyTextOnly, KeyTextContext, KeyFullContext:
	default:
		return fmt.Errorf("cache.key_strategy %q is not one of text_only, text_context, full_context", c.Cache.KeyStrategy)
	}
	switch c.Ensemble.Strategy {
	case "majority_vote", "weighted_average", "confidence_threshold", "contextual_boost":
	default:
		return fmt.Errorf("ensemble.strategy %q is unknown", c.Ensemble.Strategy)
	}
	return nil
}

// Save writes the config as YAML, used by `voxnav init`.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// msToDuration converts a millisecond knob, falling back when unset.
func msToDuration(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
