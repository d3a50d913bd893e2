package config

import "time"

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	// TargetMs is the latency goal; the self-check flags degraded health when
	// rolling average latency exceeds 1.5x this value.
	TargetMs  int `yaml:"target_ms"`
	TimeoutMs int `yaml:"timeout_ms"`

	EnableValidation bool `yaml:"enable_validation"`
	EnablePrediction bool `yaml:"enable_prediction"`

	// HighConfidenceBypass skips validation for cache hits at or above this
	// confidence.
	HighConfidenceBypass float64 `yaml:"high_confidence_bypass"`

	HealthCheckIntervalMs int `yaml:"health_check_interval_ms"`

	// AdaptiveRelaxation lets the self-check widen cache TTL and skip
	// validation for high-confidence results while health is degraded.
	AdaptiveRelaxation bool `yaml:"adaptive_relaxation"`
}

// DefaultPipelineConfig returns orchestrator defaults tuned for the 300ms
// end-to-end goal.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TargetMs:              300,
		TimeoutMs:             3000,
		EnableValidation:      true,
		EnablePrediction:      true,
		HighConfidenceBypass:  0.9,
		HealthCheckIntervalMs: 30 * 1000,
		AdaptiveRelaxation:    true,
	}
}

// Target returns the latency goal.
func (c PipelineConfig) Target() time.Duration {
	return msToDuration(c.TargetMs, 300*time.Millisecond)
}

// Timeout returns the overall request budget.
func (c PipelineConfig) Timeout() time.Duration {
	return msToDuration(c.TimeoutMs, 3*time.Second)
}

// HealthCheckInterval returns the self-check period.
func (c PipelineConfig) HealthCheckInterval() time.Duration {
	return msToDuration(c.HealthCheckIntervalMs, 30*time.Second)
}
