package config

import "time"

// EnsembleConfig configures validation and conflict resolution.
type EnsembleConfig struct {
	Strategy string `yaml:"strategy"` // majority_vote, weighted_average, confidence_threshold, contextual_boost

	ValidationTimeoutMs int `yaml:"validation_timeout_ms"`

	// MinAgreementRatio below which a multi-intent spread is ambiguous.
	MinAgreementRatio float64 `yaml:"min_agreement_ratio"`

	// ConfidenceThreshold feeds the confidence_threshold strategy.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// InsufficientContextThreshold: mean confidence below this raises an
	// insufficient_context conflict.
	InsufficientContextThreshold float64 `yaml:"insufficient_context_threshold"`
}

// DefaultEnsembleConfig returns validation defaults.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		Strategy:                     "majority_vote",
		ValidationTimeoutMs:          1500,
		MinAgreementRatio:            0.7,
		ConfidenceThreshold:          0.8,
		InsufficientContextThreshold: 0.4,
	}
}

// ValidationTimeout returns the bound on the whole validation stage.
func (c EnsembleConfig) ValidationTimeout() time.Duration {
	return msToDuration(c.ValidationTimeoutMs, 1500*time.Millisecond)
}
