// Package ensemble cross-validates the primary classification against
// secondary models, detects conflicts among the votes, and resolves at most
// one conflict per request. Validation never blocks the pipeline past its
// budget: a slow secondary simply loses its vote.
package ensemble

import (
	"context"
	"time"

	"voxnav/internal/config"
	"voxnav/internal/logging"
	"voxnav/internal/types"
)

// Classifier is the slice of the classification engine the validator needs.
type Classifier interface {
	ClassifyOnce(ctx context.Context, text string, analysis *types.ContextualAnalysis) (types.ClassificationResult, error)
	ModelID() string
}

// Secondary is one cross-validation model with its voting weight.
type Secondary struct {
	Classifier Classifier
	Weight     float64
}

// vote is one classifier's opinion, primary or secondary.
type vote struct {
	result types.ClassificationResult
	weight float64
	model  string
}

// Outcome is everything the validation stage produces.
type Outcome struct {
	Result    types.ClassificationResult
	Decision  types.EnsembleDecision
	Conflicts []types.Conflict
	Warnings  []string
}

// Validator runs the validation stage.
type Validator struct {
	cfg         config.EnsembleConfig
	secondaries []Secondary
}

// NewValidator creates a validator over the configured secondaries. An empty
// secondary list is valid; validation then only sanity-checks the primary.
func NewValidator(cfg config.EnsembleConfig, secondaries []Secondary) *Validator {
	return &Validator{cfg: cfg, secondaries: secondaries}
}

// Validate fans the utterance out to all secondaries, combines the settled
// votes with the configured strategy, and resolves the strongest conflict.
// It always returns a usable Outcome; secondary failures reduce confidence
// rather than failing the request.
func (v *Validator) Validate(ctx context.Context, text string, analysis *types.ContextualAnalysis, primary types.ClassificationResult) Outcome {
	timer := logging.StartTimer(logging.CategoryEnsemble, "Validator.Validate")
	defer timer.StopWithThreshold(v.cfg.ValidationTimeout())

	votes := []vote{{result: primary, weight: 1.0, model: primary.Model}}
	var warnings []string

	if len(v.secondaries) > 0 {
		settled, missed := v.collectSecondaryVotes(ctx, text, analysis)
		votes = append(votes, settled...)
		if missed > 0 {
			warnings = append(warnings, "validation incomplete: some secondary models did not respond in time")
		}
	}

	decision := combine(votes, types.EnsembleStrategy(v.cfg.Strategy), v.cfg, analysis)
	conflicts := v.detectConflicts(votes)

	result := types.ClassificationResult{
		Intent:     decision.FinalIntent,
		Confidence: decision.Confidence,
		Parameters: primary.Parameters,
		Reasoning:  primary.Reasoning,
		Source:     types.SourceEnsemble,
		Model:      primary.Model,
		Elapsed:    primary.Elapsed,
	}
	if decision.FinalIntent == primary.Intent && len(votes) == 1 {
		result.Source = primary.Source
	}

	if len(conflicts) > 0 {
		idx := strongestConflict(conflicts)
		resolution := v.resolve(conflicts[idx], votes, analysis)
		conflicts[idx].Resolution = &resolution
		result.Intent = resolution.ChosenIntent
		result.Confidence = resolution.Confidence
		logging.Ensemble("conflict %s resolved via %s: %s (%.2f)",
			conflicts[idx].Type, resolution.Strategy, resolution.ChosenIntent, resolution.Confidence)
	}

	return Outcome{Result: result, Decision: decision, Conflicts: conflicts, Warnings: warnings}
}

// collectSecondaryVotes runs all secondaries concurrently under the
// validation budget. A failed or invalid secondary degrades to a
// low-confidence unknown vote so disagreement math stays honest about how
// many opinions were asked for.
func (v *Validator) collectSecondaryVotes(ctx context.Context, text string, analysis *types.ContextualAnalysis) ([]vote, int) {
	budget, cancel := context.WithTimeout(ctx, v.cfg.ValidationTimeout())
	defer cancel()

	type settled struct {
		vote vote
		ok   bool
	}
	ch := make(chan settled, len(v.secondaries))

	for _, sec := range v.secondaries {
		sec := sec
		go func() {
			result, err := sec.Classifier.ClassifyOnce(budget, text, analysis)
			if err != nil {
				logging.Get(logging.CategoryEnsemble).Warn("secondary %s failed: %v", sec.Classifier.ModelID(), err)
				ch <- settled{vote: vote{
					result: types.ClassificationResult{
						Intent:     types.IntentUnknown,
						Confidence: 0.2,
						Source:     types.SourceSecondary,
						Model:      sec.Classifier.ModelID(),
					},
					weight: sec.Weight,
					model:  sec.Classifier.ModelID(),
				}, ok: true}
				return
			}
			result.Source = types.SourceSecondary
			result.Model = sec.Classifier.ModelID()
			ch <- settled{vote: vote{result: result, weight: sec.Weight, model: sec.Classifier.ModelID()}, ok: true}
		}()
	}

	votes := make([]vote, 0, len(v.secondaries))
	deadline := time.NewTimer(v.cfg.ValidationTimeout())
	defer deadline.Stop()
	for range v.secondaries {
		select {
		case s := <-ch:
			votes = append(votes, s.vote)
		case <-deadline.C:
			return votes, len(v.secondaries) - len(votes)
		case <-ctx.Done():
			return votes, len(v.secondaries) - len(votes)
		}
	}
	return votes, 0
}

// strongestConflict picks the single conflict to resolve: the index of the
// one carrying the highest confidence mass.
func strongestConflict(conflicts []types.Conflict) int {
	best := 0
	for i, c := range conflicts {
		if c.Confidence > conflicts[best].Confidence {
			best = i
		}
	}
	return best
}
