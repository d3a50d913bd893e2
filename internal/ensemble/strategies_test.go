package ensemble

import (
	"testing"

	"voxnav/internal/config"
	"voxnav/internal/types"

	"github.com/stretchr/testify/assert"
)

func v(intent types.IntentCategory, conf, weight float64, model string) vote {
	return vote{
		result: types.ClassificationResult{Intent: intent, Confidence: conf, Model: model},
		weight: weight,
		model:  model,
	}
}

func TestMajorityVote(t *testing.T) {
	votes := []vote{
		v(types.IntentAddToCart, 0.9, 1, "a"),
		v(types.IntentAddToCart, 0.8, 1, "b"),
		v(types.IntentRemoveFromCart, 0.95, 1, "c"),
	}
	intent, conf := majorityVote(votes)
	assert.Equal(t, types.IntentAddToCart, intent)
	assert.InDelta(t, 0.85, conf, 1e-9, "majority confidence is the mean of the winning votes")
}

func TestMajorityVoteTieBreaksOnConfidence(t *testing.T) {
	votes := []vote{
		v(types.IntentZoomIn, 0.9, 1, "a"),
		v(types.IntentZoomOut, 0.5, 1, "b"),
	}
	intent, conf := majorityVote(votes)
	assert.Equal(t, types.IntentZoomIn, intent)
	assert.InDelta(t, 0.9, conf, 1e-9)
}

func TestWeightedAverage(t *testing.T) {
	votes := []vote{
		v(types.IntentViewCart, 0.6, 3, "heavy"),
		v(types.IntentCheckout, 0.9, 1, "light"),
	}
	intent, conf := weightedAverage(votes)
	assert.Equal(t, types.IntentViewCart, intent, "weight beats raw confidence")
	assert.InDelta(t, 1.8/4.0, conf, 1e-9)
}

func TestConfidenceThreshold(t *testing.T) {
	votes := []vote{
		v(types.IntentGoBack, 0.95, 1, "a"),
		v(types.IntentGoForward, 0.4, 1, "b"),
		v(types.IntentGoForward, 0.45, 1, "c"),
	}
	intent, conf := confidenceThreshold(votes, 0.9)
	assert.Equal(t, types.IntentGoBack, intent, "a vote over the bar is trusted outright")
	assert.InDelta(t, 0.95, conf, 1e-9)

	// Below the bar it defers to majority.
	intent, _ = confidenceThreshold(votes, 0.99)
	assert.Equal(t, types.IntentGoForward, intent)
}

func TestContextualBoostStrategy(t *testing.T) {
	analysis := &types.ContextualAnalysis{
		Boosts: map[types.IntentCategory]float64{types.IntentAddToCart: 0.2},
	}
	votes := []vote{
		v(types.IntentAddToCart, 0.6, 1, "a"),
		v(types.IntentSaveForLater, 0.7, 1, "b"),
	}
	intent, conf := contextualBoost(votes, analysis)
	assert.Equal(t, types.IntentAddToCart, intent)
	assert.InDelta(t, 0.8, conf, 1e-9)
}

func TestCombineCountsAgreement(t *testing.T) {
	votes := []vote{
		v(types.IntentConfirm, 0.9, 1, "a"),
		v(types.IntentConfirm, 0.8, 1, "b"),
		v(types.IntentDeny, 0.7, 1, "c"),
	}
	decision := combine(votes, types.StrategyMajorityVote, config.DefaultEnsembleConfig(), nil)
	assert.Equal(t, types.IntentConfirm, decision.FinalIntent)
	assert.Equal(t, 2, decision.Agreements)
	assert.Equal(t, 1, decision.Disagreements)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, decision.Models)
	assert.Equal(t, types.StrategyMajorityVote, decision.Strategy)
}

func TestCombineUnknownStrategyFallsBackToMajority(t *testing.T) {
	votes := []vote{v(types.IntentConfirm, 0.9, 1, "a")}
	decision := combine(votes, "something_else", config.DefaultEnsembleConfig(), nil)
	assert.Equal(t, types.StrategyMajorityVote, decision.Strategy)
}
