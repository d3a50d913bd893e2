package intentcache

import (
	"testing"

	"voxnav/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserPatternMatch(t *testing.T) {
	us := NewUserPatternStore()
	us.Observe("u1", "put it in the basket", types.ClassificationResult{
		Intent: types.IntentAddToCart, Confidence: 0.9,
	})

	intent, conf, ok := us.Match("u1", "put it in the basket")
	require.True(t, ok)
	assert.Equal(t, types.IntentAddToCart, intent)
	assert.LessOrEqual(t, conf, userMatchConfidenceCap, "user matches stay below cache and pattern confidence")

	// A different user never sees u1's phrases.
	_, _, ok = us.Match("u2", "put it in the basket")
	assert.False(t, ok)

	// Anonymous callers never match.
	_, _, ok = us.Match("", "put it in the basket")
	assert.False(t, ok)
}

func TestUserPatternFuzzyMatchIsStricter(t *testing.T) {
	us := NewUserPatternStore()
	us.Observe("u1", "show me my recent orders", types.ClassificationResult{
		Intent: types.IntentTrackOrder, Confidence: 0.85,
	})

	// 4 of 5 tokens: 0.8, below the per-user 0.85 threshold.
	_, _, ok := us.Match("u1", "show me my orders")
	assert.False(t, ok)

	// 5 of 5 tokens in different framing is not possible; exact works.
	intent, _, ok := us.Match("u1", "show me my recent orders")
	require.True(t, ok)
	assert.Equal(t, types.IntentTrackOrder, intent)
}

func TestUserPatternIgnoresLowConfidence(t *testing.T) {
	us := NewUserPatternStore()
	us.Observe("u1", "hmm do something", types.ClassificationResult{
		Intent: types.IntentClickElement, Confidence: 0.5,
	})
	_, _, ok := us.Match("u1", "hmm do something")
	assert.False(t, ok)
}

func TestUserPatternFeedback(t *testing.T) {
	us := NewUserPatternStore()
	us.Observe("u1", "empty the cart", types.ClassificationResult{
		Intent: types.IntentAddToCart, Confidence: 0.9,
	})

	us.RecordFeedback("u1", "empty the cart", types.IntentRemoveFromCart, false)
	intent, conf, ok := us.Match("u1", "empty the cart")
	require.True(t, ok)
	assert.Equal(t, types.IntentRemoveFromCart, intent)
	assert.Less(t, conf, 0.9)
}

func TestPredictNext(t *testing.T) {
	us := NewUserPatternStore()

	// u1 habitually checks the cart after adding to it.
	for i := 0; i < 4; i++ {
		us.ObserveSequence("u1", []types.IntentCategory{types.IntentAddToCart, types.IntentViewCart})
	}
	us.ObserveSequence("u1", []types.IntentCategory{types.IntentAddToCart, types.IntentCheckout})

	pred, ok := us.PredictNext("u1", []types.IntentCategory{types.IntentAddToCart})
	require.True(t, ok)
	assert.Equal(t, types.IntentViewCart, pred.Intent)
	assert.Equal(t, 4, pred.Frequency)
	assert.LessOrEqual(t, pred.Confidence, predictionConfidenceCap)

	// No history for this prefix.
	_, ok = us.PredictNext("u1", []types.IntentCategory{types.IntentZoomIn})
	assert.False(t, ok)

	// Unknown user.
	_, ok = us.PredictNext("u9", []types.IntentCategory{types.IntentAddToCart})
	assert.False(t, ok)
}

func TestPredictNextWithLongHistory(t *testing.T) {
	us := NewUserPatternStore()

	// A realistic session: the full browsing path is observed each step, so
	// only 2- and 3-gram transitions are on record.
	path := []types.IntentCategory{
		types.IntentSearchQuery, types.IntentGetDetails,
		types.IntentAddToCart, types.IntentViewCart,
	}
	for i := 0; i < 10; i++ {
		for end := 2; end <= len(path); end++ {
			us.ObserveSequence("u1", path[:end])
		}
	}

	// Prediction must work from the full history, not just its last step.
	pred, ok := us.PredictNext("u1", []types.IntentCategory{
		types.IntentSearchQuery, types.IntentGetDetails, types.IntentAddToCart,
	})
	require.True(t, ok, "long histories must fall back to their matching suffix")
	assert.Equal(t, types.IntentViewCart, pred.Intent)

	// The two-intent suffix is preferred over the single-intent one when both
	// have records: add_to_cart alone overwhelmingly leads to view_cart, but
	// after go_back it leads to checkout.
	for i := 0; i < 5; i++ {
		us.ObserveSequence("u1", []types.IntentCategory{types.IntentGoBack, types.IntentAddToCart, types.IntentCheckout})
	}
	for i := 0; i < 30; i++ {
		us.ObserveSequence("u1", []types.IntentCategory{types.IntentAddToCart, types.IntentViewCart})
	}
	pred, ok = us.PredictNext("u1", []types.IntentCategory{
		types.IntentSearchQuery, types.IntentGoBack, types.IntentAddToCart,
	})
	require.True(t, ok)
	assert.Equal(t, types.IntentCheckout, pred.Intent, "the longer matching suffix carries the stronger signal")
}
