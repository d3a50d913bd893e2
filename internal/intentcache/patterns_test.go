package intentcache

import (
	"testing"
	"time"

	"voxnav/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observeN(ps *PatternStore, phrase string, intent types.IntentCategory, conf float64, n int) {
	for i := 0; i < n; i++ {
		ps.Observe(phrase, types.ClassificationResult{Intent: intent, Confidence: conf},
			ReducedContext{PageType: "e-commerce"}, "u1")
	}
}

func TestPatternUsabilityThreshold(t *testing.T) {
	ps := NewPatternStore(3)

	observeN(ps, "put it in the basket", types.IntentAddToCart, 0.85, 3)
	_, ok := ps.MatchExact("put it in the basket")
	assert.False(t, ok, "a pattern at the occurrence minimum is not yet usable")

	observeN(ps, "put it in the basket", types.IntentAddToCart, 0.85, 1)
	p, ok := ps.MatchExact("put it in the basket")
	require.True(t, ok)
	assert.Equal(t, types.IntentAddToCart, p.Intent)
	assert.InDelta(t, 0.85, p.Confidence, 1e-9)
}

func TestPatternIgnoresLowConfidenceObservations(t *testing.T) {
	ps := NewPatternStore(1)

	observeN(ps, "maybe do something", types.IntentClickElement, 0.5, 10)
	assert.Equal(t, 0, ps.Len(), "observations below the create threshold never form patterns")
}

func TestPatternIntentChangeRestartsCounting(t *testing.T) {
	ps := NewPatternStore(2)

	observeN(ps, "take it away", types.IntentAddToCart, 0.8, 3)
	_, ok := ps.MatchExact("take it away")
	require.True(t, ok)

	// Feedback-corrected classifications now land on a different intent.
	observeN(ps, "take it away", types.IntentRemoveFromCart, 0.9, 1)
	_, ok = ps.MatchExact("take it away")
	assert.False(t, ok, "an intent flip must restart occurrence counting")

	observeN(ps, "take it away", types.IntentRemoveFromCart, 0.9, 2)
	p, ok := ps.MatchExact("take it away")
	require.True(t, ok)
	assert.Equal(t, types.IntentRemoveFromCart, p.Intent)
}

func TestPatternFuzzyMatch(t *testing.T) {
	ps := NewPatternStore(1)
	observeN(ps, "play the video now", types.IntentPlayMedia, 0.9, 2)

	// 4 of 5 tokens shared: similarity 0.8, exactly at the threshold.
	p, sim, ok := ps.MatchFuzzy("play the video right now")
	require.True(t, ok)
	assert.Equal(t, types.IntentPlayMedia, p.Intent)
	assert.InDelta(t, 0.8, sim, 1e-9)

	// 2 of 4 tokens shared: well under the threshold.
	_, _, ok = ps.MatchFuzzy("play some other thing")
	assert.False(t, ok)
}

func TestPatternFeedbackAndPrune(t *testing.T) {
	ps := NewPatternStore(1)
	observeN(ps, "check out now", types.IntentCheckout, 0.9, 2)

	for i := 0; i < 6; i++ {
		ps.RecordFeedback("check out now", false)
	}
	p, ok := ps.MatchExact("check out now")
	require.True(t, ok)
	assert.Less(t, p.SuccessRate, 0.3)

	// Not yet stale: pruning leaves it alone.
	assert.Equal(t, 0, ps.Prune(time.Now()))

	// Eight idle days later the failing pattern goes.
	assert.Equal(t, 1, ps.Prune(time.Now().Add(8*24*time.Hour)))
	_, ok = ps.MatchExact("check out now")
	assert.False(t, ok)
}

func TestPatternSnapshotRestore(t *testing.T) {
	ps := NewPatternStore(1)
	observeN(ps, "go to the home page", types.IntentNavigateTo, 0.9, 3)

	snap := ps.Snapshot()
	require.Len(t, snap, 1)

	restored := NewPatternStore(1)
	restored.Restore(snap)
	p, ok := restored.MatchExact("go to the home page")
	require.True(t, ok)
	assert.Equal(t, types.IntentNavigateTo, p.Intent)
	assert.Equal(t, 3, p.Occurrences)
}
