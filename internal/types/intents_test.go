package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomyMembership(t *testing.T) {
	assert.True(t, IsValidIntent("add_to_cart"))
	assert.True(t, IsValidIntent("unknown_intent"))
	assert.False(t, IsValidIntent("order_pizza"))
	assert.False(t, IsValidIntent(""))
	assert.False(t, IsValidIntent("ADD_TO_CART"), "membership is case sensitive; parsers normalize first")
}

func TestTaxonomySize(t *testing.T) {
	assert.Len(t, AllIntents(), 45)
}

func TestGroupOf(t *testing.T) {
	assert.Equal(t, GroupCommerce, GroupOf(IntentAddToCart))
	assert.Equal(t, GroupNavigation, GroupOf(IntentGoBack))
	assert.Equal(t, GroupMeta, GroupOf(IntentUnknown))
	assert.Equal(t, GroupMeta, GroupOf("not_real"), "out-of-taxonomy intents report the meta group")
}

func TestGroupPartition(t *testing.T) {
	// Every intent appears in exactly one group, and the group listing
	// covers the whole taxonomy.
	seen := make(map[IntentCategory]int)
	for _, g := range AllGroups() {
		for _, intent := range IntentsInGroup(g) {
			seen[intent]++
			assert.Equal(t, g, GroupOf(intent))
		}
	}
	assert.Len(t, seen, len(AllIntents()))
	for intent, n := range seen {
		assert.Equal(t, 1, n, "intent %s listed more than once", intent)
	}
}

func TestAreContradictory(t *testing.T) {
	assert.True(t, AreContradictory(IntentAddToCart, IntentRemoveFromCart))
	assert.True(t, AreContradictory(IntentRemoveFromCart, IntentAddToCart), "pairs are symmetric")
	assert.True(t, AreContradictory(IntentUndo, IntentRedo))
	assert.False(t, AreContradictory(IntentAddToCart, IntentViewCart))
	assert.False(t, AreContradictory(IntentAddToCart, IntentAddToCart))
}
