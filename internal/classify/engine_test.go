package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voxnav/internal/config"
	"voxnav/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient implements provider.LLMClient, returning scripted completions in
// order.
type mockClient struct {
	completions []string
	errs        []error
	calls       int
	prompts     []string // system prompts seen, for refinement assertions
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, systemPrompt)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.completions) {
		return m.completions[i], nil
	}
	return m.completions[len(m.completions)-1], nil
}

func (m *mockClient) ModelID() string { return "mock-model" }

func newTestEngine(client *mockClient) *Engine {
	return NewEngine(config.DefaultLLMConfig(), client)
}

func emptyAnalysis() *types.ContextualAnalysis {
	return &types.ContextualAnalysis{
		Page: types.PageContext{PageType: "generic", ContentType: "mixed", Mode: types.ModeView},
	}
}

func TestClassifyHighConfidenceSkipsRefinement(t *testing.T) {
	client := &mockClient{completions: []string{
		`{"intent": "go_back", "confidence": 0.95}`,
	}}
	result, err := newTestEngine(client).Classify(context.Background(), "go back", emptyAnalysis())
	require.NoError(t, err)

	assert.Equal(t, types.IntentGoBack, result.Intent)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	assert.Equal(t, types.SourcePrimary, result.Source)
	assert.Equal(t, "mock-model", result.Model)
	assert.Equal(t, 1, client.calls, "no refinement pass above the threshold")
}

func TestClassifyRefinesLowConfidence(t *testing.T) {
	client := &mockClient{completions: []string{
		`{"intent": "add_to_cart", "confidence": 0.6, "parameters": {"target": "shirt"}}`,
		`{"intent": "save_for_later", "confidence": 0.85, "parameters": {"quantity": "1"}}`,
	}}
	result, err := newTestEngine(client).Classify(context.Background(), "save that shirt", emptyAnalysis())
	require.NoError(t, err)

	assert.Equal(t, 2, client.calls)
	assert.Contains(t, client.prompts[1], "commerce", "refinement is scoped to the broad result's group")

	// The refined pass won; parameters are unioned across both passes.
	assert.Equal(t, types.IntentSaveForLater, result.Intent)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
	assert.Equal(t, "shirt", result.Parameters["target"])
	assert.Equal(t, "1", result.Parameters["quantity"])
}

func TestClassifyKeepsBroadResultWhenRefinementRegresses(t *testing.T) {
	client := &mockClient{completions: []string{
		`{"intent": "view_cart", "confidence": 0.8}`,
		`{"intent": "checkout", "confidence": 0.4}`,
	}}
	result, err := newTestEngine(client).Classify(context.Background(), "show the cart", emptyAnalysis())
	require.NoError(t, err)
	assert.Equal(t, types.IntentViewCart, result.Intent)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestClassifyRetriesOnceOnProviderError(t *testing.T) {
	client := &mockClient{
		errs:        []error{errors.New("transient 503"), nil},
		completions: []string{"", `{"intent": "confirm", "confidence": 0.93}`},
	}
	result, err := newTestEngine(client).Classify(context.Background(), "yes do it", emptyAnalysis())
	require.NoError(t, err)
	assert.Equal(t, types.IntentConfirm, result.Intent)
	assert.Equal(t, 2, client.calls)
}

func TestClassifyModelErrorAfterRetry(t *testing.T) {
	client := &mockClient{errs: []error{errors.New("boom"), errors.New("boom")}}
	_, err := newTestEngine(client).Classify(context.Background(), "anything", emptyAnalysis())
	require.Error(t, err)

	pe, ok := types.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrModel, pe.Kind)
	assert.True(t, pe.Retryable)
}

func TestClassifyTimeoutIsTyped(t *testing.T) {
	client := &mockClient{errs: []error{context.DeadlineExceeded}}
	_, err := newTestEngine(client).Classify(context.Background(), "anything", emptyAnalysis())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrTimeout))
}

func TestClassifyDegradesOnGarbage(t *testing.T) {
	client := &mockClient{completions: []string{
		"I have no idea what that means.",
		"Still no JSON here.",
	}}
	result, err := newTestEngine(client).Classify(context.Background(), "xyzzy plugh", emptyAnalysis())
	require.NoError(t, err, "unparseable output degrades instead of failing")

	assert.Equal(t, types.IntentUnknown, result.Intent)
	assert.LessOrEqual(t, result.Confidence, 0.3)
}

func TestClassifyAppliesContextBoost(t *testing.T) {
	analysis := emptyAnalysis()
	analysis.Page.PageType = "e-commerce"
	analysis.Boosts = map[types.IntentCategory]float64{types.IntentAddToCart: 0.15}

	client := &mockClient{completions: []string{
		`{"intent": "add_to_cart", "confidence": 0.6}`,
		`{"intent": "add_to_cart", "confidence": 0.6}`,
	}}
	result, err := newTestEngine(client).Classify(context.Background(), "add this to my cart", analysis)
	require.NoError(t, err)
	assert.Equal(t, types.IntentAddToCart, result.Intent)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)
}

func TestClassifyPenalizesConstrainedIntent(t *testing.T) {
	analysis := emptyAnalysis()
	analysis.ConstrainedIntents = []types.IntentCategory{types.IntentCheckout}

	client := &mockClient{completions: []string{
		`{"intent": "checkout", "confidence": 0.95}`,
	}}
	result, err := newTestEngine(client).Classify(context.Background(), "check out", analysis)
	require.NoError(t, err)
	assert.Equal(t, types.IntentCheckout, result.Intent)
	assert.InDelta(t, 0.55, result.Confidence, 1e-9)
}

func TestSystemPromptContainsFullTaxonomy(t *testing.T) {
	prompt := buildSystemPrompt()
	for _, intent := range types.AllIntents() {
		assert.Contains(t, prompt, string(intent))
	}
}

func TestUserPromptTruncatesElementTextOnRuneBoundary(t *testing.T) {
	analysis := emptyAnalysis()
	analysis.Page.Elements = []types.ElementSummary{
		{Tag: "button", Text: strings.Repeat("ü", 100), Visible: true, Importance: 1},
	}
	prompt := buildUserPrompt("click it", analysis)
	assert.Contains(t, prompt, strings.Repeat("ü", 40)+"…", "truncation must land on a rune boundary")
}

func TestUserPromptIsBounded(t *testing.T) {
	analysis := emptyAnalysis()
	for i := 0; i < 200; i++ {
		analysis.Page.Elements = append(analysis.Page.Elements, types.ElementSummary{
			Tag: "button", Text: strings.Repeat("x", 500), Visible: true, Importance: 1,
		})
	}
	prompt := buildUserPrompt("click the button", analysis)
	assert.Less(t, len(prompt), 20000, "prompt must truncate elements, not grow with the page")
}
