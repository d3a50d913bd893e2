// Package classify turns an utterance plus its contextual analysis into a
// ClassificationResult using an LLM. Classification is two-stage: a broad
// pass over the full taxonomy, then a refinement pass scoped to the broad
// result's intent group whenever the broad pass is not already confident.
package classify

import (
	"context"
	"errors"
	"time"

	"voxnav/internal/config"
	"voxnav/internal/logging"
	"voxnav/internal/provider"
	"voxnav/internal/types"
)

// refineThreshold: broad-pass results at or above this confidence skip the
// refinement pass.
const refineThreshold = 0.9

// degradedConfidence caps the confidence of a fallback unknown_intent result.
const degradedConfidence = 0.3

// constraintPenalty is subtracted when the classified intent is disallowed in
// the current context.
const constraintPenalty = 0.4

// budgetedClient is implemented by clients that enforce a per-call budget and
// discard results arriving after it, rather than applying them late.
// provider.InstrumentedClient implements it.
type budgetedClient interface {
	CompleteWithBudget(ctx context.Context, systemPrompt, userPrompt string, budget time.Duration) (string, error)
}

// Engine is the primary classification stage.
type Engine struct {
	cfg    config.LLMConfig
	client provider.LLMClient

	systemPrompt string // broad-pass prompt, built once
}

// NewEngine creates an engine on top of an LLM client.
func NewEngine(cfg config.LLMConfig, client provider.LLMClient) *Engine {
	return &Engine{
		cfg:          cfg,
		client:       client,
		systemPrompt: buildSystemPrompt(),
	}
}

// ModelID returns the underlying model identifier.
func (e *Engine) ModelID() string { return e.client.ModelID() }

// Classify runs the two-stage classification. It returns a typed
// PipelineError on provider failure; an unparseable completion degrades to a
// low-confidence unknown_intent instead of failing the request.
func (e *Engine) Classify(ctx context.Context, text string, analysis *types.ContextualAnalysis) (types.ClassificationResult, error) {
	timer := logging.StartTimer(logging.CategoryClassify, "Engine.Classify")
	defer timer.Stop()
	start := time.Now()

	userPrompt := buildUserPrompt(text, analysis)

	broad, err := e.complete(ctx, e.systemPrompt, userPrompt)
	if err != nil {
		return types.ClassificationResult{}, err
	}
	result := e.toResult(broad, analysis, start)

	if result.Confidence >= refineThreshold || result.Intent == types.IntentUnknown {
		logging.ClassifyDebug("broad pass final: %s (%.2f)", result.Intent, result.Confidence)
		return result, nil
	}

	refined, err := e.refine(ctx, userPrompt, result, analysis, start)
	if err != nil {
		// Refinement is an improvement pass; its failure never costs us the
		// broad result.
		logging.Get(logging.CategoryClassify).Warn("refinement failed, keeping broad result: %v", err)
		return result, nil
	}
	return mergeResults(result, refined), nil
}

// ClassifyOnce runs only the broad pass. The ensemble layer uses this for
// secondary validators, where the refinement pass is not worth the latency.
func (e *Engine) ClassifyOnce(ctx context.Context, text string, analysis *types.ContextualAnalysis) (types.ClassificationResult, error) {
	start := time.Now()
	raw, err := e.complete(ctx, e.systemPrompt, buildUserPrompt(text, analysis))
	if err != nil {
		return types.ClassificationResult{}, err
	}
	return e.toResult(raw, analysis, start), nil
}

// refine re-classifies within the broad result's intent group.
func (e *Engine) refine(ctx context.Context, userPrompt string, broad types.ClassificationResult, analysis *types.ContextualAnalysis, start time.Time) (types.ClassificationResult, error) {
	group := types.GroupOf(broad.Intent)
	raw, err := e.complete(ctx, buildRefineSystemPrompt(group), userPrompt)
	if err != nil {
		return types.ClassificationResult{}, err
	}
	result := e.toResult(raw, analysis, start)
	logging.ClassifyDebug("refined %s (%.2f) -> %s (%.2f)", broad.Intent, broad.Confidence, result.Intent, result.Confidence)
	return result, nil
}

// complete calls the provider with one retry, then parses. A completion that
// fails to parse twice degrades to unknown_intent.
func (e *Engine) complete(ctx context.Context, systemPrompt, userPrompt string) (rawClassification, error) {
	var lastParseErr error
	for attempt := 0; attempt < 2; attempt++ {
		completion, err := e.callProvider(ctx, systemPrompt, userPrompt)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return rawClassification{}, types.NewTimeoutError("classification", err)
			}
			if attempt == 0 {
				logging.Get(logging.CategoryClassify).Warn("provider call failed, retrying: %v", err)
				continue
			}
			return rawClassification{}, types.NewModelError(e.client.ModelID(), err)
		}

		raw, parseErr := parseClassification(completion)
		if parseErr == nil {
			return raw, nil
		}
		lastParseErr = parseErr
		logging.Get(logging.CategoryClassify).Warn("unparseable completion (attempt %d): %v", attempt+1, parseErr)
	}

	logging.Classify("degrading to unknown_intent: %v", lastParseErr)
	return rawClassification{
		Intent:     string(types.IntentUnknown),
		Confidence: degradedConfidence,
		Reasoning:  "model output could not be interpreted",
	}, nil
}

// callProvider issues one model call under the configured per-call budget.
// A call that loses the budget race keeps running in the background; the
// budgeted client marks its eventual result stale and drops it, so a slow
// completion is never applied to a request that already timed out.
func (e *Engine) callProvider(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if bc, ok := e.client.(budgetedClient); ok {
		return bc.CompleteWithBudget(ctx, systemPrompt, userPrompt, e.cfg.Timeout())
	}
	return e.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

// toResult converts a parsed payload into a ClassificationResult and applies
// contextual adjustments: additive boosts and the constrained-intent penalty.
func (e *Engine) toResult(raw rawClassification, analysis *types.ContextualAnalysis, start time.Time) types.ClassificationResult {
	intent := types.IntentCategory(raw.Intent)
	confidence := raw.Confidence

	if boost := analysis.BoostFor(intent); boost != 0 {
		confidence += boost
		logging.ClassifyDebug("context boost %+.2f for %s", boost, intent)
	}
	if analysis.IsConstrained(intent) {
		confidence -= constraintPenalty
		logging.Classify("intent %s constrained in context, penalized", intent)
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return types.ClassificationResult{
		Intent:     intent,
		Confidence: confidence,
		Parameters: raw.Parameters,
		Reasoning:  raw.Reasoning,
		Source:     types.SourcePrimary,
		Model:      e.client.ModelID(),
		Elapsed:    time.Since(start),
	}
}

// mergeResults combines the broad and refined passes: the higher-confidence
// intent wins, the merged confidence is the max, and parameters are unioned
// with the winner taking precedence.
func mergeResults(broad, refined types.ClassificationResult) types.ClassificationResult {
	winner, loser := refined, broad
	if broad.Confidence > refined.Confidence {
		winner, loser = broad, refined
	}

	merged := winner
	if len(loser.Parameters) > 0 {
		params := make(map[string]string, len(winner.Parameters)+len(loser.Parameters))
		for k, v := range loser.Parameters {
			params[k] = v
		}
		for k, v := range winner.Parameters {
			params[k] = v
		}
		merged.Parameters = params
	}
	merged.Elapsed = refined.Elapsed // refined pass finished last
	return merged
}
