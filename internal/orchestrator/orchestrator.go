// Package orchestrator sequences the intent pipeline: contextual analysis,
// cache lookup, LLM classification, ensemble validation, and learning. It is
// the only package callers interact with; every stage behind it degrades
// rather than failing the whole request wherever the semantics allow it.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voxnav/internal/classify"
	"voxnav/internal/config"
	"voxnav/internal/contextual"
	"voxnav/internal/ensemble"
	"voxnav/internal/intentcache"
	"voxnav/internal/logging"
	"voxnav/internal/provider"
	"voxnav/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Classifier is the slice of the classification engine the orchestrator
// depends on. Tests substitute fakes.
type Classifier interface {
	Classify(ctx context.Context, text string, analysis *types.ContextualAnalysis) (types.ClassificationResult, error)
}

// Validator is the validation stage contract.
type Validator interface {
	Validate(ctx context.Context, text string, analysis *types.ContextualAnalysis, primary types.ClassificationResult) ensemble.Outcome
}

// Request is one utterance plus the page and session state it arrived with.
type Request struct {
	Text    string
	Page    types.PageSnapshot
	Session types.SessionSnapshot
	Role    string
	Options types.RequestOptions
}

// Feedback reports whether a previous classification was right, and if not,
// what the user actually meant.
type Feedback struct {
	Text         string
	Page         types.PageSnapshot
	Session      types.SessionSnapshot
	Role         string
	ActualIntent types.IntentCategory
	WasCorrect   bool
}

// Orchestrator owns the pipeline stages and their background goroutines.
type Orchestrator struct {
	cfg *config.Config

	analyzer   *contextual.Analyzer
	cache      intentcache.Store
	classifier Classifier
	validator  Validator
	metrics    *collector

	// flight dedupes concurrent identical utterances process-wide, keyed by
	// normalized text only. Two different users saying the same thing at the
	// same instant share one classification; per-user learning still happens
	// per caller.
	flight singleflight.Group

	healthMu sync.RWMutex
	health   Health
	relaxed  atomic.Bool

	stopCh     chan struct{}
	healthDone chan struct{}
	closeOnce  sync.Once
}

// New builds the full pipeline from configuration: provider clients,
// classification engine, secondaries, cache with optional persistence.
func New(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	metrics := newCollector()

	primary, err := provider.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to build primary provider: %w", err)
	}
	engine := classify.NewEngine(cfg.LLM, provider.NewInstrumentedClient(primary, metrics))

	secondaries := make([]ensemble.Secondary, 0, len(cfg.LLM.Secondaries))
	for _, sec := range cfg.LLM.Secondaries {
		client, err := provider.NewSecondary(ctx, sec, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to build secondary provider %s/%s: %w", sec.Provider, sec.Model, err)
		}
		secondaries = append(secondaries, ensemble.Secondary{
			Classifier: classify.NewEngine(cfg.LLM, provider.NewInstrumentedClient(client, metrics)),
			Weight:     sec.Weight,
		})
	}

	var persister intentcache.Persister
	if cfg.Cache.PersistPath != "" {
		p, err := intentcache.NewSQLitePersister(cfg.Cache.PersistPath)
		if err != nil {
			logging.Get(logging.CategoryBoot).Warn("pattern persistence disabled: %v", err)
		} else {
			persister = p
		}
	}

	o := NewWithComponents(cfg,
		contextual.NewAnalyzer(cfg.Context),
		intentcache.New(cfg.Cache, persister),
		engine,
		ensemble.NewValidator(cfg.Ensemble, secondaries),
	)
	o.metrics = metrics
	logging.Boot("orchestrator ready: provider=%s model=%s secondaries=%d", cfg.LLM.Provider, cfg.LLM.Model, len(secondaries))
	return o, nil
}

// NewWithComponents wires an orchestrator from pre-built stages. Tests use
// this to inject fakes; New uses it after building the real stages.
func NewWithComponents(cfg *config.Config, analyzer *contextual.Analyzer, cache intentcache.Store, classifier Classifier, validator Validator) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		analyzer:   analyzer,
		cache:      cache,
		classifier: classifier,
		validator:  validator,
		metrics:    newCollector(),
		health:     Health{Status: StatusHealthy, CheckedAt: time.Now()},
		stopCh:     make(chan struct{}),
		healthDone: make(chan struct{}),
	}
	go o.healthLoop()
	return o
}

// ProcessIntent runs one utterance through the pipeline under the overall
// timeout budget. On timeout the caller gets a retryable TIMEOUT error; any
// classification still in flight finishes in the background and is discarded.
func (o *Orchestrator) ProcessIntent(ctx context.Context, req Request) (*types.Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	rlog := logging.WithRequestID(logging.CategoryPipeline, requestID)

	normalized := intentcache.NormalizeText(req.Text)
	if normalized == "" {
		return nil, types.NewInvalidInputError("empty utterance")
	}

	timeout := req.Options.Timeout
	if timeout <= 0 {
		timeout = o.cfg.Pipeline.Timeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rlog.Info("processing %q (timeout %v)", req.Text, timeout)

	type outcome struct {
		resp *types.Response
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		shared, err, dedup := o.flight.Do(normalized, func() (interface{}, error) {
			return o.run(ctx, requestID, normalized, req, start)
		})
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		resp := cloneResponse(shared.(*types.Response))
		resp.RequestID = requestID
		if dedup {
			rlog.Debug("deduplicated against concurrent identical utterance")
		}
		ch <- outcome{resp: resp}
	}()

	select {
	case out := <-ch:
		o.metrics.observe(out.resp, out.err)
		if out.err != nil {
			rlog.Error("request failed: %v", out.err)
			return nil, out.err
		}
		out.resp.Timings.Total = time.Since(start)
		rlog.Info("done: %s (%.2f) via %s in %v",
			out.resp.Result.Intent, out.resp.Result.Confidence, out.resp.Result.Source, out.resp.Timings.Total)
		return out.resp, nil
	case <-ctx.Done():
		err := types.NewTimeoutError(fmt.Sprintf("pipeline exceeded %v budget", timeout), ctx.Err())
		o.metrics.observe(nil, err)
		rlog.Error("request timed out after %v", time.Since(start))
		return nil, err
	}
}

// run executes the stage sequence. It is the singleflight body: exactly one
// invocation per concurrent normalized utterance.
func (o *Orchestrator) run(ctx context.Context, requestID, normalized string, req Request, start time.Time) (*types.Response, error) {
	resp := &types.Response{RequestID: requestID}

	stageStart := time.Now()
	analysis := o.analyzer.Analyze(ctx, req.Page, req.Session, req.Role)
	resp.Timings.Context = time.Since(stageStart)
	if analysis.Degraded {
		resp.Warnings = append(resp.Warnings, "context analysis degraded; classification used minimal context")
	}

	cacheReq := intentcache.Request{Text: req.Text, UserID: req.Session.UserID, Analysis: analysis}

	var result types.ClassificationResult
	fromCache := false
	if !req.Options.SkipCache {
		stageStart = time.Now()
		if hit, ok := o.cache.Lookup(cacheReq); ok {
			result = hit
			fromCache = true
		}
		resp.Timings.Cache = time.Since(stageStart)
	}

	if !fromCache {
		stageStart = time.Now()
		classified, err := o.classifier.Classify(ctx, req.Text, analysis)
		resp.Timings.Classification = time.Since(stageStart)
		if err != nil {
			return nil, err
		}
		result = classified
	}

	if o.shouldValidate(req.Options, result, fromCache) {
		stageStart = time.Now()
		out := o.validator.Validate(ctx, req.Text, analysis, result)
		resp.Timings.Validation = time.Since(stageStart)
		result = out.Result
		resp.Conflicts = out.Conflicts
		resp.Warnings = append(resp.Warnings, out.Warnings...)
		for _, c := range out.Conflicts {
			if c.Resolution != nil && c.Resolution.Clarification != "" {
				resp.Clarification = c.Resolution.Clarification
				break
			}
		}
	}

	if !fromCache {
		o.cache.Store(cacheReq, result)
	}

	resp.Result = result
	resp.Suggestions = o.buildSuggestions(result, req, analysis)
	resp.Timings.Total = time.Since(start)
	return resp, nil
}

// shouldValidate decides whether the ensemble stage runs for this result.
// High-confidence cache hits always bypass it; under adaptive relaxation,
// high-confidence primary results do too.
func (o *Orchestrator) shouldValidate(opts types.RequestOptions, result types.ClassificationResult, fromCache bool) bool {
	if !o.cfg.Pipeline.EnableValidation || opts.SkipValidation {
		return false
	}
	bypass := o.cfg.Pipeline.HighConfidenceBypass
	if fromCache && result.Confidence >= bypass {
		return false
	}
	if o.relaxed.Load() && result.Confidence >= bypass {
		logging.PipelineDebug("relaxed mode: skipping validation for %s (%.2f)", result.Intent, result.Confidence)
		return false
	}
	return true
}

// buildSuggestions assembles alternative intents to surface next to the
// result: a help hint when classification failed, and the predicted next
// intent when prediction is enabled.
func (o *Orchestrator) buildSuggestions(result types.ClassificationResult, req Request, analysis *types.ContextualAnalysis) []types.Suggestion {
	var out []types.Suggestion
	if result.Intent == types.IntentUnknown {
		out = append(out, types.Suggestion{
			Intent: types.IntentHelpRequest,
			Reason: "say \"help\" to hear what you can do on this page",
		})
	}
	if o.cfg.Pipeline.EnablePrediction && req.Session.UserID != "" && len(analysis.Session.RecentIntents) > 0 {
		if pred, ok := o.cache.PredictNext(req.Session.UserID, analysis.Session.RecentIntents); ok && pred.Intent != result.Intent {
			out = append(out, types.Suggestion{
				Intent: pred.Intent,
				Reason: fmt.Sprintf("you usually do this next (seen %d times)", pred.Frequency),
			})
		}
	}
	return out
}

// LearnFromFeedback folds explicit user feedback into the cache, patterns,
// and per-user learning state.
func (o *Orchestrator) LearnFromFeedback(ctx context.Context, fb Feedback) error {
	if intentcache.NormalizeText(fb.Text) == "" {
		return types.NewInvalidInputError("empty utterance in feedback")
	}
	if !fb.WasCorrect && !types.IsValidIntent(string(fb.ActualIntent)) {
		return types.NewInvalidInputError(fmt.Sprintf("feedback intent %q is not in the taxonomy", fb.ActualIntent))
	}

	analysis := o.analyzer.Analyze(ctx, fb.Page, fb.Session, fb.Role)
	o.cache.RecordFeedback(intentcache.Request{
		Text:     fb.Text,
		UserID:   fb.Session.UserID,
		Analysis: analysis,
	}, fb.ActualIntent, fb.WasCorrect)
	return nil
}

// PredictNextIntent forecasts the user's next intent from their recent
// sequence, when enough history exists.
func (o *Orchestrator) PredictNextIntent(userID string, recentIntents []types.IntentCategory) (intentcache.Prediction, bool) {
	if !o.cfg.Pipeline.EnablePrediction {
		return intentcache.Prediction{}, false
	}
	return o.cache.PredictNext(userID, recentIntents)
}

// CacheStats exposes the cache's counters for the metrics surface.
func (o *Orchestrator) CacheStats() intentcache.Stats {
	return o.cache.Stats()
}

// Close stops background goroutines and flushes learned state.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.stopCh)
		<-o.healthDone
		o.cache.Close()
		logging.Boot("orchestrator closed")
	})
}

func cloneResponse(r *types.Response) *types.Response {
	out := *r
	out.Suggestions = append([]types.Suggestion(nil), r.Suggestions...)
	out.Conflicts = append([]types.Conflict(nil), r.Conflicts...)
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out
}
