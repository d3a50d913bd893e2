package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voxnav/internal/config"
	"voxnav/internal/contextual"
	"voxnav/internal/ensemble"
	"voxnav/internal/intentcache"
	"voxnav/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// go.opencensus.io starts a worker goroutine in package init (via
	// transitive dependencies); it is not stoppable from test code.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fakeClassifier is a scripted classification stage.
type fakeClassifier struct {
	result types.ClassificationResult
	err    error
	delay  time.Duration

	calls   atomic.Int64
	inspect func(analysis *types.ContextualAnalysis)
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, analysis *types.ContextualAnalysis) (types.ClassificationResult, error) {
	f.calls.Add(1)
	if f.inspect != nil {
		f.inspect(analysis)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.ClassificationResult{}, types.NewTimeoutError("classification", ctx.Err())
		}
	}
	if f.err != nil {
		return types.ClassificationResult{}, f.err
	}
	return f.result, nil
}

// passValidator echoes the primary result as a single-vote ensemble outcome.
type passValidator struct {
	calls atomic.Int64
}

func (p *passValidator) Validate(ctx context.Context, text string, analysis *types.ContextualAnalysis, primary types.ClassificationResult) ensemble.Outcome {
	p.calls.Add(1)
	return ensemble.Outcome{Result: primary}
}

// fakeStore is an in-memory scripted cache.
type fakeStore struct {
	mu           sync.Mutex
	lookupResult types.ClassificationResult
	lookupOK     bool
	stored       []types.ClassificationResult
	feedbacks    int
	pred         intentcache.Prediction
	predOK       bool
}

func (f *fakeStore) Lookup(req intentcache.Request) (types.ClassificationResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupResult, f.lookupOK
}

func (f *fakeStore) Store(req intentcache.Request, result types.ClassificationResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, result)
}

func (f *fakeStore) RecordFeedback(req intentcache.Request, actual types.IntentCategory, wasCorrect bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks++
}

func (f *fakeStore) PredictNext(userID string, recent []types.IntentCategory) (intentcache.Prediction, bool) {
	return f.pred, f.predOK
}

func (f *fakeStore) Stats() intentcache.Stats { return intentcache.Stats{} }
func (f *fakeStore) Close()                   {}

func (f *fakeStore) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

func newTestOrchestrator(cache intentcache.Store, classifier Classifier, validator Validator) *Orchestrator {
	cfg := config.Default()
	return NewWithComponents(cfg, contextual.NewAnalyzer(cfg.Context), cache, classifier, validator)
}

func shopRequest(text string) Request {
	return Request{
		Text: text,
		Page: types.PageSnapshot{
			URL:  "https://shop.example/product/42",
			HTML: `<button>Add to cart</button>`,
			Mode: "view",
		},
		Session: types.SessionSnapshot{SessionID: "s1", UserID: "u1"},
		Role:    "member",
	}
}

func TestProcessIntentClassifiesAndStores(t *testing.T) {
	store := &fakeStore{}
	validator := &passValidator{}
	classifier := &fakeClassifier{result: types.ClassificationResult{
		Intent:     types.IntentAddToCart,
		Confidence: 0.92,
		Parameters: map[string]string{"target": "shirt"},
		Source:     types.SourcePrimary,
		Model:      "fake",
	}}
	o := newTestOrchestrator(store, classifier, validator)
	defer o.Close()

	resp, err := o.ProcessIntent(context.Background(), shopRequest("add this to my cart"))
	require.NoError(t, err)

	want := types.ClassificationResult{
		Intent:     types.IntentAddToCart,
		Confidence: 0.92,
		Parameters: map[string]string{"target": "shirt"},
		Source:     types.SourcePrimary,
		Model:      "fake",
	}
	if diff := cmp.Diff(want, resp.Result, cmpopts.IgnoreFields(types.ClassificationResult{}, "Elapsed")); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	assert.NotEmpty(t, resp.RequestID)
	assert.Greater(t, resp.Timings.Total, time.Duration(0))
	assert.Equal(t, 1, store.storedCount(), "fresh classifications are stored")
	assert.Equal(t, int64(1), validator.calls.Load())
}

func TestProcessIntentCacheHitBypassesValidation(t *testing.T) {
	store := &fakeStore{
		lookupOK: true,
		lookupResult: types.ClassificationResult{
			Intent:     types.IntentAddToCart,
			Confidence: 0.95,
			Source:     types.SourceCache,
		},
	}
	validator := &passValidator{}
	classifier := &fakeClassifier{}
	o := newTestOrchestrator(store, classifier, validator)
	defer o.Close()

	resp, err := o.ProcessIntent(context.Background(), shopRequest("add this to my cart"))
	require.NoError(t, err)

	assert.Equal(t, types.SourceCache, resp.Result.Source)
	assert.Equal(t, types.IntentAddToCart, resp.Result.Intent)
	assert.Equal(t, int64(0), classifier.calls.Load(), "cache hits never call the model")
	assert.Equal(t, int64(0), validator.calls.Load(), "high-confidence cache hits bypass validation")
	assert.Equal(t, 0, store.storedCount(), "cache hits are not re-stored")
}

func TestProcessIntentLowConfidenceCacheHitIsValidated(t *testing.T) {
	store := &fakeStore{
		lookupOK: true,
		lookupResult: types.ClassificationResult{
			Intent:     types.IntentViewCart,
			Confidence: 0.7,
			Source:     types.SourcePattern,
		},
	}
	validator := &passValidator{}
	o := newTestOrchestrator(store, &fakeClassifier{}, validator)
	defer o.Close()

	_, err := o.ProcessIntent(context.Background(), shopRequest("show my cart"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), validator.calls.Load())
}

func TestProcessIntentSkipOptions(t *testing.T) {
	store := &fakeStore{lookupOK: true, lookupResult: types.ClassificationResult{
		Intent: types.IntentGoBack, Confidence: 0.99, Source: types.SourceCache,
	}}
	validator := &passValidator{}
	classifier := &fakeClassifier{result: types.ClassificationResult{
		Intent: types.IntentGoBack, Confidence: 0.9, Source: types.SourcePrimary,
	}}
	o := newTestOrchestrator(store, classifier, validator)
	defer o.Close()

	req := shopRequest("go back")
	req.Options = types.RequestOptions{SkipCache: true, SkipValidation: true}
	resp, err := o.ProcessIntent(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.SourcePrimary, resp.Result.Source, "skip-cache forces classification")
	assert.Equal(t, int64(1), classifier.calls.Load())
	assert.Equal(t, int64(0), validator.calls.Load())
}

func TestProcessIntentUnknownGetsHelpSuggestion(t *testing.T) {
	store := &fakeStore{}
	classifier := &fakeClassifier{result: types.ClassificationResult{
		Intent:     types.IntentUnknown,
		Confidence: 0.25,
		Source:     types.SourcePrimary,
	}}
	o := newTestOrchestrator(store, classifier, &passValidator{})
	defer o.Close()

	resp, err := o.ProcessIntent(context.Background(), shopRequest("xyzzy plugh"))
	require.NoError(t, err)

	assert.Equal(t, types.IntentUnknown, resp.Result.Intent)
	assert.LessOrEqual(t, resp.Result.Confidence, 0.3)
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, types.IntentHelpRequest, resp.Suggestions[0].Intent)
}

func TestProcessIntentTimeout(t *testing.T) {
	classifier := &fakeClassifier{
		delay:  5 * time.Second,
		result: types.ClassificationResult{Intent: types.IntentGoBack, Confidence: 0.9},
	}
	o := newTestOrchestrator(&fakeStore{}, classifier, &passValidator{})
	defer o.Close()

	req := shopRequest("go back")
	req.Options.Timeout = 30 * time.Millisecond

	start := time.Now()
	_, err := o.ProcessIntent(context.Background(), req)
	elapsed := time.Since(start)

	require.Error(t, err)
	pe, ok := types.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrTimeout, pe.Kind)
	assert.True(t, pe.Retryable)
	assert.Less(t, elapsed, 500*time.Millisecond, "timeout must be enforced promptly")
}

func TestProcessIntentEmptyUtterance(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &fakeClassifier{}, &passValidator{})
	defer o.Close()

	_, err := o.ProcessIntent(context.Background(), Request{Text: "   ?!  "})
	require.Error(t, err)
	pe, ok := types.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrInvalidInput, pe.Kind)
	assert.False(t, pe.Retryable, "resubmitting the same empty input cannot succeed")
}

func TestProcessIntentDedupesConcurrentIdenticalUtterances(t *testing.T) {
	classifier := &fakeClassifier{
		delay:  50 * time.Millisecond,
		result: types.ClassificationResult{Intent: types.IntentScrollDown, Confidence: 0.9, Source: types.SourcePrimary},
	}
	o := newTestOrchestrator(&fakeStore{}, classifier, &passValidator{})
	defer o.Close()

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := o.ProcessIntent(context.Background(), shopRequest("scroll down"))
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = resp.RequestID
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, int64(1), classifier.calls.Load(), "identical concurrent utterances share one classification")
	assert.NotEqual(t, ids[0], ids[1], "each caller still gets its own request ID")
}

func TestProcessIntentPassesContextToClassifier(t *testing.T) {
	var seen *types.ContextualAnalysis
	classifier := &fakeClassifier{
		result:  types.ClassificationResult{Intent: types.IntentAddToCart, Confidence: 0.75, Source: types.SourcePrimary},
		inspect: func(a *types.ContextualAnalysis) { seen = a },
	}
	o := newTestOrchestrator(&fakeStore{}, classifier, &passValidator{})
	defer o.Close()

	resp, err := o.ProcessIntent(context.Background(), shopRequest("add this to my cart"))
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "ecommerce", seen.Page.PageType)
	assert.True(t, seen.Page.HasCapability("e-commerce"))
	assert.GreaterOrEqual(t, resp.Result.Confidence, 0.7)
}

func TestLearnFromFeedback(t *testing.T) {
	store := &fakeStore{}
	o := newTestOrchestrator(store, &fakeClassifier{}, &passValidator{})
	defer o.Close()

	err := o.LearnFromFeedback(context.Background(), Feedback{
		Text:         "put it in the basket",
		Session:      types.SessionSnapshot{UserID: "u1"},
		ActualIntent: types.IntentAddToCart,
		WasCorrect:   false,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.feedbacks)

	err = o.LearnFromFeedback(context.Background(), Feedback{
		Text:         "put it in the basket",
		ActualIntent: "order_pizza",
		WasCorrect:   false,
	})
	require.Error(t, err, "corrections must name a taxonomy intent")
	assert.True(t, types.IsKind(err, types.ErrInvalidInput))
}

func TestPredictNextIntent(t *testing.T) {
	store := &fakeStore{
		predOK: true,
		pred:   intentcache.Prediction{Intent: types.IntentViewCart, Confidence: 0.6, Frequency: 4},
	}
	o := newTestOrchestrator(store, &fakeClassifier{}, &passValidator{})
	defer o.Close()

	pred, ok := o.PredictNextIntent("u1", []types.IntentCategory{types.IntentAddToCart})
	require.True(t, ok)
	assert.Equal(t, types.IntentViewCart, pred.Intent)

	o.cfg.Pipeline.EnablePrediction = false
	_, ok = o.PredictNextIntent("u1", []types.IntentCategory{types.IntentAddToCart})
	assert.False(t, ok)
}

func TestMetricsAndHealth(t *testing.T) {
	store := &fakeStore{lookupOK: true, lookupResult: types.ClassificationResult{
		Intent: types.IntentGoBack, Confidence: 0.95, Source: types.SourceCache,
	}}
	o := newTestOrchestrator(store, &fakeClassifier{}, &passValidator{})
	defer o.Close()

	for i := 0; i < 3; i++ {
		_, err := o.ProcessIntent(context.Background(), shopRequest("go back"))
		require.NoError(t, err)
	}

	m := o.GetMetrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(3), m.CacheHits)
	assert.InDelta(t, 1.0, m.CacheHitRate, 1e-9)
	assert.Equal(t, 3, m.RequestsPerMinute)

	o.selfCheck()
	h := o.GetSystemHealth()
	assert.Equal(t, StatusHealthy, h.Status)
	assert.InDelta(t, 1.0, h.CacheHitRate, 1e-9)
}

func TestSelfCheckFlagsDegradedErrorRate(t *testing.T) {
	classifier := &fakeClassifier{err: types.NewModelError("fake", nil)}
	o := newTestOrchestrator(&fakeStore{}, classifier, &passValidator{})
	defer o.Close()

	for i := 0; i < 5; i++ {
		_, err := o.ProcessIntent(context.Background(), shopRequest("go back"))
		require.Error(t, err)
	}

	o.selfCheck()
	h := o.GetSystemHealth()
	assert.Equal(t, StatusDegraded, h.Status)
	assert.True(t, h.Relaxed, "adaptive relaxation engages while degraded")
}
