package classify

import (
	"context"
	"sync"
	"testing"
	"time"

	"voxnav/internal/config"
	"voxnav/internal/provider"
	"voxnav/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowClient stalls every completion well past the configured budget.
type slowClient struct {
	delay time.Duration
}

func (s *slowClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *slowClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	time.Sleep(s.delay)
	return `{"intent": "go_back", "confidence": 0.95}`, nil
}

func (s *slowClient) ModelID() string { return "slow-model" }

type traceRecorder struct {
	mu     sync.Mutex
	traces []provider.CallTrace
}

func (r *traceRecorder) RecordProviderCall(trace provider.CallTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, trace)
}

func (r *traceRecorder) staleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tr := range r.traces {
		if tr.Stale {
			n++
		}
	}
	return n
}

func TestClassifyEnforcesProviderBudget(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	cfg.TimeoutMs = 30

	sink := &traceRecorder{}
	engine := NewEngine(cfg, provider.NewInstrumentedClient(&slowClient{delay: 300 * time.Millisecond}, sink))

	start := time.Now()
	_, err := engine.Classify(context.Background(), "go back", emptyAnalysis())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrTimeout))
	assert.Less(t, elapsed, 200*time.Millisecond, "the caller must not wait for the slow provider")

	// The slow completion still lands in the background; it is recorded as
	// stale and dropped, never applied to the timed-out request.
	require.Eventually(t, func() bool { return sink.staleCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClassifyOnceWithinBudget(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	cfg.TimeoutMs = 2000

	sink := &traceRecorder{}
	engine := NewEngine(cfg, provider.NewInstrumentedClient(&slowClient{delay: 5 * time.Millisecond}, sink))

	result, err := engine.ClassifyOnce(context.Background(), "go back", emptyAnalysis())
	require.NoError(t, err)
	assert.Equal(t, types.IntentGoBack, result.Intent)
	assert.Equal(t, 0, sink.staleCount())
}
