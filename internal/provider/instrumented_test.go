package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient is a controllable LLMClient.
type scriptedClient struct {
	response string
	err      error
	delay    time.Duration
}

func (s *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *scriptedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.response, s.err
}

func (s *scriptedClient) ModelID() string { return "scripted" }

// recordingSink collects traces.
type recordingSink struct {
	mu     sync.Mutex
	traces []CallTrace
}

func (r *recordingSink) RecordProviderCall(trace CallTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, trace)
}

func (r *recordingSink) snapshot() []CallTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallTrace(nil), r.traces...)
}

func TestInstrumentedCompleteRecordsTrace(t *testing.T) {
	sink := &recordingSink{}
	c := NewInstrumentedClient(&scriptedClient{response: "ok"}, sink)

	out, err := c.CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	traces := sink.snapshot()
	require.Len(t, traces, 1)
	assert.Equal(t, "scripted", traces[0].Model)
	assert.False(t, traces[0].Stale)
	assert.Empty(t, traces[0].Err)
}

func TestInstrumentedRecordsErrors(t *testing.T) {
	sink := &recordingSink{}
	c := NewInstrumentedClient(&scriptedClient{err: errors.New("rate limited")}, sink)

	_, err := c.Complete(context.Background(), "hi")
	require.Error(t, err)

	traces := sink.snapshot()
	require.Len(t, traces, 1)
	assert.Equal(t, "rate limited", traces[0].Err)
}

func TestCompleteWithBudgetTimesOut(t *testing.T) {
	sink := &recordingSink{}
	c := NewInstrumentedClient(&scriptedClient{response: "late", delay: 200 * time.Millisecond}, sink)

	start := time.Now()
	_, err := c.CompleteWithBudget(context.Background(), "", "user", 20*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 150*time.Millisecond, "caller must not wait past the budget")

	// The underlying call finishes later; its trace is marked stale and the
	// result is dropped rather than delivered.
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, sink.snapshot()[0].Stale)
}

func TestCompleteWithBudgetWithinBudget(t *testing.T) {
	sink := &recordingSink{}
	c := NewInstrumentedClient(&scriptedClient{response: "fast"}, sink)

	out, err := c.CompleteWithBudget(context.Background(), "", "user", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fast", out)

	traces := sink.snapshot()
	require.Len(t, traces, 1)
	assert.False(t, traces[0].Stale)
}

func TestCompleteWithBudgetHonorsCancellation(t *testing.T) {
	c := NewInstrumentedClient(&scriptedClient{response: "x", delay: 200 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.CompleteWithBudget(ctx, "", "user", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
