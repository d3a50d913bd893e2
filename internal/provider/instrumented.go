package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"voxnav/internal/logging"
)

// CallTrace captures one provider interaction for metrics and debugging.
type CallTrace struct {
	Model     string
	Elapsed   time.Duration
	Err       string
	Stale     bool // completed after its caller had already given up
	Timestamp time.Time
}

// TraceSink receives call traces. The orchestrator's metrics collector
// implements this.
type TraceSink interface {
	RecordProviderCall(trace CallTrace)
}

// InstrumentedClient wraps any LLMClient and captures per-call latency. It
// also provides CompleteWithBudget, which races the underlying call against
// a timer. HTTP transports cannot always abort an in-flight call, so a call
// that loses the race keeps running; its eventual result is checked against
// the call's sequence number and discarded, never applied retroactively.
type InstrumentedClient struct {
	underlying LLMClient
	sink       TraceSink

	seq       atomic.Uint64
	mu        sync.Mutex
	abandoned map[uint64]struct{}
}

// NewInstrumentedClient creates an instrumented wrapper. sink may be nil.
func NewInstrumentedClient(underlying LLMClient, sink TraceSink) *InstrumentedClient {
	return &InstrumentedClient{
		underlying: underlying,
		sink:       sink,
		abandoned:  make(map[uint64]struct{}),
	}
}

// Complete sends a prompt and returns the completion.
func (c *InstrumentedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message, recording a trace.
func (c *InstrumentedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	out, err := c.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	c.record(time.Since(start), err, false)
	return out, err
}

// ModelID returns the wrapped client's model identifier.
func (c *InstrumentedClient) ModelID() string { return c.underlying.ModelID() }

type budgetResult struct {
	text string
	err  error
}

// CompleteWithBudget races the call against budget. On timeout it marks the
// call abandoned and returns context.DeadlineExceeded; if the underlying call
// completes later, its result is recorded as stale and dropped.
func (c *InstrumentedClient) CompleteWithBudget(ctx context.Context, systemPrompt, userPrompt string, budget time.Duration) (string, error) {
	id := c.seq.Add(1)
	start := time.Now()
	resultCh := make(chan budgetResult, 1)

	go func() {
		out, err := c.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		stale := c.isAbandoned(id)
		c.record(time.Since(start), err, stale)
		if stale {
			logging.Get(logging.CategoryAPI).Warn("discarding stale completion from %s after %v", c.underlying.ModelID(), time.Since(start))
			return
		}
		resultCh <- budgetResult{text: out, err: err}
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res.text, res.err
	case <-timer.C:
		c.abandon(id)
		return "", context.DeadlineExceeded
	case <-ctx.Done():
		c.abandon(id)
		return "", ctx.Err()
	}
}

func (c *InstrumentedClient) abandon(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandoned[id] = struct{}{}
}

func (c *InstrumentedClient) isAbandoned(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.abandoned[id]; ok {
		delete(c.abandoned, id) // one check per call; keep the map small
		return true
	}
	return false
}

func (c *InstrumentedClient) record(elapsed time.Duration, err error, stale bool) {
	if c.sink == nil {
		return
	}
	trace := CallTrace{
		Model:     c.underlying.ModelID(),
		Elapsed:   elapsed,
		Stale:     stale,
		Timestamp: time.Now(),
	}
	if err != nil {
		trace.Err = err.Error()
	}
	c.sink.RecordProviderCall(trace)
}
