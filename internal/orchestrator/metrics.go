package orchestrator

import (
	"sync"
	"time"

	"voxnav/internal/provider"
	"voxnav/internal/types"
)

// throughputWindow is the sliding window for the requests-per-minute figure.
const throughputWindow = 60 * time.Second

// Metrics is a point-in-time snapshot of pipeline performance.
type Metrics struct {
	TotalRequests int64   `json:"total_requests"`
	Errors        int64   `json:"errors"`
	ErrorRate     float64 `json:"error_rate"`

	CacheHits    int64   `json:"cache_hits"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	AvgLatency    time.Duration      `json:"avg_latency"`
	StageAverages types.StageTimings `json:"stage_averages"`

	RequestsPerMinute int `json:"requests_per_minute"`

	ProviderCalls  int64 `json:"provider_calls"`
	ProviderErrors int64 `json:"provider_errors"`
	StaleResults   int64 `json:"stale_results"`
}

// collector accumulates rolling pipeline metrics. It doubles as the
// provider.TraceSink so instrumented clients report straight into it.
type collector struct {
	mu sync.Mutex

	total     int64
	errors    int64
	cacheHits int64

	latencySum time.Duration
	stageSums  types.StageTimings
	timedN     int64

	recent []time.Time // completion times inside the throughput window

	providerCalls  int64
	providerErrors int64
	staleResults   int64
}

func newCollector() *collector {
	return &collector{}
}

// RecordProviderCall implements provider.TraceSink.
func (c *collector) RecordProviderCall(trace provider.CallTrace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providerCalls++
	if trace.Err != "" {
		c.providerErrors++
	}
	if trace.Stale {
		c.staleResults++
	}
}

// observe records one finished request.
func (c *collector) observe(resp *types.Response, err error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if err != nil {
		c.errors++
		return
	}

	if resp.Result.Source == types.SourceCache || resp.Result.Source == types.SourcePattern {
		c.cacheHits++
	}

	c.latencySum += resp.Timings.Total
	c.stageSums.Context += resp.Timings.Context
	c.stageSums.Cache += resp.Timings.Cache
	c.stageSums.Classification += resp.Timings.Classification
	c.stageSums.Validation += resp.Timings.Validation
	c.timedN++

	c.recent = append(c.recent, now)
	c.trimRecentLocked(now)
}

func (c *collector) trimRecentLocked(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	i := 0
	for ; i < len(c.recent) && c.recent[i].Before(cutoff); i++ {
	}
	if i > 0 {
		c.recent = append(c.recent[:0], c.recent[i:]...)
	}
}

// snapshot returns the current metrics.
func (c *collector) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trimRecentLocked(time.Now())

	m := Metrics{
		TotalRequests:     c.total,
		Errors:            c.errors,
		CacheHits:         c.cacheHits,
		RequestsPerMinute: len(c.recent),
		ProviderCalls:     c.providerCalls,
		ProviderErrors:    c.providerErrors,
		StaleResults:      c.staleResults,
	}
	if c.total > 0 {
		m.ErrorRate = float64(c.errors) / float64(c.total)
		m.CacheHitRate = float64(c.cacheHits) / float64(c.total)
	}
	if c.timedN > 0 {
		n := time.Duration(c.timedN)
		m.AvgLatency = c.latencySum / n
		m.StageAverages = types.StageTimings{
			Context:        c.stageSums.Context / n,
			Cache:          c.stageSums.Cache / n,
			Classification: c.stageSums.Classification / n,
			Validation:     c.stageSums.Validation / n,
			Total:          c.latencySum / n,
		}
	}
	return m
}
