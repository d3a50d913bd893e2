package orchestrator

import (
	"time"

	"voxnav/internal/logging"
)

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// latencyDegradedFactor: health flips to degraded when the rolling average
// latency exceeds this multiple of the configured target.
const latencyDegradedFactor = 1.5

// errorRateDegraded is the error-rate ceiling for healthy status.
const errorRateDegraded = 0.10

// errorRateRecovered is the hysteresis floor below which a degraded pipeline
// is considered recovered.
const errorRateRecovered = 0.05

// Health is the pipeline's self-assessed condition.
type Health struct {
	Status       string        `json:"status"`
	AvgLatency   time.Duration `json:"avg_latency"`
	ErrorRate    float64       `json:"error_rate"`
	CacheHitRate float64       `json:"cache_hit_rate"`
	Relaxed      bool          `json:"relaxed"` // adaptive relaxation active
	CheckedAt    time.Time     `json:"checked_at"`
}

// healthLoop runs the periodic self-check until Close.
func (o *Orchestrator) healthLoop() {
	defer close(o.healthDone)
	ticker := time.NewTicker(o.cfg.Pipeline.HealthCheckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.selfCheck()
		}
	}
}

// selfCheck recomputes health from the rolling metrics, with hysteresis so
// the pipeline does not flap between states at the error-rate boundary.
func (o *Orchestrator) selfCheck() {
	m := o.metrics.snapshot()

	o.healthMu.Lock()
	wasDegraded := o.health.Status == StatusDegraded

	degraded := false
	if m.TotalRequests > 0 {
		latencyBad := m.AvgLatency > time.Duration(float64(o.cfg.Pipeline.Target())*latencyDegradedFactor)
		errorsBad := m.ErrorRate > errorRateDegraded
		stillBad := wasDegraded && m.ErrorRate > errorRateRecovered
		degraded = latencyBad || errorsBad || stillBad
	}

	o.health = Health{
		Status:       StatusHealthy,
		AvgLatency:   m.AvgLatency,
		ErrorRate:    m.ErrorRate,
		CacheHitRate: m.CacheHitRate,
		CheckedAt:    time.Now(),
	}
	if degraded {
		o.health.Status = StatusDegraded
	}

	relax := degraded && o.cfg.Pipeline.AdaptiveRelaxation
	o.health.Relaxed = relax
	o.healthMu.Unlock()

	o.relaxed.Store(relax)

	if degraded != wasDegraded {
		logging.Metrics("health transition: degraded=%v avg_latency=%v error_rate=%.3f relaxed=%v",
			degraded, m.AvgLatency, m.ErrorRate, relax)
	} else {
		logging.MetricsDebug("health check: status=%s avg_latency=%v error_rate=%.3f hit_rate=%.3f",
			o.health.Status, m.AvgLatency, m.ErrorRate, m.CacheHitRate)
	}
}

// GetSystemHealth returns the result of the most recent self-check.
func (o *Orchestrator) GetSystemHealth() Health {
	o.healthMu.RLock()
	defer o.healthMu.RUnlock()
	return o.health
}

// GetMetrics returns a snapshot of the rolling pipeline metrics.
func (o *Orchestrator) GetMetrics() Metrics {
	return o.metrics.snapshot()
}
