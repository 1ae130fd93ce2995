// Package metrics collects in-process latency and counter metrics for the
// simulation service and its upstream calls.
package metrics

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PlannerMetrics tracks simulation runs, upstream requests and cache use.
type PlannerMetrics struct {
	SimulationLatency *Histogram
	UpstreamLatency   *Histogram

	Simulations      atomic.Uint64
	SimulationErrors atomic.Uint64
	TargetsReached   atomic.Uint64
	StuckRuns        atomic.Uint64
	UpstreamRequests atomic.Uint64
	UpstreamErrors   atomic.Uint64
	CacheHits        atomic.Uint64
	CacheMisses      atomic.Uint64

	mu        sync.RWMutex
	startTime time.Time
}

// NewPlannerMetrics creates a collector.
func NewPlannerMetrics() *PlannerMetrics {
	return &PlannerMetrics{
		SimulationLatency: NewHistogram(defaultHistogramSize),
		UpstreamLatency:   NewHistogram(defaultHistogramSize),
		startTime:         time.Now(),
	}
}

// RecordSimulation counts one finished run. phase is the engine's final
// phase string.
func (m *PlannerMetrics) RecordSimulation(d time.Duration, phase string, failed bool) {
	m.SimulationLatency.Record(d)
	m.Simulations.Add(1)
	switch {
	case failed:
		m.SimulationErrors.Add(1)
	case phase == "target_reached":
		m.TargetsReached.Add(1)
	case strings.HasPrefix(phase, "stuck_"):
		m.StuckRuns.Add(1)
	}
}

// RecordUpstream counts one upstream response. It matches the chunirec
// client's OnResponse hook; status 0 means the request never completed.
func (m *PlannerMetrics) RecordUpstream(_ string, status int, d time.Duration) {
	m.UpstreamLatency.Record(d)
	m.UpstreamRequests.Add(1)
	if status == 0 || status >= 400 {
		m.UpstreamErrors.Add(1)
	}
}

// RecordCache counts a payload cache lookup.
func (m *PlannerMetrics) RecordCache(hit bool) {
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// PlannerStats is a point-in-time view of PlannerMetrics.
type PlannerStats struct {
	SimulationLatency LatencyStats `json:"simulation_latency"`
	UpstreamLatency   LatencyStats `json:"upstream_latency"`

	Simulations         uint64  `json:"simulations"`
	SimulationErrors    uint64  `json:"simulation_errors"`
	TargetsReached      uint64  `json:"targets_reached"`
	StuckRuns           uint64  `json:"stuck_runs"`
	UpstreamRequests    uint64  `json:"upstream_requests"`
	UpstreamErrors      uint64  `json:"upstream_errors"`
	CacheHits           uint64  `json:"cache_hits"`
	CacheMisses         uint64  `json:"cache_misses"`
	CacheHitRate        float64 `json:"cache_hit_rate"`        // percentage
	UpstreamSuccessRate float64 `json:"upstream_success_rate"` // percentage

	Uptime string `json:"uptime"`
}

// GetStats returns a snapshot of the current statistics.
func (m *PlannerMetrics) GetStats() *PlannerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits, misses := m.CacheHits.Load(), m.CacheMisses.Load()
	requests, upErrs := m.UpstreamRequests.Load(), m.UpstreamErrors.Load()

	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}
	successRate := 0.0
	if requests > 0 {
		successRate = float64(requests-upErrs) / float64(requests) * 100
	}

	return &PlannerStats{
		SimulationLatency:   m.SimulationLatency.Stats(),
		UpstreamLatency:     m.UpstreamLatency.Stats(),
		Simulations:         m.Simulations.Load(),
		SimulationErrors:    m.SimulationErrors.Load(),
		TargetsReached:      m.TargetsReached.Load(),
		StuckRuns:           m.StuckRuns.Load(),
		UpstreamRequests:    requests,
		UpstreamErrors:      upErrs,
		CacheHits:           hits,
		CacheMisses:         misses,
		CacheHitRate:        hitRate,
		UpstreamSuccessRate: successRate,
		Uptime:              time.Since(m.startTime).Round(time.Second).String(),
	}
}

// Reset clears all metrics.
func (m *PlannerMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SimulationLatency.Reset()
	m.UpstreamLatency.Reset()
	for _, c := range []*atomic.Uint64{
		&m.Simulations, &m.SimulationErrors, &m.TargetsReached, &m.StuckRuns,
		&m.UpstreamRequests, &m.UpstreamErrors, &m.CacheHits, &m.CacheMisses,
	} {
		c.Store(0)
	}
	m.startTime = time.Now()
}
