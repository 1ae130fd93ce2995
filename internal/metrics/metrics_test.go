package metrics

import (
	"testing"
	"time"
)

func TestHistogram_Stats(t *testing.T) {
	h := NewHistogram(100)
	for i := 1; i <= 5; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	stats := h.Stats()
	if stats.Count != 5 {
		t.Errorf("Expected 5 samples, got %d", stats.Count)
	}
	if stats.Mean != 3 {
		t.Errorf("Expected mean 3, got %f", stats.Mean)
	}
	if stats.Min != 1 || stats.Max != 5 {
		t.Errorf("Expected min 1 max 5, got %f %f", stats.Min, stats.Max)
	}
	if stats.P50 != 3 {
		t.Errorf("Expected p50 3, got %f", stats.P50)
	}
	if got := h.Percentile(25); got != 2 {
		t.Errorf("Expected p25 2, got %f", got)
	}
}

func TestHistogram_Empty(t *testing.T) {
	h := NewHistogram(0)
	if stats := h.Stats(); stats != (LatencyStats{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
	if h.Percentile(99) != 0 {
		t.Error("Expected 0 percentile for empty histogram")
	}
}

func TestHistogram_Trims(t *testing.T) {
	h := NewHistogram(10)
	for i := 0; i < 11; i++ {
		h.Record(time.Millisecond)
	}
	if h.Count() != 9 {
		t.Errorf("Expected 9 samples after trim, got %d", h.Count())
	}
	h.Reset()
	if h.Count() != 0 {
		t.Errorf("Expected 0 samples after reset, got %d", h.Count())
	}
}

func TestPlannerMetrics_Counters(t *testing.T) {
	m := NewPlannerMetrics()

	m.RecordSimulation(10*time.Millisecond, "target_reached", false)
	m.RecordSimulation(20*time.Millisecond, "stuck_both_no_improvement", false)
	m.RecordSimulation(5*time.Millisecond, "error_simulation_logic", true)
	m.RecordUpstream("records/profile.json", 200, time.Millisecond)
	m.RecordUpstream("records/profile.json", 429, time.Millisecond)
	m.RecordUpstream("records/profile.json", 0, time.Millisecond)
	m.RecordUpstream("records/profile.json", 200, time.Millisecond)
	m.RecordCache(true)
	m.RecordCache(true)
	m.RecordCache(true)
	m.RecordCache(false)

	stats := m.GetStats()
	if stats.Simulations != 3 {
		t.Errorf("Expected 3 simulations, got %d", stats.Simulations)
	}
	if stats.TargetsReached != 1 || stats.StuckRuns != 1 || stats.SimulationErrors != 1 {
		t.Errorf("Unexpected outcome counters: %+v", stats)
	}
	if stats.UpstreamErrors != 2 {
		t.Errorf("Expected 2 upstream errors, got %d", stats.UpstreamErrors)
	}
	if stats.UpstreamSuccessRate != 50 {
		t.Errorf("Expected 50%% upstream success, got %f", stats.UpstreamSuccessRate)
	}
	if stats.CacheHitRate != 75 {
		t.Errorf("Expected 75%% cache hit rate, got %f", stats.CacheHitRate)
	}
	if stats.SimulationLatency.Count != 3 {
		t.Errorf("Expected 3 latency samples, got %d", stats.SimulationLatency.Count)
	}

	m.Reset()
	if s := m.GetStats(); s.Simulations != 0 || s.CacheHits != 0 || s.SimulationLatency.Count != 0 {
		t.Errorf("Expected cleared metrics, got %+v", s)
	}
}
