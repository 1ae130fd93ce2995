package storage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewSweeper_Defaults(t *testing.T) {
	svc, _ := setupTestService(t)

	s := NewSweeper(svc, nil)
	if s.config.Interval != time.Hour {
		t.Errorf("Expected default interval 1h, got %v", s.config.Interval)
	}

	s = NewSweeper(svc, &SweeperConfig{Interval: -time.Second})
	if s.config.Interval != time.Hour {
		t.Errorf("Expected non-positive interval replaced by 1h, got %v", s.config.Interval)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	svc, _ := setupTestService(t)
	s := NewSweeper(svc, &SweeperConfig{Interval: time.Hour})

	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start sweeper: %v", err)
	}
	if !s.IsRunning() {
		t.Error("Expected sweeper to be running")
	}
	if err := s.Start(); err == nil {
		t.Error("Expected error when starting twice")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop sweeper: %v", err)
	}
	if err := s.Stop(); err == nil {
		t.Error("Expected error when stopping a stopped sweeper")
	}

	// Restart works after stop.
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to restart sweeper: %v", err)
	}
	_ = s.Stop()
}

func TestSweeper_StartImmediately(t *testing.T) {
	svc, clock := setupTestService(t)
	ctx := context.Background()

	if err := svc.PutPayload(ctx, "stale", 1, time.Minute); err != nil {
		t.Fatalf("Failed to cache payload: %v", err)
	}
	clock.t = clock.t.Add(time.Hour)

	var (
		mu      sync.Mutex
		results []SweepResult
		done    = make(chan struct{})
	)
	s := NewSweeper(svc, &SweeperConfig{
		Interval:         time.Hour,
		StartImmediately: true,
		OnSweep: func(res SweepResult, err error) {
			if err != nil {
				t.Errorf("Sweep failed: %v", err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			close(done)
		},
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start sweeper: %v", err)
	}
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for immediate sweep")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || results[0].Payloads != 1 {
		t.Errorf("Expected one sweep removing 1 payload, got %+v", results)
	}

	status := s.Status()
	if status.SweepCount != 1 || status.Removed.Payloads != 1 {
		t.Errorf("Unexpected status %+v", status)
	}
	if !strings.Contains(status.String(), "Removed: 1 payloads") {
		t.Errorf("Unexpected status string %q", status.String())
	}
}

func TestSweeper_TriggerRequiresRunning(t *testing.T) {
	svc, _ := setupTestService(t)
	s := NewSweeper(svc, nil)

	if err := s.TriggerSweep(); err == nil {
		t.Error("Expected error when triggering a stopped sweeper")
	}
	if got := s.Status().String(); got != "Sweeper: Stopped" {
		t.Errorf("Expected stopped status, got %q", got)
	}
}
