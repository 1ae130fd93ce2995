package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sweeper periodically removes expired cache entries and simulation results.
type Sweeper struct {
	service *Service
	config  *SweeperConfig
	logger  *slog.Logger

	mu       sync.RWMutex
	ticker   *time.Ticker
	stopChan chan struct{}
	done     sync.WaitGroup
	running  bool

	lastSweep    time.Time
	lastError    error
	sweepCount   int
	failureCount int
	removed      SweepResult
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Interval between sweeps. Default: 1 hour.
	Interval time.Duration

	// StartImmediately sweeps once when Start is called.
	StartImmediately bool

	// OnSweep is called after each sweep attempt.
	OnSweep func(res SweepResult, err error)

	Logger *slog.Logger
}

// DefaultSweeperConfig returns an hourly sweeper config.
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{Interval: time.Hour}
}

// NewSweeper creates a sweeper for service.
func NewSweeper(service *Service, config *SweeperConfig) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		service:  service,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.ticker = time.NewTicker(s.config.Interval)
	s.running = true
	ticker, stop := s.ticker, s.stopChan
	s.mu.Unlock()

	s.done.Add(1)
	go s.run(ticker, stop)
	return nil
}

// Stop halts the sweeper and waits for the loop to exit.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is not running")
	}
	close(s.stopChan)
	s.ticker.Stop()
	s.ticker = nil
	s.running = false
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.done.Wait()
	return nil
}

func (s *Sweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.done.Done()

	if s.config.StartImmediately {
		s.runSweep()
	}
	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-stop:
			return
		}
	}
}

func (s *Sweeper) runSweep() {
	res, err := s.service.Sweep(context.Background())

	s.mu.Lock()
	s.lastSweep = time.Now()
	s.lastError = err
	if err != nil {
		s.failureCount++
	} else {
		s.sweepCount++
		s.removed.Payloads += res.Payloads
		s.removed.Simulations += res.Simulations
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Expired row sweep failed", "error", err)
	} else if res.Payloads > 0 || res.Simulations > 0 {
		s.logger.Info("Swept expired rows", "payloads", res.Payloads, "simulations", res.Simulations)
	}

	if s.config.OnSweep != nil {
		s.config.OnSweep(res, err)
	}
}

// TriggerSweep runs a sweep now, outside the schedule.
func (s *Sweeper) TriggerSweep() error {
	if !s.IsRunning() {
		return fmt.Errorf("sweeper is not running")
	}
	go s.runSweep()
	return nil
}

// IsRunning reports whether the sweeper is started.
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SweeperStatus is a snapshot of sweeper state.
type SweeperStatus struct {
	Running      bool
	Interval     time.Duration
	LastSweep    time.Time
	NextSweep    time.Time
	SweepCount   int
	FailureCount int
	Removed      SweepResult
	LastError    error
}

// Status returns the current sweeper state.
func (s *Sweeper) Status() *SweeperStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next time.Time
	if s.running && !s.lastSweep.IsZero() {
		next = s.lastSweep.Add(s.config.Interval)
	}
	return &SweeperStatus{
		Running:      s.running,
		Interval:     s.config.Interval,
		LastSweep:    s.lastSweep,
		NextSweep:    next,
		SweepCount:   s.sweepCount,
		FailureCount: s.failureCount,
		Removed:      s.removed,
		LastError:    s.lastError,
	}
}

// String renders the status for logs.
func (st *SweeperStatus) String() string {
	if !st.Running {
		return "Sweeper: Stopped"
	}
	var b strings.Builder
	b.WriteString("Sweeper: Running\n")
	fmt.Fprintf(&b, "  Interval: %s\n", st.Interval)
	fmt.Fprintf(&b, "  Sweeps: %d (failures: %d)\n", st.SweepCount, st.FailureCount)
	fmt.Fprintf(&b, "  Removed: %d payloads, %d simulations\n", st.Removed.Payloads, st.Removed.Simulations)
	if !st.LastSweep.IsZero() {
		fmt.Fprintf(&b, "  Last Sweep: %s\n", st.LastSweep.Format(time.RFC3339))
	}
	if st.LastError != nil {
		fmt.Fprintf(&b, "  Last Error: %v\n", st.LastError)
	}
	return b.String()
}
