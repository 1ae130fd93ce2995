package simulation

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"

	"github.com/ramonehamilton/CHUNI-Companion/internal/events"
)

type userKey struct{}

// WithUser tags runs submitted with ctx with the player they belong to.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the player set by WithUser, or "".
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Workers bounds concurrent runs. Defaults to runtime.NumCPU().
	Workers int
	// QueueSize bounds pending runs before Submit blocks. Defaults to 64.
	QueueSize int
	// Dispatcher receives simulation lifecycle events. Optional.
	Dispatcher *events.Dispatcher
	Logger     *slog.Logger
}

// Runner executes simulations on a bounded worker pool.
type Runner struct {
	pool       *pond.WorkerPool
	dispatcher *events.Dispatcher
	logger     *slog.Logger
}

// NewRunner starts a worker pool.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger
	return &Runner{
		pool: pond.New(cfg.Workers, cfg.QueueSize,
			pond.MinWorkers(1),
			pond.IdleTimeout(30*time.Second),
			pond.PanicHandler(func(p interface{}) {
				logger.Error("simulation worker panic", "panic", p)
			}),
		),
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}
}

// Submit queues a run and returns a channel that receives exactly one
// Output. An empty id is replaced with a generated one. If ctx is done
// before the run starts, the output reports the cancellation.
func (r *Runner) Submit(ctx context.Context, id string, in Input) <-chan Output {
	if id == "" {
		id = uuid.NewString()
	}
	ch := make(chan Output, 1)
	r.pool.Submit(func() {
		ch <- r.execute(ctx, id, in)
		close(ch)
	})
	return ch
}

// Run submits a run and waits for its output or for ctx to end. A full
// queue does not hold the caller past ctx.
func (r *Runner) Run(ctx context.Context, id string, in Input) (Output, error) {
	submitted := make(chan (<-chan Output), 1)
	go func() {
		submitted <- r.Submit(ctx, id, in)
	}()

	select {
	case ch := <-submitted:
		select {
		case out := <-ch:
			return out, nil
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}

// RunBatch runs all inputs on the pool and returns outputs in input order.
func (r *Runner) RunBatch(ctx context.Context, inputs []Input) []Output {
	outputs := make([]Output, len(inputs))
	group := r.pool.Group()
	for i := range inputs {
		group.Submit(func() {
			outputs[i] = r.execute(ctx, uuid.NewString(), inputs[i])
		})
	}
	group.Wait()
	return outputs
}

func (r *Runner) execute(ctx context.Context, id string, in Input) Output {
	if err := ctx.Err(); err != nil {
		out := ErrorOutput(PhaseErrorSimulationLogic, err, nil)
		r.completed(ctx, id, out, 0)
		return out
	}

	r.dispatch(events.NewTypedEvent(events.SimulationStarted, events.SimulationStartedEvent{
		RunID:      id,
		User:       UserFromContext(ctx),
		Mode:       string(in.Mode),
		Preference: string(in.Preference),
		Target:     in.TargetRating,
	}, ctx))

	start := time.Now()
	out := RunSafe(in)
	elapsed := time.Since(start)

	r.logger.Debug("simulation finished",
		"run_id", id,
		"mode", in.Mode,
		"phase", out.FinalPhase,
		"iterations", out.Iterations,
		"duration", elapsed)
	r.completed(ctx, id, out, elapsed)
	return out
}

func (r *Runner) completed(ctx context.Context, id string, out Output, elapsed time.Duration) {
	eventType := events.SimulationCompleted
	if out.FinalPhase.IsError() {
		eventType = events.SimulationFailed
	}
	r.dispatch(events.NewTypedEvent(eventType, events.SimulationCompletedEvent{
		RunID:        id,
		User:         UserFromContext(ctx),
		Phase:        string(out.FinalPhase),
		FinalOverall: out.FinalOverallRating,
		Iterations:   out.Iterations,
		DurationMs:   float64(elapsed.Microseconds()) / 1000,
		Error:        out.Error,
	}, ctx))
}

func (r *Runner) dispatch(event events.Event) {
	if r.dispatcher != nil {
		r.dispatcher.Dispatch(event)
	}
}

// Stats reports pool counters.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		RunningWorkers: r.pool.RunningWorkers(),
		WaitingTasks:   r.pool.WaitingTasks(),
		SubmittedTasks: r.pool.SubmittedTasks(),
		CompletedTasks: r.pool.CompletedTasks(),
	}
}

// RunnerStats is a snapshot of pool counters.
type RunnerStats struct {
	RunningWorkers int    `json:"runningWorkers"`
	WaitingTasks   uint64 `json:"waitingTasks"`
	SubmittedTasks uint64 `json:"submittedTasks"`
	CompletedTasks uint64 `json:"completedTasks"`
}

// Stop waits for queued runs to finish and releases the workers.
func (r *Runner) Stop() {
	r.pool.StopAndWait()
}
