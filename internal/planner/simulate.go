package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
	"github.com/ramonehamilton/CHUNI-Companion/internal/storage/models"
)

// Request asks for a simulation of a live player.
type Request struct {
	User                 string                `json:"user"`
	TargetRating         float64               `json:"targetRating"`
	Mode                 simulation.Mode       `json:"simulationMode,omitempty"`
	Preference           simulation.Preference `json:"algorithmPreference,omitempty"`
	IsScoreLimitReleased bool                  `json:"isScoreLimitReleased"`
	// ExcludedSongKeys overrides the stored exclusions when non-nil.
	ExcludedSongKeys []string `json:"excludedSongKeys,omitempty"`
	Refresh          bool     `json:"refresh,omitempty"`
}

// Result is one finished, stored simulation.
type Result struct {
	ID         string            `json:"id"`
	User       string            `json:"user,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	DurationMs float64           `json:"durationMs"`
	Input      *simulation.Input `json:"input,omitempty"`
	Output     simulation.Output `json:"output"`
}

// BuildInput assembles the engine input for player. Empty mode and
// preference fall back to the given defaults.
func BuildInput(player *Player, req *Request, excluded []string) simulation.Input {
	snap := player.Data
	return simulation.Input{
		OriginalB30Songs:      player.B30,
		OriginalNew20Songs:    player.N20,
		AllPlayedNewSongsPool: player.NewSongsPool,
		AllMusicData:          player.Music,
		UserPlayHistory:       player.Records,
		NewSongsTitles:        snap.NewSongs.All(),
		ConstOverrides:        snap.Overrides,
		CurrentRating:         player.CurrentRating,
		TargetRating:          req.TargetRating,
		Mode:                  req.Mode,
		Preference:            req.Preference,
		IsScoreLimitReleased:  req.IsScoreLimitReleased,
		ExcludedSongKeys:      excluded,
	}
}

func (s *Service) validate(req *Request) error {
	if req.User == "" {
		return fmt.Errorf("%w: user name is required", ErrInvalidRequest)
	}
	if req.Mode == "" {
		req.Mode = s.defaultMode
	}
	if req.Preference == "" {
		req.Preference = s.defaultPref
	}
	if req.Mode == simulation.ModeCustom {
		return fmt.Errorf("%w: custom runs take a full input", ErrInvalidRequest)
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: unknown simulation mode %q", ErrInvalidRequest, req.Mode)
	}
	if !req.Preference.Valid() {
		return fmt.Errorf("%w: unknown algorithm preference %q", ErrInvalidRequest, req.Preference)
	}
	if req.TargetRating <= 0 || math.IsNaN(req.TargetRating) || math.IsInf(req.TargetRating, 0) {
		return fmt.Errorf("%w: target rating must be a positive number", ErrInvalidRequest)
	}
	return nil
}

// Simulate loads req.User, plans toward req.TargetRating and stores the
// result. Data fetch failures are returned as *FetchError.
func (s *Service) Simulate(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	player, err := s.LoadPlayer(ctx, req.User, req.Refresh)
	if err != nil {
		return nil, err
	}

	excluded := req.ExcludedSongKeys
	if excluded == nil {
		if excluded, err = s.Excluded(ctx, req.User); err != nil {
			return nil, fmt.Errorf("failed to load exclusions: %w", err)
		}
	}

	in := BuildInput(player, &req, NormalizeKeys(excluded))
	return s.run(simulation.WithUser(ctx, req.User), req.User, in)
}

// SimulateInput runs a caller-supplied input, such as a custom song list.
// The player set with simulation.WithUser on ctx, if any, owns the result.
func (s *Service) SimulateInput(ctx context.Context, in simulation.Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.run(ctx, simulation.UserFromContext(ctx), in)
}

func (s *Service) run(ctx context.Context, user string, in simulation.Input) (*Result, error) {
	id := uuid.NewString()
	start := s.now()

	var out simulation.Output
	if reachable, ok := Precheck(&in); !ok {
		s.logger.Info("Target above reachable rating",
			"user", user, "target", in.TargetRating, "reachable", reachable)
		out = UnreachableOutput(&in, reachable)
	} else {
		var err error
		out, err = s.runner.Run(ctx, id, in)
		if err != nil {
			return nil, fmt.Errorf("simulation %s interrupted: %w", id, err)
		}
	}
	elapsed := s.now().Sub(start)
	s.metrics.RecordSimulation(elapsed, string(out.FinalPhase), out.FinalPhase.IsError())

	res := &Result{
		ID:         id,
		User:       user,
		CreatedAt:  start,
		ExpiresAt:  start.Add(s.resultTTL),
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		Input:      &in,
		Output:     out,
	}
	if err := s.save(ctx, res); err != nil {
		s.logger.Warn("Failed to store simulation", "id", id, "error", err)
	}
	return res, nil
}

func (s *Service) save(ctx context.Context, res *Result) error {
	if s.store == nil {
		return nil
	}
	inputJSON, err := json.Marshal(res.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}
	outputJSON, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return s.store.SaveSimulation(ctx, &models.SimulationRecord{
		ID:           res.ID,
		User:         res.User,
		Mode:         string(res.Input.Mode),
		Preference:   string(res.Input.Preference),
		TargetRating: res.Input.TargetRating,
		FinalPhase:   string(res.Output.FinalPhase),
		FinalOverall: res.Output.FinalOverallRating,
		Iterations:   res.Output.Iterations,
		DurationMs:   int64(math.Round(res.DurationMs)),
		InputJSON:    inputJSON,
		OutputJSON:   outputJSON,
		CreatedAt:    res.CreatedAt,
		ExpiresAt:    res.ExpiresAt,
	})
}

// GetResult returns a stored simulation. withInput also decodes the input,
// which carries the whole catalog and is large.
func (s *Service) GetResult(ctx context.Context, id string, withInput bool) (*Result, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	rec, err := s.store.GetSimulation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load simulation %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}

	res := &Result{
		ID:         rec.ID,
		User:       rec.User,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
		DurationMs: float64(rec.DurationMs),
	}
	if err := json.Unmarshal(rec.OutputJSON, &res.Output); err != nil {
		return nil, fmt.Errorf("failed to decode simulation %s: %w", id, err)
	}
	if withInput && len(rec.InputJSON) > 0 {
		res.Input = &simulation.Input{}
		if err := json.Unmarshal(rec.InputJSON, res.Input); err != nil {
			return nil, fmt.Errorf("failed to decode simulation input %s: %w", id, err)
		}
	}
	return res, nil
}

// ListResults returns the newest stored runs of user.
func (s *Service) ListResults(ctx context.Context, user string, limit int) ([]*models.SimulationSummary, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListSimulations(ctx, user, limit)
}

// Refresh drops every cached payload of user.
func (s *Service) Refresh(ctx context.Context, user string) error {
	if s.store == nil {
		return nil
	}
	_, err := s.store.InvalidatePrefix(ctx, UserCachePrefix(user))
	return err
}
