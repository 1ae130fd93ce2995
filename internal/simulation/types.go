package simulation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

// Mode selects which list(s) the engine improves.
type Mode string

const (
	ModeB30Only Mode = "b30_only"
	ModeN20Only Mode = "n20_only"
	ModeHybrid  Mode = "hybrid"
	ModeCustom  Mode = "custom"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeB30Only, ModeN20Only, ModeHybrid, ModeCustom:
		return true
	}
	return false
}

// Preference selects the candidate ordering.
type Preference string

const (
	// PreferFloor raises the weakest, lowest-constant songs first.
	PreferFloor Preference = "floor"
	// PreferPeak pushes the strongest songs further.
	PreferPeak Preference = "peak"
)

// Valid reports whether p is a known preference.
func (p Preference) Valid() bool {
	return p == PreferFloor || p == PreferPeak
}

// Phase is the engine state. Every Output carries a terminal phase.
type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseSimulating            Phase = "simulating"
	PhaseTargetReached         Phase = "target_reached"
	PhaseStuckB30              Phase = "stuck_b30_no_improvement"
	PhaseStuckN20              Phase = "stuck_n20_no_improvement"
	PhaseStuckBoth             Phase = "stuck_both_no_improvement"
	PhaseTargetUnreachableInfo Phase = "target_unreachable_info"
	PhaseErrorSimulationLogic  Phase = "error_simulation_logic"
	PhaseErrorDataFetch        Phase = "error_data_fetch"
)

// IsStuck reports whether the phase is one of the no-improvement outcomes.
func (p Phase) IsStuck() bool {
	return p == PhaseStuckB30 || p == PhaseStuckN20 || p == PhaseStuckBoth
}

// IsError reports whether the phase describes a failure rather than a result.
func (p Phase) IsError() bool {
	return p == PhaseErrorSimulationLogic || p == PhaseErrorDataFetch
}

// ErrInvalidInput is wrapped by every Validate failure.
var ErrInvalidInput = errors.New("invalid simulation input")

// Input is the full, immutable description of one simulation run.
type Input struct {
	OriginalB30Songs      []rating.Song          `json:"originalB30Songs"`
	OriginalNew20Songs    []rating.Song          `json:"originalNew20Songs"`
	AllPlayedNewSongsPool []rating.Song          `json:"allPlayedNewSongsPool"`
	AllMusicData          []rating.Record        `json:"allMusicData"`
	UserPlayHistory       []rating.Record        `json:"userPlayHistory"`
	NewSongsTitles        []string               `json:"newSongsTitles"`
	ConstOverrides        []rating.ConstOverride `json:"constOverrides"`
	CurrentRating         float64                `json:"currentRating"`
	TargetRating          float64                `json:"targetRating"`
	Mode                  Mode                   `json:"simulationMode"`
	Preference            Preference             `json:"algorithmPreference"`
	IsScoreLimitReleased  bool                   `json:"isScoreLimitReleased"`
	ExcludedSongKeys      []string               `json:"excludedSongKeys"`
	CustomSongs           []rating.Song          `json:"customSongs,omitempty"`
}

// Validate checks the fields the engine cannot run without.
func (in *Input) Validate() error {
	if !in.Mode.Valid() {
		return fmt.Errorf("%w: unknown simulation mode %q", ErrInvalidInput, in.Mode)
	}
	if !in.Preference.Valid() {
		return fmt.Errorf("%w: unknown algorithm preference %q", ErrInvalidInput, in.Preference)
	}
	if math.IsNaN(in.TargetRating) || math.IsInf(in.TargetRating, 0) {
		return fmt.Errorf("%w: target rating must be a finite number", ErrInvalidInput)
	}
	if math.IsNaN(in.CurrentRating) || math.IsInf(in.CurrentRating, 0) {
		return fmt.Errorf("%w: current rating must be a finite number", ErrInvalidInput)
	}
	return nil
}

// Output is the result of a run. It is always populated, even on failure.
type Output struct {
	SimulatedB30Songs       []rating.Song `json:"simulatedB30Songs"`
	SimulatedNew20Songs     []rating.Song `json:"simulatedNew20Songs"`
	FinalAverageB30Rating   *float64      `json:"finalAverageB30Rating"`
	FinalAverageNew20Rating *float64      `json:"finalAverageNew20Rating"`
	FinalOverallRating      float64       `json:"finalOverallRating"`
	FinalPhase              Phase         `json:"finalPhase"`
	SimulationLog           []string      `json:"simulationLog"`
	Error                   string        `json:"error,omitempty"`
	ReachableRating         *float64      `json:"reachableRating,omitempty"`
	Iterations              int           `json:"iterations"`
}

// ErrorOutput builds the empty output reported for a failed run.
func ErrorOutput(phase Phase, err error, log []string) Output {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Output{
		SimulatedB30Songs:   []rating.Song{},
		SimulatedNew20Songs: []rating.Song{},
		FinalPhase:          phase,
		SimulationLog:       append(log, "[ERROR] "+msg),
		Error:               msg,
	}
}

// normalizeKey upper-cases the difficulty suffix of a "{id}_{DIFF}" key.
func normalizeKey(key string) string {
	i := strings.LastIndex(key, "_")
	if i < 0 {
		return key
	}
	return key[:i+1] + strings.ToUpper(key[i+1:])
}
