package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

func TestRunCustom_ReachesAverage(t *testing.T) {
	in := Input{
		CustomSongs:  uniformList(3, "c", 13.0, 1000000),
		TargetRating: 14.5,
		Mode:         ModeCustom,
		Preference:   PreferFloor,
	}

	out := Run(in)

	require.Equal(t, PhaseTargetReached, out.FinalPhase)
	assert.Equal(t, 3, out.Iterations)
	assert.Len(t, out.SimulatedB30Songs, 3)
	assert.NotNil(t, out.SimulatedNew20Songs)
	assert.Empty(t, out.SimulatedNew20Songs)
	assert.Nil(t, out.FinalAverageNew20Rating)
	require.NotNil(t, out.FinalAverageB30Rating)
	assert.InDelta(t, 14.5, *out.FinalAverageB30Rating, 1e-9)
	assert.InDelta(t, 14.5, out.FinalOverallRating, 1e-9)

	// Floor spreads the leaps: every song moved once.
	for _, s := range out.SimulatedB30Songs {
		assert.Equal(t, 1005000, s.TargetScore)
	}
}

func TestRunCustom_PeakPushesOneSong(t *testing.T) {
	in := Input{
		CustomSongs:  uniformList(3, "c", 13.0, 1000000),
		TargetRating: 14.3,
		Mode:         ModeCustom,
		Preference:   PreferPeak,
	}

	out := Run(in)

	require.Equal(t, PhaseTargetReached, out.FinalPhase)
	top := out.SimulatedB30Songs[0]
	assert.Greater(t, top.TargetScore, 1005000)
	assert.Equal(t, 1000000, out.SimulatedB30Songs[2].TargetScore)
}

func TestRunCustom_StartsFromCurrentValues(t *testing.T) {
	songs := uniformList(2, "c", 13.0, 1000000)
	songs[0].TargetScore = 1009000
	songs[0].TargetRating = 15.15
	in := Input{CustomSongs: songs, TargetRating: 14.0, Mode: ModeCustom, Preference: PreferPeak}

	out := Run(in)

	assert.Equal(t, PhaseTargetReached, out.FinalPhase)
	assert.Zero(t, out.Iterations)
	for _, s := range out.SimulatedB30Songs {
		assert.Equal(t, 1000000, s.TargetScore)
	}
}

func TestRunCustom_Stuck(t *testing.T) {
	in := Input{
		CustomSongs:  uniformList(2, "c", 10.0, rating.ScoreMax),
		TargetRating: 13.0,
		Mode:         ModeCustom,
		Preference:   PreferFloor,
	}

	out := Run(in)

	assert.Equal(t, PhaseStuckB30, out.FinalPhase)
	assert.Equal(t, 1, out.Iterations)
	assert.True(t, logHas(out, "[STUCK]"))
}

func TestRunCustom_Empty(t *testing.T) {
	out := Run(Input{TargetRating: 10, Mode: ModeCustom, Preference: PreferPeak})

	assert.Equal(t, PhaseStuckB30, out.FinalPhase)
	assert.Nil(t, out.FinalAverageB30Rating)
	assert.Zero(t, out.FinalOverallRating)
}
