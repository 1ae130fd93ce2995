package simulation

import (
	"math"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

// runCustom improves an arbitrary song set until its plain average meets the
// target. There is no second list and no replacement.
func (e *engine) runCustom(songs []rating.Song) Output {
	list := e.initList(songs, listCustom)
	avg := rating.Average(list, len(list), rating.TargetField)
	e.logf("[INITIAL_STATE] customAvg=%s songs=%d", fmtAvg(avg), len(list))

	spec := listSpec{kind: listCustom, capacity: len(list), less: customPeakLess}
	if e.pref == PreferFloor {
		spec.less = customFloorLess
	}

	phase := PhaseStuckB30
	iterations := 0
	switch {
	case valueOf(avg) >= e.target:
		phase = PhaseTargetReached
	default:
		for iterations < maxIterationsCustom {
			iterations++
			prev := valueOf(avg)
			res := e.stepList(list, spec, nil)
			list = res.songs
			avg = rating.Average(list, len(list), rating.TargetField)
			e.logf("[ITERATION] %s #%d average=%s", listCustom, iterations, fmtAvg(avg))

			if valueOf(avg) >= e.target {
				phase = PhaseTargetReached
				break
			}
			if res.stuck || math.Abs(valueOf(avg)-prev) < stallEpsilon {
				e.logf("[STUCK] %s: no improvement at iteration %d", listCustom, iterations)
				break
			}
		}
		if phase != PhaseTargetReached && iterations >= maxIterationsCustom {
			e.logf("[STUCK] %s: iteration limit %d reached", listCustom, maxIterationsCustom)
		}
	}

	e.logf("[END] phase=%s overall=%.4f iterations=%d", phase, valueOf(avg), iterations)
	return Output{
		SimulatedB30Songs:     list,
		SimulatedNew20Songs:   []rating.Song{},
		FinalAverageB30Rating: avg,
		FinalOverallRating:    valueOf(avg),
		FinalPhase:            phase,
		SimulationLog:         e.log,
		Iterations:            iterations,
	}
}

func valueOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
