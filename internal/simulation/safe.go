package simulation

import (
	"fmt"
	"runtime/debug"
)

// RunSafe is Run for hosts: a panic inside the engine is reported as an
// error_simulation_logic output instead of crossing the call boundary.
func RunSafe(in Input) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			out = ErrorOutput(PhaseErrorSimulationLogic,
				fmt.Errorf("simulation panicked: %v", r),
				[]string{"[PANIC] " + firstLine(debug.Stack())})
		}
	}()
	return runEngine(in)
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}

// runEngine is swapped in tests to inject failures.
var runEngine = Run
