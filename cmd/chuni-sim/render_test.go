package main

import (
	"strings"
	"testing"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

func TestRenderOutput(t *testing.T) {
	avg := 16.1
	out := &simulation.Output{
		SimulatedB30Songs: []rating.Song{
			{ID: "a", Diff: rating.Master, Title: "Alpha", ChartConstant: rating.Float(14.5),
				CurrentScore: 1005000, CurrentRating: 16.5, TargetScore: 1007500, TargetRating: 16.5 + 0.5},
			{ID: "b", Diff: rating.Expert, Title: "Beta", ChartConstant: rating.Float(13.0),
				CurrentScore: 1009000, CurrentRating: 15.15, TargetScore: 1009000, TargetRating: 15.15},
		},
		FinalAverageB30Rating: &avg,
		FinalOverallRating:    16.1,
		FinalPhase:            simulation.PhaseTargetReached,
		SimulationLog:         []string{"[INIT] start"},
		Iterations:            3,
	}

	text := renderOutput(out, true)

	for _, want := range []string{"target_reached", "16.1000", "Best 30 (1 of 2 songs to improve)", "Alpha", "[INIT] start"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Beta") {
		t.Error("Expected unchanged songs to be omitted")
	}
	if strings.Contains(text, "New 20") {
		t.Error("Expected empty N20 section to be omitted")
	}
}

func TestSplitKeys(t *testing.T) {
	keys := splitKeys(" a_MAS, ,b_exp ")
	if len(keys) != 2 || keys[0] != "a_MAS" || keys[1] != "b_exp" {
		t.Errorf("Unexpected keys: %v", keys)
	}
	if splitKeys("") != nil {
		t.Error("Expected nil for empty input")
	}
}
