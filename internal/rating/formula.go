package rating

import "math"

// Score band boundaries.
const (
	ScoreMinRated    = 800000
	ScoreA           = 900000
	ScoreAA          = 925000
	ScoreAAA         = 950000
	ScoreS           = 975000
	ScoreSS          = 1000000
	ScoreSSS         = 1005000
	ScoreSSSHigh     = 1007500
	ScoreMax         = 1009000
	ScoreMaxExtended = 1010000
)

// ScoreCap returns the highest score the engine may assign.
func ScoreCap(extended bool) int {
	if extended {
		return ScoreMaxExtended
	}
	return ScoreMax
}

// Round4 rounds to 4 decimal places.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Calculate maps a score and chart constant to a per-song rating.
// Non-positive constants rate 0. The result is floored at 0 and rounded to
// 4 decimals.
func Calculate(score int, constant float64) float64 {
	if constant <= 0 || math.IsNaN(constant) {
		return 0
	}

	var v float64
	switch {
	case score >= ScoreMax:
		v = constant + 2.15
	case score >= ScoreSSSHigh:
		v = math.Min(constant+2.15, constant+2.00+steps(score-ScoreSSSHigh, 100))
	case score >= ScoreSSS:
		v = math.Min(constant+2.00, constant+1.50+steps(score-ScoreSSS, 50))
	case score >= ScoreSS:
		v = math.Min(constant+1.50, constant+1.00+steps(score-ScoreSS, 100))
	case score >= ScoreS:
		v = math.Min(constant+1.00, constant+steps(score-ScoreS, 250))
	case score >= ScoreAAA:
		v = constant - 1.50
	case score >= ScoreAA:
		v = constant - 3.00
	case score >= ScoreA:
		v = constant - 5.00
	case score >= ScoreMinRated:
		v = (constant - 5.00) / 2
	default:
		v = 0
	}

	return math.Max(0, Round4(v))
}

// steps returns floor(delta/width) * 0.01.
func steps(delta, width int) float64 {
	if delta < 0 {
		return 0
	}
	return float64(delta/width) * 0.01
}

// CalculateFor rates score against the song's chart constant.
func CalculateFor(s *Song, score int) float64 {
	if !s.HasConstant() {
		return 0
	}
	return Calculate(score, *s.ChartConstant)
}
