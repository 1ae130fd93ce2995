package rating

import (
	"math"
	"sort"
)

// ScoreResult is the outcome of a minimum-score search.
type ScoreResult struct {
	Score    int     `json:"score"`
	Rating   float64 `json:"rating"`
	Possible bool    `json:"possible"`
}

// gradeBoundaries are the snap points used by grade leaps.
var gradeBoundaries = []int{
	ScoreA, ScoreAA, ScoreAAA, ScoreS, ScoreSS, ScoreSSS, ScoreSSSHigh, ScoreMax,
}

// MinScoreForRating finds the lowest score at which the song reaches
// target. The formula is monotone in score, so a binary search over
// (current, cap] returns the same score a linear scan would.
func MinScoreForRating(s *Song, target float64, extended bool) ScoreResult {
	if !s.HasConstant() {
		return ScoreResult{Score: s.CurrentScore, Rating: s.CurrentRating}
	}
	if s.CurrentRating >= target && s.CurrentScore > 0 {
		return ScoreResult{Score: s.CurrentScore, Rating: s.CurrentRating, Possible: true}
	}

	constant := *s.ChartConstant
	maxScore := ScoreCap(extended)
	start := 1
	if s.CurrentScore > 0 {
		start = s.CurrentScore + 1
	}

	if start <= maxScore {
		n := maxScore - start + 1
		i := sort.Search(n, func(i int) bool {
			return Calculate(start+i, constant) >= target
		})
		if i < n {
			score := start + i
			return ScoreResult{Score: score, Rating: Calculate(score, constant), Possible: true}
		}
	}

	atMax := Calculate(maxScore, constant)
	return ScoreResult{Score: maxScore, Rating: atMax, Possible: atMax >= target}
}

// NextGradeBoundary returns the first grade boundary strictly above score.
// ok is false once the score is at or past the SSS+ line.
func NextGradeBoundary(score int) (next int, ok bool) {
	if score >= ScoreMax {
		return 0, false
	}
	for _, b := range gradeBoundaries {
		if b > score {
			return b, true
		}
	}
	return 0, false
}

// IsHighConstantForFloor reports whether a song's constant is above the
// list average minus 1.8, rounded down to one decimal. Such songs are
// deprioritized under the floor preference.
func IsHighConstantForFloor(s *Song, listAverage *float64) bool {
	if !s.HasConstant() || listAverage == nil {
		return false
	}
	threshold := math.Floor((*listAverage-1.8)*10) / 10
	return *s.ChartConstant > threshold
}
