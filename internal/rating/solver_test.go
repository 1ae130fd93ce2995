package rating

import "testing"

// linearMinScore is the reference scan the binary search must agree with.
func linearMinScore(s *Song, target float64, extended bool) ScoreResult {
	maxScore := ScoreCap(extended)
	start := 1
	if s.CurrentScore > 0 {
		start = s.CurrentScore + 1
	}
	for score := start; score <= maxScore; score++ {
		if r := Calculate(score, *s.ChartConstant); r >= target {
			return ScoreResult{Score: score, Rating: r, Possible: true}
		}
	}
	r := Calculate(maxScore, *s.ChartConstant)
	return ScoreResult{Score: maxScore, Rating: r, Possible: r >= target}
}

func TestMinScoreForRating_MatchesLinearScan(t *testing.T) {
	cases := []struct {
		constant float64
		score    int
		target   float64
	}{
		{14.0, 900000, 12.0},
		{14.0, 975000, 14.5},
		{14.0, 1000000, 15.2501},
		{14.0, 1005000, 16.0},
		{14.0, 1007500, 16.1001},
		{14.0, 1008900, 16.2},
		{13.7, 0, 10.0},
		{12.3, 960000, 13.0},
		{15.4, 1003000, 16.9},
	}

	for _, c := range cases {
		s := Song{ID: "x", Diff: Master, ChartConstant: Float(c.constant), CurrentScore: c.score, CurrentRating: Calculate(c.score, c.constant)}
		got := MinScoreForRating(&s, c.target, false)
		want := linearMinScore(&s, c.target, false)
		if s.CurrentRating >= c.target && s.CurrentScore > 0 {
			want = ScoreResult{Score: s.CurrentScore, Rating: s.CurrentRating, Possible: true}
		}
		if got != want {
			t.Errorf("const %.1f score %d target %.4f: got %+v, want %+v", c.constant, c.score, c.target, got, want)
		}
	}
}

func TestMinScoreForRating_Exact(t *testing.T) {
	s := Song{ID: "x", Diff: Master, ChartConstant: Float(14.0), CurrentScore: 1000000, CurrentRating: 15.0}

	res := MinScoreForRating(&s, 15.0001, false)

	if !res.Possible || res.Score != 1000100 || !approxEqual(res.Rating, 15.01) {
		t.Errorf("Expected 1000100 at 15.01, got %+v", res)
	}
}

func TestMinScoreForRating_Unreachable(t *testing.T) {
	s := Song{ID: "x", Diff: Master, ChartConstant: Float(13.0), CurrentScore: 1000000, CurrentRating: 14.0}

	res := MinScoreForRating(&s, 15.5, false)

	if res.Possible {
		t.Errorf("Expected impossible, got %+v", res)
	}
	if res.Score != ScoreMax || !approxEqual(res.Rating, 15.15) {
		t.Errorf("Expected cap values, got %+v", res)
	}
}

func TestMinScoreForRating_AlreadyReached(t *testing.T) {
	s := Song{ID: "x", Diff: Master, ChartConstant: Float(13.0), CurrentScore: 1000000, CurrentRating: 14.0}

	res := MinScoreForRating(&s, 13.5, false)

	if !res.Possible || res.Score != 1000000 {
		t.Errorf("Expected current score back, got %+v", res)
	}
}

func TestMinScoreForRating_NoConstant(t *testing.T) {
	s := Song{ID: "x", Diff: Master, CurrentScore: 990000, CurrentRating: 12}

	if res := MinScoreForRating(&s, 13, false); res.Possible {
		t.Errorf("Expected impossible without constant, got %+v", res)
	}
}

func TestNextGradeBoundary(t *testing.T) {
	tests := []struct {
		score int
		want  int
		ok    bool
	}{
		{0, ScoreA, true},
		{899999, ScoreA, true},
		{900000, ScoreAA, true},
		{960000, ScoreS, true},
		{975000, ScoreSS, true},
		{1004999, ScoreSSS, true},
		{1005000, ScoreSSSHigh, true},
		{1008999, ScoreMax, true},
		{1009000, 0, false},
		{1010000, 0, false},
	}

	for _, tt := range tests {
		got, ok := NextGradeBoundary(tt.score)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NextGradeBoundary(%d) = (%d, %v), expected (%d, %v)", tt.score, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsHighConstantForFloor(t *testing.T) {
	avg := 15.25

	tests := []struct {
		constant *float64
		avg      *float64
		want     bool
	}{
		{Float(13.5), &avg, true},
		{Float(13.4), &avg, false},
		{Float(13.0), &avg, false},
		{Float(14.0), nil, false},
		{nil, &avg, false},
	}

	for _, tt := range tests {
		s := Song{ID: "x", Diff: Master, ChartConstant: tt.constant}
		if got := IsHighConstantForFloor(&s, tt.avg); got != tt.want {
			t.Errorf("IsHighConstantForFloor(%v, %v) = %v, expected %v", tt.constant, tt.avg, got, tt.want)
		}
	}
}
