package rating

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Song is one chart (title x difficulty) for a specific player, with the
// player's achieved values and the simulated target values.
type Song struct {
	ID             string     `json:"id"`
	Diff           Difficulty `json:"diff"`
	Title          string     `json:"title"`
	Genre          string     `json:"genre,omitempty"`
	Level          Level      `json:"level,omitempty"`
	Release        string     `json:"release,omitempty"`
	ChartConstant  *float64   `json:"chartConstant"`
	CurrentScore   int        `json:"currentScore"`
	CurrentRating  float64    `json:"currentRating"`
	TargetScore    int        `json:"targetScore"`
	TargetRating   float64    `json:"targetRating"`
	IsPlayed       bool       `json:"is_played,omitempty"`
	IsClear        bool       `json:"is_clear,omitempty"`
	IsFullCombo    bool       `json:"is_fullcombo,omitempty"`
	IsAllJustice   bool       `json:"is_alljustice,omitempty"`
	IsConstUnknown bool       `json:"is_const_unknown,omitempty"`
	IsExcluded     bool       `json:"isExcludedFromImprovement,omitempty"`
}

// Key returns the "{id}_{DIFF}" identity of the song.
func (s *Song) Key() string {
	return SongKey(s.ID, s.Diff)
}

// HasConstant reports whether the song can be rated.
func (s *Song) HasConstant() bool {
	return s.ChartConstant != nil && *s.ChartConstant > 0
}

// Constant returns the chart constant or 0 when unknown.
func (s *Song) Constant() float64 {
	if s.ChartConstant == nil {
		return 0
	}
	return *s.ChartConstant
}

// ResetTarget sets the target values back to the achieved ones.
func (s *Song) ResetTarget() {
	s.TargetScore = s.CurrentScore
	s.TargetRating = s.CurrentRating
}

// Clone returns a deep copy.
func (s Song) Clone() Song {
	if s.ChartConstant != nil {
		c := *s.ChartConstant
		s.ChartConstant = &c
	}
	return s
}

// CloneSongs deep-copies a slice of songs.
func CloneSongs(songs []Song) []Song {
	if songs == nil {
		return nil
	}
	out := make([]Song, len(songs))
	for i := range songs {
		out[i] = songs[i].Clone()
	}
	return out
}

// Float returns a pointer to v, for optional constants.
func Float(v float64) *float64 {
	return &v
}

// Level is the displayed chart level. chunirec sends it either as a number
// or as a string ("14+", "13.5").
type Level string

// UnmarshalJSON accepts numbers and strings.
func (l *Level) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to parse level: %w", err)
		}
		*l = Level(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to parse level: %w", err)
	}
	*l = Level(n.String())
	return nil
}

// Value parses the leading numeric part of the level ("14+" reads as 14)
// and reports whether it is positive.
func (l Level) Value() (float64, bool) {
	s := strings.TrimSpace(string(l))
	end := 0
	dot := false
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && !dot {
			dot = true
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
