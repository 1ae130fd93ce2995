package rating

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is a raw chart record as served by the scoring-data provider,
// either a catalog entry (no score) or a play-history entry.
type Record struct {
	ID             string     `json:"id"`
	Diff           Difficulty `json:"diff"`
	Title          string     `json:"title"`
	Genre          string     `json:"genre,omitempty"`
	Release        string     `json:"release,omitempty"`
	Level          Level      `json:"level,omitempty"`
	Const          *float64   `json:"const"`
	Score          *int       `json:"score,omitempty"`
	Rating         *float64   `json:"rating,omitempty"`
	IsPlayed       bool       `json:"is_played,omitempty"`
	IsClear        bool       `json:"is_clear,omitempty"`
	IsFullCombo    bool       `json:"is_fullcombo,omitempty"`
	IsAllJustice   bool       `json:"is_alljustice,omitempty"`
	IsConstUnknown bool       `json:"is_const_unknown,omitempty"`
	UpdatedAt      string     `json:"updated_at,omitempty"`
}

// Key returns the "{id}_{DIFF}" identity of the record.
func (r *Record) Key() string {
	return SongKey(r.ID, r.Diff)
}

// HasScore reports whether the record carries a play score.
func (r *Record) HasScore() bool {
	return r.Score != nil
}

// ResolveConstant picks the effective chart constant for a record.
// Priority: override, record const > 0, level when const is exactly 0 and
// the level is integral or x.5, level when the const is flagged unknown.
func ResolveConstant(r *Record, override *float64) *float64 {
	if override != nil && *override > 0 {
		return Float(*override)
	}
	if r.Const != nil && *r.Const > 0 {
		return Float(*r.Const)
	}
	if r.Const != nil && *r.Const == 0 {
		if lv, ok := r.Level.Value(); ok {
			if lv == math.Trunc(lv) || math.Abs(math.Mod(lv*10, 10)) == 5 {
				return Float(lv)
			}
		}
	}
	if r.IsConstUnknown {
		if lv, ok := r.Level.Value(); ok {
			return Float(lv)
		}
	}
	return nil
}

// Normalize converts a raw record into a Song. override, when positive,
// replaces the record's constant.
func Normalize(r Record, override *float64) Song {
	score := 0
	if r.Score != nil {
		score = *r.Score
	}

	constant := ResolveConstant(&r, override)

	var current float64
	switch {
	case constant != nil && score > 0:
		current = Calculate(score, *constant)
	case r.Rating != nil:
		current = *r.Rating
	}
	current = Round4(current)

	return Song{
		ID:             r.ID,
		Diff:           ParseDifficulty(string(r.Diff)),
		Title:          r.Title,
		Genre:          r.Genre,
		Level:          r.Level,
		Release:        r.Release,
		ChartConstant:  constant,
		CurrentScore:   score,
		CurrentRating:  current,
		TargetScore:    score,
		TargetRating:   current,
		IsPlayed:       r.IsPlayed,
		IsClear:        r.IsClear,
		IsFullCombo:    r.IsFullCombo,
		IsAllJustice:   r.IsAllJustice,
		IsConstUnknown: r.IsConstUnknown,
	}
}

// NormalizeAll normalizes records, looking up overrides by title and diff.
func NormalizeAll(records []Record, overrides OverrideIndex) []Song {
	songs := make([]Song, 0, len(records))
	for _, r := range records {
		songs = append(songs, Normalize(r, overrides.Lookup(r.Title, r.Diff)))
	}
	return songs
}

// FlexFloat decodes a JSON number or numeric string.
type FlexFloat float64

// UnmarshalJSON accepts 13.7 and "13.7".
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("invalid constant %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid constant: %w", err)
	}
	*f = FlexFloat(v)
	return nil
}

// UnmarshalYAML accepts the same shapes from YAML data files.
func (f *FlexFloat) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid constant %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// ConstOverride corrects the chart constant of one (title, diff).
type ConstOverride struct {
	Title string     `json:"title" yaml:"title"`
	Diff  Difficulty `json:"diff" yaml:"diff"`
	Const FlexFloat  `json:"const" yaml:"const"`
}

// OverrideIndex maps "title\x00DIFF" to a constant.
type OverrideIndex map[string]float64

func overrideKey(title string, diff Difficulty) string {
	return title + "\x00" + strings.ToUpper(string(diff))
}

// NewOverrideIndex indexes overrides; later entries win. Non-positive
// constants are ignored.
func NewOverrideIndex(overrides []ConstOverride) OverrideIndex {
	idx := make(OverrideIndex, len(overrides))
	for _, o := range overrides {
		if float64(o.Const) <= 0 {
			continue
		}
		idx[overrideKey(o.Title, o.Diff)] = float64(o.Const)
	}
	return idx
}

// Lookup returns the override for a chart, or nil.
func (idx OverrideIndex) Lookup(title string, diff Difficulty) *float64 {
	if len(idx) == 0 {
		return nil
	}
	if v, ok := idx[overrideKey(title, diff)]; ok {
		return Float(v)
	}
	return nil
}

// ApplyOverrides returns copies of songs with overridden constants and
// recomputed current and target ratings.
func ApplyOverrides(songs []Song, idx OverrideIndex) []Song {
	out := CloneSongs(songs)
	if len(idx) == 0 {
		return out
	}
	for i := range out {
		c := idx.Lookup(out[i].Title, out[i].Diff)
		if c == nil {
			continue
		}
		out[i].ChartConstant = c
		r := Calculate(out[i].CurrentScore, *c)
		out[i].CurrentRating = r
		out[i].TargetScore = out[i].CurrentScore
		out[i].TargetRating = r
	}
	return out
}

// ApplyRecordOverrides returns copies of records whose const is replaced by
// the matching override.
func ApplyRecordOverrides(records []Record, idx OverrideIndex) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	if len(idx) == 0 {
		return out
	}
	for i := range out {
		if c := idx.Lookup(out[i].Title, out[i].Diff); c != nil {
			out[i].Const = c
		}
	}
	return out
}

// DedupeByCurrent keeps one song per key: the higher current rating, then
// the higher current score. First-seen order is preserved.
func DedupeByCurrent(songs []Song) []Song {
	pos := make(map[string]int, len(songs))
	out := make([]Song, 0, len(songs))
	for _, s := range songs {
		k := s.Key()
		i, ok := pos[k]
		if !ok {
			pos[k] = len(out)
			out = append(out, s.Clone())
			continue
		}
		e := out[i]
		if s.CurrentRating > e.CurrentRating || (s.CurrentRating == e.CurrentRating && s.CurrentScore > e.CurrentScore) {
			out[i] = s.Clone()
		}
	}
	return out
}

// SortByCurrent orders songs by current rating, score and difficulty, all
// descending.
func SortByCurrent(songs []Song) {
	sort.SliceStable(songs, func(i, j int) bool {
		a, b := &songs[i], &songs[j]
		if a.CurrentRating != b.CurrentRating {
			return a.CurrentRating > b.CurrentRating
		}
		if a.CurrentScore != b.CurrentScore {
			return a.CurrentScore > b.CurrentScore
		}
		return a.Diff.Order() > b.Diff.Order()
	})
}
