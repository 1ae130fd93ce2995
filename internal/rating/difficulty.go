// Package rating implements the per-song rating formula, the canonical Song
// model, record normalization, list aggregation and the score solver.
package rating

import "strings"

// Difficulty is a chart difficulty tier as reported by chunirec.
type Difficulty string

// Known difficulty tiers.
const (
	Basic       Difficulty = "BAS"
	Advanced    Difficulty = "ADV"
	Expert      Difficulty = "EXP"
	Master      Difficulty = "MAS"
	Ultima      Difficulty = "ULT"
	WorldsEnd   Difficulty = "WE"
	unknownDiff Difficulty = ""
)

var difficultyOrder = map[Difficulty]int{
	Ultima:    5,
	WorldsEnd: 5,
	Master:    4,
	Expert:    3,
	Advanced:  2,
	Basic:     1,
}

// ParseDifficulty normalizes a difficulty string. Unknown values are kept
// upper-cased so they still form stable song keys.
func ParseDifficulty(s string) Difficulty {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	if d == "" {
		return unknownDiff
	}
	return d
}

// Order returns the tier rank used for tie-breaking (ULT/WE 5 ... BAS 1, unknown 0).
func (d Difficulty) Order() int {
	return difficultyOrder[Difficulty(strings.ToUpper(string(d)))]
}

// String implements fmt.Stringer.
func (d Difficulty) String() string {
	return string(d)
}

// SongKey builds the "{id}_{DIFF}" key used for exclusions and dedupe.
func SongKey(id string, diff Difficulty) string {
	return id + "_" + strings.ToUpper(string(diff))
}

// KeySet is a set of song keys.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from a slice of keys.
func NewKeySet(keys ...string) KeySet {
	set := make(KeySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether key is in the set. A nil set contains nothing.
func (s KeySet) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s[key]
	return ok
}

// Add inserts key into the set.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}
