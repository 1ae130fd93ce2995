package simulation

import (
	"sort"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

type listKind int

const (
	listB30 listKind = iota
	listN20
	listCustom
)

func (k listKind) String() string {
	switch k {
	case listB30:
		return "B30"
	case listN20:
		return "N20"
	default:
		return "CUSTOM"
	}
}

// dedupe keeps one entry per key: higher target rating, then higher target
// score. First-seen order is preserved.
func dedupe(songs []rating.Song) []rating.Song {
	pos := make(map[string]int, len(songs))
	out := make([]rating.Song, 0, len(songs))
	for _, s := range songs {
		k := s.Key()
		i, ok := pos[k]
		if !ok {
			pos[k] = len(out)
			out = append(out, s)
			continue
		}
		cur := &out[i]
		if s.TargetRating > cur.TargetRating ||
			(s.TargetRating == cur.TargetRating && s.TargetScore > cur.TargetScore) {
			out[i] = s
		}
	}
	return out
}

// sortRanked orders a list the way it is displayed and truncated.
func sortRanked(songs []rating.Song) {
	sort.SliceStable(songs, func(i, j int) bool {
		a, b := &songs[i], &songs[j]
		if a.TargetRating != b.TargetRating {
			return a.TargetRating > b.TargetRating
		}
		if a.TargetScore != b.TargetScore {
			return a.TargetScore > b.TargetScore
		}
		if oa, ob := a.Diff.Order(), b.Diff.Order(); oa != ob {
			return oa > ob
		}
		return a.Title < b.Title
	})
}

// finalize dedupes, sorts and truncates a list to capacity.
func finalize(songs []rating.Song, capacity int) []rating.Song {
	out := dedupe(songs)
	sortRanked(out)
	if capacity >= 0 && len(out) > capacity {
		out = out[:capacity]
	}
	return out
}

func indexOf(songs []rating.Song, key string) int {
	for i := range songs {
		if songs[i].Key() == key {
			return i
		}
	}
	return -1
}

func keysOf(songs []rating.Song) rating.KeySet {
	set := make(rating.KeySet, len(songs))
	for i := range songs {
		set.Add(songs[i].Key())
	}
	return set
}
