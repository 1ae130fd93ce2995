package simulation

import (
	"sort"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

type lessFunc func(a, b *rating.Song) bool

// floorLess puts songs whose constant sits near the list average last, then
// orders by ascending constant, target rating and target score.
func floorLess(avg *float64) lessFunc {
	return func(a, b *rating.Song) bool {
		return floorLessAcross(a, avg, b, avg)
	}
}

// floorLessAcross is floorLess for songs from different lists, each judged
// against its own list average.
func floorLessAcross(a *rating.Song, avgA *float64, b *rating.Song, avgB *float64) bool {
	ha, hb := rating.IsHighConstantForFloor(a, avgA), rating.IsHighConstantForFloor(b, avgB)
	if ha != hb {
		return hb
	}
	if ca, cb := a.Constant(), b.Constant(); ca != cb {
		return ca < cb
	}
	if a.TargetRating != b.TargetRating {
		return a.TargetRating < b.TargetRating
	}
	return a.TargetScore < b.TargetScore
}

func peakLess(a, b *rating.Song) bool {
	if a.TargetRating != b.TargetRating {
		return a.TargetRating > b.TargetRating
	}
	return a.TargetScore > b.TargetScore
}

// peakLessByConstant is the cross-list peak order used in hybrid mode.
func peakLessByConstant(a, b *rating.Song) bool {
	if a.TargetRating != b.TargetRating {
		return a.TargetRating > b.TargetRating
	}
	if a.TargetScore != b.TargetScore {
		return a.TargetScore > b.TargetScore
	}
	return a.Constant() > b.Constant()
}

func customFloorLess(a, b *rating.Song) bool {
	if a.TargetRating != b.TargetRating {
		return a.TargetRating < b.TargetRating
	}
	return a.TargetScore < b.TargetScore
}

func customPeakLess(a, b *rating.Song) bool {
	return peakLess(a, b)
}

func sortSongs(songs []rating.Song, less lessFunc) {
	sort.SliceStable(songs, func(i, j int) bool { return less(&songs[i], &songs[j]) })
}

func sortCandidates(cands []hybridCandidate, less func(a, b *hybridCandidate) bool) {
	sort.SliceStable(cands, func(i, j int) bool { return less(&cands[i], &cands[j]) })
}
