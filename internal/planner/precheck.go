package planner

import (
	"fmt"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

// reachEpsilon absorbs the 4-decimal rounding of averages.
const reachEpsilon = 0.0001

// Precheck computes the highest overall rating the input could reach with
// every improvable song at the theoretical maximum score. The lists a mode
// does not touch stay at their current values, excluded songs stay frozen
// and only hybrid runs may pull replacements from the catalog. ok is false
// when the target is above that ceiling. Custom runs and targets already
// reached are never rejected.
func Precheck(in *simulation.Input) (reachable float64, ok bool) {
	if in.Mode == simulation.ModeCustom {
		return 0, true
	}
	if in.CurrentRating >= in.TargetRating {
		return in.CurrentRating, true
	}

	idx := rating.NewOverrideIndex(in.ConstOverrides)
	excluded := rating.NewKeySet(NormalizeKeys(in.ExcludedSongKeys)...)
	b30 := rating.ApplyOverrides(in.OriginalB30Songs, idx)
	n20 := rating.ApplyOverrides(in.OriginalNew20Songs, idx)
	hybrid := in.Mode == simulation.ModeHybrid

	var (
		avgB30, avgN20 *float64
		nB30, nN20     int
	)
	if in.Mode == simulation.ModeN20Only {
		avgB30, nB30 = rating.Average(b30, rating.BestCount, rating.CurrentField), len(b30)
	} else {
		pool := b30
		if hybrid {
			pool = union(b30, catalogSongs(in, idx))
		}
		var maxed []rating.Song
		maxed, avgB30 = rating.TheoreticalMax(pool, rating.BestCount, rating.ScoreMax, excluded)
		nB30 = len(maxed)
	}
	if in.Mode == simulation.ModeB30Only {
		avgN20, nN20 = rating.Average(n20, rating.NewCount, rating.CurrentField), len(n20)
	} else {
		pool := union(n20, rating.ApplyOverrides(in.AllPlayedNewSongsPool, idx))
		var maxed []rating.Song
		maxed, avgN20 = rating.TheoreticalMax(pool, rating.NewCount, rating.ScoreMax, excluded)
		nN20 = len(maxed)
	}

	reachable = rating.Overall(avgB30, avgN20, nB30, nN20)
	return reachable, reachable+reachEpsilon >= in.TargetRating
}

// catalogSongs maps old-song catalog charts onto the player's records.
func catalogSongs(in *simulation.Input, idx rating.OverrideIndex) []rating.Song {
	newTitles := make(map[string]struct{}, len(in.NewSongsTitles))
	for _, t := range in.NewSongsTitles {
		newTitles[normalizeTitle(t)] = struct{}{}
	}
	played := make(map[string]rating.Record, len(in.UserPlayHistory))
	for _, r := range in.UserPlayHistory {
		if _, ok := played[r.Key()]; !ok {
			played[r.Key()] = r
		}
	}

	songs := make([]rating.Song, 0, len(in.AllMusicData))
	for _, rec := range in.AllMusicData {
		if rec.ID == "" || rec.Diff == "" || rec.Title == "" {
			continue
		}
		if _, isNew := newTitles[normalizeTitle(rec.Title)]; isNew {
			continue
		}
		base, ok := played[rec.Key()]
		if !ok {
			base = rec
			base.Score, base.Rating = nil, nil
		}
		override := idx.Lookup(rec.Title, rec.Diff)
		if override == nil {
			override = rating.ResolveConstant(&rec, nil)
		}
		songs = append(songs, rating.Normalize(base, override))
	}
	return songs
}

// union appends the songs of extra whose keys are not in base.
func union(base, extra []rating.Song) []rating.Song {
	seen := make(rating.KeySet, len(base))
	out := make([]rating.Song, 0, len(base)+len(extra))
	for _, s := range base {
		seen.Add(s.Key())
		out = append(out, s)
	}
	for _, s := range extra {
		if !seen.Has(s.Key()) {
			seen.Add(s.Key())
			out = append(out, s)
		}
	}
	return out
}

// UnreachableOutput reports a target above the reachable ceiling without
// running the engine. Both lists are returned unchanged.
func UnreachableOutput(in *simulation.Input, reachable float64) simulation.Output {
	b30 := rating.CloneSongs(in.OriginalB30Songs)
	n20 := rating.CloneSongs(in.OriginalNew20Songs)
	for _, list := range [][]rating.Song{b30, n20} {
		for i := range list {
			list[i].ResetTarget()
		}
	}
	if b30 == nil {
		b30 = []rating.Song{}
	}
	if n20 == nil {
		n20 = []rating.Song{}
	}
	avgB30 := rating.Average(b30, rating.BestCount, rating.TargetField)
	avgN20 := rating.Average(n20, rating.NewCount, rating.TargetField)
	r := reachable

	return simulation.Output{
		SimulatedB30Songs:       b30,
		SimulatedNew20Songs:     n20,
		FinalAverageB30Rating:   avgB30,
		FinalAverageNew20Rating: avgN20,
		FinalOverallRating:      rating.Overall(avgB30, avgN20, len(b30), len(n20)),
		FinalPhase:              simulation.PhaseTargetUnreachableInfo,
		SimulationLog: []string{
			fmt.Sprintf("[PRECHECK] target %.4f is above the reachable maximum %.4f", in.TargetRating, reachable),
		},
		ReachableRating: &r,
	}
}
