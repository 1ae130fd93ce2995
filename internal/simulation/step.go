package simulation

import (
	"math"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

type stepResult struct {
	songs   []rating.Song
	changed int
	stuck   bool
}

// listSpec describes how one list is stepped.
type listSpec struct {
	kind     listKind
	capacity int
	less     lessFunc
	// replace enables the replacement phase once leaps and fine tunes are
	// exhausted.
	replace bool
	// hybrid keeps songs of the other list out of the replacement pool.
	hybrid bool
}

func (e *engine) specFor(kind listKind, avg *float64, hybrid bool) listSpec {
	spec := listSpec{kind: kind, hybrid: hybrid, less: peakLess}
	if e.pref == PreferFloor {
		spec.less = floorLess(avg)
	}
	switch kind {
	case listB30:
		spec.capacity = rating.BestCount
		spec.replace = hybrid
	case listN20:
		spec.capacity = rating.NewCount
		spec.replace = true
	}
	return spec
}

func (e *engine) improvable(s *rating.Song) bool {
	return !s.IsExcluded && s.TargetScore < e.cap && s.HasConstant()
}

// leapTarget returns the next grade boundary for s when snapping there is
// allowed and gains more than leapEpsilon.
func (e *engine) leapTarget(s *rating.Song) (int, float64, bool) {
	if !s.HasConstant() {
		return 0, 0, false
	}
	next, ok := rating.NextGradeBoundary(s.TargetScore)
	if !ok || next > e.cap {
		return 0, 0, false
	}
	r := rating.Calculate(next, *s.ChartConstant)
	if r <= s.TargetRating+leapEpsilon {
		return 0, 0, false
	}
	return next, r, true
}

// fineTuneTarget returns the lowest score that lifts s above its current
// target rating.
func (e *engine) fineTuneTarget(s *rating.Song) (int, float64, bool) {
	if !s.HasConstant() || s.TargetScore >= e.cap {
		return 0, 0, false
	}
	res := rating.MinScoreForRating(s, s.TargetRating+fineTuneDelta, e.extended)
	if !res.Possible || res.Score <= s.TargetScore || res.Score > e.cap {
		return 0, 0, false
	}
	return res.Score, rating.Round4(res.Rating), true
}

// stepList applies at most one change to songs: a grade leap on the first
// candidate, else the first possible fine tune, else (when spec allows) a
// replacement or addition from the candidate pool.
func (e *engine) stepList(songs []rating.Song, spec listSpec, other []rating.Song) stepResult {
	work := rating.CloneSongs(songs)
	if work == nil {
		work = []rating.Song{}
	}
	done := func(changed int) stepResult {
		return stepResult{songs: finalize(work, spec.capacity), changed: changed, stuck: changed == 0}
	}

	cands := make([]rating.Song, 0, len(work))
	for i := range work {
		if e.improvable(&work[i]) {
			cands = append(cands, work[i].Clone())
		}
	}
	sortSongs(cands, spec.less)

	if len(cands) > 0 {
		if score, r, ok := e.leapTarget(&cands[0]); ok {
			if i := indexOf(work, cands[0].Key()); i >= 0 {
				e.logLeap(spec.kind, &work[i], score, r)
				work[i].TargetScore, work[i].TargetRating = score, r
				return done(1)
			}
		}
	}

	for k := range cands {
		i := indexOf(work, cands[k].Key())
		if i < 0 {
			continue
		}
		if score, r, ok := e.fineTuneTarget(&work[i]); ok {
			e.logFineTune(spec.kind, &work[i], score, r)
			work[i].TargetScore, work[i].TargetRating = score, r
			return done(1)
		}
	}

	if !spec.replace {
		return done(0)
	}
	var changed int
	work, changed = e.replace(work, spec, other)
	return done(changed)
}

// replace swaps the worst member of a full list for the cheapest pool song
// that beats it, or appends the best unused pool song to a short N20.
func (e *engine) replace(work []rating.Song, spec listSpec, other []rating.Song) ([]rating.Song, int) {
	if len(work) < spec.capacity {
		if spec.kind != listN20 {
			return work, 0
		}
		add, ok := e.bestAddition(work, other)
		if !ok {
			return work, 0
		}
		add.ResetTarget()
		add.IsExcluded = false
		e.logf("[ADD] %s: %s (%s) rating %.4f", spec.kind, add.Title, add.Diff, add.CurrentRating)
		return append(work, add), 1
	}
	if len(work) == 0 {
		return work, 0
	}

	w := 0
	for i := 1; i < len(work); i++ {
		if work[i].TargetRating < work[w].TargetRating {
			w = i
		}
	}
	worst := work[w]

	inList, inOther := keysOf(work), keysOf(other)
	threshold := worst.TargetRating + leapEpsilon
	var pool []rating.Song
	if spec.kind == listB30 {
		pool = e.bestPool(inList, inOther, spec.hybrid, threshold)
	} else {
		pool = e.newSongPool(inList, inOther, threshold)
	}

	needed := worst.TargetRating + fineTuneDelta
	var (
		best       *rating.Song
		bestScore  int
		bestRating float64
		minEffort  int
	)
	for i := range pool {
		c := &pool[i]
		res := rating.MinScoreForRating(c, needed, e.extended)
		if !res.Possible || res.Score > e.cap {
			continue
		}
		effort := res.Score - c.CurrentScore
		if c.CurrentScore <= 0 {
			effort = res.Score + unplayedEffort
		}

		better := best == nil || effort < minEffort
		if !better && effort == minEffort {
			if e.pref == PreferFloor {
				better = c.Constant() < best.Constant()
			} else {
				better = res.Rating > bestRating
			}
		}
		if better {
			best, bestScore, bestRating, minEffort = c, res.Score, rating.Round4(res.Rating), effort
		}
	}
	if best == nil {
		return work, 0
	}

	in := best.Clone()
	in.TargetScore, in.TargetRating = bestScore, bestRating
	in.IsExcluded = false
	e.logf("[REPLACE] %s: %s (%s) %.4f -> %s (%s) score %d rating %.4f",
		spec.kind, worst.Title, worst.Diff, worst.TargetRating, in.Title, in.Diff, bestScore, bestRating)

	out := make([]rating.Song, 0, len(work))
	wk := worst.Key()
	for _, s := range work {
		if s.Key() != wk {
			out = append(out, s)
		}
	}
	return append(out, in), 1
}

// bestAddition returns the unused new-song pool entry with the highest
// current rating.
func (e *engine) bestAddition(work, other []rating.Song) (rating.Song, bool) {
	inList, inOther := keysOf(work), keysOf(other)
	var (
		best  rating.Song
		found bool
	)
	for _, s := range e.newPool {
		k := s.Key()
		if inList.Has(k) || inOther.Has(k) || e.excluded.Has(k) {
			continue
		}
		if !found || s.CurrentRating > best.CurrentRating {
			best, found = s, true
		}
	}
	return best.Clone(), found
}

// bestPool builds B30 replacement candidates from the catalog, mapped onto
// the player's own records where they exist.
func (e *engine) bestPool(inList, inOther rating.KeySet, hybrid bool, threshold float64) []rating.Song {
	var pool []rating.Song
	for _, rec := range e.catalog {
		if rec.ID == "" || rec.Diff == "" || rec.Title == "" {
			continue
		}
		k := rec.Key()
		if e.excluded.Has(k) || inList.Has(k) || (hybrid && inOther.Has(k)) {
			continue
		}
		if _, isNew := e.newTitles[titleKey(rec.Title)]; isNew {
			continue
		}
		c := rating.ResolveConstant(&rec, nil)
		if c == nil || rating.Calculate(e.cap, *c) <= threshold {
			continue
		}
		base, ok := e.played[k]
		if !ok {
			base = rec
			base.Score, base.Rating = nil, nil
		}
		pool = append(pool, rating.Normalize(base, c))
	}
	return pool
}

// newSongPool builds N20 replacement candidates from the played new songs.
// Songs already in either list are skipped in every mode.
func (e *engine) newSongPool(inList, inOther rating.KeySet, threshold float64) []rating.Song {
	var pool []rating.Song
	for _, s := range e.newPool {
		k := s.Key()
		if e.excluded.Has(k) || inList.Has(k) || inOther.Has(k) {
			continue
		}
		if !s.HasConstant() {
			continue
		}
		if math.Max(s.CurrentRating, rating.Calculate(e.cap, *s.ChartConstant)) <= threshold {
			continue
		}
		pool = append(pool, s.Clone())
	}
	return pool
}

func (e *engine) logLeap(kind listKind, s *rating.Song, score int, r float64) {
	e.logf("[LEAP] %s: %s (%s) %d -> %d, rating %.4f -> %.4f",
		kind, s.Title, s.Diff, s.TargetScore, score, s.TargetRating, r)
}

func (e *engine) logFineTune(kind listKind, s *rating.Song, score int, r float64) {
	e.logf("[FINE_TUNE] %s: %s (%s) %d -> %d, rating %.4f -> %.4f",
		kind, s.Title, s.Diff, s.TargetScore, score, s.TargetRating, r)
}
