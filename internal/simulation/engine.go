// Package simulation runs the iterative rating planner: starting from a
// player's B30 and N20 lists it applies one improvement at a time (grade
// leap, fine tune or replacement) until the overall rating reaches the
// target or no further progress is possible.
package simulation

import (
	"fmt"
	"math"
	"strings"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

const (
	maxIterationsSingle = 200
	maxIterationsHybrid = 400
	maxIterationsCustom = 400

	// leapEpsilon is the minimum rating gain a grade leap must produce.
	leapEpsilon = 0.00005
	// fineTuneDelta is added to a rating to ask for the next reachable step.
	fineTuneDelta = 0.0001
	// stallEpsilon is the overall-rating change below which an iteration
	// counts as no progress.
	stallEpsilon = 0.00001

	unplayedEffort = 1000000
)

// engine holds the per-run derived state. It is built from a copy of the
// input and discarded when the run ends.
type engine struct {
	mode      Mode
	pref      Preference
	target    float64
	extended  bool
	cap       int
	overrides rating.OverrideIndex
	excluded  rating.KeySet
	newTitles map[string]struct{}
	catalog   []rating.Record
	played    map[string]rating.Record
	newPool   []rating.Song
	log       []string
}

func newEngine(in *Input) *engine {
	idx := rating.NewOverrideIndex(in.ConstOverrides)
	e := &engine{
		mode:      in.Mode,
		pref:      in.Preference,
		target:    in.TargetRating,
		extended:  in.IsScoreLimitReleased,
		cap:       rating.ScoreCap(in.IsScoreLimitReleased),
		overrides: idx,
		excluded:  make(rating.KeySet, len(in.ExcludedSongKeys)),
		newTitles: make(map[string]struct{}, len(in.NewSongsTitles)),
		catalog:   rating.ApplyRecordOverrides(in.AllMusicData, idx),
		played:    make(map[string]rating.Record, len(in.UserPlayHistory)),
		newPool:   rating.ApplyOverrides(in.AllPlayedNewSongsPool, idx),
		log:       make([]string, 0, 64),
	}
	for _, k := range in.ExcludedSongKeys {
		e.excluded.Add(normalizeKey(k))
	}
	for _, t := range in.NewSongsTitles {
		e.newTitles[titleKey(t)] = struct{}{}
	}
	for _, r := range rating.ApplyRecordOverrides(in.UserPlayHistory, idx) {
		k := r.Key()
		if _, ok := e.played[k]; !ok {
			e.played[k] = r
		}
	}
	return e
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func (e *engine) logf(format string, args ...any) {
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

// initList copies a list, applies overrides, starts every target at the
// current values and freezes excluded songs. A song flagged excluded by the
// caller stays excluded and its key joins the excluded set.
func (e *engine) initList(songs []rating.Song, kind listKind) []rating.Song {
	out := rating.ApplyOverrides(songs, e.overrides)
	if out == nil {
		out = []rating.Song{}
	}
	for i := range out {
		s := &out[i]
		s.ResetTarget()
		k := s.Key()
		s.IsExcluded = s.IsExcluded || e.excluded.Has(k)
		if s.IsExcluded {
			e.excluded.Add(k)
			e.logf("[INIT_EXCLUDE] %s (%s) in %s frozen at %d", s.Title, s.Diff, kind, s.CurrentScore)
		}
	}
	return out
}

// lists is the mutable B30/N20 pair with its cached aggregates.
type lists struct {
	b30, n20       []rating.Song
	avgB30, avgN20 *float64
	overall        float64
}

func (l *lists) recompute() {
	l.avgB30 = rating.Average(l.b30, rating.BestCount, rating.TargetField)
	l.avgN20 = rating.Average(l.n20, rating.NewCount, rating.TargetField)
	l.overall = rating.Overall(l.avgB30, l.avgN20, len(l.b30), len(l.n20))
}

func (l *lists) finalize() {
	l.b30 = finalize(l.b30, rating.BestCount)
	l.n20 = finalize(l.n20, rating.NewCount)
}

// Run executes one simulation. It is a pure function of in: the input is
// never mutated and concurrent calls need no coordination. Invalid input
// yields an error_simulation_logic output.
func Run(in Input) Output {
	if err := in.Validate(); err != nil {
		return ErrorOutput(PhaseErrorSimulationLogic, err, nil)
	}

	e := newEngine(&in)
	e.logf("[RUN_START] target=%.4f mode=%s preference=%s current=%.4f excluded=%d",
		in.TargetRating, in.Mode, in.Preference, in.CurrentRating, len(e.excluded))

	if in.Mode == ModeCustom {
		return e.runCustom(in.CustomSongs)
	}

	st := &lists{
		b30: e.initList(in.OriginalB30Songs, listB30),
		n20: e.initList(in.OriginalNew20Songs, listN20),
	}
	st.recompute()
	e.logf("[INITIAL_STATE] b30Avg=%s n20Avg=%s overall=%.4f", fmtAvg(st.avgB30), fmtAvg(st.avgN20), st.overall)

	if in.CurrentRating >= e.target || st.overall >= e.target {
		e.logf("[END] phase=%s overall=%.4f iterations=0", PhaseTargetReached, st.overall)
		return e.output(st, PhaseTargetReached, 0)
	}

	var (
		phase      Phase
		iterations int
	)
	switch in.Mode {
	case ModeB30Only:
		phase, iterations = e.runSingle(st, listB30)
	case ModeN20Only:
		phase, iterations = e.runSingle(st, listN20)
	default:
		phase, iterations = e.runHybrid(st)
	}

	e.logf("[END] phase=%s overall=%.4f iterations=%d", phase, st.overall, iterations)
	return e.output(st, phase, iterations)
}

func (e *engine) output(st *lists, phase Phase, iterations int) Output {
	return Output{
		SimulatedB30Songs:       dedupe(st.b30),
		SimulatedNew20Songs:     dedupe(st.n20),
		FinalAverageB30Rating:   st.avgB30,
		FinalAverageNew20Rating: st.avgN20,
		FinalOverallRating:      st.overall,
		FinalPhase:              phase,
		SimulationLog:           e.log,
		Iterations:              iterations,
	}
}

// runSingle improves one list while the other stays frozen.
func (e *engine) runSingle(st *lists, kind listKind) (Phase, int) {
	stuck := PhaseStuckB30
	if kind == listN20 {
		stuck = PhaseStuckN20
	}

	iterations := 0
	for st.overall < e.target && iterations < maxIterationsSingle {
		iterations++
		prev := st.overall

		var res stepResult
		if kind == listB30 {
			res = e.stepList(st.b30, e.specFor(listB30, st.avgB30, false), st.n20)
			st.b30 = res.songs
		} else {
			res = e.stepList(st.n20, e.specFor(listN20, st.avgN20, false), st.b30)
			st.n20 = res.songs
		}
		st.recompute()
		e.logf("[ITERATION] %s #%d overall=%.4f", kind, iterations, st.overall)

		if st.overall >= e.target {
			return PhaseTargetReached, iterations
		}
		if res.stuck || math.Abs(st.overall-prev) < stallEpsilon {
			e.logf("[STUCK] %s: no improvement at iteration %d", kind, iterations)
			return stuck, iterations
		}
	}

	if st.overall >= e.target {
		return PhaseTargetReached, iterations
	}
	e.logf("[STUCK] %s: iteration limit %d reached", kind, maxIterationsSingle)
	return stuck, iterations
}

// hybridCandidate is a song from either list that can still improve.
type hybridCandidate struct {
	song rating.Song
	kind listKind
}

// runHybrid picks the single best improvement across both lists each
// iteration and falls back to replacements when none is left.
func (e *engine) runHybrid(st *lists) (Phase, int) {
	iterations := 0
	for st.overall < e.target && iterations < maxIterationsHybrid {
		iterations++
		prev := st.overall
		changed := e.improveAcrossLists(st)

		st.finalize()
		st.recompute()
		e.logf("[ITERATION] HYBRID #%d overall=%.4f", iterations, st.overall)
		if st.overall >= e.target {
			return PhaseTargetReached, iterations
		}

		if !changed || math.Abs(st.overall-prev) < stallEpsilon {
			b := e.stepList(st.b30, e.specFor(listB30, st.avgB30, true), st.n20)
			replacedB30 := b.changed > 0
			if replacedB30 {
				st.b30 = b.songs
				changed = true
			}
			n := e.stepList(st.n20, e.specFor(listN20, st.avgN20, true), st.b30)
			replacedN20 := n.changed > 0
			if replacedN20 {
				st.n20 = n.songs
				changed = true
			}

			st.finalize()
			st.recompute()
			if st.overall >= e.target {
				return PhaseTargetReached, iterations
			}
			if !replacedB30 && !replacedN20 {
				e.logf("[STUCK] HYBRID: no improvement or replacement at iteration %d", iterations)
				return PhaseStuckBoth, iterations
			}
		}

		if !changed && math.Abs(st.overall-prev) < stallEpsilon {
			e.logf("[STUCK] HYBRID: no change at iteration %d", iterations)
			return PhaseStuckBoth, iterations
		}
	}

	if st.overall >= e.target {
		return PhaseTargetReached, iterations
	}
	e.logf("[STUCK] HYBRID: iteration limit %d reached", maxIterationsHybrid)
	return PhaseStuckBoth, iterations
}

// improveAcrossLists applies a grade leap or fine tune to the best
// candidate of both lists. It reports whether a song changed.
func (e *engine) improveAcrossLists(st *lists) bool {
	var cands []hybridCandidate
	collect := func(songs []rating.Song, kind listKind) {
		for _, s := range songs {
			if !e.improvable(&s) {
				continue
			}
			_, _, leap := e.leapTarget(&s)
			_, _, tune := e.fineTuneTarget(&s)
			if leap || tune {
				cands = append(cands, hybridCandidate{song: s.Clone(), kind: kind})
			}
		}
	}
	collect(st.b30, listB30)
	collect(st.n20, listN20)
	if len(cands) == 0 {
		return false
	}

	less := func(a, b *hybridCandidate) bool { return peakLessByConstant(&a.song, &b.song) }
	if e.pref == PreferFloor {
		less = func(a, b *hybridCandidate) bool {
			return floorLessAcross(&a.song, st.avgOf(a.kind), &b.song, st.avgOf(b.kind))
		}
	}
	sortCandidates(cands, less)

	top := cands[0]
	songs := st.b30
	if top.kind == listN20 {
		songs = st.n20
	}
	i := indexOf(songs, top.song.Key())
	if i < 0 {
		return false
	}
	if score, r, ok := e.leapTarget(&songs[i]); ok {
		e.logLeap(top.kind, &songs[i], score, r)
		songs[i].TargetScore, songs[i].TargetRating = score, r
		return true
	}
	if score, r, ok := e.fineTuneTarget(&songs[i]); ok {
		e.logFineTune(top.kind, &songs[i], score, r)
		songs[i].TargetScore, songs[i].TargetRating = score, r
		return true
	}
	return false
}

func (l *lists) avgOf(kind listKind) *float64 {
	if kind == listN20 {
		return l.avgN20
	}
	return l.avgB30
}

func fmtAvg(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", *v)
}
