package rating

import "sort"

// List capacities.
const (
	BestCount = 30
	NewCount  = 20
)

// RatingField selects which rating of a song is aggregated.
type RatingField int

const (
	// CurrentField aggregates achieved ratings.
	CurrentField RatingField = iota
	// TargetField aggregates simulated ratings.
	TargetField
)

func (f RatingField) of(s *Song) float64 {
	if f == TargetField {
		return s.TargetRating
	}
	return s.CurrentRating
}

// Average returns the mean of the top limit ratings, rounded to 4
// decimals, or nil for an empty list.
func Average(songs []Song, limit int, field RatingField) *float64 {
	if len(songs) == 0 || limit <= 0 {
		return nil
	}
	vals := make([]float64, len(songs))
	for i := range songs {
		vals[i] = field.of(&songs[i])
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	if len(vals) > limit {
		vals = vals[:limit]
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	avg := Round4(sum / float64(len(vals)))
	return &avg
}

// Overall weights the two list averages by their effective sizes, capped at
// the list capacities. Returns 0 when both lists are empty.
func Overall(avgB30, avgN20 *float64, countB30, countN20 int) float64 {
	nb := min(countB30, BestCount)
	nn := min(countN20, NewCount)
	if nb+nn <= 0 {
		return 0
	}
	var b, n float64
	if avgB30 != nil {
		b = *avgB30
	}
	if avgN20 != nil {
		n = *avgN20
	}
	return Round4((b*float64(nb) + n*float64(nn)) / float64(nb+nn))
}

// TheoreticalMax raises every eligible song to assumeScore and returns the
// top limit songs by target rating with their average. Excluded songs,
// songs without a constant and songs already at or above assumeScore keep
// their current values.
func TheoreticalMax(pool []Song, limit, assumeScore int, excluded KeySet) ([]Song, *float64) {
	maxed := make([]Song, 0, len(pool))
	for _, s := range pool {
		s = s.Clone()
		if !s.HasConstant() || excluded.Has(s.Key()) || s.CurrentScore >= assumeScore {
			s.ResetTarget()
		} else {
			s.TargetScore = assumeScore
			s.TargetRating = Calculate(assumeScore, *s.ChartConstant)
		}
		maxed = append(maxed, s)
	}
	sort.SliceStable(maxed, func(i, j int) bool {
		return maxed[i].TargetRating > maxed[j].TargetRating
	})
	if len(maxed) > limit {
		maxed = maxed[:limit]
	}
	return maxed, Average(maxed, limit, TargetField)
}
