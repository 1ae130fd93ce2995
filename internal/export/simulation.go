package export

import (
	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

// SongRow is one simulated song flattened for spreadsheets.
type SongRow struct {
	List          string   `csv:"list" json:"list"`
	Rank          int      `csv:"rank" json:"rank"`
	Key           string   `csv:"key" json:"key"`
	Title         string   `csv:"title" json:"title"`
	Diff          string   `csv:"diff" json:"diff"`
	Constant      *float64 `csv:"constant" json:"constant"`
	CurrentScore  int      `csv:"current_score" json:"currentScore"`
	CurrentRating float64  `csv:"current_rating" json:"currentRating"`
	TargetScore   int      `csv:"target_score" json:"targetScore"`
	TargetRating  float64  `csv:"target_rating" json:"targetRating"`
	Gain          float64  `csv:"gain" json:"gain"`
	Changed       bool     `csv:"changed" json:"changed"`
	Excluded      bool     `csv:"excluded" json:"excluded"`
}

// Summary is the JSON export of a run.
type Summary struct {
	Phase        string    `json:"phase"`
	FinalOverall float64   `json:"finalOverall"`
	FinalB30     *float64  `json:"finalB30"`
	FinalN20     *float64  `json:"finalN20"`
	Reachable    *float64  `json:"reachable,omitempty"`
	Iterations   int       `json:"iterations"`
	Error        string    `json:"error,omitempty"`
	Songs        []SongRow `json:"songs"`
}

// SimulationRows flattens both lists of out, B30 first, ranked from 1.
// When changedOnly is set, songs whose target equals their current score
// are left out.
func SimulationRows(out *simulation.Output, changedOnly bool) []SongRow {
	rows := make([]SongRow, 0, len(out.SimulatedB30Songs)+len(out.SimulatedNew20Songs))
	rows = appendRows(rows, "b30", out.SimulatedB30Songs, changedOnly)
	rows = appendRows(rows, "n20", out.SimulatedNew20Songs, changedOnly)
	return rows
}

func appendRows(rows []SongRow, list string, songs []rating.Song, changedOnly bool) []SongRow {
	for i := range songs {
		s := &songs[i]
		changed := s.TargetScore != s.CurrentScore
		if changedOnly && !changed {
			continue
		}
		rows = append(rows, SongRow{
			List:          list,
			Rank:          i + 1,
			Key:           s.Key(),
			Title:         s.Title,
			Diff:          string(s.Diff),
			Constant:      s.ChartConstant,
			CurrentScore:  s.CurrentScore,
			CurrentRating: s.CurrentRating,
			TargetScore:   s.TargetScore,
			TargetRating:  s.TargetRating,
			Gain:          s.TargetRating - s.CurrentRating,
			Changed:       changed,
			Excluded:      s.IsExcluded,
		})
	}
	return rows
}

// NewSummary builds the JSON export of out.
func NewSummary(out *simulation.Output, changedOnly bool) Summary {
	return Summary{
		Phase:        string(out.FinalPhase),
		FinalOverall: out.FinalOverallRating,
		FinalB30:     out.FinalAverageB30Rating,
		FinalN20:     out.FinalAverageNew20Rating,
		Reachable:    out.ReachableRating,
		Iterations:   out.Iterations,
		Error:        out.Error,
		Songs:        SimulationRows(out, changedOnly),
	}
}

// Simulation exports out as CSV song rows or a JSON summary.
func Simulation(out *simulation.Output, opts Options, changedOnly bool) error {
	exporter := NewExporter(opts)
	if opts.Format == FormatJSON {
		return exporter.Export(NewSummary(out, changedOnly))
	}
	return exporter.Export(SimulationRows(out, changedOnly))
}
