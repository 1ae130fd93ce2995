package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func phaseStyle(p simulation.Phase) lipgloss.Style {
	switch {
	case p == simulation.PhaseTargetReached:
		return successStyle
	case p.IsError():
		return errorStyle
	default:
		return warnStyle
	}
}

func formatAverage(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

// renderOutput formats a result for the terminal: a summary box and one
// table per list of the songs whose target differs from the current play.
func renderOutput(out *simulation.Output, withLog bool) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("CHUNITHM Rating Simulation"))
	b.WriteString("\n")

	summary := []string{
		"Phase:      " + phaseStyle(out.FinalPhase).Render(string(out.FinalPhase)),
		fmt.Sprintf("Overall:    %.4f", out.FinalOverallRating),
		"B30 avg:    " + formatAverage(out.FinalAverageB30Rating),
		"N20 avg:    " + formatAverage(out.FinalAverageNew20Rating),
		fmt.Sprintf("Iterations: %d", out.Iterations),
	}
	if out.ReachableRating != nil {
		summary = append(summary, fmt.Sprintf("Reachable:  %.4f", *out.ReachableRating))
	}
	if out.Error != "" {
		summary = append(summary, errorStyle.Render("Error: "+out.Error))
	}
	b.WriteString(summaryStyle.Render(strings.Join(summary, "\n")))
	b.WriteString("\n")

	writeChanges(&b, "Best 30", out.SimulatedB30Songs)
	writeChanges(&b, "New 20", out.SimulatedNew20Songs)

	if withLog && len(out.SimulationLog) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Log"))
		b.WriteString("\n")
		for _, line := range out.SimulationLog {
			b.WriteString(mutedStyle.Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeChanges(b *strings.Builder, name string, songs []rating.Song) {
	var changed []rating.Song
	for _, s := range songs {
		if s.TargetScore != s.CurrentScore {
			changed = append(changed, s)
		}
	}
	if len(songs) == 0 {
		return
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d of %d songs to improve)", name, len(changed), len(songs))))
	b.WriteString("\n")
	for _, s := range changed {
		constant := "?"
		if s.HasConstant() {
			constant = fmt.Sprintf("%.1f", s.Constant())
		}
		title := s.Title
		if len([]rune(title)) > 32 {
			title = string([]rune(title)[:31]) + "…"
		}
		fmt.Fprintf(b, "  %-33s %-4s %5s  %7d → %7d  %7.2f → %7.2f\n",
			title, s.Diff, constant, s.CurrentScore, s.TargetScore, s.CurrentRating, s.TargetRating)
	}
}
