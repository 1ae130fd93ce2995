// Package charts renders simulation results as interactive HTML charts.
package charts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

// ChartConfig holds presentation options.
type ChartConfig struct {
	Title    string
	Subtitle string
	Width    string // e.g. "1200px"
	Height   string
	Theme    string
	Colors   []string // current, target
}

// DefaultChartConfig returns the default chart configuration.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:  "1200px",
		Height: "500px",
		Theme:  "light",
		Colors: []string{"#91CC75", "#5470C6"},
	}
}

// ErrNoSongs is returned when a result has neither list.
var ErrNoSongs = errors.New("simulation result has no songs to chart")

// SongBar is one x-axis entry of a list chart.
type SongBar struct {
	Label   string
	Current float64
	Target  float64
}

// SongBars converts a simulated list into chart entries, one per song.
func SongBars(songs []rating.Song) []SongBar {
	bars := make([]SongBar, len(songs))
	for i, s := range songs {
		bars[i] = SongBar{
			Label:   fmt.Sprintf("%s [%s]", s.Title, s.Diff),
			Current: s.CurrentRating,
			Target:  s.TargetRating,
		}
	}
	return bars
}

func newListChart(name string, avg *float64, bars []SongBar, config ChartConfig) *charts.Bar {
	bar := charts.NewBar()

	subtitle := config.Subtitle
	if avg != nil {
		subtitle = fmt.Sprintf("%s average %.4f", name, *avg)
	}
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  config.Width,
			Height: config.Height,
			Theme:  config.Theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    name,
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
		}),
		charts.WithColorsOpts(opts.Colors(config.Colors)),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Rotate: 45},
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Rating"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	labels := make([]string, len(bars))
	current := make([]opts.BarData, len(bars))
	target := make([]opts.BarData, len(bars))
	for i, b := range bars {
		labels[i] = b.Label
		current[i] = opts.BarData{Value: b.Current}
		target[i] = opts.BarData{Value: b.Target}
	}

	bar.SetXAxis(labels).
		AddSeries("Current", current).
		AddSeries("Target", target).
		SetSeriesOptions(
			charts.WithLabelOpts(opts.Label{
				Show: opts.Bool(false),
			}),
		)
	return bar
}

// RenderSimulation writes an HTML page with one bar chart per non-empty
// list of out.
func RenderSimulation(w io.Writer, out *simulation.Output, config ChartConfig) error {
	if len(out.SimulatedB30Songs) == 0 && len(out.SimulatedNew20Songs) == 0 {
		return ErrNoSongs
	}
	if len(config.Colors) < 2 {
		config.Colors = DefaultChartConfig().Colors
	}

	page := components.NewPage()
	title := config.Title
	if title == "" {
		title = fmt.Sprintf("Simulation %s (%.4f)", out.FinalPhase, out.FinalOverallRating)
	}
	page.PageTitle = title

	if len(out.SimulatedB30Songs) > 0 {
		page.AddCharts(newListChart("B30", out.FinalAverageB30Rating, SongBars(out.SimulatedB30Songs), config))
	}
	if len(out.SimulatedNew20Songs) > 0 {
		page.AddCharts(newListChart("N20", out.FinalAverageNew20Rating, SongBars(out.SimulatedNew20Songs), config))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// RenderSimulationFile writes the chart page to outputPath.
func RenderSimulationFile(out *simulation.Output, config ChartConfig, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return RenderSimulation(f, out, config)
}

// OpenInBrowser opens the given file path in the default web browser.
func OpenInBrowser(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", absPath)
	case "linux":
		cmd = exec.Command("xdg-open", absPath)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
