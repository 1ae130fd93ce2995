// Command chuni-sim runs one rating simulation from the terminal.
//
//	chuni-sim -input run.json
//	chuni-sim -user NAME -target 17.0 -mode hybrid -pref floor
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/charts"
	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
	"github.com/ramonehamilton/CHUNI-Companion/internal/config"
	"github.com/ramonehamilton/CHUNI-Companion/internal/export"
	"github.com/ramonehamilton/CHUNI-Companion/internal/planner"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

type options struct {
	input    string
	user     string
	target   float64
	mode     string
	pref     string
	released bool
	exclude  string
	asJSON   bool
	showLog  bool
	chart    string
	open     bool
	export   string
	changed  bool
	config   string
	timeout  time.Duration
}

func main() {
	opts := &options{}
	flag.StringVar(&opts.input, "input", "", "Run a simulation input JSON file")
	flag.StringVar(&opts.user, "user", "", "chunirec player name to fetch")
	flag.Float64Var(&opts.target, "target", 0, "Target overall rating")
	flag.StringVar(&opts.mode, "mode", "hybrid", "Simulation mode: b30_only, n20_only, hybrid")
	flag.StringVar(&opts.pref, "pref", "floor", "Algorithm preference: floor, peak")
	flag.BoolVar(&opts.released, "released", false, "Allow scores above 1,009,000")
	flag.StringVar(&opts.exclude, "exclude", "", "Comma separated {id}_{DIFF} keys to leave untouched")
	flag.BoolVar(&opts.asJSON, "json", false, "Print the raw output as JSON")
	flag.BoolVar(&opts.showLog, "log", false, "Print the simulation log")
	flag.StringVar(&opts.chart, "chart", "", "Write an HTML chart of the result to this file")
	flag.BoolVar(&opts.open, "open", false, "Open the chart in the browser (implies -chart)")
	flag.StringVar(&opts.export, "export", "", "Write the simulated songs to a .csv or .json file")
	flag.BoolVar(&opts.changed, "changed", false, "Export only songs whose score was raised")
	flag.StringVar(&opts.config, "config", "", "Config file for the chunirec token and data files")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(opts *options, w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	var (
		out simulation.Output
		in  *simulation.Input
		err error
	)
	switch {
	case opts.input != "":
		in, err = readInput(opts.input)
		if err != nil {
			return err
		}
		applyFlags(in, opts)
		if reachable, ok := planner.Precheck(in); !ok {
			out = planner.UnreachableOutput(in, reachable)
		} else {
			out = simulation.RunSafe(*in)
		}
	case opts.user != "":
		out, err = runLive(ctx, opts)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either -input or -user is required")
	}

	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Fprint(w, renderOutput(&out, opts.showLog))
	}

	if opts.export != "" {
		if err := exportResult(&out, opts); err != nil {
			return err
		}
		if !opts.asJSON {
			fmt.Fprintln(w, mutedStyle.Render("Result exported to "+opts.export))
		}
	}

	if opts.open && opts.chart == "" {
		opts.chart = "chuni-sim-chart.html"
	}
	if opts.chart != "" {
		if err := charts.RenderSimulationFile(&out, charts.DefaultChartConfig(), opts.chart); err != nil {
			return err
		}
		if !opts.asJSON {
			fmt.Fprintln(w, mutedStyle.Render("Chart written to "+opts.chart))
		}
		if opts.open {
			if err := charts.OpenInBrowser(opts.chart); err != nil {
				return err
			}
		}
	}
	return nil
}

func exportResult(out *simulation.Output, opts *options) error {
	format, err := export.ParseFormat(filepath.Ext(opts.export))
	if err != nil {
		return err
	}
	return export.Simulation(out, export.Options{
		Format:     format,
		FilePath:   opts.export,
		PrettyJSON: true,
		Overwrite:  true,
	}, opts.changed)
}

func readInput(path string) (*simulation.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	var in simulation.Input
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse input %s: %w", path, err)
	}
	return &in, nil
}

// applyFlags lets explicitly set flags override the input file.
func applyFlags(in *simulation.Input, opts *options) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			in.TargetRating = opts.target
		case "mode":
			in.Mode = simulation.Mode(opts.mode)
		case "pref":
			in.Preference = simulation.Preference(opts.pref)
		case "released":
			in.IsScoreLimitReleased = opts.released
		case "exclude":
			in.ExcludedSongKeys = splitKeys(opts.exclude)
		}
	})
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// runLive fetches the player from chunirec and simulates without a database.
func runLive(ctx context.Context, opts *options) (simulation.Output, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.config != "" {
		cfg, err = config.LoadFrom(opts.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return simulation.Output{}, err
	}
	config.SetupLogging(config.LogConfig{Level: "warn", Format: cfg.Log.Format})

	data := config.NewDataStoreFromConfig(cfg.Data)
	if _, err := data.Reload(); err != nil {
		return simulation.Output{}, err
	}

	svc, err := planner.NewService(planner.Config{
		Client: chunirec.NewClient(chunirec.Config{
			BaseURL:    cfg.Chunirec.BaseURL,
			Token:      cfg.Chunirec.Token,
			Region:     cfg.Chunirec.Region,
			Timeout:    cfg.GetChunirecTimeout(),
			RateDelay:  cfg.GetRateDelay(),
			MaxRetries: cfg.Chunirec.MaxRetries,
		}),
		Data: data,
	})
	if err != nil {
		return simulation.Output{}, err
	}
	defer svc.Close()

	if opts.target <= 0 {
		return simulation.Output{}, fmt.Errorf("-target is required with -user")
	}
	req := planner.Request{
		User:                 opts.user,
		TargetRating:         opts.target,
		Mode:                 simulation.Mode(opts.mode),
		Preference:           simulation.Preference(opts.pref),
		IsScoreLimitReleased: opts.released,
		ExcludedSongKeys:     splitKeys(opts.exclude),
	}
	if req.ExcludedSongKeys == nil {
		req.ExcludedSongKeys = []string{}
	}

	result, err := svc.Simulate(ctx, req)
	if err != nil {
		return simulation.Output{}, err
	}
	return result.Output, nil
}
