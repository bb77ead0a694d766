// Command mobility-report analyses one folder of per-frequency particle
// track exports: the control condition derives noise-rejection
// thresholds, every other condition is filtered against them, and the
// per-condition summary statistics are written out as CSV files,
// optionally a SQLite run history, and optionally plots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/particle-data/mobility.report/internal/analysis"
	"github.com/particle-data/mobility.report/internal/config"
	"github.com/particle-data/mobility.report/internal/discovery"
	"github.com/particle-data/mobility.report/internal/plot"
	"github.com/particle-data/mobility.report/internal/report"
	"github.com/particle-data/mobility.report/internal/version"
)

var (
	dataDir    = flag.String("dir", ".", "Folder containing per-condition track export CSVs")
	configPath = flag.String("config", "", "Optional analysis config JSON file")
	outDir     = flag.String("out", "", "Output folder for summary CSVs (defaults to -dir)")
	dbPath     = flag.String("db", "", "Optional SQLite database to record the run in")
	plotsDir   = flag.String("plots", "", "Optional folder to write scatter plots and the dashboard to")
	workers    = flag.Int("workers", 0, "Concurrent condition workers (0 uses the config value)")
	quiet      = flag.Bool("quiet", false, "Only print warnings and errors")
	showVer    = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("mobility-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if *workers > 0 {
		cfg.Workers = workers
	}

	out := *outDir
	if out == "" {
		out = *dataDir
	}

	conds, err := discovery.Match(*dataDir)
	if err != nil {
		log.Fatalf("failed to scan %s: %v", *dataDir, err)
	}
	if len(conds) == 0 {
		log.Fatalf("no recognizable condition files found in %s", *dataDir)
	}
	if !*quiet {
		log.Printf("found %d conditions in %s", len(conds), *dataDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := analysis.NewRunner(cfg).Run(ctx, conds)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	if result.BaselineErr != nil {
		log.Printf("warning: %v; dependent conditions reported missing", result.BaselineErr)
	}

	if !*quiet {
		for _, res := range result.Conditions {
			if !res.Summary.Valid {
				log.Printf("%s Hz: missing", res.Label)
				continue
			}
			removed := res.Summary.InitialCount - res.Summary.FinalCount
			pct := 100 * float64(res.Summary.FinalCount) / float64(res.Summary.InitialCount)
			log.Printf("%s Hz: filtered out %d tracks, leaving %d (%.3f%% remain)",
				res.Label, removed, res.Summary.FinalCount, pct)
		}
	}

	if err := writeCSVs(out, cfg, result); err != nil {
		log.Fatalf("failed to write summaries: %v", err)
	}
	if !*quiet {
		log.Printf("wrote summary CSVs to %s", out)
	}

	if *dbPath != "" {
		store, err := report.OpenStore(*dbPath)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer store.Close()

		runID, err := store.SaveRun(*dataDir, result)
		if err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
		if !*quiet {
			log.Printf("recorded run %s in %s", runID, *dbPath)
		}
	}

	if *plotsDir != "" {
		if err := writePlots(*plotsDir, result); err != nil {
			log.Fatalf("failed to write plots: %v", err)
		}
		if !*quiet {
			log.Printf("wrote plots to %s", *plotsDir)
		}
	}
}

func writeCSVs(out string, cfg *config.AnalysisConfig, result *analysis.RunResult) error {
	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}

	writers := []struct {
		name  string
		write func(f *os.File) error
	}{
		{"track_data_summary.csv", func(f *os.File) error {
			return report.WriteSummaryCSV(f, result.Conditions, cfg.GetSpeedConversion())
		}},
		{"track_data_summary_stds.csv", func(f *os.File) error {
			return report.WriteStdsCSV(f, result.Conditions)
		}},
		{"all_tracks.csv", func(f *os.File) error {
			return report.WriteAllTracksCSV(f, result.Conditions)
		}},
	}

	for _, w := range writers {
		f, err := os.Create(filepath.Join(out, w.name))
		if err != nil {
			return fmt.Errorf("create %s: %w", w.name, err)
		}
		if err := w.write(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", w.name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", w.name, err)
		}
	}
	return nil
}

func writePlots(dir string, result *analysis.RunResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create plots folder: %w", err)
	}

	for _, res := range result.Conditions {
		if len(res.Kept) == 0 && len(res.Drops) == 0 {
			continue
		}
		threshold := result.Thresholds.Speed
		if res.FrequencyHz == 0 {
			threshold = 0
		}
		name := fmt.Sprintf("%s_track_scatter.png", res.Label)
		if err := plot.ConditionScatter(res, threshold, filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	return plot.WriteDashboard(result.Conditions, filepath.Join(dir, "dashboard.html"))
}
