package main

// ---------------------------------------------------------------------------
// cmd_analyze.go: run the anomaly analysis over a directory of raw logs
// ---------------------------------------------------------------------------

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/1sec-project/instatrace/internal/collect"
	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/pipeline"
	"github.com/1sec-project/instatrace/internal/rank"
	"github.com/1sec-project/instatrace/internal/report"
	"github.com/rs/zerolog"
)

// analyzeOptions are the analyze flags that are not config overrides.
type analyzeOptions struct {
	format OutputFormat
	quiet  bool
}

func cmdAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	input := fs.String("input", "", "Raw log directory")
	recursive := fs.Bool("recursive", false, "Descend into subdirectories")
	outDir := fs.String("out-dir", "", "Artifact directory")
	format := fs.String("format", "table", "Output format: table, json, csv, sarif")
	output := fs.String("output", "", "Write output to file")
	top := fs.Int("top", 0, "High-priority rows shown in table format")
	threshold := fs.Float64("threshold", 0, "High-priority probability threshold")
	contamination := fs.Float64("contamination", 0, "Expected anomaly fraction")
	trees := fs.Int("trees", 0, "Isolation trees")
	seed := fs.Int64("seed", 0, "Model seed")
	workers := fs.Int("workers", 0, "Parallel tree builders (0 = all CPUs)")
	archive := fs.Bool("archive", false, "Write a compressed NDJSON archive")
	bus := fs.Bool("bus", false, "Publish alerts to NATS JetStream")
	embeddedBus := fs.Bool("embedded-bus", false, "Start an embedded NATS server")
	textfile := fs.String("metrics-textfile", "", "Write Prometheus metrics to this file")
	logLevel := fs.String("log-level", "", "Log level override: debug, info, warn, error")
	quiet := fs.Bool("quiet", false, "Suppress the run summary")
	fs.BoolVar(quiet, "q", false, "Suppress the run summary")
	noColor := fs.Bool("no-color", false, "Disable color output")
	fs.Parse(args)

	if *noColor {
		os.Setenv("NO_COLOR", "1")
	}

	cfg := loadConfig(*configPath)

	// Only explicitly set flags override the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.Dir = *input
		case "recursive":
			cfg.Input.Recursive = *recursive
		case "out-dir":
			cfg.Output.Dir = *outDir
		case "top":
			cfg.Output.Top = *top
		case "threshold":
			cfg.Scoring.HighPriorityThreshold = *threshold
		case "contamination":
			cfg.Scoring.Contamination = *contamination
		case "trees":
			cfg.Scoring.Trees = *trees
		case "seed":
			cfg.Scoring.Seed = *seed
		case "workers":
			cfg.Scoring.Workers = *workers
		case "archive":
			cfg.Output.Archive = *archive
		case "bus":
			cfg.Bus.Enabled = *bus
		case "embedded-bus":
			cfg.Bus.Embedded = *embeddedBus
		case "metrics-textfile":
			cfg.Metrics.Textfile = *textfile
		}
	})

	logger := newLogger(cfg, *logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, cleanup := outputWriter(*output)
	defer cleanup()

	opts := analyzeOptions{format: parseFormat(*format), quiet: *quiet}
	if err := runAnalyze(ctx, cfg, opts, w, os.Stderr, logger); err != nil {
		if errors.Is(err, core.ErrEmptyBatch) {
			errorf("no recognizable events under %s", cfg.Input.Dir)
		}
		errorf("%v", err)
	}
}

// runAnalyze executes one analysis run and renders it to w. Status lines go
// to status.
func runAnalyze(ctx context.Context, cfg *core.Config, opts analyzeOptions, w, status io.Writer, logger zerolog.Logger) error {
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}

	metrics := pipeline.NewMetrics()
	p.SetMetrics(metrics)

	if cfg.Bus.Enabled {
		bus, err := core.NewAlertBus(&cfg.Bus, logger)
		if err != nil {
			return fmt.Errorf("starting alert bus: %w", err)
		}
		defer bus.Close()
		p.SetPublisher(bus)
	}

	result, err := p.Analyze(ctx, collect.NewLoader(cfg.Input, logger))
	if err != nil {
		return err
	}

	written, err := report.WriteAll(cfg.Output.Dir, result, report.OptionsFromConfig(cfg.Output), logger)
	if err != nil {
		return fmt.Errorf("writing artifacts: %w", err)
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("failed to write metrics textfile")
		}
	}

	if err := renderResult(w, result, opts.format, cfg.Output.Top); err != nil {
		return fmt.Errorf("rendering %s output: %w", formatName(opts.format), err)
	}

	if !opts.quiet {
		s := result.Stats
		fmt.Fprintf(status, "%s Analyzed %d events from %d actors (%d files, %d skipped) in %s\n",
			green("✓"), s.Events, s.Actors, s.Files, s.SkippedFiles, result.Duration().Round(time.Millisecond))
		fmt.Fprintf(status, "  %d anomalies, %d high-priority (p > %.2f)\n", s.Anomalies, s.HighPriority, s.Threshold)
		if s.Unrecognized > 0 {
			warnf("%d records matched no known log shape", s.Unrecognized)
		}
		for _, path := range written {
			fmt.Fprintf(status, "  %s %s\n", dim("▸"), path)
		}
	}
	return nil
}

// renderResult writes the result in the requested stdout format.
func renderResult(w io.Writer, result *pipeline.Result, format OutputFormat, top int) error {
	switch format {
	case FormatJSON:
		return report.WriteJSON(w, result)
	case FormatCSV:
		return report.WriteCSV(w, result.HighPriority)
	case FormatSARIF:
		return report.WriteSARIF(w, pipeline.Alerts(result), version)
	}

	rows := rank.Top(result.HighPriority, top)
	if len(rows) == 0 {
		fmt.Fprintln(w, "No high-priority alerts detected.")
		return nil
	}
	tbl := NewTable(w, "#", "USER", "TIME", "ACTION", "COUNTRY", "DEVICE", "PROBABILITY", "TIER")
	for i, se := range rows {
		ts := core.DefaultDate
		if se.Event.Timestamp != nil {
			ts = *se.Event.Timestamp
		}
		tbl.AddRow(
			fmt.Sprintf("%d", i+1),
			se.Event.Actor,
			ts.Format("2006-01-02 15:04"),
			se.Event.Action,
			se.Event.Country,
			se.Event.DeviceType,
			fmt.Sprintf("%.3f", se.AnomalyProbability),
			se.RiskTier.String(),
		)
	}
	tbl.Render()
	if len(rows) < len(result.HighPriority) {
		fmt.Fprintf(w, "%s\n", dim(fmt.Sprintf("… %d more, raise --top to list them", len(result.HighPriority)-len(rows))))
	}
	return nil
}
