// Package report renders analysis results as CSV, JSON, SARIF, plain-text
// analyst reports and compressed archives.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/rs/zerolog"
)

// Artifact file names written by WriteAll.
const (
	ResultsCSV    = "results.csv"
	SuspiciousCSV = "suspicious_cases.csv"
	ReportText    = "anomaly_report.txt"
	ResultsJSON   = "results.json"
	ArchiveFile   = "scored.ndjson.gz"
)

// Options selects the artifacts WriteAll produces.
type Options struct {
	CSV     bool
	JSON    bool
	Report  bool
	Archive bool
	Now     time.Time // report date; zero means time.Now()
}

// OptionsFromConfig maps the output config section to Options.
func OptionsFromConfig(cfg core.OutputConfig) Options {
	return Options{CSV: cfg.CSV, JSON: cfg.JSON, Report: cfg.Report, Archive: cfg.Archive}
}

// WriteAll writes the selected artifacts into dir and returns their paths.
func WriteAll(dir string, result *core.AnalysisResult, opts Options, logger zerolog.Logger) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var written []string
	writeFile := func(name string, render func(f *os.File) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		if err := render(f); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	if opts.CSV {
		if err := writeFile(ResultsCSV, func(f *os.File) error { return WriteCSV(f, result.Scored) }); err != nil {
			return written, err
		}
		if err := writeFile(SuspiciousCSV, func(f *os.File) error { return WriteCSV(f, result.HighPriority) }); err != nil {
			return written, err
		}
	}
	if opts.Report {
		if err := writeFile(ReportText, func(f *os.File) error { return WriteText(f, result, now) }); err != nil {
			return written, err
		}
	}
	if opts.JSON {
		if err := writeFile(ResultsJSON, func(f *os.File) error { return WriteJSON(f, result) }); err != nil {
			return written, err
		}
	}
	if opts.Archive {
		path := filepath.Join(dir, ArchiveFile)
		if err := ArchiveResult(path, result, logger); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	logger.Info().Str("dir", dir).Int("files", len(written)).Msg("reports written")
	return written, nil
}
