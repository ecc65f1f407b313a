package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/report"
	"github.com/1sec-project/instatrace/internal/synth"
	"github.com/rs/zerolog"
)

// analyzeConfig writes the reference synthetic data set into a temp input dir
// and returns a config reading it.
func analyzeConfig(t *testing.T) *core.Config {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	records, err := synth.Generate(synth.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	in := t.TempDir()
	if err := synth.WriteFile(filepath.Join(in, "activities.json"), records); err != nil {
		t.Fatal(err)
	}

	cfg := core.DefaultConfig()
	cfg.Input.Dir = in
	cfg.Output.Dir = t.TempDir()
	cfg.Scoring.Trees = 50
	return cfg
}

func suspiciousRows(t *testing.T, dir string) int {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, report.SuspiciousCSV))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return len(rows) - 1
}

// ─── runAnalyze ───────────────────────────────────────────────────────────────

func TestRunAnalyze_Table(t *testing.T) {
	cfg := analyzeConfig(t)
	var out, status bytes.Buffer

	err := runAnalyze(context.Background(), cfg, analyzeOptions{format: FormatTable}, &out, &status, zerolog.Nop())
	if err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	if !strings.Contains(out.String(), "PROBABILITY") {
		t.Errorf("table output missing header:\n%s", out.String())
	}
	if !strings.Contains(status.String(), "Analyzed 315 events from 3 actors (1 files, 0 skipped)") {
		t.Errorf("status = %q", status.String())
	}
	for _, name := range []string{report.ResultsCSV, report.SuspiciousCSV, report.ReportText} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}
}

func TestRunAnalyze_TopLimitsTable(t *testing.T) {
	cfg := analyzeConfig(t)
	cfg.Output.Top = 1
	var out bytes.Buffer

	err := runAnalyze(context.Background(), cfg, analyzeOptions{format: FormatTable, quiet: true}, &out, &bytes.Buffer{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// border, header, separator, one row, border, plus an optional "more" note
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) < 5 || len(lines) > 6 {
		t.Errorf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[3], "│ 1 ") {
		t.Errorf("first row = %q", lines[3])
	}
}

func TestRunAnalyze_SARIF(t *testing.T) {
	cfg := analyzeConfig(t)
	var out bytes.Buffer

	err := runAnalyze(context.Background(), cfg, analyzeOptions{format: FormatSARIF, quiet: true}, &out, &bytes.Buffer{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name string `json:"name"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID string `json:"ruleId"`
			} `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc.Version != "2.1.0" || len(doc.Runs) != 1 || doc.Runs[0].Tool.Driver.Name != "instatrace" {
		t.Errorf("unexpected SARIF envelope: %+v", doc)
	}
	if got, want := len(doc.Runs[0].Results), suspiciousRows(t, cfg.Output.Dir); got != want {
		t.Errorf("SARIF has %d results, suspicious CSV has %d rows", got, want)
	}
	for _, r := range doc.Runs[0].Results {
		if !strings.HasPrefix(r.RuleID, "instatrace/") {
			t.Errorf("ruleId = %q", r.RuleID)
		}
	}
}

func TestRunAnalyze_JSON(t *testing.T) {
	cfg := analyzeConfig(t)
	var out bytes.Buffer

	err := runAnalyze(context.Background(), cfg, analyzeOptions{format: FormatJSON, quiet: true}, &out, &bytes.Buffer{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	var result core.AnalysisResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("output is not a result document: %v", err)
	}
	if len(result.Scored) != 315 || result.Stats.Files != 1 {
		t.Errorf("scored = %d, files = %d", len(result.Scored), result.Stats.Files)
	}
}

func TestRunAnalyze_ArchiveAndMetrics(t *testing.T) {
	cfg := analyzeConfig(t)
	cfg.Output.Archive = true
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "instatrace.prom")

	err := runAnalyze(context.Background(), cfg, analyzeOptions{format: FormatCSV, quiet: true}, &bytes.Buffer{}, &bytes.Buffer{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(cfg.Output.Dir, report.ArchiveFile))
	if err != nil {
		t.Fatalf("archive not written: %v", err)
	}
	defer f.Close()
	var listing bytes.Buffer
	if err := printArchive(&listing, f, FormatTable); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(listing.String(), "1 run, 315 event, ") {
		t.Errorf("archive listing = %q", listing.String())
	}

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(prom), "instatrace_anomaly_probability_count 315") {
		t.Errorf("metrics textfile missing histogram count:\n%s", prom)
	}
}

func TestRunAnalyze_EmptyInput(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Input.Dir = t.TempDir()
	cfg.Output.Dir = t.TempDir()

	err := runAnalyze(context.Background(), cfg, analyzeOptions{quiet: true}, &bytes.Buffer{}, &bytes.Buffer{}, zerolog.Nop())
	if !errors.Is(err, core.ErrEmptyBatch) {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestRunAnalyze_InvalidConfig(t *testing.T) {
	cfg := analyzeConfig(t)
	cfg.Scoring.Contamination = 0.9

	err := runAnalyze(context.Background(), cfg, analyzeOptions{quiet: true}, &bytes.Buffer{}, &bytes.Buffer{}, zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "contamination") {
		t.Errorf("err = %v, want contamination error", err)
	}
}
