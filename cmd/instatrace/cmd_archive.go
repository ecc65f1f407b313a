package main

// ---------------------------------------------------------------------------
// cmd_archive.go: inspect a scored run archive
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/report"
)

func cmdArchive(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	if fs.NArg() != 1 {
		errorf("usage: instatrace archive <file> [--format table|json]")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		errorf("opening archive: %v", err)
	}
	defer f.Close()

	if err := printArchive(os.Stdout, f, parseFormat(*format)); err != nil {
		errorf("%v", err)
	}
}

// printArchive lists the run and high-priority records of an archive.
func printArchive(w io.Writer, r io.Reader, format OutputFormat) error {
	records, err := report.ReadArchive(r)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	counts := make(map[string]int)
	var alerts []report.ArchiveRecord
	for _, rec := range records {
		counts[rec.Type]++
		if rec.Type == report.RecordAlert {
			alerts = append(alerts, rec)
		}
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	}

	fmt.Fprintf(w, "%d run, %d event, %d high-priority records\n",
		counts[report.RecordRun], counts[report.RecordEvent], counts[report.RecordAlert])
	if len(alerts) == 0 {
		return nil
	}
	tbl := NewTable(w, "#", "USER", "ACTION", "COUNTRY", "PROBABILITY", "TIER")
	for i, rec := range alerts {
		var se core.ScoredEvent
		if err := json.Unmarshal(rec.Data, &se); err != nil {
			return fmt.Errorf("decoding record %d: %w", i, err)
		}
		tbl.AddRow(fmt.Sprintf("%d", i+1), se.Event.Actor, se.Event.Action, se.Event.Country,
			fmt.Sprintf("%.3f", se.AnomalyProbability), se.RiskTier.String())
	}
	tbl.Render()
	return nil
}
