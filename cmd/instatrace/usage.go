package main

// ---------------------------------------------------------------------------
// usage.go: version, usage, and per-command help
// ---------------------------------------------------------------------------

import (
	"fmt"
	"io"
	"os"
	goruntime "runtime"
	"runtime/debug"
)

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "instatrace v%s", version)
	if commit != "dev" {
		fmt.Fprintf(w, " (%s)", commit[:min(7, len(commit))])
	}
	if buildDate != "unknown" {
		fmt.Fprintf(w, " built %s", buildDate)
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(w, " %s", bi.GoVersion)
	}
	fmt.Fprintf(w, " %s/%s", goruntime.GOOS, goruntime.GOARCH)
	fmt.Fprintln(w)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", bold("InstaTrace"), dim("v"+version))
	fmt.Fprintf(w, "Behavioral anomaly detection for identity and audit logs.\n\n")
	fmt.Fprintf(w, "%s\n\n", bold("USAGE"))
	fmt.Fprintf(w, "  instatrace <command> [flags]\n\n")
	fmt.Fprintf(w, "%s\n\n", bold("COMMANDS"))
	fmt.Fprintf(w, "  %-12s  %s\n", bold("analyze"), "Normalize, score, and rank a directory of raw logs")
	fmt.Fprintf(w, "  %-12s  %s\n", bold("generate"), "Write a synthetic activity data set")
	fmt.Fprintf(w, "  %-12s  %s\n", bold("config"), "Show or validate configuration")
	fmt.Fprintf(w, "  %-12s  %s\n", bold("init"), "Generate a starter configuration file")
	fmt.Fprintf(w, "  %-12s  %s\n", bold("archive"), "Inspect a scored run archive")
	fmt.Fprintf(w, "  %-12s  %s\n", bold("version"), "Print version and build info")
	fmt.Fprintf(w, "  %-12s  %s\n", bold("help"), "Show help for a command")
	fmt.Fprintf(w, "\n%s\n\n", bold("GLOBAL FLAGS"))
	fmt.Fprintf(w, "  %-22s  %s\n", "--config <path>", "Config file path (default: "+defaultConfigPath+", env: INSTATRACE_CONFIG)")
	fmt.Fprintf(w, "  %-22s  %s\n", "--format <fmt>", "Output format: table, json, csv, sarif (default: table)")
	fmt.Fprintf(w, "  %-22s  %s\n", "--version, -V", "Print version and exit")
	fmt.Fprintf(w, "  %-22s  %s\n", "--help, -h", "Show help")
	fmt.Fprintf(w, "\n%s\n\n", bold("ENVIRONMENT VARIABLES"))
	fmt.Fprintf(w, "  %-22s  %s\n", "INSTATRACE_CONFIG", "Default config file path")
	fmt.Fprintf(w, "  %-22s  %s\n", "INSTATRACE_INPUT_DIR", "Raw log directory override")
	fmt.Fprintf(w, "  %-22s  %s\n", "INSTATRACE_LOG_LEVEL", "Log level override")
	fmt.Fprintf(w, "\n%s\n\n", bold("EXAMPLES"))
	fmt.Fprintf(w, "  %s\n", dim("# Generate the reference data set and analyze it"))
	fmt.Fprintf(w, "  instatrace generate --out TrainData/activities.json\n")
	fmt.Fprintf(w, "  instatrace analyze --input TrainData\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Emit high-priority alerts as SARIF"))
	fmt.Fprintf(w, "  instatrace analyze --format sarif --output alerts.sarif\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Publish alerts to an embedded NATS JetStream bus"))
	fmt.Fprintf(w, "  instatrace analyze --bus --embedded-bus\n\n")
	fmt.Fprintf(w, "Run %s for detailed help on any command.\n\n", bold("instatrace help <command>"))
}

var commandHelp = map[string]string{
	"analyze": `Usage: instatrace analyze [flags]

Loads every JSON log file from the input directory, normalizes the recognized
vendor shapes, derives behavioral features, fits an isolation forest, and
ranks the events by anomaly probability.

Flags:
  --config <path>          Config file path
  --input <dir>            Raw log directory (overrides input.dir)
  --recursive              Descend into subdirectories
  --out-dir <dir>          Artifact directory (overrides output.dir)
  --format <fmt>           Stdout format: table, json, csv, sarif
  --output <file>          Write stdout output to a file
  --top <n>                High-priority rows shown in table format
  --threshold <p>          High-priority probability threshold
  --contamination <c>      Expected anomaly fraction
  --trees <n>              Isolation trees
  --seed <n>               Model seed
  --workers <n>            Parallel tree builders (0 = all CPUs)
  --archive                Also write a compressed NDJSON archive
  --bus                    Publish alerts to NATS JetStream
  --embedded-bus           Start an embedded NATS server for --bus
  --metrics-textfile <f>   Write Prometheus metrics in textfile format
  --log-level <lvl>        debug, info, warn, error
  --quiet, -q              Suppress the run summary`,
	"generate": `Usage: instatrace generate [flags]

Writes a synthetic data set of user activities: habitual office-hours logins
from usual countries plus a few night-time actions from unusual ones.

Flags:
  --out <file>             Output file (default: TrainData/activities.json)
  --normal <n>             Normal activities per user (default: 100)
  --abnormal <n>           Abnormal activities per user (default: 5)
  --seed <n>               Generator seed (default: 42)`,
	"config": `Usage: instatrace config [flags]

Shows the effective configuration, or validates it.

Flags:
  --config <path>          Config file path
  --validate               Validate config and exit
  --format <fmt>           yaml (default) or json
  --output <file>          Write output to a file`,
	"init": `Usage: instatrace init [flags]

Writes the default configuration to a file.

Flags:
  --output <file>          Destination (default: ` + defaultConfigPath + `)
  --force                  Overwrite an existing file`,
	"archive": `Usage: instatrace archive <file> [flags]

Reads a scored.ndjson.gz archive and lists its high-priority records.

Flags:
  --format <fmt>           table, json`,
}

func cmdHelp(cmd string) {
	text, ok := commandHelp[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, red("error: ")+"no help for %q\n\n", cmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, text)
}
