package main

// ---------------------------------------------------------------------------
// cmd_generate.go: write a synthetic activity data set
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"

	"github.com/1sec-project/instatrace/internal/synth"
)

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	out := fs.String("out", "TrainData/activities.json", "Output file")
	normal := fs.Int("normal", 100, "Normal activities per user")
	abnormal := fs.Int("abnormal", 5, "Abnormal activities per user")
	seed := fs.Int64("seed", 42, "Generator seed")
	fs.Parse(args)

	cfg := synth.DefaultConfig()
	cfg.Normal = *normal
	cfg.Abnormal = *abnormal
	cfg.Seed = *seed

	records, err := synth.Generate(cfg)
	if err != nil {
		errorf("generating activities: %v", err)
	}
	if err := synth.WriteFile(*out, records); err != nil {
		errorf("writing %s: %v", *out, err)
	}
	fmt.Fprintf(os.Stdout, "%s Wrote %d activities for %d users to %s\n",
		green("✓"), len(records), len(cfg.Users), *out)
}
