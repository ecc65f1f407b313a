package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the entire InstaTrace configuration.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Features FeaturesConfig `yaml:"features"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Output   OutputConfig   `yaml:"output"`
	Bus      BusConfig      `yaml:"bus"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig controls raw log discovery.
type InputConfig struct {
	Dir       string `yaml:"dir"`
	Pattern   string `yaml:"pattern"`
	Recursive bool   `yaml:"recursive"`
}

// FeaturesConfig controls behavioral feature derivation.
type FeaturesConfig struct {
	// CountUnknownCountry counts "Unknown" as a distinct country in the
	// per-actor unique country aggregate.
	CountUnknownCountry bool     `yaml:"count_unknown_country"`
	Columns             []string `yaml:"columns"`
}

// ScoringConfig holds the anomaly model and thresholding knobs.
type ScoringConfig struct {
	Contamination         float64   `yaml:"contamination"`
	Trees                 int       `yaml:"trees"`
	MaxSamples            int       `yaml:"max_samples"`
	Seed                  int64     `yaml:"seed"`
	Workers               int       `yaml:"workers"` // 0 = GOMAXPROCS
	HighPriorityThreshold float64   `yaml:"high_priority_threshold"`
	TierEdges             []float64 `yaml:"tier_edges"`
}

// OutputConfig selects which artifacts a run writes.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	CSV     bool   `yaml:"csv"`
	JSON    bool   `yaml:"json"`
	Report  bool   `yaml:"report"`
	Archive bool   `yaml:"archive"`
	Top     int    `yaml:"top"`
}

// BusConfig holds NATS alert bus settings.
type BusConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Embedded      bool   `yaml:"embedded"`
	DataDir       string `yaml:"data_dir"`
	Port          int    `yaml:"port"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MetricsConfig holds Prometheus textfile export settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultFeatureColumns is the model's feature column order.
var DefaultFeatureColumns = []string{
	"hour_of_day", "day_of_week", "is_weekend", "is_night",
	"activity_count", "night_activity_ratio", "weekend_activity_ratio", "unique_countries",
}

// DefaultTierEdges are the probability bin edges for the five risk tiers.
var DefaultTierEdges = []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0}

// DefaultConfig returns a Config that reproduces the reference analysis run.
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Dir:     "TrainData",
			Pattern: "*.json",
		},
		Features: FeaturesConfig{
			CountUnknownCountry: true,
			Columns:             append([]string(nil), DefaultFeatureColumns...),
		},
		Scoring: ScoringConfig{
			Contamination:         0.05,
			Trees:                 100,
			MaxSamples:            256,
			Seed:                  42,
			HighPriorityThreshold: 0.8,
			TierEdges:             append([]float64(nil), DefaultTierEdges...),
		},
		Output: OutputConfig{
			Dir:    "output",
			CSV:    true,
			Report: true,
			Top:    10,
		},
		Bus: BusConfig{
			URL:           "nats://127.0.0.1:4222",
			DataDir:       "./data/nats",
			Port:          4222,
			SubjectPrefix: "instatrace",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if v := os.Getenv("INSTATRACE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INSTATRACE_INPUT_DIR"); v != "" {
		cfg.Input.Dir = v
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the knobs that would make a run meaningless.
func (c *Config) Validate() error {
	s := c.Scoring
	if s.Contamination <= 0 || s.Contamination > 0.5 {
		return fmt.Errorf("scoring.contamination must be in (0, 0.5], got %v", s.Contamination)
	}
	if s.Trees < 1 {
		return fmt.Errorf("scoring.trees must be at least 1, got %d", s.Trees)
	}
	if s.MaxSamples < 2 {
		return fmt.Errorf("scoring.max_samples must be at least 2, got %d", s.MaxSamples)
	}
	if s.Workers < 0 {
		return fmt.Errorf("scoring.workers must not be negative, got %d", s.Workers)
	}
	if s.HighPriorityThreshold < 0 || s.HighPriorityThreshold > 1 {
		return fmt.Errorf("scoring.high_priority_threshold must be in [0, 1], got %v", s.HighPriorityThreshold)
	}
	if err := ValidateTierEdges(s.TierEdges); err != nil {
		return fmt.Errorf("scoring.tier_edges: %w", err)
	}
	if len(c.Features.Columns) == 0 {
		return fmt.Errorf("features.columns must list at least one column")
	}
	switch c.LogFormat() {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// ValidateTierEdges requires NumTiers+1 strictly ascending edges within [0, 1].
func ValidateTierEdges(edges []float64) error {
	if len(edges) != NumTiers+1 {
		return fmt.Errorf("need %d edges, got %d", NumTiers+1, len(edges))
	}
	for i, e := range edges {
		if e < 0 || e > 1 {
			return fmt.Errorf("edge %v outside [0, 1]", e)
		}
		if i > 0 && e <= edges[i-1] {
			return fmt.Errorf("edges must be strictly ascending (%v after %v)", e, edges[i-1])
		}
	}
	return nil
}

// LogLevel returns the normalized log level string.
func (c *Config) LogLevel() string {
	return strings.ToLower(c.Logging.Level)
}

// LogFormat returns the normalized log format string.
func (c *Config) LogFormat() string {
	return strings.ToLower(c.Logging.Format)
}
