// Package scoring turns a feature matrix into calibrated anomaly verdicts with
// an unsupervised isolation forest.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/rs/zerolog"
)

// ErrInsufficientData is returned for matrices the model cannot learn from:
// fewer than two rows, or no column with any variance.
var ErrInsufficientData = errors.New("insufficient data for anomaly scoring")

// Config holds the model and calibration parameters.
type Config struct {
	Contamination float64
	Trees         int
	MaxSamples    int
	Seed          int64
	Workers       int
	TierEdges     []float64
}

// ConfigFromCore maps the scoring config section to an engine Config.
func ConfigFromCore(c core.ScoringConfig) Config {
	return Config{
		Contamination: c.Contamination,
		Trees:         c.Trees,
		MaxSamples:    c.MaxSamples,
		Seed:          c.Seed,
		Workers:       c.Workers,
		TierEdges:     c.TierEdges,
	}
}

// Result is the verdict for one matrix row.
type Result struct {
	Score       float64 // raw isolation score, lower is more anomalous
	Decision    float64 // Score minus the contamination offset; negative means anomalous
	Probability float64 // min-max inverted decision, in [0, 1]
	IsAnomaly   bool
	Tier        core.RiskTier
}

// Engine fits a fresh model per call; it holds no state between batches.
type Engine struct {
	cfg    Config
	tiers  Tiers
	logger zerolog.Logger
}

// NewEngine validates cfg and creates an Engine.
func NewEngine(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5], got %v", cfg.Contamination)
	}
	tiers, err := NewTiers(cfg.TierEdges)
	if err != nil {
		return nil, fmt.Errorf("tier edges: %w", err)
	}
	return &Engine{
		cfg:    cfg,
		tiers:  tiers,
		logger: logger.With().Str("component", "scoring").Logger(),
	}, nil
}

// Score standardizes X, fits an isolation forest on it and scores every row.
func (e *Engine) Score(ctx context.Context, X [][]float64) ([]Result, error) {
	if len(X) < 2 {
		return nil, fmt.Errorf("%d rows: %w", len(X), ErrInsufficientData)
	}

	var scaler StandardScaler
	scaled := scaler.FitTransform(X)
	if !scaler.Varying() {
		return nil, fmt.Errorf("all %d columns are constant: %w", len(scaler.Std), ErrInsufficientData)
	}

	forest := &IsolationForest{
		Trees:      e.cfg.Trees,
		SampleSize: e.cfg.MaxSamples,
		Seed:       e.cfg.Seed,
		Workers:    e.cfg.Workers,
	}
	if err := forest.Fit(ctx, scaled); err != nil {
		return nil, fmt.Errorf("fitting isolation forest: %w", err)
	}
	scores := forest.ScoreSamples(scaled)
	offset := Percentile(scores, 100*e.cfg.Contamination)

	minD, maxD := math.Inf(1), math.Inf(-1)
	results := make([]Result, len(scores))
	for i, s := range scores {
		d := s - offset
		results[i] = Result{Score: s, Decision: d, IsAnomaly: d < 0}
		minD = math.Min(minD, d)
		maxD = math.Max(maxD, d)
	}

	anomalies := 0
	for i := range results {
		p := 0.0
		if maxD > minD {
			p = 1 - (results[i].Decision-minD)/(maxD-minD)
			p = math.Max(0, math.Min(1, p))
		}
		results[i].Probability = p
		results[i].Tier = e.tiers.Classify(p)
		if results[i].IsAnomaly {
			anomalies++
		}
	}

	e.logger.Debug().
		Int("rows", len(X)).
		Int("trees", forest.Trees).
		Float64("offset", offset).
		Int("anomalies", anomalies).
		Msg("batch scored")
	return results, nil
}

// Percentile returns the p-th percentile of values with linear interpolation
// between closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
