// Package pipeline runs one stateless analysis over a batch of raw records:
// normalize, derive features, score, rank, then publish.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/1sec-project/instatrace/internal/collect"
	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/features"
	"github.com/1sec-project/instatrace/internal/normalize"
	"github.com/1sec-project/instatrace/internal/rank"
	"github.com/1sec-project/instatrace/internal/report"
	"github.com/1sec-project/instatrace/internal/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result is the outcome of one run.
type Result = core.AnalysisResult

// Publisher receives the alerts of a run. *core.AlertBus implements it.
type Publisher interface {
	PublishAlert(alert *core.Alert) error
	PublishRunSummary(summary core.RunSummary) error
}

// Pipeline wires the analysis stages together. It keeps no state between
// runs; every Run fits its own model.
type Pipeline struct {
	normalizer *normalize.Normalizer
	engine     *scoring.Engine
	features   features.Options
	columns    []string
	threshold  float64

	publisher Publisher
	metrics   *Metrics
	logger    zerolog.Logger
}

// New builds a pipeline from the configuration.
func New(cfg *core.Config, logger zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	engine, err := scoring.NewEngine(scoring.ConfigFromCore(cfg.Scoring), logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		normalizer: normalize.New(logger),
		engine:     engine,
		features:   features.OptionsFromConfig(cfg.Features),
		columns:    append([]string(nil), cfg.Features.Columns...),
		threshold:  cfg.Scoring.HighPriorityThreshold,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// SetPublisher sends every high-priority event and the run summary to pub.
func (p *Pipeline) SetPublisher(pub Publisher) { p.publisher = pub }

// SetMetrics records every run in m.
func (p *Pipeline) SetMetrics(m *Metrics) { p.metrics = m }

// Analyze loads the raw records with l and runs the analysis on them.
func (p *Pipeline) Analyze(ctx context.Context, l *collect.Loader) (*Result, error) {
	records, loadStats, err := l.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading raw logs: %w", err)
	}
	result, err := p.Run(ctx, records)
	if err != nil {
		return nil, err
	}
	result.Stats.Files = loadStats.Files
	result.Stats.SkippedFiles = loadStats.Skipped
	return result, nil
}

// Run analyzes one batch of raw records.
func (p *Pipeline) Run(ctx context.Context, records []core.RawRecord) (*Result, error) {
	result := &Result{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}
	log := p.logger.With().Str("run_id", result.RunID).Logger()

	events, nstats := p.normalizer.Normalize(records)
	result.Stats.Records = nstats.Records
	result.Stats.Unrecognized = nstats.Unrecognized
	result.Stats.Events = nstats.Events
	result.Stats.EventsByShape = nstats.ByShape
	if len(events) == 0 {
		return nil, fmt.Errorf("%d raw records: %w", len(records), core.ErrEmptyBatch)
	}

	vectors, profiles := features.Extract(events, p.features)
	matrix, missing := features.Matrix(vectors, p.columns, log)
	result.Profiles = profiles
	result.Stats.Actors = len(profiles)
	result.Stats.Columns = p.columns
	result.Stats.MissingColumns = missing

	verdicts, err := p.engine.Score(ctx, matrix)
	if err != nil {
		return nil, fmt.Errorf("scoring %d events: %w", len(events), err)
	}

	result.Scored = make([]core.ScoredEvent, len(events))
	for i, ev := range events {
		v := verdicts[i]
		result.Scored[i] = core.ScoredEvent{
			Index:              i,
			Event:              ev,
			Features:           vectors[i],
			IsAnomaly:          v.IsAnomaly,
			DecisionScore:      v.Decision,
			AnomalyProbability: v.Probability,
			RiskTier:           v.Tier,
		}
		if vectors[i].TimestampImputed {
			result.Stats.ImputedTimestamps++
		}
	}

	result.Stats.Anomalies = len(rank.Anomalies(result.Scored))
	result.HighPriority = rank.HighPriority(result.Scored, p.threshold)
	result.Stats.HighPriority = len(result.HighPriority)
	result.Stats.Threshold = p.threshold
	result.CompletedAt = time.Now().UTC()

	log.Info().
		Int("records", result.Stats.Records).
		Int("events", result.Stats.Events).
		Int("actors", result.Stats.Actors).
		Int("anomalies", result.Stats.Anomalies).
		Int("high_priority", result.Stats.HighPriority).
		Int("imputed_timestamps", result.Stats.ImputedTimestamps).
		Dur("took", result.Duration()).
		Msg("analysis complete")

	if p.publisher != nil {
		p.publish(result, log)
	}
	if p.metrics != nil {
		p.metrics.Observe(result)
	}
	return result, nil
}

// Alerts packages the high-priority events of result, in rank order.
func Alerts(result *Result) []*core.Alert {
	alerts := make([]*core.Alert, 0, len(result.HighPriority))
	for i, se := range result.HighPriority {
		reasons := report.Reasons(se, result.Profiles[se.Event.Actor])
		alerts = append(alerts, core.NewAlert(result.RunID, i+1, se, reasons))
	}
	return alerts
}

// publish sends alerts and the run summary. Failures are logged, never
// returned: the analysis itself succeeded.
func (p *Pipeline) publish(result *Result, log zerolog.Logger) {
	for _, alert := range Alerts(result) {
		if err := p.publisher.PublishAlert(alert); err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert")
			p.countPublish("error")
			continue
		}
		p.countPublish("ok")
	}
	if err := p.publisher.PublishRunSummary(result.Summary()); err != nil {
		log.Error().Err(err).Msg("failed to publish run summary")
	}
}

func (p *Pipeline) countPublish(outcome string) {
	if p.metrics != nil {
		p.metrics.AlertsPublished.WithLabelValues(outcome).Inc()
	}
}
