package pipeline

import (
	"github.com/1sec-project/instatrace/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the per-process Prometheus instruments of analysis runs.
type Metrics struct {
	Registry *prometheus.Registry

	RawRecords      prometheus.Counter
	Unrecognized    prometheus.Counter
	Events          *prometheus.CounterVec
	Imputed         prometheus.Counter
	Anomalies       prometheus.Counter
	HighPriority    prometheus.Counter
	Probability     prometheus.Histogram
	RunDuration     prometheus.Gauge
	AlertsPublished *prometheus.CounterVec
}

// NewMetrics creates the instruments on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RawRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instatrace_raw_records_total",
			Help: "Raw log records read",
		}),
		Unrecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instatrace_records_unrecognized_total",
			Help: "Raw records matching no known shape",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "instatrace_events_total",
			Help: "Canonical events produced, by source shape",
		}, []string{"shape"}),
		Imputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instatrace_timestamps_imputed_total",
			Help: "Events whose timestamp was missing or unparseable",
		}),
		Anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instatrace_anomalies_total",
			Help: "Events labelled anomalous",
		}),
		HighPriority: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instatrace_high_priority_total",
			Help: "Events above the high-priority probability threshold",
		}),
		Probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "instatrace_anomaly_probability",
			Help:    "Distribution of anomaly probabilities",
			Buckets: []float64{0.2, 0.4, 0.6, 0.8, 0.9, 0.95, 1},
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "instatrace_run_duration_seconds",
			Help: "Wall time of the last analysis run",
		}),
		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "instatrace_alerts_published_total",
			Help: "Alerts sent to the alert bus, by outcome",
		}, []string{"outcome"}),
	}
	m.Registry.MustRegister(
		m.RawRecords, m.Unrecognized, m.Events, m.Imputed, m.Anomalies,
		m.HighPriority, m.Probability, m.RunDuration, m.AlertsPublished,
	)
	return m
}

// Observe records a completed run.
func (m *Metrics) Observe(result *core.AnalysisResult) {
	s := result.Stats
	m.RawRecords.Add(float64(s.Records))
	m.Unrecognized.Add(float64(s.Unrecognized))
	for shape, n := range s.EventsByShape {
		m.Events.WithLabelValues(shape).Add(float64(n))
	}
	m.Imputed.Add(float64(s.ImputedTimestamps))
	m.Anomalies.Add(float64(s.Anomalies))
	m.HighPriority.Add(float64(s.HighPriority))
	for _, se := range result.Scored {
		m.Probability.Observe(se.AnomalyProbability)
	}
	m.RunDuration.Set(result.Duration().Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
