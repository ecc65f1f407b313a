package core

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// AlertStream is the JetStream stream holding alerts and run summaries.
const AlertStream = "INSTATRACE_ALERTS"

// AlertBus publishes high-priority alerts and run summaries to NATS JetStream.
type AlertBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	prefix string
	logger zerolog.Logger

	metrics *BusMetrics
}

// BusMetrics tracks alert bus publish counters.
type BusMetrics struct {
	mu              sync.Mutex `json:"-"`
	AlertsPublished int64      `json:"alerts_published"`
	AlertsFailed    int64      `json:"alerts_failed"`
	RunsPublished   int64      `json:"runs_published"`
}

// NewAlertBus connects to NATS. If cfg.Embedded is true, it starts an embedded
// JetStream server first; a negative port picks a random free one.
func NewAlertBus(cfg *BusConfig, logger zerolog.Logger) (*AlertBus, error) {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "instatrace"
	}
	bus := &AlertBus{
		prefix:  prefix,
		logger:  logger.With().Str("component", "alert_bus").Logger(),
		metrics: &BusMetrics{},
	}

	url := cfg.URL
	if cfg.Embedded {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating NATS data dir: %w", err)
		}

		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.DataDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}

		ns.Start()

		if !ns.ReadyForConnections(10 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}

		bus.ns = ns
		url = ns.ClientURL()
		bus.logger.Info().Str("url", url).Msg("embedded NATS server started")
	}

	nc, err := nats.Connect(url,
		nats.Name("instatrace"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
	)
	if err != nil {
		bus.shutdownServer()
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	streamCfg := &nats.StreamConfig{
		Name:      AlertStream,
		Subjects:  []string{prefix + ".alerts.>", prefix + ".runs.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 30,
		MaxBytes:  256 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
	}
	if _, err := js.AddStream(streamCfg); err != nil {
		// Stream may exist with an older config; try update.
		if _, updateErr := js.UpdateStream(streamCfg); updateErr != nil {
			bus.Close()
			return nil, fmt.Errorf("creating/updating alert stream: %w (original: %v)", updateErr, err)
		}
	}

	bus.logger.Info().Str("url", url).Str("stream", AlertStream).Msg("connected to NATS JetStream")
	return bus, nil
}

// AlertSubject returns the subject an alert of the given tier is published on.
func (b *AlertBus) AlertSubject(tier RiskTier) string {
	return fmt.Sprintf("%s.alerts.%s", b.prefix, tier.String())
}

// RunSubject returns the subject run summaries are published on.
func (b *AlertBus) RunSubject() string {
	return b.prefix + ".runs.completed"
}

// PublishAlert publishes an alert to the alert stream.
func (b *AlertBus) PublishAlert(alert *Alert) error {
	data, err := alert.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	subject := b.AlertSubject(alert.Tier)
	if _, err := b.js.Publish(subject, data); err != nil {
		b.metrics.mu.Lock()
		b.metrics.AlertsFailed++
		b.metrics.mu.Unlock()
		return fmt.Errorf("publishing alert to %s: %w", subject, err)
	}

	b.metrics.mu.Lock()
	b.metrics.AlertsPublished++
	b.metrics.mu.Unlock()

	b.logger.Debug().
		Str("alert_id", alert.ID).
		Str("subject", subject).
		Float64("probability", alert.Probability).
		Msg("alert published")
	return nil
}

// PublishRunSummary publishes the summary of a completed run.
func (b *AlertBus) PublishRunSummary(summary RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	if _, err := b.js.Publish(b.RunSubject(), data); err != nil {
		return fmt.Errorf("publishing run summary: %w", err)
	}
	b.metrics.mu.Lock()
	b.metrics.RunsPublished++
	b.metrics.mu.Unlock()
	return nil
}

// JetStream exposes the JetStream context for consumers.
func (b *AlertBus) JetStream() nats.JetStreamContext {
	return b.js
}

// IsConnected returns true if the NATS connection is active.
func (b *AlertBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// GetMetrics returns a snapshot of bus metrics.
func (b *AlertBus) GetMetrics() map[string]int64 {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return map[string]int64{
		"alerts_published": b.metrics.AlertsPublished,
		"alerts_failed":    b.metrics.AlertsFailed,
		"runs_published":   b.metrics.RunsPublished,
	}
}

// Close closes the connection and stops the embedded server, if any.
func (b *AlertBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
	}
	b.shutdownServer()
	return nil
}

func (b *AlertBus) shutdownServer() {
	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.ns = nil
		b.logger.Info().Msg("embedded NATS server stopped")
	}
}
