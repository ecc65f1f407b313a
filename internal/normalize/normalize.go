// Package normalize maps vendor-specific raw log records onto the canonical
// event model by trying an ordered set of shape detectors.
package normalize

import (
	"github.com/1sec-project/instatrace/internal/core"
	"github.com/rs/zerolog"
)

// Stats counts what normalization did with a batch.
type Stats struct {
	Records      int            `json:"records"`
	Unrecognized int            `json:"unrecognized"`
	Events       int            `json:"events"`
	ByShape      map[string]int `json:"by_shape"`
}

// Normalizer dispatches raw records to the first matching detector.
type Normalizer struct {
	detectors []Detector
	logger    zerolog.Logger
}

// New creates a Normalizer with the default detectors.
func New(logger zerolog.Logger) *Normalizer {
	return NewWithDetectors(logger, DefaultDetectors())
}

// NewWithDetectors creates a Normalizer with a custom detector order.
func NewWithDetectors(logger zerolog.Logger, detectors []Detector) *Normalizer {
	return &Normalizer{
		detectors: detectors,
		logger:    logger.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize converts records into canonical events. Records that match no
// detector are skipped; every emitted event has its defaults filled.
func (n *Normalizer) Normalize(records []core.RawRecord) ([]core.Event, Stats) {
	stats := Stats{Records: len(records), ByShape: make(map[string]int)}
	events := make([]core.Event, 0, len(records))

	for i, rec := range records {
		det, ok := n.detect(rec)
		if !ok {
			stats.Unrecognized++
			n.logger.Debug().Int("record", i).Int("keys", len(rec)).Msg("unrecognized record shape, skipping")
			continue
		}
		for _, ev := range det.Map(rec) {
			if ev.Shape == "" {
				ev.Shape = det.Name
			}
			ev.Fill()
			events = append(events, ev)
			stats.ByShape[ev.Shape]++
		}
	}

	stats.Events = len(events)
	n.logger.Debug().
		Int("records", stats.Records).
		Int("events", stats.Events).
		Int("unrecognized", stats.Unrecognized).
		Msg("normalization complete")
	return events, stats
}

func (n *Normalizer) detect(rec core.RawRecord) (Detector, bool) {
	if rec == nil {
		return Detector{}, false
	}
	for _, d := range n.detectors {
		if d.Match(rec) {
			return d, true
		}
	}
	return Detector{}, false
}
