package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Alert is a high-priority scored event packaged for downstream consumers.
type Alert struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Timestamp   time.Time `json:"timestamp"`
	Rank        int       `json:"rank"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	Country     string    `json:"country"`
	DeviceType  string    `json:"device_type"`
	EventTime   string    `json:"event_time,omitempty"`
	Probability float64   `json:"anomaly_probability"`
	Tier        RiskTier  `json:"risk_tier"`
	Reasons     []string  `json:"reasons,omitempty"`
}

// NewAlert builds an alert for a scored event at the given rank (1-based).
func NewAlert(runID string, rank int, se ScoredEvent, reasons []string) *Alert {
	a := &Alert{
		ID:          uuid.New().String(),
		RunID:       runID,
		Timestamp:   time.Now().UTC(),
		Rank:        rank,
		Actor:       se.Event.Actor,
		Action:      se.Event.Action,
		Country:     se.Event.Country,
		DeviceType:  se.Event.DeviceType,
		Probability: se.AnomalyProbability,
		Tier:        se.RiskTier,
		Reasons:     reasons,
	}
	if se.Event.Timestamp != nil {
		a.EventTime = se.Event.Timestamp.UTC().Format(time.RFC3339)
	}
	return a
}

// Marshal serializes the alert to JSON.
func (a *Alert) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// RunSummary describes a completed analysis run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	CompletedAt  time.Time `json:"completed_at"`
	Events       int       `json:"events"`
	Anomalies    int       `json:"anomalies"`
	HighPriority int       `json:"high_priority"`
	Actors       int       `json:"actors"`
}
