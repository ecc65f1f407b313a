package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Defaults substituted into canonical events when a source omits a field.
const (
	UnknownActor   = "unknown"
	UnknownIP      = "unknown"
	UnknownCountry = "Unknown"
	UnknownDevice  = "Unknown"
	UnknownApp     = "Unknown"
	UnknownAction  = "Unknown"
)

// Coarse device categories.
const (
	DevicePC     = "PC"
	DeviceMobile = "MOBILE"
)

// Canonical record keys. A RawRecord using these keys is already normalized.
const (
	KeyUser          = "user"
	KeyTimestamp     = "timestamp"
	KeyIPAddress     = "ipAddress"
	KeyAction        = "action"
	KeyApplication   = "appDisplayName"
	KeyDeviceType    = "deviceType"
	KeyLocation      = "location"
	KeyCountry       = "countryOrRegion"
	KeyInitiator     = "initiator"
	KeyInitiatorRole = "initiatorRole"
)

// RawRecord is a decoded vendor log document. It is never mutated.
type RawRecord map[string]interface{}

// Event is the canonical record every vendor shape is normalized into.
// RawTimestamp is the source's timestamp value exactly as decoded.
type Event struct {
	Actor            string      `json:"user"`
	Timestamp        *time.Time  `json:"timestamp,omitempty"`
	RawTimestamp     interface{} `json:"-"`
	TimestampImputed bool        `json:"timestamp_imputed,omitempty"`
	SourceIP         string      `json:"ipAddress"`
	Action           string      `json:"action"`
	Application      string      `json:"appDisplayName"`
	DeviceType       string      `json:"deviceType"`
	Country          string      `json:"country"`
	Initiator        string      `json:"initiator,omitempty"`
	InitiatorRole    string      `json:"initiatorRole,omitempty"`
	Shape            string      `json:"-"`
}

// DefaultDate stands in for timestamps that are absent or cannot be parsed.
var DefaultDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fill substitutes defaults for every empty field so that the event can enter
// feature extraction. A missing timestamp becomes DefaultDate and is flagged
// as imputed; RawTimestamp keeps whatever the source carried.
func (e *Event) Fill() {
	if e.Timestamp == nil || e.Timestamp.IsZero() {
		t := DefaultDate
		e.Timestamp = &t
		e.TimestampImputed = true
	}
	if strings.TrimSpace(e.Actor) == "" {
		e.Actor = UnknownActor
	}
	if e.SourceIP == "" {
		e.SourceIP = UnknownIP
	}
	if e.Action == "" {
		e.Action = UnknownAction
	}
	if e.Application == "" {
		e.Application = UnknownApp
	}
	if e.DeviceType == "" {
		e.DeviceType = UnknownDevice
	}
	if e.Country == "" {
		e.Country = UnknownCountry
	}
}

// Record renders the event in the canonical RawRecord shape. The source
// timestamp value is emitted unchanged so that canonical records round-trip.
func (e Event) Record() RawRecord {
	rec := RawRecord{
		KeyUser:        e.Actor,
		KeyIPAddress:   e.SourceIP,
		KeyAction:      e.Action,
		KeyApplication: e.Application,
		KeyDeviceType:  e.DeviceType,
		KeyLocation:    map[string]interface{}{KeyCountry: e.Country},
	}
	switch {
	case e.RawTimestamp != nil:
		rec[KeyTimestamp] = e.RawTimestamp
	case e.Timestamp != nil && !e.TimestampImputed:
		rec[KeyTimestamp] = e.Timestamp.Format(time.RFC3339Nano)
	default:
		rec[KeyTimestamp] = nil
	}
	if e.Initiator != "" {
		rec[KeyInitiator] = e.Initiator
		rec[KeyInitiatorRole] = e.InitiatorRole
	}
	return rec
}

// FeatureVector holds the numeric features derived for one event.
type FeatureVector struct {
	HourOfDay            int     `json:"hour_of_day"`
	DayOfWeek            int     `json:"day_of_week"`
	IsWeekend            int     `json:"is_weekend"`
	IsNight              int     `json:"is_night"`
	ActivityCount        int     `json:"activity_count"`
	NightActivityRatio   float64 `json:"night_activity_ratio"`
	WeekendActivityRatio float64 `json:"weekend_activity_ratio"`
	UniqueCountries      int     `json:"unique_countries"`
	TimestampImputed     bool    `json:"timestamp_imputed,omitempty"`
}

// ActorProfile aggregates an actor's activity over one batch.
type ActorProfile struct {
	Actor                string         `json:"actor"`
	ActivityCount        int            `json:"activity_count"`
	NightActivityRatio   float64        `json:"night_activity_ratio"`
	WeekendActivityRatio float64        `json:"weekend_activity_ratio"`
	UniqueCountries      int            `json:"unique_countries"`
	Countries            map[string]int `json:"countries"`
	DeviceTypes          map[string]int `json:"device_types"`
}

// PrimaryCountry returns the actor's most frequent known country, or
// UnknownCountry when none was observed. Ties resolve alphabetically.
func (p ActorProfile) PrimaryCountry() string {
	best, bestN := UnknownCountry, 0
	for c, n := range p.Countries {
		if c == UnknownCountry {
			continue
		}
		if n > bestN || (n == bestN && c < best) {
			best, bestN = c, n
		}
	}
	return best
}

// RiskTier is the discretized bucket of an anomaly probability.
type RiskTier int

const (
	TierVeryLow RiskTier = iota
	TierLow
	TierMedium
	TierHigh
	TierVeryHigh
)

// NumTiers is the number of risk tiers; tier bin edges have NumTiers+1 values.
const NumTiers = 5

func (t RiskTier) String() string {
	switch t {
	case TierVeryLow:
		return "VeryLow"
	case TierLow:
		return "Low"
	case TierMedium:
		return "Medium"
	case TierHigh:
		return "High"
	case TierVeryHigh:
		return "VeryHigh"
	default:
		return "Unknown"
	}
}

// ParseRiskTier parses a tier name, case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verylow", "very_low":
		return TierVeryLow, nil
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	case "veryhigh", "very_high":
		return TierVeryHigh, nil
	}
	return TierVeryLow, fmt.Errorf("unknown risk tier %q", s)
}

func (t RiskTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *RiskTier) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseRiskTier(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ScoredEvent is an event with its features and model verdict.
type ScoredEvent struct {
	Index              int           `json:"index"`
	Event              Event         `json:"event"`
	Features           FeatureVector `json:"features"`
	IsAnomaly          bool          `json:"is_anomaly"`
	DecisionScore      float64       `json:"decision_score"`
	AnomalyProbability float64       `json:"anomaly_probability"`
	RiskTier           RiskTier      `json:"risk_tier"`
}
