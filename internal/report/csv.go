package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/1sec-project/instatrace/internal/core"
)

// CSVHeaders is the column set of results.csv and suspicious_cases.csv.
var CSVHeaders = []string{
	"index", "user", "timestamp", "ipAddress", "action", "appDisplayName",
	"deviceType", "location.countryOrRegion", "initiator",
	"hour_of_day", "day_of_week", "is_weekend", "is_night",
	"activity_count", "night_activity_ratio", "weekend_activity_ratio", "unique_countries",
	"timestamp_imputed", "is_anomaly", "decision_score", "anomaly_probability", "risk_tier",
}

// WriteCSV writes one row per scored event.
func WriteCSV(w io.Writer, scored []core.ScoredEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeaders); err != nil {
		return err
	}
	for _, se := range scored {
		if err := cw.Write(csvRow(se)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(se core.ScoredEvent) []string {
	ev, f := se.Event, se.Features
	return []string{
		strconv.Itoa(se.Index),
		ev.Actor,
		eventTime(ev),
		ev.SourceIP,
		ev.Action,
		ev.Application,
		ev.DeviceType,
		ev.Country,
		ev.Initiator,
		strconv.Itoa(f.HourOfDay),
		strconv.Itoa(f.DayOfWeek),
		strconv.Itoa(f.IsWeekend),
		strconv.Itoa(f.IsNight),
		strconv.Itoa(f.ActivityCount),
		formatFloat(f.NightActivityRatio),
		formatFloat(f.WeekendActivityRatio),
		strconv.Itoa(f.UniqueCountries),
		strconv.FormatBool(f.TimestampImputed),
		strconv.FormatBool(se.IsAnomaly),
		formatFloat(se.DecisionScore),
		formatFloat(se.AnomalyProbability),
		se.RiskTier.String(),
	}
}

// eventTime renders the event timestamp with its source offset. Imputed
// events show DefaultDate.
func eventTime(ev core.Event) string {
	if ev.Timestamp == nil {
		return core.DefaultDate.Format(time.RFC3339)
	}
	return ev.Timestamp.Format(time.RFC3339)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
