// Package features derives per-actor behavioral aggregates and joins them
// with per-event temporal features into model-ready vectors.
package features

import (
	"math"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/temporal"
	"github.com/rs/zerolog"
)

// Options controls aggregation.
type Options struct {
	// CountUnknownCountry counts the "Unknown" placeholder as one distinct
	// country. When false, an actor seen only from unknown locations still
	// reports one country.
	CountUnknownCountry bool
}

// DefaultOptions returns the aggregation options of the reference analysis.
func DefaultOptions() Options {
	return Options{CountUnknownCountry: true}
}

// OptionsFromConfig maps the features config section to Options.
func OptionsFromConfig(cfg core.FeaturesConfig) Options {
	return Options{CountUnknownCountry: cfg.CountUnknownCountry}
}

// BuildProfiles aggregates every actor's activity over the whole batch. tf[i]
// holds the temporal features of events[i].
func BuildProfiles(events []core.Event, tf []temporal.Features, opts Options) map[string]core.ActorProfile {
	type acc struct {
		count, night, weekend int
		countries             map[string]int
		devices               map[string]int
	}
	accs := make(map[string]*acc)

	for i, ev := range events {
		a, ok := accs[ev.Actor]
		if !ok {
			a = &acc{countries: make(map[string]int), devices: make(map[string]int)}
			accs[ev.Actor] = a
		}
		a.count++
		if tf[i].IsNight {
			a.night++
		}
		if tf[i].IsWeekend {
			a.weekend++
		}
		a.countries[ev.Country]++
		a.devices[ev.DeviceType]++
	}

	profiles := make(map[string]core.ActorProfile, len(accs))
	for actor, a := range accs {
		unique := len(a.countries)
		if !opts.CountUnknownCountry {
			if _, ok := a.countries[core.UnknownCountry]; ok {
				unique--
			}
			if unique < 1 {
				unique = 1
			}
		}
		profiles[actor] = core.ActorProfile{
			Actor:                actor,
			ActivityCount:        a.count,
			NightActivityRatio:   float64(a.night) / float64(a.count),
			WeekendActivityRatio: float64(a.weekend) / float64(a.count),
			UniqueCountries:      unique,
			Countries:            a.countries,
			DeviceTypes:          a.devices,
		}
	}
	return profiles
}

// Extract computes one FeatureVector per event, in input order, by
// broadcasting each actor's profile onto its events.
func Extract(events []core.Event, opts Options) ([]core.FeatureVector, map[string]core.ActorProfile) {
	tf := make([]temporal.Features, len(events))
	for i := range events {
		tf[i] = temporal.Derive(events[i].Timestamp)
	}
	profiles := BuildProfiles(events, tf, opts)

	vectors := make([]core.FeatureVector, len(events))
	for i, ev := range events {
		p := profiles[ev.Actor]
		vectors[i] = core.FeatureVector{
			HourOfDay:            tf[i].Hour,
			DayOfWeek:            tf[i].DayOfWeek,
			IsWeekend:            boolToInt(tf[i].IsWeekend),
			IsNight:              boolToInt(tf[i].IsNight),
			ActivityCount:        p.ActivityCount,
			NightActivityRatio:   p.NightActivityRatio,
			WeekendActivityRatio: p.WeekendActivityRatio,
			UniqueCountries:      p.UniqueCountries,
			TimestampImputed:     tf[i].Imputed || ev.TimestampImputed,
		}
	}
	return vectors, profiles
}

// Column returns the named feature of v. ok is false for an unknown name.
func Column(v core.FeatureVector, name string) (value float64, ok bool) {
	switch name {
	case "hour_of_day":
		return float64(v.HourOfDay), true
	case "day_of_week":
		return float64(v.DayOfWeek), true
	case "is_weekend":
		return float64(v.IsWeekend), true
	case "is_night":
		return float64(v.IsNight), true
	case "activity_count":
		return float64(v.ActivityCount), true
	case "night_activity_ratio":
		return v.NightActivityRatio, true
	case "weekend_activity_ratio":
		return v.WeekendActivityRatio, true
	case "unique_countries":
		return float64(v.UniqueCountries), true
	}
	return 0, false
}

// Matrix lays the vectors out row-major in the given column order. Columns
// that do not name a feature are filled with zeros and returned in missing.
// Non-finite values are coerced to zero.
func Matrix(vectors []core.FeatureVector, columns []string, logger zerolog.Logger) (matrix [][]float64, missing []string) {
	known := make([]bool, len(columns))
	for j, name := range columns {
		if _, ok := Column(core.FeatureVector{}, name); ok {
			known[j] = true
			continue
		}
		missing = append(missing, name)
		logger.Warn().Str("column", name).Msg("unknown feature column, filling with zeros")
	}

	matrix = make([][]float64, len(vectors))
	for i, v := range vectors {
		row := make([]float64, len(columns))
		for j, name := range columns {
			if !known[j] {
				continue
			}
			x, _ := Column(v, name)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				x = 0
			}
			row[j] = x
		}
		matrix[i] = row
	}
	return matrix, missing
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
