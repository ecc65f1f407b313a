// Package rank selects and orders the scored events worth an analyst's
// attention.
package rank

import (
	"sort"

	"github.com/1sec-project/instatrace/internal/core"
)

// ByProbability returns a copy of scored ordered by descending anomaly
// probability. Equal probabilities keep their batch order.
func ByProbability(scored []core.ScoredEvent) []core.ScoredEvent {
	out := append([]core.ScoredEvent(nil), scored...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnomalyProbability > out[j].AnomalyProbability
	})
	return out
}

// HighPriority returns the events whose probability is strictly above
// threshold, most probable first.
func HighPriority(scored []core.ScoredEvent, threshold float64) []core.ScoredEvent {
	var selected []core.ScoredEvent
	for _, se := range scored {
		if se.AnomalyProbability > threshold {
			selected = append(selected, se)
		}
	}
	return ByProbability(selected)
}

// Top returns the n most probable events. n <= 0 returns every event.
func Top(scored []core.ScoredEvent, n int) []core.ScoredEvent {
	ranked := ByProbability(scored)
	if n > 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Anomalies returns the events the model labelled anomalous, in batch order.
func Anomalies(scored []core.ScoredEvent) []core.ScoredEvent {
	var out []core.ScoredEvent
	for _, se := range scored {
		if se.IsAnomaly {
			out = append(out, se)
		}
	}
	return out
}
