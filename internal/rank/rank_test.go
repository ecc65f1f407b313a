package rank

import (
	"testing"

	"github.com/1sec-project/instatrace/internal/core"
)

func scored(probs ...float64) []core.ScoredEvent {
	out := make([]core.ScoredEvent, len(probs))
	for i, p := range probs {
		out[i] = core.ScoredEvent{Index: i, AnomalyProbability: p, IsAnomaly: p > 0.5}
	}
	return out
}

func indexes(events []core.ScoredEvent) []int {
	out := make([]int, len(events))
	for i, se := range events {
		out[i] = se.Index
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHighPriority(t *testing.T) {
	events := scored(0.1, 0.95, 0.8, 0.85, 0.95, 1.0, 0.81)

	got := indexes(HighPriority(events, 0.8))
	want := []int{5, 1, 4, 3, 6}
	if !equalInts(got, want) {
		t.Errorf("HighPriority = %v, want %v", got, want)
	}
}

func TestHighPriority_ThresholdIsStrict(t *testing.T) {
	if got := HighPriority(scored(0.8, 0.8), 0.8); len(got) != 0 {
		t.Errorf("events at the threshold were selected: %v", indexes(got))
	}
	if got := HighPriority(nil, 0.8); len(got) != 0 {
		t.Errorf("HighPriority(nil) = %v", got)
	}
}

func TestHighPriority_DoesNotReorderInput(t *testing.T) {
	events := scored(0.9, 0.99)
	HighPriority(events, 0.5)
	if events[0].Index != 0 || events[1].Index != 1 {
		t.Error("input slice was reordered")
	}
}

func TestTop(t *testing.T) {
	events := scored(0.3, 0.9, 0.3, 0.6)
	cases := []struct {
		n    int
		want []int
	}{
		{2, []int{1, 3}},
		{0, []int{1, 3, 0, 2}},
		{10, []int{1, 3, 0, 2}},
	}
	for _, tc := range cases {
		if got := indexes(Top(events, tc.n)); !equalInts(got, tc.want) {
			t.Errorf("Top(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestAnomalies(t *testing.T) {
	got := indexes(Anomalies(scored(0.9, 0.1, 0.6)))
	if !equalInts(got, []int{0, 2}) {
		t.Errorf("Anomalies = %v", got)
	}
}
