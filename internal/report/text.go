package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/rank"
)

// WriteText writes the plain-text analyst report: totals, high-priority
// alerts with their reasons, then per-actor statistics.
func WriteText(w io.Writer, result *core.AnalysisResult, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "INSTATRACE ANOMALY DETECTION REPORT")
	fmt.Fprintln(bw, "===================================")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Analysis date: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(bw, "Total events analyzed: %d\n", len(result.Scored))
	fmt.Fprintf(bw, "Anomalies detected: %d\n", len(rank.Anomalies(result.Scored)))
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "HIGH-PRIORITY ALERTS")
	fmt.Fprintln(bw, "--------------------")
	fmt.Fprintln(bw)
	if len(result.HighPriority) == 0 {
		fmt.Fprintln(bw, "No high-priority alerts detected.")
		fmt.Fprintln(bw)
	}
	for i, se := range result.HighPriority {
		ev := se.Event
		fmt.Fprintf(bw, "ALERT #%d (risk tier: %s)\n", i+1, se.RiskTier)
		fmt.Fprintf(bw, "  User: %s\n", ev.Actor)
		fmt.Fprintf(bw, "  Action: %s\n", ev.Action)
		fmt.Fprintf(bw, "  Timestamp: %s\n", eventTime(ev))
		fmt.Fprintf(bw, "  Country: %s\n", ev.Country)
		fmt.Fprintf(bw, "  Device: %s\n", ev.DeviceType)
		fmt.Fprintf(bw, "  Anomaly probability: %.2f\n", se.AnomalyProbability)
		for _, r := range Reasons(se, result.Profiles[ev.Actor]) {
			fmt.Fprintf(bw, "  Potential reason: %s\n", r)
		}
		fmt.Fprintln(bw)
	}

	fmt.Fprintln(bw, "PER-USER STATISTICS")
	fmt.Fprintln(bw, "-------------------")
	fmt.Fprintln(bw)
	for _, a := range actorStats(result.Scored) {
		fmt.Fprintf(bw, "User: %s\n", a.actor)
		fmt.Fprintf(bw, "  Total activities: %d\n", a.total)
		fmt.Fprintf(bw, "  Anomalies: %d (%.1f%%)\n", a.anomalies, 100*float64(a.anomalies)/float64(a.total))
		fmt.Fprintf(bw, "  Countries: %s\n", strings.Join(a.countries, ", "))
		fmt.Fprintf(bw, "  Device types: %s\n", strings.Join(a.devices, ", "))
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}

type actorStat struct {
	actor     string
	total     int
	anomalies int
	countries []string // first-seen order
	devices   []string // first-seen order
}

func actorStats(scored []core.ScoredEvent) []*actorStat {
	byActor := make(map[string]*actorStat)
	for _, se := range scored {
		ev := se.Event
		a, ok := byActor[ev.Actor]
		if !ok {
			a = &actorStat{actor: ev.Actor}
			byActor[ev.Actor] = a
		}
		a.total++
		if se.IsAnomaly {
			a.anomalies++
		}
		a.countries = appendUnique(a.countries, ev.Country)
		a.devices = appendUnique(a.devices, ev.DeviceType)
	}

	out := make([]*actorStat, 0, len(byActor))
	for _, a := range byActor {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].actor < out[j].actor })
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
