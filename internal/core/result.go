package core

import "time"

// RunStats counts what each stage of one analysis run did.
type RunStats struct {
	Files             int            `json:"files"`
	SkippedFiles      int            `json:"skipped_files"`
	Records           int            `json:"records"`
	Unrecognized      int            `json:"unrecognized"`
	Events            int            `json:"events"`
	EventsByShape     map[string]int `json:"events_by_shape"`
	ImputedTimestamps int            `json:"imputed_timestamps"`
	Actors            int            `json:"actors"`
	Anomalies         int            `json:"anomalies"`
	HighPriority      int            `json:"high_priority"`
	Columns           []string       `json:"columns"`
	MissingColumns    []string       `json:"missing_columns,omitempty"`
	Threshold         float64        `json:"high_priority_threshold"`
}

// AnalysisResult is everything one run produced. Scored is in batch order;
// HighPriority is ranked.
type AnalysisResult struct {
	RunID        string                  `json:"run_id"`
	StartedAt    time.Time               `json:"started_at"`
	CompletedAt  time.Time               `json:"completed_at"`
	Scored       []ScoredEvent           `json:"scored"`
	HighPriority []ScoredEvent           `json:"high_priority"`
	Profiles     map[string]ActorProfile `json:"profiles"`
	Stats        RunStats                `json:"stats"`
}

// Duration returns how long the run took.
func (r *AnalysisResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Summary condenses the result for publication on the alert bus.
func (r *AnalysisResult) Summary() RunSummary {
	return RunSummary{
		RunID:        r.RunID,
		CompletedAt:  r.CompletedAt,
		Events:       r.Stats.Events,
		Anomalies:    r.Stats.Anomalies,
		HighPriority: r.Stats.HighPriority,
		Actors:       r.Stats.Actors,
	}
}
