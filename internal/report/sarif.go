package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/1sec-project/instatrace/internal/core"
)

// Minimal SARIF 2.1.0, enough for code-scanning dashboards to list alerts.

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type sarifResult struct {
	RuleID     string                 `json:"ruleId"`
	Level      string                 `json:"level"`
	Message    sarifMessage           `json:"message"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

func sarifLevel(tier core.RiskTier) string {
	switch tier {
	case core.TierVeryHigh, core.TierHigh:
		return "error"
	case core.TierMedium:
		return "warning"
	default:
		return "note"
	}
}

// WriteSARIF renders alerts as a SARIF log.
func WriteSARIF(w io.Writer, alerts []*core.Alert, version string) error {
	results := make([]sarifResult, 0, len(alerts))
	for _, a := range alerts {
		results = append(results, sarifResult{
			RuleID: "instatrace/" + strings.ToLower(a.Tier.String()),
			Level:  sarifLevel(a.Tier),
			Message: sarifMessage{
				Text: fmt.Sprintf("%s: %s from %s (p=%.2f)", a.Actor, a.Action, a.Country, a.Probability),
			},
			Properties: map[string]interface{}{
				"alert_id":   a.ID,
				"run_id":     a.RunID,
				"event_time": a.EventTime,
				"reasons":    a.Reasons,
			},
		})
	}

	rep := sarifReport{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: "instatrace", Version: version}},
			Results: results,
		}},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
