package report

import (
	"fmt"

	"github.com/1sec-project/instatrace/internal/core"
)

// SensitiveActions are actions worth calling out when they appear in an alert.
var SensitiveActions = map[string]bool{
	"download_all_files": true,
	"change_permissions": true,
	"reset_password":     true,
	"Modify permissions": true,
}

// Reasons lists human-readable explanations for why se stands out against its
// actor's profile. It always returns at least one reason.
func Reasons(se core.ScoredEvent, profile core.ActorProfile) []string {
	var reasons []string
	if se.Features.IsNight == 1 {
		reasons = append(reasons, "night-time activity")
	}
	country := se.Event.Country
	if country != core.UnknownCountry && country != "" {
		if primary := profile.PrimaryCountry(); primary != core.UnknownCountry && primary != country {
			reasons = append(reasons, fmt.Sprintf("access from an unusual country (%s)", country))
		}
	}
	if se.Features.IsWeekend == 1 && profile.WeekendActivityRatio < 0.5 {
		reasons = append(reasons, "weekend activity")
	}
	if SensitiveActions[se.Event.Action] {
		reasons = append(reasons, fmt.Sprintf("sensitive action (%s)", se.Event.Action))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "unusual combination of factors")
	}
	return reasons
}
