package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/temporal"
)

// Shape names, reported per event and in normalization stats.
const (
	ShapeTakeoutActivity = "takeout_activity"
	ShapeTakeoutDevice   = "takeout_device"
	ShapeTakeout         = "takeout"
	ShapeAudit           = "audit"
	ShapeCanonical       = "canonical"
)

const takeoutKey = "google_takeout"

// Collection keys inside a takeout export. The export keeps the localized
// (French) section titles; English titles are accepted as well.
var (
	activityCollectionKeys = []string{
		"Activités _ liste des services Google auxquels vos",
		"Activities - a list of Google services accessed by",
	}
	deviceCollectionKeys = []string{
		"Appareils _ liste des appareils (par exemple, Nest",
		"Devices - a list of devices",
	}
)

var (
	// Country ISO: FR
	countryISORe = regexp.MustCompile(`Country ISO: (\w+)`)
	// Last Activity Time: 2024-12-05 14:03:09 UTC
	lastActivityRe = regexp.MustCompile(`Last Activity Time: ([\d-]+ [\d:]+) UTC`)
)

// Detector recognizes one vendor shape and maps it to canonical events.
type Detector struct {
	Name  string
	Match func(rec core.RawRecord) bool
	Map   func(rec core.RawRecord) []core.Event
}

// DefaultDetectors returns the built-in detectors in dispatch order.
func DefaultDetectors() []Detector {
	return []Detector{
		{Name: ShapeTakeoutActivity, Match: matchTakeoutActivity, Map: mapTakeout},
		{Name: ShapeTakeoutDevice, Match: matchTakeoutDevice, Map: mapTakeout},
		{Name: ShapeTakeout, Match: matchTakeout, Map: mapTakeout},
		{Name: ShapeAudit, Match: matchAudit, Map: mapAudit},
		{Name: ShapeCanonical, Match: matchCanonical, Map: mapCanonical},
	}
}

// ---------------------------------------------------------------------------
// Takeout exports: nested activity and device collections
// ---------------------------------------------------------------------------

func takeoutSection(rec core.RawRecord) (map[string]interface{}, bool) {
	m, ok := rec[takeoutKey].(map[string]interface{})
	return m, ok
}

func collection(section map[string]interface{}, keys []string) ([]interface{}, bool) {
	for _, k := range keys {
		if v, ok := section[k]; ok {
			items, _ := v.([]interface{})
			return items, true
		}
	}
	return nil, false
}

func matchTakeoutActivity(rec core.RawRecord) bool {
	section, ok := takeoutSection(rec)
	if !ok {
		return false
	}
	_, ok = collection(section, activityCollectionKeys)
	return ok
}

func matchTakeoutDevice(rec core.RawRecord) bool {
	section, ok := takeoutSection(rec)
	if !ok {
		return false
	}
	_, ok = collection(section, deviceCollectionKeys)
	return ok
}

// matchTakeout claims any takeout export, including one carrying neither
// known collection. Such a record yields no events.
func matchTakeout(rec core.RawRecord) bool {
	_, ok := rec[takeoutKey]
	return ok
}

// mapTakeout emits activity events followed by device events, so an export
// carrying both collections is fully mapped by whichever detector matched.
func mapTakeout(rec core.RawRecord) []core.Event {
	section, _ := takeoutSection(rec)
	var events []core.Event

	if items, ok := collection(section, activityCollectionKeys); ok {
		for _, item := range items {
			activity, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			events = append(events, mapActivity(activity))
		}
	}

	if items, ok := collection(section, deviceCollectionKeys); ok {
		for _, item := range items {
			device, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			events = append(events, mapDevice(device))
		}
	}
	return events
}

func mapActivity(activity map[string]interface{}) core.Event {
	ev := core.Event{
		Actor:       stringField(activity, "Gaia ID", core.UnknownActor),
		SourceIP:    stringField(activity, "IP Address", core.UnknownIP),
		Action:      "google_activity",
		Application: stringField(activity, "Product Name", "Google"),
		DeviceType:  DeviceFromUserAgent(activity["User Agent String"]),
		Country:     ResolveCountry(activity),
		Shape:       ShapeTakeoutActivity,
	}
	setTimestamp(&ev, activity["Activity Timestamp"])
	return ev
}

func mapDevice(device map[string]interface{}) core.Event {
	ev := core.Event{
		Actor:       stringField(device, "Gaia ID", core.UnknownActor),
		SourceIP:    core.UnknownIP,
		Action:      "device_login",
		Application: stringField(device, "OS", core.UnknownApp),
		DeviceType:  stringField(device, "Device Type", core.UnknownDevice),
		Country:     ResolveCountry(device),
		Shape:       ShapeTakeoutDevice,
	}
	if loc, ok := device["Device Last Location"].(string); ok {
		if m := lastActivityRe.FindStringSubmatch(loc); m != nil {
			setTimestamp(&ev, m[1])
		}
	}
	return ev
}

// ---------------------------------------------------------------------------
// Directory audit events: flat records with id, activity and time
// ---------------------------------------------------------------------------

func matchAudit(rec core.RawRecord) bool {
	_, hasID := rec["id"]
	_, hasActivity := rec["activity"]
	_, hasTime := rec["time"]
	return hasID && hasActivity && hasTime
}

func mapAudit(rec core.RawRecord) []core.Event {
	ev := core.Event{
		Actor:       stringField(rec, "targetUser", core.UnknownActor),
		SourceIP:    core.UnknownIP,
		Action:      stringField(rec, "activity", core.UnknownAction),
		Application: "Microsoft",
		DeviceType:  core.UnknownDevice,
		Country:     core.UnknownCountry,
		Shape:       ShapeAudit,
	}
	setTimestamp(&ev, rec["time"])

	if initiatedBy, ok := rec["initiatedBy"].(map[string]interface{}); ok {
		if user, ok := initiatedBy["user"]; ok && user != nil {
			ev.Initiator = stringify(user)
			ev.InitiatorRole = stringField(initiatedBy, "role", "Unknown")
		}
	}
	return []core.Event{ev}
}

// ---------------------------------------------------------------------------
// Canonical records: pass through
// ---------------------------------------------------------------------------

func matchCanonical(rec core.RawRecord) bool {
	_, ok := rec[core.KeyUser]
	return ok
}

func mapCanonical(rec core.RawRecord) []core.Event {
	ev := core.Event{
		Actor:         stringField(rec, core.KeyUser, ""),
		SourceIP:      stringField(rec, core.KeyIPAddress, ""),
		Action:        stringField(rec, core.KeyAction, ""),
		Application:   stringField(rec, core.KeyApplication, ""),
		DeviceType:    stringField(rec, core.KeyDeviceType, ""),
		Initiator:     stringField(rec, core.KeyInitiator, ""),
		InitiatorRole: stringField(rec, core.KeyInitiatorRole, ""),
		Shape:         ShapeCanonical,
	}
	if loc, ok := rec[core.KeyLocation].(map[string]interface{}); ok {
		ev.Country = stringField(loc, core.KeyCountry, "")
	}
	setTimestamp(&ev, rec[core.KeyTimestamp])
	return []core.Event{ev}
}

// ---------------------------------------------------------------------------
// Field helpers
// ---------------------------------------------------------------------------

// ResolveCountry returns the explicit activity country when present, else the
// ISO code embedded in the free-text device location, else "Unknown".
func ResolveCountry(fields map[string]interface{}) string {
	if c := stringField(fields, "Activity Country", ""); c != "" {
		return c
	}
	if loc, ok := fields["Device Last Location"].(string); ok {
		if m := countryISORe.FindStringSubmatch(loc); m != nil {
			return m[1]
		}
	}
	return core.UnknownCountry
}

// DeviceFromUserAgent classifies a user-agent string as MOBILE or PC. A missing
// user agent yields "Unknown".
func DeviceFromUserAgent(v interface{}) string {
	ua, ok := v.(string)
	if !ok || ua == "" {
		return core.UnknownDevice
	}
	if strings.Contains(ua, "MOBILE") {
		return core.DeviceMobile
	}
	return core.DevicePC
}

func setTimestamp(ev *core.Event, v interface{}) {
	if v == nil {
		return
	}
	ev.RawTimestamp = v
	if t, ok := temporal.Parse(v); ok {
		ev.Timestamp = &t
	}
}

// stringField returns fields[key] as a string, or def when it is absent, null
// or blank.
func stringField(fields map[string]interface{}, key, def string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return def
	}
	s := stringify(v)
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func stringify(v interface{}) string {
	switch tv := v.(type) {
	case string:
		return tv
	case float64:
		if tv == float64(int64(tv)) {
			return fmt.Sprintf("%d", int64(tv))
		}
		return fmt.Sprintf("%v", tv)
	default:
		return fmt.Sprintf("%v", tv)
	}
}
