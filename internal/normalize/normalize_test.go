package normalize

import (
	"reflect"
	"testing"
	"time"

	"github.com/1sec-project/instatrace/internal/core"
	"github.com/1sec-project/instatrace/internal/synth"
	"github.com/rs/zerolog"
)

// ─── Helpers ─────────────────────────────────────────────────────────────────

func newTestNormalizer() *Normalizer {
	return New(zerolog.Nop())
}

func takeoutRecord(activities, devices []interface{}) core.RawRecord {
	section := map[string]interface{}{}
	if activities != nil {
		section[activityCollectionKeys[0]] = activities
	}
	if devices != nil {
		section[deviceCollectionKeys[0]] = devices
	}
	return core.RawRecord{takeoutKey: section}
}

func canonicalRecord() core.RawRecord {
	return core.RawRecord{
		"user":           "neila.mansouri@outlook.com",
		"timestamp":      "2025-01-15T10:30:00Z",
		"ipAddress":      "81.2.69.142",
		"action":         "edit_document",
		"appDisplayName": "Microsoft Teams",
		"deviceType":     "PC",
		"location":       map[string]interface{}{"countryOrRegion": "FR"},
	}
}

// ─── Takeout activities ──────────────────────────────────────────────────────

func TestNormalize_TakeoutActivity(t *testing.T) {
	rec := takeoutRecord([]interface{}{
		map[string]interface{}{
			"Gaia ID":            float64(114523998877),
			"Activity Timestamp": "2024-12-05 14:03:09 UTC",
			"IP Address":         "90.12.4.1",
			"Product Name":       "Gmail",
			"User Agent String":  "Mozilla/5.0 (Linux; Android 14) MOBILE Safari",
			"Activity Country":   "FR",
		},
		map[string]interface{}{
			"Gaia ID":           "114523998877",
			"User Agent String": "Mozilla/5.0 (Windows NT 10.0)",
		},
		"not an object",
	}, nil)

	events, stats := newTestNormalizer().Normalize([]core.RawRecord{rec})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if stats.ByShape[ShapeTakeoutActivity] != 2 {
		t.Errorf("ByShape = %v", stats.ByShape)
	}

	first := events[0]
	if first.Actor != "114523998877" {
		t.Errorf("actor = %q, want numeric Gaia ID stringified", first.Actor)
	}
	if first.Action != "google_activity" {
		t.Errorf("action = %q", first.Action)
	}
	if first.Application != "Gmail" {
		t.Errorf("application = %q", first.Application)
	}
	if first.DeviceType != core.DeviceMobile {
		t.Errorf("deviceType = %q, want MOBILE", first.DeviceType)
	}
	if first.Country != "FR" {
		t.Errorf("country = %q, want FR", first.Country)
	}
	if first.Timestamp == nil || first.Timestamp.Hour() != 14 {
		t.Errorf("timestamp = %v, want 14:03 UTC", first.Timestamp)
	}

	second := events[1]
	if second.DeviceType != core.DevicePC {
		t.Errorf("deviceType = %q, want PC", second.DeviceType)
	}
	if second.Application != "Google" {
		t.Errorf("application default = %q, want Google", second.Application)
	}
	if second.SourceIP != core.UnknownIP || second.Country != core.UnknownCountry {
		t.Errorf("defaults not applied: ip=%q country=%q", second.SourceIP, second.Country)
	}
	if !second.TimestampImputed || !second.Timestamp.Equal(core.DefaultDate) {
		t.Errorf("absent timestamp should be imputed to %v, got %v", core.DefaultDate, second.Timestamp)
	}
}

func TestDeviceFromUserAgent(t *testing.T) {
	cases := []struct {
		ua   interface{}
		want string
	}{
		{"Something MOBILE Safari", core.DeviceMobile},
		{"Mozilla/5.0 (X11; Linux x86_64)", core.DevicePC},
		{"mobile lowercase is not matched", core.DevicePC},
		{"", core.UnknownDevice},
		{nil, core.UnknownDevice},
	}
	for _, tc := range cases {
		if got := DeviceFromUserAgent(tc.ua); got != tc.want {
			t.Errorf("DeviceFromUserAgent(%v) = %q, want %q", tc.ua, got, tc.want)
		}
	}
}

// ─── Takeout devices ─────────────────────────────────────────────────────────

func TestNormalize_TakeoutDevice(t *testing.T) {
	rec := takeoutRecord(nil, []interface{}{
		map[string]interface{}{
			"Gaia ID":              "555",
			"OS":                   "Android",
			"Device Type":          "MOBILE",
			"Device Last Location": "Country ISO: DZ, Last Activity Time: 2025-01-20 03:12:44 UTC",
		},
		map[string]interface{}{
			"Gaia ID":              "555",
			"Device Last Location": "no structured data here",
		},
	})

	events, stats := newTestNormalizer().Normalize([]core.RawRecord{rec})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if stats.ByShape[ShapeTakeoutDevice] != 2 {
		t.Errorf("ByShape = %v", stats.ByShape)
	}

	ev := events[0]
	if ev.Action != "device_login" || ev.Application != "Android" || ev.DeviceType != "MOBILE" {
		t.Errorf("unexpected mapping: %+v", ev)
	}
	if ev.Country != "DZ" {
		t.Errorf("country = %q, want DZ from location text", ev.Country)
	}
	want := time.Date(2025, 1, 20, 3, 12, 44, 0, time.UTC)
	if ev.Timestamp == nil || !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}

	bare := events[1]
	if !bare.TimestampImputed || !bare.Timestamp.Equal(core.DefaultDate) {
		t.Errorf("timestamp without a Last Activity Time should be imputed, got %v", bare.Timestamp)
	}
	if bare.Application != core.UnknownApp || bare.DeviceType != core.UnknownDevice || bare.Country != core.UnknownCountry {
		t.Errorf("defaults not applied: %+v", bare)
	}
}

func TestNormalize_TakeoutBothCollections(t *testing.T) {
	rec := takeoutRecord(
		[]interface{}{map[string]interface{}{"Gaia ID": "1"}},
		[]interface{}{map[string]interface{}{"Gaia ID": "1"}},
	)
	events, _ := newTestNormalizer().Normalize([]core.RawRecord{rec})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Action != "google_activity" || events[1].Action != "device_login" {
		t.Errorf("actions = %q, %q", events[0].Action, events[1].Action)
	}
}

// ─── Country resolution ──────────────────────────────────────────────────────

func TestResolveCountry_Precedence(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]interface{}
		want   string
	}{
		{
			name: "direct field wins over conflicting location",
			fields: map[string]interface{}{
				"Activity Country":     "FR",
				"Device Last Location": "Country ISO: RU",
			},
			want: "FR",
		},
		{
			name:   "location regex",
			fields: map[string]interface{}{"Device Last Location": "City: Lyon, Country ISO: GB"},
			want:   "GB",
		},
		{
			name: "empty direct field falls through",
			fields: map[string]interface{}{
				"Activity Country":     "",
				"Device Last Location": "Country ISO: US",
			},
			want: "US",
		},
		{
			name:   "non-string location",
			fields: map[string]interface{}{"Device Last Location": 42.0},
			want:   core.UnknownCountry,
		},
		{name: "nothing", fields: map[string]interface{}{}, want: core.UnknownCountry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveCountry(tc.fields); got != tc.want {
				t.Errorf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

// ─── Audit events ────────────────────────────────────────────────────────────

func TestNormalize_AuditEvent(t *testing.T) {
	rec := core.RawRecord{
		"id":         "7f1c",
		"activity":   "reset_password",
		"time":       "2025-02-03T02:11:00.000000Z",
		"targetUser": "destiny.hanna@outlook.com",
		"initiatedBy": map[string]interface{}{
			"user": "admin@outlook.com",
			"role": "Global Administrator",
		},
	}
	events, stats := newTestNormalizer().Normalize([]core.RawRecord{rec})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if stats.ByShape[ShapeAudit] != 1 {
		t.Errorf("ByShape = %v", stats.ByShape)
	}
	if ev.Actor != "destiny.hanna@outlook.com" || ev.Action != "reset_password" || ev.Application != "Microsoft" {
		t.Errorf("unexpected mapping: %+v", ev)
	}
	if ev.Initiator != "admin@outlook.com" || ev.InitiatorRole != "Global Administrator" {
		t.Errorf("initiator = %q/%q", ev.Initiator, ev.InitiatorRole)
	}
	if ev.Timestamp == nil || ev.Timestamp.Hour() != 2 {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestNormalize_AuditWithoutTargetOrRole(t *testing.T) {
	rec := core.RawRecord{
		"id": "1", "activity": "login", "time": "garbage",
		"initiatedBy": map[string]interface{}{"user": "svc"},
	}
	events, _ := newTestNormalizer().Normalize([]core.RawRecord{rec})
	ev := events[0]
	if ev.Actor != core.UnknownActor {
		t.Errorf("actor = %q, want unknown", ev.Actor)
	}
	if ev.InitiatorRole != "Unknown" {
		t.Errorf("initiator role = %q, want Unknown", ev.InitiatorRole)
	}
	if ev.Timestamp == nil || !ev.Timestamp.Equal(core.DefaultDate) || !ev.TimestampImputed {
		t.Errorf("unparseable time should be imputed to %v, got %v", core.DefaultDate, ev.Timestamp)
	}
	if ev.RawTimestamp != "garbage" {
		t.Errorf("raw timestamp = %v, want the source text", ev.RawTimestamp)
	}
}

// ─── Canonical pass-through ──────────────────────────────────────────────────

func TestNormalize_CanonicalIdempotent(t *testing.T) {
	in := canonicalRecord()
	n := newTestNormalizer()

	events, _ := n.Normalize([]core.RawRecord{in})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	out := events[0].Record()
	if !reflect.DeepEqual(map[string]interface{}(out), map[string]interface{}(in)) {
		t.Errorf("canonical record changed:\n in=%v\nout=%v", in, out)
	}

	again, _ := n.Normalize([]core.RawRecord{out})
	if !reflect.DeepEqual(again[0], events[0]) {
		t.Errorf("second normalization differs:\n first=%+v\nsecond=%+v", events[0], again[0])
	}
}

func TestNormalize_CanonicalKeepsTimestampLayout(t *testing.T) {
	cases := map[string]interface{}{
		"microsecond Z":  "2025-01-23T11:30:48.000000Z",
		"takeout UTC":    "2025-01-23 11:30:48 UTC",
		"offset":         "2025-01-23T11:30:48+01:00",
		"epoch seconds":  float64(1737631848),
		"unparseable":    "garbage",
		"plain datetime": "2025-01-23 11:30:48",
	}
	n := newTestNormalizer()
	for name, ts := range cases {
		t.Run(name, func(t *testing.T) {
			in := canonicalRecord()
			in["timestamp"] = ts
			events, _ := n.Normalize([]core.RawRecord{in})
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			out := events[0].Record()
			if !reflect.DeepEqual(map[string]interface{}(out), map[string]interface{}(in)) {
				t.Errorf("canonical record changed:\n in=%v\nout=%v", in, out)
			}
		})
	}
}

func TestNormalize_SyntheticRecordsRoundTrip(t *testing.T) {
	records, err := synth.Generate(synth.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	n := newTestNormalizer()
	events, stats := n.Normalize(records)
	if stats.Events != len(records) {
		t.Fatalf("got %d events from %d records", stats.Events, len(records))
	}
	for i, ev := range events {
		if ev.TimestampImputed {
			t.Errorf("record %d: generated timestamp %v was not parsed", i, records[i]["timestamp"])
		}
		out := ev.Record()
		for _, key := range []string{"user", "timestamp", "ipAddress", "action", "appDisplayName", "deviceType", "location"} {
			if !reflect.DeepEqual(out[key], records[i][key]) {
				t.Errorf("record %d: %s = %v, want %v", i, key, out[key], records[i][key])
			}
		}
	}
}

func TestNormalize_CanonicalWithInitiator(t *testing.T) {
	in := canonicalRecord()
	in["initiator"] = "admin@outlook.com"
	in["initiatorRole"] = "Helpdesk"

	events, _ := newTestNormalizer().Normalize([]core.RawRecord{in})
	out := events[0].Record()
	if !reflect.DeepEqual(map[string]interface{}(out), map[string]interface{}(in)) {
		t.Errorf("canonical record changed:\n in=%v\nout=%v", in, out)
	}
}

// ─── Dispatch ────────────────────────────────────────────────────────────────

func TestNormalize_SkipsUnrecognized(t *testing.T) {
	records := []core.RawRecord{
		{"foo": "bar"},
		nil,
		{"id": "1", "activity": "login"}, // missing time
		canonicalRecord(),
	}
	events, stats := newTestNormalizer().Normalize(records)
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
	if stats.Unrecognized != 3 {
		t.Errorf("Unrecognized = %d, want 3", stats.Unrecognized)
	}
	if stats.Records != 4 || stats.Events != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNormalize_FirstMatchWins(t *testing.T) {
	// An audit-shaped record that also carries a user key is an audit event.
	rec := core.RawRecord{
		"id": "1", "activity": "login", "time": "2025-01-01T10:00:00Z",
		"user": "shadow", "targetUser": "real",
	}
	events, _ := newTestNormalizer().Normalize([]core.RawRecord{rec})
	if events[0].Shape != ShapeAudit || events[0].Actor != "real" {
		t.Errorf("got shape %q actor %q, want audit/real", events[0].Shape, events[0].Actor)
	}
}

func TestNormalize_CustomDetectors(t *testing.T) {
	custom := Detector{
		Name:  "syslog",
		Match: func(rec core.RawRecord) bool { _, ok := rec["msg"]; return ok },
		Map: func(rec core.RawRecord) []core.Event {
			return []core.Event{{Action: "syslog"}}
		},
	}
	n := NewWithDetectors(zerolog.Nop(), append([]Detector{custom}, DefaultDetectors()...))
	events, stats := n.Normalize([]core.RawRecord{{"msg": "hello"}})
	if len(events) != 1 || events[0].Shape != "syslog" {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Actor != core.UnknownActor || events[0].Country != core.UnknownCountry {
		t.Errorf("defaults not filled: %+v", events[0])
	}
	if stats.ByShape["syslog"] != 1 {
		t.Errorf("ByShape = %v", stats.ByShape)
	}
}

func TestNormalize_TakeoutWithoutCollections(t *testing.T) {
	rec := core.RawRecord{
		takeoutKey: map[string]interface{}{"Profile": map[string]interface{}{}},
		"user":     "should-not-pass-through",
	}
	events, stats := newTestNormalizer().Normalize([]core.RawRecord{rec})
	if len(events) != 0 {
		t.Errorf("got %d events, want none: %+v", len(events), events)
	}
	if stats.Unrecognized != 0 {
		t.Errorf("Unrecognized = %d, want 0", stats.Unrecognized)
	}
	if stats.ByShape[ShapeCanonical] != 0 {
		t.Errorf("ByShape = %v", stats.ByShape)
	}
}
