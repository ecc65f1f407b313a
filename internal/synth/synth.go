// Package synth generates labelled synthetic activity logs in the canonical
// record shape, for demos and end-to-end checks of the analysis pipeline.
package synth

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/1sec-project/instatrace/internal/core"
)

// TimestampLayout matches the audit-export style timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// User describes one simulated account and its habits.
type User struct {
	Name           string   `yaml:"name"`
	UsualCountries []string `yaml:"usual_countries"`
	// Usual activity hours are [FirstHour, LastHour).
	FirstHour int `yaml:"first_hour"`
	LastHour  int `yaml:"last_hour"`
}

func (u User) usualHour(h int) bool {
	return h >= u.FirstHour && h < u.LastHour
}

// Config controls generation.
type Config struct {
	Users    []User
	Normal   int // normal activities per user
	Abnormal int // abnormal activities per user
	Seed     int64

	NormalFrom, NormalTo     time.Time
	AbnormalFrom, AbnormalTo time.Time
}

var (
	// Apps are the applications activities are attributed to.
	Apps = []string{"Microsoft Office", "Microsoft Teams", "Outlook", "Chrome", "Edge", "Google Drive"}
	// NormalActions are benign day-to-day actions.
	NormalActions = []string{"login", "view_file", "edit_document", "share_file", "send_email"}
	// AbnormalActions are the actions injected into abnormal activity.
	AbnormalActions = []string{"login", "download_all_files", "change_permissions", "reset_password"}
	// UnusualCountries are the candidate countries for abnormal activity.
	UnusualCountries = []string{"RU", "CN", "BR", "IN", "ZA"}
	devices          = []string{core.DevicePC, core.DeviceMobile}
)

// DefaultConfig returns the reference data set: three users with 100 normal
// and 5 abnormal activities each.
func DefaultConfig() Config {
	return Config{
		Users: []User{
			{Name: "neila.mansouri@outlook.com", UsualCountries: []string{"FR", "GB"}, FirstHour: 8, LastHour: 22},
			{Name: "rania.bordjiba@outlook.com", UsualCountries: []string{"FR", "DZ"}, FirstHour: 9, LastHour: 23},
			{Name: "destiny.hanna@outlook.com", UsualCountries: []string{"FR", "US"}, FirstHour: 7, LastHour: 21},
		},
		Normal:       100,
		Abnormal:     5,
		Seed:         42,
		NormalFrom:   time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		NormalTo:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		AbnormalFrom: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		AbnormalTo:   time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
	}
}

// Generate returns the shuffled activities of every user. The output depends
// only on cfg.
func Generate(cfg Config) ([]core.RawRecord, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	var records []core.RawRecord

	for _, u := range cfg.Users {
		if len(u.UsualCountries) == 0 {
			return nil, fmt.Errorf("user %s has no usual countries", u.Name)
		}
		if u.FirstHour < 0 || u.LastHour > 24 || u.FirstHour >= u.LastHour {
			return nil, fmt.Errorf("user %s has invalid usual hours [%d, %d)", u.Name, u.FirstHour, u.LastHour)
		}

		for i := 0; i < cfg.Normal; i++ {
			hour := u.FirstHour + rng.Intn(u.LastHour-u.FirstHour)
			ts := randomTime(rng, cfg.NormalFrom, cfg.NormalTo, hour)
			records = append(records, activity(rng, u.Name, ts, pick(rng, NormalActions), pick(rng, u.UsualCountries)))
		}

		unusualCountries := exclude(UnusualCountries, u.UsualCountries)
		var unusualHours []int
		for h := 0; h < 24; h++ {
			if !u.usualHour(h) {
				unusualHours = append(unusualHours, h)
			}
		}
		if cfg.Abnormal > 0 && (len(unusualCountries) == 0 || len(unusualHours) == 0) {
			return nil, fmt.Errorf("user %s leaves no unusual country or hour to simulate", u.Name)
		}
		for i := 0; i < cfg.Abnormal; i++ {
			hour := unusualHours[rng.Intn(len(unusualHours))]
			ts := randomTime(rng, cfg.AbnormalFrom, cfg.AbnormalTo, hour)
			records = append(records, activity(rng, u.Name, ts, pick(rng, AbnormalActions), pick(rng, unusualCountries)))
		}
	}

	rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	return records, nil
}

// WriteFile writes records as an indented JSON array.
func WriteFile(path string, records []core.RawRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling activities: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func activity(rng *rand.Rand, user string, ts time.Time, action, country string) core.RawRecord {
	return core.RawRecord{
		"id":                fmt.Sprintf("%d", 10000+rng.Intn(90000)),
		core.KeyUser:        user,
		core.KeyTimestamp:   ts.Format(TimestampLayout),
		core.KeyIPAddress:   randomIP(rng),
		core.KeyAction:      action,
		core.KeyApplication: pick(rng, Apps),
		core.KeyDeviceType:  pick(rng, devices),
		core.KeyLocation:    map[string]interface{}{core.KeyCountry: country},
	}
}

// randomTime picks a day in [from, to] and a time within the given hour.
func randomTime(rng *rand.Rand, from, to time.Time, hour int) time.Time {
	days := int(to.Sub(from).Hours() / 24)
	day := from.AddDate(0, 0, rng.Intn(days+1))
	return time.Date(day.Year(), day.Month(), day.Day(), hour, rng.Intn(60), rng.Intn(60), 0, time.UTC)
}

func randomIP(rng *rand.Rand) string {
	v := rng.Uint32()
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).String()
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

func exclude(all, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var out []string
	for _, a := range all {
		if !skip[a] {
			out = append(out, a)
		}
	}
	return out
}
