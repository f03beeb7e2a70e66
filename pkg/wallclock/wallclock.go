// Package wallclock converts exam wall-clock times, stored as local date and
// time strings, into absolute instants and back.
//
// Stored times are always local to the exam's zone (Europe/Madrid by
// default); they are never treated as UTC. Zone rules come from the IANA
// database embedded in the binary, so results do not depend on the host.
package wallclock

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// DefaultZone is the zone exam times are recorded in.
	DefaultZone = "Europe/Madrid"

	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")
)

// Zone interprets wall-clock values in a fixed location.
type Zone struct {
	loc *time.Location
}

// Load returns the Zone for an IANA name; an empty name selects DefaultZone.
func Load(name string) (*Zone, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %s: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// MustLoad is Load for package-level initialisation.
func MustLoad(name string) *Zone {
	z, err := Load(name)
	if err != nil {
		panic(err)
	}
	return z
}

// Madrid returns the default exam zone.
func Madrid() *Zone {
	return MustLoad(DefaultZone)
}

// Name returns the IANA name of the zone.
func (z *Zone) Name() string {
	return z.loc.String()
}

// Location exposes the underlying location.
func (z *Zone) Location() *time.Location {
	return z.loc
}

// ToUTC resolves date (YYYY-MM-DD) and hhmm (HH:MM, seconds tolerated) in the
// zone and returns the instant in UTC.
//
// Wall times skipped by the spring-forward jump are moved forward by the gap;
// wall times repeated in autumn resolve to the standard-time (second) instant.
func (z *Zone) ToUTC(date, hhmm string) (time.Time, error) {
	day, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	hour, minute, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, z.loc)
	return local.UTC(), nil
}

// FromUTC renders an instant as the zone's local date and HH:MM.
func (z *Zone) FromUTC(t time.Time) (date, hhmm string) {
	local := t.In(z.loc)
	return local.Format(DateLayout), local.Format(TimeLayout)
}

func parseClock(raw string) (int, int, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{TimeLayout, "15:04:05", "3:04"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Hour(), parsed.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
}
