package ical

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidReminder is returned for triggers that are not negative ISO-8601 durations.
var ErrInvalidReminder = errors.New("invalid reminder, expected ISO-8601 duration such as -P1D or -PT1H")

var reminderPattern = regexp.MustCompile(`^-P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseReminder converts an ISO-8601 trigger (-P1D, -PT1H, -P1DT2H30M) into
// the positive offset before the event start.
func ParseReminder(raw string) (time.Duration, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	m := reminderPattern.FindStringSubmatch(value)
	if m == nil || strings.HasSuffix(value, "T") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReminder, raw)
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidReminder, raw)
		}
		total += time.Duration(n) * unit
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReminder, raw)
	}
	return total, nil
}

// NormalizeReminder validates raw and returns its canonical form.
func NormalizeReminder(raw string) (string, error) {
	d, err := ParseReminder(raw)
	if err != nil {
		return "", err
	}
	return "-" + FormatDuration(d), nil
}

// FormatReminder renders an offset before the event start as a trigger.
func FormatReminder(before time.Duration) string {
	if before < 0 {
		before = -before
	}
	return "-" + FormatDuration(before)
}

// FormatDuration renders a positive duration as ISO-8601 (P1D, PT1H, P1DT2H30M).
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var b strings.Builder
	b.WriteString("P")
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 {
		b.WriteString("T")
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 {
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	return b.String()
}
