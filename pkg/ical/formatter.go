// Package ical renders exam lists as RFC 5545 calendars and builds the deep
// links calendar clients use to subscribe to them.
package ical

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/noah-isme/exam-calendar-api/pkg/wallclock"
)

const (
	DefaultProductID = "-//Exam Calendar//Exam Calendar API//ES"
	DefaultUIDDomain = "exam-calendar.local"
	DefaultDuration  = 120 * time.Minute
)

// Calendar carries feed-level metadata.
type Calendar struct {
	Name string
	// Reminders are ISO-8601 alarm triggers such as -P1D or -PT1H.
	Reminders []string
}

// Event is one exam ready to be encoded. Date and Time are local wall-clock
// values in the formatter's zone.
type Event struct {
	ID              string
	Date            string
	Time            string
	DurationMinutes int
	Summary         string
	Description     string
	Location        string
}

// Options configures a Formatter.
type Options struct {
	ProductID       string
	UIDDomain       string
	Zone            *wallclock.Zone
	DefaultDuration time.Duration
	RefreshInterval time.Duration
	Now             func() time.Time
}

// Formatter encodes exam events into iCalendar documents.
type Formatter struct {
	opts      Options
	namespace uuid.UUID
}

// NewFormatter applies defaults to opts and returns a Formatter.
func NewFormatter(opts Options) *Formatter {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.UIDDomain == "" {
		opts.UIDDomain = DefaultUIDDomain
	}
	if opts.Zone == nil {
		opts.Zone = wallclock.Madrid()
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Formatter{
		opts:      opts,
		namespace: uuid.NewSHA1(uuid.NameSpaceDNS, []byte(opts.UIDDomain)),
	}
}

// Render encodes events into a calendar. The returned body is always a
// complete, parseable document: when encoding fails, the error is returned
// alongside a single-event fallback calendar.
func (f *Formatter) Render(meta Calendar, events []Event) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render calendar: panic: %v", r)
			body = f.Fallback(meta.Name)
		}
	}()

	out, err := f.render(meta, events)
	if err != nil {
		return f.Fallback(meta.Name), err
	}
	return out, nil
}

// Placeholder renders the event-less calendar for meta. HEAD responses use its
// size as Content-Length.
func (f *Formatter) Placeholder(meta Calendar) []byte {
	body, _ := f.Render(meta, nil)
	return body
}

// UID derives the stable, globally unique identifier for an exam id.
func (f *Formatter) UID(examID string) string {
	return uuid.NewSHA1(f.namespace, []byte(examID)).String() + "@" + f.opts.UIDDomain
}

// Interval returns the UTC start and end instants of ev.
func (f *Formatter) Interval(ev Event) (start, end time.Time, err error) {
	start, err = f.opts.Zone.ToUTC(ev.Date, ev.Time)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	duration := f.opts.DefaultDuration
	if ev.DurationMinutes > 0 {
		duration = time.Duration(ev.DurationMinutes) * time.Minute
	}
	return start, start.Add(duration), nil
}

// ProductID reports the PRODID written into generated calendars.
func (f *Formatter) ProductID() string {
	return f.opts.ProductID
}

func (f *Formatter) render(meta Calendar, events []Event) ([]byte, error) {
	now := f.opts.Now().UTC()
	reminders := make([]string, 0, len(meta.Reminders))
	for _, raw := range meta.Reminders {
		trigger, err := NormalizeReminder(raw)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, trigger)
	}

	cal := ics.NewCalendar()
	cal.SetProductId(f.opts.ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(SanitizeName(meta.Name))
	cal.SetXWRTimezone(f.opts.Zone.Name())
	cal.SetRefreshInterval(FormatDuration(f.opts.RefreshInterval))
	cal.SetXPublishedTTL(FormatDuration(f.opts.RefreshInterval))

	for i, ev := range events {
		if strings.TrimSpace(ev.ID) == "" {
			return nil, fmt.Errorf("event %d: missing id", i)
		}
		start, end, err := f.Interval(ev)
		if err != nil {
			return nil, err
		}

		vevent := cal.AddEvent(f.UID(ev.ID))
		vevent.SetDtStampTime(now)
		vevent.SetStartAt(start)
		vevent.SetEndAt(end)
		vevent.SetSummary(ev.Summary)
		if ev.Description != "" {
			vevent.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
		vevent.SetStatus(ics.ObjectStatusConfirmed)

		for _, trigger := range reminders {
			alarm := vevent.AddAlarm()
			alarm.SetAction(ics.ActionDisplay)
			alarm.SetTrigger(trigger)
			alarm.SetProperty(ics.ComponentPropertyDescription, ev.Summary)
		}
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf, ics.WithNewLineWindows); err != nil {
		return nil, fmt.Errorf("serialize calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// Fallback builds a minimal single-event calendar announcing that the feed
// could not be generated. It is written by hand so it cannot fail for the
// same reason the regular encoder did.
func (f *Formatter) Fallback(name string) []byte {
	now := f.opts.Now().UTC()
	start := now.Truncate(time.Hour)
	stamp := func(t time.Time) string { return t.Format("20060102T150405Z") }

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + escapeText(f.opts.ProductID),
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:" + SanitizeName(name),
		"BEGIN:VEVENT",
		"UID:fallback-" + start.Format("2006010215") + "@" + f.opts.UIDDomain,
		"DTSTAMP:" + stamp(now),
		"DTSTART:" + stamp(start),
		"DTEND:" + stamp(start.Add(time.Hour)),
		"SUMMARY:Exam calendar temporarily unavailable",
		"DESCRIPTION:The exam list could not be converted to a calendar. It will be retried on the next refresh.",
		"STATUS:TENTATIVE",
		"END:VEVENT",
		"END:VCALENDAR",
	}
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`, "\r", "")
	return r.Replace(s)
}
