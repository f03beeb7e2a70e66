// Package caldav pushes exam events to a user's CalDAV calendar (iCloud by default).
package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// DefaultURL is Apple's iCloud CalDAV endpoint.
const DefaultURL = "https://caldav.icloud.com"

// ErrNoCalendar is returned when the account exposes no calendar accepting events.
var ErrNoCalendar = errors.New("no calendar accepting events was found")

// Credentials authenticate against a CalDAV server. Password is usually an
// app-specific password.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
}

// Event is one entry to write. Start and End are absolute instants.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Reminders   []string
}

// EventWriter stores events in a resolved calendar collection.
type EventWriter interface {
	PutEvent(ctx context.Context, event Event) error
}

// Client discovers calendars and opens sessions that write into them.
type Client struct {
	productID      string
	requestTimeout time.Duration
	transport      http.RoundTripper
}

// NewClient builds a client. A nil transport uses http.DefaultTransport.
func NewClient(productID string, requestTimeout time.Duration, transport http.RoundTripper) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{productID: productID, requestTimeout: requestTimeout, transport: transport}
}

// Connect authenticates, walks principal and home-set discovery, and picks
// the calendar whose display name matches calendarName, falling back to the
// first calendar that accepts events.
func (c *Client) Connect(ctx context.Context, creds Credentials, calendarName string) (EventWriter, error) {
	serverURL := creds.ServerURL
	if serverURL == "" {
		serverURL = DefaultURL
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{username: creds.Username, password: creds.Password, next: c.transport},
		Timeout:   c.requestTimeout,
	}
	client, err := caldav.NewClient(httpClient, serverURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}
	calendars, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	path, err := pickCalendar(calendars, calendarName)
	if err != nil {
		return nil, err
	}
	return &session{client: client, path: path, productID: c.productID}, nil
}

func pickCalendar(calendars []caldav.Calendar, name string) (string, error) {
	var fallback string
	for _, cal := range calendars {
		if !acceptsEvents(cal) {
			continue
		}
		if name != "" && strings.EqualFold(strings.TrimSpace(cal.Name), strings.TrimSpace(name)) {
			return cal.Path, nil
		}
		if fallback == "" {
			fallback = cal.Path
		}
	}
	if fallback == "" {
		return "", ErrNoCalendar
	}
	return fallback, nil
}

func acceptsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if strings.EqualFold(comp, ical.CompEvent) {
			return true
		}
	}
	return false
}

type session struct {
	client    *caldav.Client
	path      string
	productID string
}

// PutEvent writes event at <calendar>/<uid>.ics, replacing an earlier export.
func (s *session) PutEvent(ctx context.Context, event Event) error {
	objectPath := s.path
	if !strings.HasSuffix(objectPath, "/") {
		objectPath += "/"
	}
	objectPath += objectName(event.UID)

	if _, err := s.client.PutCalendarObject(ctx, objectPath, BuildCalendar(event, s.productID, time.Now())); err != nil {
		return fmt.Errorf("put event %s: %w", event.UID, err)
	}
	return nil
}

func objectName(uid string) string {
	name := strings.NewReplacer("@", "-", "/", "-").Replace(uid)
	return name + ".ics"
}

// BuildCalendar wraps event in a VCALENDAR suitable for a CalDAV PUT.
func BuildCalendar(event Event, productID string, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, event.UID)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
	vevent.Props.SetText(ical.PropSummary, event.Summary)
	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}

	for _, trigger := range event.Reminders {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
		alarm.Props.SetText(ical.PropDescription, event.Summary)
		prop := ical.NewProp(ical.PropTrigger)
		prop.Value = trigger
		alarm.Props.Set(prop)
		vevent.Children = append(vevent.Children, alarm)
	}

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}

type basicAuthTransport struct {
	username string
	password string
	next     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(clone)
}
