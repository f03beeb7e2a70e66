package ical

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

const googleSubscribeBase = "https://calendar.google.com/calendar/u/0/r?cid="

// FeedURL joins baseURL and endpoint and attaches params as the query string.
func FeedURL(baseURL, endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	u.Path = path.Join("/", u.Path, endpoint)
	u.RawQuery = params.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// WebcalURL is FeedURL with the scheme rewritten to webcal, which calendar
// clients open as an auto-refreshing subscription.
func WebcalURL(baseURL, endpoint string, params url.Values) (string, error) {
	feed, err := FeedURL(baseURL, endpoint, params)
	if err != nil {
		return "", err
	}
	return ToWebcal(feed), nil
}

// ToWebcal swaps an http(s) scheme for webcal.
func ToWebcal(feedURL string) string {
	switch {
	case strings.HasPrefix(feedURL, "https:"):
		return "webcal:" + strings.TrimPrefix(feedURL, "https:")
	case strings.HasPrefix(feedURL, "http:"):
		return "webcal:" + strings.TrimPrefix(feedURL, "http:")
	default:
		return feedURL
	}
}

// GoogleSubscriptionURL builds the "add by URL" link for Google Calendar.
func GoogleSubscriptionURL(webcalURL string) string {
	return googleSubscribeBase + url.QueryEscape(webcalURL)
}

// ReminderParams renders offsets before the event start as reminder query values.
func ReminderParams(offsets ...time.Duration) []string {
	out := make([]string, 0, len(offsets))
	for _, d := range offsets {
		if d == 0 {
			continue
		}
		out = append(out, FormatReminder(d))
	}
	return out
}
