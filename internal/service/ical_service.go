package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
	"github.com/noah-isme/exam-calendar-api/pkg/ical"
)

const (
	queryKeyName     = "name"
	queryKeyReminder = "reminder"
	maxReminders     = 5
)

type examLister interface {
	GetExams(ctx context.Context, filters models.FilterSelection) ExamQueryResult
}

type tokenStore interface {
	Store(ctx context.Context, token, queryString string) (*models.ExportToken, error)
	Issue(ctx context.Context, queryString string) (*models.ExportToken, error)
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// FeedRequest is the decoded form of a feed query string.
type FeedRequest struct {
	Name      string
	Filters   models.FilterSelection
	Reminders []string
}

// ParseFeedQuery decodes name, facet and reminder keys. Reminders that are not
// valid ISO-8601 triggers are returned separately.
func ParseFeedQuery(q url.Values) (FeedRequest, []string) {
	req := FeedRequest{
		Name:    ical.SanitizeName(q.Get(queryKeyName)),
		Filters: models.FilterSelectionFromQuery(q),
	}
	var invalid []string
	seen := map[string]bool{}
	for _, raw := range q[queryKeyReminder] {
		trigger, err := ical.NormalizeReminder(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		if seen[trigger] || len(req.Reminders) == maxReminders {
			continue
		}
		seen[trigger] = true
		req.Reminders = append(req.Reminders, trigger)
	}
	return req, invalid
}

// Query encodes the request as a canonical query string.
func (r FeedRequest) Query() url.Values {
	q := r.Filters.Normalize().Query()
	if name := ical.SanitizeName(r.Name); name != ical.DefaultCalendarName {
		q.Set(queryKeyName, name)
	}
	for _, reminder := range r.Reminders {
		q.Add(queryKeyReminder, reminder)
	}
	return q
}

// ICalFeed is a rendered calendar ready to be served.
type ICalFeed struct {
	Body     []byte
	Name     string
	FileName string
	Events   int
	Fallback bool
}

// ICalConfig locates the public feed endpoint.
type ICalConfig struct {
	PublicBaseURL string
	Endpoint      string
}

// ICalService renders exam feeds and the links that subscribe to them.
type ICalService struct {
	exams     examLister
	tokens    tokenStore
	formatter *ical.Formatter
	config    ICalConfig
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewICalService constructs the feed service.
func NewICalService(exams examLister, tokens tokenStore, formatter *ical.Formatter, config ICalConfig, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ICalService {
	if config.Endpoint == "" {
		config.Endpoint = "/api/ical"
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ICalService{exams: exams, tokens: tokens, formatter: formatter, config: config, validator: validate, metrics: metrics, logger: logger}
}

// FeedFromQuery resolves the selection in q and renders it. A store failure
// yields ErrUnavailable so clients keep their previous copy; a rendering
// failure yields the fallback calendar.
func (s *ICalService) FeedFromQuery(ctx context.Context, q url.Values) (*ICalFeed, error) {
	req, invalid := ParseFeedQuery(q)
	if len(invalid) > 0 {
		s.logger.Warn("ignoring invalid reminders", zap.Strings("reminders", invalid))
	}
	return s.render(ctx, req)
}

// FeedFromToken renders the feed whose query string is stored under token.
func (s *ICalService) FeedFromToken(ctx context.Context, token string) (*ICalFeed, error) {
	q, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.FeedFromQuery(ctx, q)
}

// PlaceholderFromQuery renders the event-less calendar for q. HEAD requests
// use it without touching the exam store.
func (s *ICalService) PlaceholderFromQuery(q url.Values) *ICalFeed {
	req, _ := ParseFeedQuery(q)
	body := s.formatter.Placeholder(ical.Calendar{Name: req.Name, Reminders: req.Reminders})
	return &ICalFeed{Body: body, Name: req.Name, FileName: ical.FileName(req.Name)}
}

// PlaceholderFromToken is PlaceholderFromQuery for a stored token.
func (s *ICalService) PlaceholderFromToken(ctx context.Context, token string) (*ICalFeed, error) {
	q, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.PlaceholderFromQuery(q), nil
}

// StoreToken registers a client-chosen token for a query string.
func (s *ICalService) StoreToken(ctx context.Context, req dto.StoreTokenRequest) (*models.ExportToken, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid token payload")
	}
	return s.tokens.Store(ctx, req.Token, req.QueryString)
}

// Links issues a token for the requested feed and returns every subscription URL.
func (s *ICalService) Links(ctx context.Context, req dto.ICalLinksRequest) (*dto.ICalLinksResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link request")
	}
	feed := FeedRequest{Name: ical.SanitizeName(req.Name), Filters: req.Filters.Normalize()}
	for _, raw := range req.Reminders {
		trigger, err := ical.NormalizeReminder(raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		feed.Reminders = append(feed.Reminders, trigger)
	}
	offsets := make([]time.Duration, 0, len(req.ReminderMinutes))
	for _, minutes := range req.ReminderMinutes {
		offsets = append(offsets, time.Duration(minutes)*time.Minute)
	}
	feed.Reminders = append(feed.Reminders, ical.ReminderParams(offsets...)...)
	if len(feed.Reminders) > maxReminders {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at most 5 reminders are allowed")
	}
	query := feed.Query()
	encoded := query.Encode()

	token, err := s.tokens.Issue(ctx, encoded)
	if err != nil {
		return nil, err
	}

	base := s.config.PublicBaseURL
	tokenFeed, err := ical.FeedURL(base, strings.TrimRight(s.config.Endpoint, "/")+"/"+token.Token, nil)
	if err != nil {
		s.logger.Error("invalid public base url", zap.String("base_url", base), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	direct, err := ical.WebcalURL(base, s.config.Endpoint, query)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	downloadQuery := url.Values{}
	for k, v := range query {
		downloadQuery[k] = v
	}
	downloadQuery.Set("download", "1")
	download, err := ical.FeedURL(base, s.config.Endpoint, downloadQuery)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	webcal := ical.ToWebcal(tokenFeed)
	return &dto.ICalLinksResponse{
		Token:        token.Token,
		FeedURL:      tokenFeed,
		WebcalURL:    webcal,
		GoogleURL:    ical.GoogleSubscriptionURL(webcal),
		DownloadURL:  download,
		DirectURL:    direct,
		QueryString:  encoded,
		ExpiresAt:    token.ExpiresAt,
		CalendarName: feed.Name,
	}, nil
}

// RevokeToken forgets token. Subscribed clients get 404 on their next refresh.
func (s *ICalService) RevokeToken(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

func (s *ICalService) resolveToken(ctx context.Context, token string) (url.Values, error) {
	raw, err := s.tokens.Lookup(ctx, token)
	if err != nil {
		if IsTokenError(err) {
			s.metrics.ObserveFeed(FeedResultNotFound, 0)
		}
		return nil, err
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTokenInvalid.Code, appErrors.ErrTokenInvalid.Status, appErrors.ErrTokenInvalid.Message)
	}
	return q, nil
}

func (s *ICalService) render(ctx context.Context, req FeedRequest) (*ICalFeed, error) {
	result := s.exams.GetExams(ctx, req.Filters)
	if result.Failed {
		s.metrics.ObserveFeed(FeedResultUnavailable, 0)
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "exam data is temporarily unavailable, try again later")
	}

	events := ExamEvents(result.Exams)
	body, err := s.formatter.Render(ical.Calendar{Name: req.Name, Reminders: req.Reminders}, events)
	feed := &ICalFeed{Body: body, Name: req.Name, FileName: ical.FileName(req.Name), Events: len(events)}
	if err != nil {
		s.logger.Error("calendar rendering failed, serving fallback", zap.String("filters", req.Filters.Key()), zap.Int("events", len(events)), zap.Error(err))
		s.metrics.ObserveFeed(FeedResultFallback, 0)
		feed.Fallback = true
		feed.Events = 1
		return feed, nil
	}
	s.metrics.ObserveFeed(FeedResultOK, len(events))
	return feed, nil
}

// ExamEvents converts exams into calendar events.
func ExamEvents(exams []models.Exam) []ical.Event {
	events := make([]ical.Event, 0, len(exams))
	for _, e := range exams {
		events = append(events, ical.Event{
			ID:              e.ID,
			Date:            e.Date,
			Time:            e.Time,
			DurationMinutes: e.DurationOrDefault(),
			Summary:         e.SubjectLabel(),
			Description:     e.Describe(),
			Location:        e.Location,
		})
	}
	return events
}
