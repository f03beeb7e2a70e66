package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/exam-calendar-api/internal/clients/caldav"
	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
	"github.com/noah-isme/exam-calendar-api/pkg/ical"
	"github.com/noah-isme/exam-calendar-api/pkg/jobs"
)

const exportJobType = "caldav_export"

// Messages stored on failed jobs. Internal causes are only logged.
const (
	exportMsgAuthTimeout = "the calendar server did not respond in time"
	exportMsgAuthFailed  = "could not sign in to the calendar server"
	exportMsgExamsFailed = "exam data is temporarily unavailable, try again later"
	exportMsgWriteFailed = "failed to write events to the calendar"
	exportMsgQueueFull   = "export queue is full, try again later"
	exportMsgRequeue     = "export could not be scheduled"
)

var errAuthTimeout = errors.New("calendar authorization timed out")

type calendarConnector interface {
	Connect(ctx context.Context, creds caldav.Credentials, calendarName string) (caldav.EventWriter, error)
}

// ExportConfig tunes the push export workers.
type ExportConfig struct {
	DefaultServerURL string
	Workers          int
	QueueSize        int
	AuthTimeout      time.Duration
	BatchSize        int
	BatchDelay       time.Duration
	// AllowedHosts lists the CalDAV hosts a job may target besides the
	// default server. An entry with a leading dot also matches subdomains.
	AllowedHosts     []string
}

type exportFailure struct {
	message string
	err     error
}

func (f *exportFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.message, f.err)
}

func (f *exportFailure) Unwrap() error {
	return f.err
}

type exportEntry struct {
	job   models.ExportJob
	creds *caldav.Credentials
}

// ExportService pushes filtered exams into a user's CalDAV calendar in the
// background and tracks each push as an ExportJob.
type ExportService struct {
	exams     examLister
	connector calendarConnector
	formatter *ical.Formatter
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
	queue     *jobs.Queue
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*exportEntry
}

// NewExportService constructs an ExportService. Call Run before Start.
func NewExportService(exams examLister, connector calendarConnector, formatter *ical.Formatter, cfg ExportConfig, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ExportService {
	if cfg.DefaultServerURL == "" {
		cfg.DefaultServerURL = caldav.DefaultURL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = time.Second
	}
	if u, err := url.Parse(cfg.DefaultServerURL); err == nil && u.Hostname() != "" {
		cfg.AllowedHosts = append([]string{u.Hostname()}, cfg.AllowedHosts...)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		exams:     exams,
		connector: connector,
		formatter: formatter,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		entries:   make(map[string]*exportEntry),
	}
	s.queue = jobs.NewQueue(exportJobType, s.handle, jobs.QueueConfig{
		Workers:     cfg.Workers,
		BufferSize:  cfg.QueueSize,
		MaxRetries:  -1,
		OnExhausted: s.onExhausted,
		Logger:      logger,
	})
	return s
}

// Run starts the export workers.
func (s *ExportService) Run(ctx context.Context) {
	s.queue.Start(ctx)
}

// Shutdown cancels running exports and waits for the workers.
func (s *ExportService) Shutdown() {
	s.queue.Stop()
}

// Start validates req, registers an idle job for owner and schedules it.
func (s *ExportService) Start(ctx context.Context, owner string, req dto.CalDAVExportRequest) (*models.ExportJob, error) {
	if owner == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	reminders := make([]string, 0, len(req.Reminders))
	for _, raw := range req.Reminders {
		trigger, err := ical.NormalizeReminder(raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		reminders = append(reminders, trigger)
	}

	serverURL := req.ServerURL
	if serverURL == "" {
		serverURL = s.cfg.DefaultServerURL
	}
	if !s.serverAllowed(serverURL) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "calendar server is not allowed")
	}
	now := s.now().UTC()
	entry := &exportEntry{
		job: models.ExportJob{
			ID:           uuid.NewString(),
			OwnerID:      owner,
			State:        models.ExportStateIdle,
			CalendarName: ical.SanitizeName(req.CalendarName),
			ServerURL:    serverURL,
			Filters:      req.Filters.Normalize(),
			Reminders:    reminders,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		creds: &caldav.Credentials{ServerURL: serverURL, Username: req.Username, Password: req.Password},
	}

	s.mu.Lock()
	s.entries[entry.job.ID] = entry
	s.mu.Unlock()

	return s.schedule(entry.job.ID)
}

// Get returns job id when it belongs to owner.
func (s *ExportService) Get(ctx context.Context, owner, id string) (*models.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.ownedLocked(owner, id)
	if err != nil {
		return nil, err
	}
	job := entry.job
	return &job, nil
}

// Retry moves a failed job back to idle and schedules it again.
func (s *ExportService) Retry(ctx context.Context, owner, id string) (*models.ExportJob, error) {
	s.mu.Lock()
	entry, err := s.ownedLocked(owner, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if entry.creds == nil {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "export credentials are no longer available, start a new export")
	}
	if err := entry.job.Transition(models.ExportStateIdle, s.now().UTC()); err != nil {
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidState.Code, appErrors.ErrInvalidState.Status, "only failed exports can be retried")
	}
	s.mu.Unlock()

	return s.schedule(id)
}

// PruneFinished forgets terminal jobs that finished before cutoff and
// returns how many were removed.
func (s *ExportService) PruneFinished(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if entry.job.State.Terminal() && entry.job.FinishedAt != nil && entry.job.FinishedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *ExportService) serverAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.User != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, allowed := range s.cfg.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if strings.HasPrefix(allowed, ".") {
			if strings.HasSuffix(host, allowed) || host == allowed[1:] {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}

func (s *ExportService) ownedLocked(owner, id string) (*exportEntry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	if entry.job.OwnerID != owner {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export belongs to another user")
	}
	return entry, nil
}

func (s *ExportService) schedule(id string) (*models.ExportJob, error) {
	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: exportJobType}); err != nil {
		s.logger.Warn("export enqueue failed", zap.String("job_id", id), zap.Error(err))
		s.update(id, func(job *models.ExportJob, now time.Time) error {
			if err := job.Transition(models.ExportStateAuthorizing, now); err != nil {
				return err
			}
			return job.Fail(exportMsgQueueFull, now)
		})
		return nil, appErrors.Clone(appErrors.ErrUnavailable, exportMsgQueueFull)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.entries[id].job
	return &job, nil
}

func (s *ExportService) handle(ctx context.Context, task jobs.Job) error {
	s.mu.Lock()
	entry, ok := s.entries[task.ID]
	if !ok || entry.creds == nil {
		s.mu.Unlock()
		return nil
	}
	job := entry.job
	creds := *entry.creds
	s.mu.Unlock()

	logger := s.logger.With(zap.String("job_id", job.ID), zap.String("owner_id", job.OwnerID))

	if err := s.update(job.ID, func(j *models.ExportJob, now time.Time) error {
		return j.Transition(models.ExportStateAuthorizing, now)
	}); err != nil {
		logger.Warn("export not runnable", zap.Error(err))
		return nil
	}

	writer, err := s.authorize(ctx, creds, job.CalendarName)
	if err != nil {
		if errors.Is(err, errAuthTimeout) {
			return &exportFailure{message: exportMsgAuthTimeout, err: err}
		}
		return &exportFailure{message: exportMsgAuthFailed, err: err}
	}

	result := s.exams.GetExams(ctx, job.Filters)
	if result.Failed {
		return &exportFailure{message: exportMsgExamsFailed, err: errors.New("exam store lookup failed")}
	}
	events := s.buildEvents(ExamEvents(result.Exams), job.Reminders, logger)

	if err := s.update(job.ID, func(j *models.ExportJob, now time.Time) error {
		j.Total = len(events)
		return j.Transition(models.ExportStateExporting, now)
	}); err != nil {
		return &exportFailure{message: exportMsgWriteFailed, err: err}
	}

	limiter := rate.NewLimiter(rate.Every(s.cfg.BatchDelay), 1)
	for startIdx := 0; startIdx < len(events); startIdx += s.cfg.BatchSize {
		if err := limiter.Wait(ctx); err != nil {
			return &exportFailure{message: exportMsgWriteFailed, err: err}
		}
		endIdx := startIdx + s.cfg.BatchSize
		if endIdx > len(events) {
			endIdx = len(events)
		}
		for _, event := range events[startIdx:endIdx] {
			if err := writer.PutEvent(ctx, event); err != nil {
				return &exportFailure{message: exportMsgWriteFailed, err: err}
			}
			s.update(job.ID, func(j *models.ExportJob, _ time.Time) error {
				j.Written++
				return nil
			})
		}
	}

	var written int
	s.update(job.ID, func(j *models.ExportJob, now time.Time) error {
		written = j.Written
		return j.Transition(models.ExportStateSuccess, now)
	})
	s.mu.Lock()
	if entry, ok := s.entries[job.ID]; ok {
		entry.creds = nil
	}
	s.mu.Unlock()

	s.metrics.RecordExport(string(models.ExportStateSuccess), written)
	logger.Info("caldav export finished", zap.Int("written", written))
	return nil
}

func (s *ExportService) onExhausted(task jobs.Job, err error) {
	message := exportMsgRequeue
	var failure *exportFailure
	if errors.As(err, &failure) {
		message = failure.message
	}
	s.logger.Error("caldav export failed", zap.String("job_id", task.ID), zap.Error(err))

	var written int
	s.update(task.ID, func(job *models.ExportJob, now time.Time) error {
		written = job.Written
		if job.State == models.ExportStateIdle {
			if err := job.Transition(models.ExportStateAuthorizing, now); err != nil {
				return err
			}
		}
		return job.Fail(message, now)
	})
	s.metrics.RecordExport(string(models.ExportStateError), written)
}

// authorize races server discovery against the configured timeout.
func (s *ExportService) authorize(ctx context.Context, creds caldav.Credentials, calendarName string) (caldav.EventWriter, error) {
	authCtx, cancel := context.WithTimeout(ctx, s.cfg.AuthTimeout)
	defer cancel()

	type result struct {
		writer caldav.EventWriter
		err    error
	}
	done := make(chan result, 1)
	go func() {
		writer, err := s.connector.Connect(authCtx, creds, calendarName)
		done <- result{writer: writer, err: err}
	}()

	select {
	case r := <-done:
		return r.writer, r.err
	case <-authCtx.Done():
		if errors.Is(authCtx.Err(), context.DeadlineExceeded) {
			return nil, errAuthTimeout
		}
		return nil, authCtx.Err()
	}
}

func (s *ExportService) buildEvents(events []ical.Event, reminders []string, logger *zap.Logger) []caldav.Event {
	out := make([]caldav.Event, 0, len(events))
	for _, ev := range events {
		start, end, err := s.formatter.Interval(ev)
		if err != nil {
			logger.Warn("skipping exam with invalid schedule", zap.String("exam_id", ev.ID), zap.Error(err))
			continue
		}
		out = append(out, caldav.Event{
			UID:         s.formatter.UID(ev.ID),
			Summary:     ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
			Start:       start,
			End:         end,
			Reminders:   reminders,
		})
	}
	return out
}

func (s *ExportService) update(id string, fn func(*models.ExportJob, time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return fn(&entry.job, s.now().UTC())
}
