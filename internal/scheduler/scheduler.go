// Package scheduler runs periodic housekeeping: expiring in-memory calendar
// tokens and forgetting finished export jobs.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type tokenSweeper interface {
	Sweep() int
}

type exportPruner interface {
	PruneFinished(cutoff time.Time) int
}

// Config holds cron specs. An empty spec disables that task.
type Config struct {
	TokenSweepSpec  string
	ExportPruneSpec string
	ExportRetention time.Duration
	Location        *time.Location
}

// Scheduler wraps a cron runner with the housekeeping tasks.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	tokens  tokenSweeper
	exports exportPruner
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a scheduler. tokens and exports may be nil.
func New(cfg Config, tokens tokenSweeper, exports exportPruner, logger *zap.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ExportRetention <= 0 {
		cfg.ExportRetention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(cfg.Location)),
		cfg:     cfg,
		tokens:  tokens,
		exports: exports,
		logger:  logger.With(zap.String("component", "scheduler")),
		now:     time.Now,
	}
}

// Start registers the configured tasks and starts the runner in the background.
func (s *Scheduler) Start() error {
	if s.tokens != nil && s.cfg.TokenSweepSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.TokenSweepSpec, s.sweepTokens); err != nil {
			return fmt.Errorf("add token sweep: %w", err)
		}
	}
	if s.exports != nil && s.cfg.ExportPruneSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ExportPruneSpec, s.pruneExports); err != nil {
			return fmt.Errorf("add export prune: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.cron.Entries())))
	return nil
}

// Stop waits for running tasks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) sweepTokens() {
	if removed := s.tokens.Sweep(); removed > 0 {
		s.logger.Info("expired calendar tokens removed", zap.Int("count", removed))
	}
}

func (s *Scheduler) pruneExports() {
	cutoff := s.now().Add(-s.cfg.ExportRetention)
	if removed := s.exports.PruneFinished(cutoff); removed > 0 {
		s.logger.Info("finished exports pruned", zap.Int("count", removed))
	}
}
