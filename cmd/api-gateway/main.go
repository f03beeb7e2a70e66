package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/exam-calendar-api/api/swagger"
	"github.com/noah-isme/exam-calendar-api/internal/clients/caldav"
	"github.com/noah-isme/exam-calendar-api/internal/handler"
	"github.com/noah-isme/exam-calendar-api/internal/middleware"
	"github.com/noah-isme/exam-calendar-api/internal/repository"
	"github.com/noah-isme/exam-calendar-api/internal/scheduler"
	"github.com/noah-isme/exam-calendar-api/internal/service"
	"github.com/noah-isme/exam-calendar-api/pkg/cache"
	"github.com/noah-isme/exam-calendar-api/pkg/config"
	"github.com/noah-isme/exam-calendar-api/pkg/database"
	"github.com/noah-isme/exam-calendar-api/pkg/ical"
	"github.com/noah-isme/exam-calendar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/exam-calendar-api/pkg/middleware/cors"
	ratelimitmiddleware "github.com/noah-isme/exam-calendar-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/exam-calendar-api/pkg/middleware/requestid"
	"github.com/noah-isme/exam-calendar-api/pkg/wallclock"
)

// @title Exam Calendar API
// @version 1.0.0
// @description Filters university exam schedules and publishes them as subscribable calendars.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var db *sqlx.DB
	if cfg.ExamStore.Driver == config.StoreDriverPostgres {
		var err error
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if cfg.Migrations.Enabled {
			if err := database.Migrate(db, cfg.Migrations.Dir, logr); err != nil {
				return err
			}
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.Tokens.Backend == config.TokenBackendRedis {
			return err
		}
		logr.Warn("redis unavailable, continuing without shared cache", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	examRepo, err := newExamStore(cfg, db)
	if err != nil {
		return err
	}
	var calendarRepo repository.UserCalendarStore
	if db != nil {
		calendarRepo = repository.NewUserCalendarRepository(db)
	} else {
		calendarRepo = repository.NewMemoryUserCalendarRepository()
	}

	var facetCache *service.CacheService
	if redisClient != nil && cfg.Facets.CacheEnabled {
		facetCache = service.NewCacheService(repository.NewCacheRepository(redisClient, "exam-calendar", logr), metrics, cfg.Facets.CacheTTL, logr, true)
	}
	examSvc := service.NewExamService(examRepo, facetCache, metrics, cfg.Facets.CacheTTL, logr)
	if err := examSvc.ResetFacetCache(ctx); err != nil {
		logr.Warn("facet cache reset failed", zap.Error(err))
	}

	var (
		tokenCache service.TokenCache
		sweeper    interface{ Sweep() int }
	)
	switch cfg.Tokens.Backend {
	case config.TokenBackendRedis:
		if redisClient == nil {
			return errors.New("TOKEN_BACKEND=redis requires ENABLE_REDIS=true")
		}
		tokenCache = repository.NewRedisTokenCache(redisClient)
	default:
		memory := repository.NewMemoryTokenCache(nil)
		tokenCache, sweeper = memory, memory
	}
	tokenSvc := service.NewTokenService(tokenCache, cfg.Tokens.TTL, metrics, logr)

	zone, err := wallclock.Load(cfg.ICal.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	formatter := ical.NewFormatter(ical.Options{
		ProductID:       cfg.ICal.ProductID,
		UIDDomain:       cfg.ICal.UIDDomain,
		Zone:            zone,
		DefaultDuration: time.Duration(cfg.ICal.DefaultDuration) * time.Minute,
		RefreshInterval: cfg.ICal.CacheMaxAge,
	})
	icalSvc := service.NewICalService(examSvc, tokenSvc, formatter, service.ICalConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		Endpoint:      cfg.ICal.Endpoint,
	}, validate, metrics, logr)
	calendarSvc := service.NewUserCalendarService(calendarRepo, validate, logr)
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Audience: cfg.JWT.Audience}, logr)

	handlers := handler.Handlers{
		Exams:     handler.NewExamHandler(examSvc, logr),
		Filters:   handler.NewFilterHandler(examSvc),
		ICal:      handler.NewICalHandler(icalSvc, cfg.ICal.CacheMaxAge, logr),
		Calendars: handler.NewCalendarHandler(calendarSvc),
		Metrics:   handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
	}

	var pruner interface{ PruneFinished(time.Time) int }
	if cfg.CalDAV.Enabled {
		client := caldav.NewClient(cfg.ICal.ProductID, cfg.CalDAV.RequestTimeout, nil)
		exportSvc := service.NewExportService(examSvc, client, formatter, service.ExportConfig{
			DefaultServerURL: cfg.CalDAV.DefaultURL,
			Workers:          cfg.CalDAV.Workers,
			AuthTimeout:      cfg.CalDAV.AuthTimeout,
			BatchSize:        cfg.CalDAV.BatchSize,
			BatchDelay:       cfg.CalDAV.BatchDelay,
			AllowedHosts:     cfg.CalDAV.AllowedHosts,
		}, validate, metrics, logr)
		exportSvc.Run(ctx)
		defer exportSvc.Shutdown()
		handlers.Exports = handler.NewExportHandler(exportSvc)
		pruner = exportSvc
	}

	sched := scheduler.New(scheduler.Config{
		TokenSweepSpec:  cfg.Tokens.SweepSchedule,
		ExportPruneSpec: cfg.CalDAV.PruneSchedule,
		ExportRetention: cfg.CalDAV.JobRetention,
		Location:        zone.Location(),
	}, sweeper, pruner, logr)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, handler.RouterConfig{
		APIPrefix: cfg.APIPrefix,
		Auth:      authSvc,
		FeedLimiter: ratelimitmiddleware.New(ratelimitmiddleware.Config{
			Enabled:   cfg.RateLimit.Enabled,
			RPS:       cfg.RateLimit.RPS,
			Burst:     cfg.RateLimit.Burst,
			Whitelist: cfg.RateLimit.Whitelist,
		}),
	}, handlers)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("exam_store", cfg.ExamStore.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newExamStore(cfg *config.Config, db *sqlx.DB) (repository.ExamStore, error) {
	if cfg.ExamStore.Driver == config.StoreDriverMemory {
		repo, err := repository.LoadMemoryExamRepository(cfg.ExamStore.SeedFile, cfg.ExamStore.Limit)
		if err != nil {
			return nil, fmt.Errorf("load exam seed: %w", err)
		}
		return repo, nil
	}
	if db == nil {
		return nil, fmt.Errorf("unsupported exam store driver %q", cfg.ExamStore.Driver)
	}
	return repository.NewExamRepository(db, cfg.ExamStore.Limit), nil
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
