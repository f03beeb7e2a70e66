package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	TokenBackendMemory = "memory"
	TokenBackendRedis  = "redis"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	ExamStore  ExamStoreConfig
	Facets     FacetConfig
	ICal       ICalConfig
	Tokens     TokenConfig
	RateLimit  RateLimitConfig
	CalDAV     CalDAVConfig
	Migrations MigrationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how access tokens from the hosted auth provider are verified.
type JWTConfig struct {
	Secret   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ExamStoreConfig selects the exam record backend.
type ExamStoreConfig struct {
	Driver   string
	SeedFile string
	Limit    int
}

// FacetConfig governs caching of cascading filter options.
type FacetConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ICalConfig tunes the generated calendar feed.
type ICalConfig struct {
	ProductID       string
	UIDDomain       string
	Timezone        string
	CacheMaxAge     time.Duration
	DefaultDuration int
	Endpoint        string
}

// TokenConfig controls short subscription tokens.
type TokenConfig struct {
	Backend       string
	TTL           time.Duration
	SweepSchedule string
}

// RateLimitConfig applies to the public iCal surface.
type RateLimitConfig struct {
	Enabled   bool
	RPS       float64
	Burst     int
	Whitelist []string
}

// CalDAVConfig toggles push exports to CalDAV servers.
type CalDAVConfig struct {
	Enabled        bool
	DefaultURL     string
	BatchSize      int
	BatchDelay     time.Duration
	AuthTimeout    time.Duration
	Workers        int
	RequestTimeout time.Duration
	PruneSchedule  string
	JobRetention   time.Duration
	AllowedHosts   []string
}

// MigrationsConfig toggles schema migrations at startup.
type MigrationsConfig struct {
	Enabled bool
	Dir     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Audience: v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.ExamStore = ExamStoreConfig{
		Driver:   strings.ToLower(v.GetString("EXAM_STORE_DRIVER")),
		SeedFile: v.GetString("EXAM_SEED_FILE"),
		Limit:    v.GetInt("EXAM_STORE_LIMIT"),
	}
	if cfg.ExamStore.Limit <= 0 {
		cfg.ExamStore.Limit = 1000
	}

	cfg.Facets = FacetConfig{
		CacheEnabled: v.GetBool("ENABLE_FACET_CACHE"),
		CacheTTL:     parseDuration(v.GetString("FACET_CACHE_TTL"), 10*time.Minute),
	}

	cfg.ICal = ICalConfig{
		ProductID:       v.GetString("ICAL_PRODUCT_ID"),
		UIDDomain:       v.GetString("ICAL_UID_DOMAIN"),
		Timezone:        v.GetString("ICAL_TIMEZONE"),
		CacheMaxAge:     parseDuration(v.GetString("ICAL_CACHE_MAX_AGE"), time.Hour),
		DefaultDuration: v.GetInt("ICAL_DEFAULT_DURATION_MINUTES"),
		Endpoint:        v.GetString("ICAL_ENDPOINT"),
	}
	if cfg.ICal.DefaultDuration <= 0 {
		cfg.ICal.DefaultDuration = 120
	}

	cfg.Tokens = TokenConfig{
		Backend:       strings.ToLower(v.GetString("TOKEN_BACKEND")),
		TTL:           parseDuration(v.GetString("TOKEN_TTL"), 24*time.Hour),
		SweepSchedule: v.GetString("TOKEN_SWEEP_SCHEDULE"),
	}

	burst := v.GetInt("RATE_LIMIT_BURST")
	if burst <= 0 {
		burst = 20
	}
	rps := v.GetFloat64("RATE_LIMIT_RPS")
	if rps <= 0 {
		rps = 5
	}
	cfg.RateLimit = RateLimitConfig{
		Enabled:   v.GetBool("RATE_LIMIT_ENABLED"),
		RPS:       rps,
		Burst:     burst,
		Whitelist: splitAndTrim(v.GetString("RATE_LIMIT_WHITELIST")),
	}

	cfg.CalDAV = CalDAVConfig{
		Enabled:        v.GetBool("ENABLE_CALDAV_EXPORT"),
		DefaultURL:     v.GetString("CALDAV_DEFAULT_URL"),
		BatchSize:      v.GetInt("CALDAV_BATCH_SIZE"),
		BatchDelay:     parseDuration(v.GetString("CALDAV_BATCH_DELAY"), time.Second),
		AuthTimeout:    parseDuration(v.GetString("CALDAV_AUTH_TIMEOUT"), 10*time.Second),
		Workers:        v.GetInt("CALDAV_WORKERS"),
		RequestTimeout: parseDuration(v.GetString("CALDAV_REQUEST_TIMEOUT"), 30*time.Second),
		PruneSchedule:  v.GetString("CALDAV_PRUNE_SCHEDULE"),
		JobRetention:   parseDuration(v.GetString("CALDAV_JOB_RETENTION"), 24*time.Hour),
		AllowedHosts:   splitAndTrim(v.GetString("CALDAV_ALLOWED_HOSTS")),
	}

	cfg.Migrations = MigrationsConfig{
		Enabled: v.GetBool("RUN_MIGRATIONS"),
		Dir:     v.GetString("MIGRATIONS_DIR"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_calendar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_AUDIENCE", "authenticated")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EXAM_STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("EXAM_SEED_FILE", "./data/exams.yaml")
	v.SetDefault("EXAM_STORE_LIMIT", 1000)

	v.SetDefault("ENABLE_FACET_CACHE", false)
	v.SetDefault("FACET_CACHE_TTL", "10m")

	v.SetDefault("ICAL_PRODUCT_ID", "-//Exam Calendar//Exam Calendar API//ES")
	v.SetDefault("ICAL_UID_DOMAIN", "exam-calendar.local")
	v.SetDefault("ICAL_TIMEZONE", "Europe/Madrid")
	v.SetDefault("ICAL_CACHE_MAX_AGE", "1h")
	v.SetDefault("ICAL_DEFAULT_DURATION_MINUTES", 120)
	v.SetDefault("ICAL_ENDPOINT", "/api/ical")

	v.SetDefault("TOKEN_BACKEND", TokenBackendMemory)
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("TOKEN_SWEEP_SCHEDULE", "@every 1h")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WHITELIST", "")

	v.SetDefault("ENABLE_CALDAV_EXPORT", false)
	v.SetDefault("CALDAV_DEFAULT_URL", "https://caldav.icloud.com")
	v.SetDefault("CALDAV_BATCH_SIZE", 10)
	v.SetDefault("CALDAV_BATCH_DELAY", "1s")
	v.SetDefault("CALDAV_AUTH_TIMEOUT", "10s")
	v.SetDefault("CALDAV_WORKERS", 1)
	v.SetDefault("CALDAV_REQUEST_TIMEOUT", "30s")
	v.SetDefault("CALDAV_PRUNE_SCHEDULE", "@every 15m")
	v.SetDefault("CALDAV_JOB_RETENTION", "24h")
	v.SetDefault("CALDAV_ALLOWED_HOSTS", "caldav.icloud.com")

	v.SetDefault("RUN_MIGRATIONS", false)
	v.SetDefault("MIGRATIONS_DIR", "file://migrations")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
