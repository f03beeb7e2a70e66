package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-calendar-api/internal/models"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
)

const (
	defaultTokenTTL = 24 * time.Hour
	issuedTokenSize = 9 // 12 base64url characters
)

// TokenCache stores short-lived key/value pairs.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Evict(ctx context.Context, key string) error
}

// TokenService maps short subscription tokens to feed query strings.
type TokenService struct {
	cache   TokenCache
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
	random  io.Reader
	now     func() time.Time
}

// NewTokenService constructs the service with the given token lifetime.
func NewTokenService(cache TokenCache, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{cache: cache, ttl: ttl, metrics: metrics, logger: logger, random: rand.Reader, now: time.Now}
}

// TTL reports how long stored tokens live.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Store saves queryString under token, replacing any previous value.
func (s *TokenService) Store(ctx context.Context, token, queryString string) (*models.ExportToken, error) {
	if err := models.ValidateToken(token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	cleaned, err := models.ValidateQueryString(queryString)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	if err := s.cache.Set(ctx, token, cleaned, s.ttl); err != nil {
		s.logger.Error("store token failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store calendar link")
	}
	s.metrics.RecordTokenStored()
	return &models.ExportToken{Token: token, QueryString: cleaned, ExpiresAt: s.now().UTC().Add(s.ttl)}, nil
}

// Issue generates a random token and stores queryString under it.
func (s *TokenService) Issue(ctx context.Context, queryString string) (*models.ExportToken, error) {
	buf := make([]byte, issuedTokenSize)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate calendar link")
	}
	return s.Store(ctx, base64.RawURLEncoding.EncodeToString(buf), queryString)
}

// Lookup returns the query string stored under token.
func (s *TokenService) Lookup(ctx context.Context, token string) (string, error) {
	if err := models.ValidateToken(token); err != nil {
		return "", appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}
	value, ok, err := s.cache.Get(ctx, token)
	if err != nil {
		s.logger.Error("token lookup failed", zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if !ok {
		return "", appErrors.Clone(appErrors.ErrTokenNotFound, "")
	}
	return value, nil
}

// Revoke deletes token.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if err := models.ValidateToken(token); err != nil {
		return appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}
	if err := s.cache.Evict(ctx, token); err != nil {
		s.logger.Error("revoke token failed", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke calendar link")
	}
	return nil
}

// IsTokenError reports whether err is a client-side token problem.
func IsTokenError(err error) bool {
	return errors.Is(err, appErrors.ErrTokenNotFound) || errors.Is(err, appErrors.ErrTokenInvalid)
}
