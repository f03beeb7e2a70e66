package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
	"github.com/noah-isme/exam-calendar-api/pkg/response"
)

const (
	defaultRPS        = 5.0
	defaultBurst      = 20
	defaultStaleAfter = 10 * time.Minute
)

// Config controls the per-client token bucket.
type Config struct {
	Enabled   bool
	RPS       float64
	Burst     int
	Whitelist []string
	// StaleAfter drops limiters that have not been used for this long.
	StaleAfter time.Duration
	// OnLimited renders the rejection. Defaults to a plain-text 429.
	OnLimited gin.HandlerFunc
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// store maps client keys to limiters. Stale entries are swept lazily on access.
type store struct {
	mu          sync.Mutex
	entries     map[string]*limiterEntry
	limit       rate.Limit
	burst       int
	staleAfter  time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

func newStore(limit rate.Limit, burst int, staleAfter time.Duration) *store {
	return &store{
		entries:     make(map[string]*limiterEntry),
		limit:       limit,
		burst:       burst,
		staleAfter:  staleAfter,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (s *store) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastCleanup) >= s.staleAfter {
		s.cleanupLocked(now)
	}
	if e, ok := s.entries[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	lim := rate.NewLimiter(s.limit, s.burst)
	s.entries[key] = &limiterEntry{limiter: lim, lastSeen: now}
	return lim
}

func (s *store) cleanupLocked(now time.Time) {
	cutoff := now.Add(-s.staleAfter)
	for k, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
	s.lastCleanup = now
}

func (s *store) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type whitelist struct {
	ips  []net.IP
	nets []*net.IPNet
}

func parseWhitelist(entries []string) whitelist {
	var wl whitelist
	for _, raw := range entries {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if ip := net.ParseIP(p); ip != nil {
			wl.ips = append(wl.ips, ip)
			continue
		}
		if _, n, err := net.ParseCIDR(p); err == nil {
			wl.nets = append(wl.nets, n)
		}
	}
	return wl
}

func (w whitelist) contains(clientIP string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, candidate := range w.ips {
		if candidate.Equal(ip) {
			return true
		}
	}
	for _, n := range w.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// New returns a per-IP token bucket middleware. Preflight requests and
// whitelisted clients pass through untouched.
func New(cfg Config) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	onLimited := cfg.OnLimited
	if onLimited == nil {
		onLimited = func(c *gin.Context) { response.Text(c, appErrors.ErrRateLimited) }
	}

	wl := parseWhitelist(cfg.Whitelist)
	limiters := newStore(rate.Limit(cfg.RPS), cfg.Burst, cfg.StaleAfter)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RPS)))

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		clientIP := c.ClientIP()
		if wl.contains(clientIP) {
			c.Next()
			return
		}
		if !limiters.get("ip:" + clientIP).Allow() {
			c.Header("Retry-After", retryAfter)
			onLimited(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
