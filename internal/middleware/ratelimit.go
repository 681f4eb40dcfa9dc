package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	apperrors "h2grid/internal/errors"
)

// FixedWindowStore counts requests per identifier in fixed windows. The
// counter for an identifier resets once its window has elapsed.
type FixedWindowStore struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	count int
	reset time.Time
}

var _ echomw.RateLimiterStore = (*FixedWindowStore)(nil)

// NewFixedWindowStore allows max requests per identifier per window.
func NewFixedWindowStore(max int, window time.Duration) *FixedWindowStore {
	return &FixedWindowStore{
		max:      max,
		window:   window,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow records one request for identifier.
func (s *FixedWindowStore) Allow(identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.window {
		for id, v := range s.visitors {
			if !now.Before(v.reset) {
				delete(s.visitors, id)
			}
		}
		s.lastSweep = now
	}

	v, ok := s.visitors[identifier]
	if !ok || !now.Before(v.reset) {
		v = &visitor{reset: now.Add(s.window)}
		s.visitors[identifier] = v
	}
	v.count++
	return v.count <= s.max, nil
}

// Remaining reports how many requests identifier has left and when its
// window resets.
func (s *FixedWindowStore) Remaining(identifier string) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visitors[identifier]
	if !ok || !s.now().Before(v.reset) {
		return s.max, s.now().Add(s.window)
	}
	if v.count >= s.max {
		return 0, v.reset
	}
	return s.max - v.count, v.reset
}

// RateLimit limits each client IP to the store's budget.
func RateLimit(store *FixedWindowStore) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			_, reset := store.Remaining(identifier)
			secs := int(time.Until(reset).Round(time.Second) / time.Second)
			if secs < 0 {
				secs = 0
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			return apperrors.Wrap(http.StatusTooManyRequests, "Too many requests from this IP, please try again later.", err)
		},
	})
}
