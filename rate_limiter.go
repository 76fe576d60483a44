package magiclink

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

const (
	// DefaultRateLimitCeiling is the number of sign-in requests a device
	// gets per window.
	DefaultRateLimitCeiling = 5
	// DefaultRateLimitWindow is the rolling window the ceiling applies to.
	DefaultRateLimitWindow = time.Hour
)

// RateLimitDecision reports the outcome of a rate-limit check.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter gates token issuance per device fingerprint. The atomic
// increment lives in the store; the limiter only applies policy on the
// resulting count, so double-clicks and retry storms cannot sneak past the
// ceiling.
type RateLimiter struct {
	store    RateLimitStore
	ceiling  int
	window   time.Duration
	logger   Logger
	provider LoggerProvider
	now      func() time.Time
}

// NewRateLimiter creates a limiter with the default ceiling and window.
func NewRateLimiter(store RateLimitStore) *RateLimiter {
	provider, logger := ResolveLogger("magiclink.rate_limiter", nil, nil)
	return &RateLimiter{
		store:    store,
		ceiling:  DefaultRateLimitCeiling,
		window:   DefaultRateLimitWindow,
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
}

// WithCeiling overrides the request ceiling. Values below one are ignored.
func (l *RateLimiter) WithCeiling(ceiling int) *RateLimiter {
	if ceiling > 0 {
		l.ceiling = ceiling
	}
	return l
}

// WithWindow overrides the rolling window. Non-positive values are ignored.
func (l *RateLimiter) WithWindow(window time.Duration) *RateLimiter {
	if window > 0 {
		l.window = window
	}
	return l
}

func (l *RateLimiter) WithLogger(logger Logger) *RateLimiter {
	l.provider, l.logger = ResolveLogger("magiclink.rate_limiter", l.provider, logger)
	return l
}

// Allow records a request for the device and applies the ceiling. When the
// quota is exhausted it returns a rate-limit failure carrying the seconds
// until the window rolls over.
func (l *RateLimiter) Allow(ctx context.Context, deviceID string) (RateLimitDecision, error) {
	if deviceID == "" {
		return RateLimitDecision{}, errors.New("device fingerprint is required", errors.CategoryBadInput)
	}

	now := l.now()
	entry, err := l.store.Hit(ctx, deviceID, now, l.window)
	if err != nil {
		return RateLimitDecision{}, errors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}

	if entry.Count > l.ceiling {
		retryAfter := entry.ResetAt(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		l.logger.Info("rate limit exceeded", "device_id", deviceID, "count", entry.Count, "retry_after", retryAfter)
		return RateLimitDecision{
			Allowed:    false,
			RetryAfter: retryAfter,
		}, RateLimited(retryAfter)
	}

	return RateLimitDecision{
		Allowed:   true,
		Remaining: l.ceiling - entry.Count,
	}, nil
}
