package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy describes a rate limit: at most Max requests per Window.
type Policy struct {
	Max    int64
	Window time.Duration
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed indicates whether the request is admitted
	Allowed bool

	// Limit is the maximum number of requests allowed in the window
	Limit int64

	// Count is the number of requests seen in the current window, this one included
	Count int64

	// Remaining is the number of requests left in the current window
	Remaining int64

	// ResetAt is when the current window resets
	ResetAt time.Time

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when the request is admitted.
	RetryAfter time.Duration
}

// Limiter performs admission checks against a counter store.
// Counters are keyed by (user, endpoint) so that one user's burst on one
// endpoint never affects other users or other endpoints.
type Limiter struct {
	store        Store
	onStoreError func()
}

// NewLimiter creates a limiter backed by the given store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

// OnStoreError registers a hook invoked whenever the store fails and a
// request is admitted open. Used to feed an alerting counter.
func (l *Limiter) OnStoreError(fn func()) {
	l.onStoreError = fn
}

// Admit checks whether a request from userID against endpoint fits the policy.
// Every call counts against the window, including rejected ones.
//
// A store failure admits the request: rate limiting degrades to no limiting
// rather than turning backend outages into user-facing errors.
func (l *Limiter) Admit(ctx context.Context, userID, endpoint string, policy Policy) Decision {
	key := userID + ":" + endpoint

	count, windowStart, err := l.store.Increment(ctx, key, policy.Window)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Rate limit store unavailable, admitting request")
		if l.onStoreError != nil {
			l.onStoreError()
		}
		return Decision{
			Allowed:   true,
			Limit:     policy.Max,
			Remaining: policy.Max,
			ResetAt:   time.Now().Add(policy.Window),
		}
	}

	resetAt := windowStart.Add(policy.Window)

	decision := Decision{
		Allowed:   count <= policy.Max,
		Limit:     policy.Max,
		Count:     count,
		Remaining: policy.Max - count,
		ResetAt:   resetAt,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if !decision.Allowed {
		decision.RetryAfter = time.Until(resetAt)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
	}

	return decision
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
