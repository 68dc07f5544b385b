package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second. Zero or less means
	// unlimited.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter is a token bucket shared by every caller of one upstream.
type Limiter struct {
	lim *rate.Limiter
	now func() time.Time
}

// NewLimiter creates a token bucket rate limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	r := rate.Inf
	if opts.Rate > 0 {
		r = rate.Limit(opts.Rate)
	}
	return &Limiter{lim: rate.NewLimiter(r, opts.Burst), now: time.Now}
}

// Allow reports whether a token is available now and takes it if so.
func (l *Limiter) Allow() bool {
	return l.lim.AllowN(l.now(), 1)
}

// Wait blocks until a token is available or ctx is done. It fails early when
// ctx's deadline would pass before the next token.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
