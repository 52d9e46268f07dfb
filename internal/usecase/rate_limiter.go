package usecase

import (
	"context"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	defaultBaseDelay   = 10 * time.Second
	maxBackoffExponent = 6
)

// RateLimiter paces batch requests with jitter and backs off exponentially on consecutive failures.
// It owns the consecutive failure counter the controller reads for its operator gate.
type RateLimiter struct {
	baseDelay time.Duration

	mu          sync.Mutex
	failures    int
	lastRequest time.Time

	now    func() time.Time
	random func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a rate limiter with the given base delay (10s when zero)
func NewRateLimiter(baseDelay time.Duration) *RateLimiter {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &RateLimiter{
		baseDelay: baseDelay,
		now:       time.Now,
		random:    rand.Float64,
		sleep:     sleepContext,
	}
}

// NextDelay returns how long Wait would block right now
func (r *RateLimiter) NextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := r.jittered(r.failures)
	if !r.lastRequest.IsZero() {
		delay -= r.now().Sub(r.lastRequest)
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// Wait blocks until the next request may be issued or ctx is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	delay := r.NextDelay()
	if delay > 0 {
		log.Printf("[RATE] waiting %s (consecutive failures: %d)", delay.Round(time.Millisecond), r.Failures())
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.lastRequest = r.now()
	r.mu.Unlock()
	return nil
}

// RecordSuccess resets the consecutive failure counter
func (r *RateLimiter) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = 0
}

// RecordFailure increments the consecutive failure counter
func (r *RateLimiter) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

// ResetFailures clears the failure counter without counting a success (operator intervention)
func (r *RateLimiter) ResetFailures() {
	r.RecordSuccess()
}

// Failures returns the current consecutive failure count
func (r *RateLimiter) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// BackoffDelay returns the jitter-free expected delay for a failure count
func (r *RateLimiter) BackoffDelay(failures int) time.Duration {
	if failures <= 0 {
		return r.baseDelay * 3 / 2
	}
	return time.Duration(math.Pow(2, float64(min(failures, maxBackoffExponent))) * float64(r.baseDelay))
}

func (r *RateLimiter) jittered(failures int) time.Duration {
	base := float64(r.baseDelay)
	if failures > 0 {
		exp := float64(min(failures, maxBackoffExponent))
		return time.Duration(math.Pow(2, exp) * base * (0.5 + r.random()))
	}
	return time.Duration(base * (1 + r.random()))
}

// sleepContext sleeps for d unless ctx is cancelled first
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitterBetween returns a uniform duration in [lo, hi]
func jitterBetween(lo, hi time.Duration, random func() float64) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(random()*float64(hi-lo))
}
