// Package retry runs remote calls with bounded exponential backoff. It wraps
// the LDAP and GitLab clients; reconciliation itself never retries.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Policy bounds the number of attempts for one call.
type Policy struct {
	// MaxAttempts includes the first attempt; values below 1 mean a single attempt
	MaxAttempts int

	// BaseDelay is the wait before the second attempt, doubled for each later one
	BaseDelay time.Duration

	// MaxDelay caps a single wait; zero means no cap
	MaxDelay time.Duration
}

// DefaultPolicy tries three times, waiting 1s then 2s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Retrier applies a Policy with a Classifier.
type Retrier struct {
	policy    Policy
	transient Classifier
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier. A nil classifier treats every error as permanent.
func New(policy Policy, transient Classifier, logger zerolog.Logger) *Retrier {
	if transient == nil {
		transient = func(error) bool { return false }
	}
	return &Retrier{
		policy:    policy,
		transient: transient,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// WithSleep replaces the wait function; tests use it to avoid real delays.
func (r *Retrier) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Retrier {
	r.sleep = sleep
	return r
}

// Do calls fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	attempts := r.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.delay(attempt)); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !r.transient(lastErr) {
			return lastErr
		}
		if attempt+1 < attempts {
			r.logger.Warn().
				Err(lastErr).
				Str("op", op).
				Int("attempt", attempt+1).
				Msg("transient failure, retrying")
		}
	}
	return lastErr
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := r.policy.BaseDelay << (attempt - 1)
	if r.policy.MaxDelay > 0 && (d > r.policy.MaxDelay || d <= 0) {
		d = r.policy.MaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
