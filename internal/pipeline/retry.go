package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/esgcompare/internal/extract"
)

// RetryPolicy bounds the attempts made for one extraction call.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts, including the first.
	BaseDelay   time.Duration // Backoff for the first retry; doubles per attempt.
	MaxDelay    time.Duration // Cap on any single wait.
	Timeout     time.Duration // Per-attempt deadline.
}

// DefaultRetryPolicy returns 3 attempts, 1s base, 30s cap and a 120s timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Timeout:     120 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	return p
}

// Backoff returns the wait before retry n (0-indexed), with up to 50% jitter,
// never more than MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	base := p.BaseDelay << uint(min(attempt, 30))
	if base <= 0 || base > p.MaxDelay {
		base = p.MaxDelay
	}
	d := base
	if half := int64(base) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return min(d, p.MaxDelay)
}

// delay is the wait after err: the backoff, or the service's Retry-After
// when that is longer, capped at MaxDelay.
func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	d := p.Backoff(attempt)
	if ra := extract.RetryAfter(err); ra > d {
		d = min(ra, p.withDefaults().MaxDelay)
	}
	return d
}

// Do runs call until it succeeds, fails permanently or attempts run out.
// Each attempt runs on a context detached from ctx's cancellation with its
// own timeout, so an attempt already issued is allowed to finish. Once ctx
// is done no further attempt starts and Do returns ErrCancelled.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, call func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := range p.MaxAttempts {
		if attempt > 0 {
			wait := p.delay(attempt-1, lastErr)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %w", ErrCancelled, lastErr)
			}
		}
		if ctx.Err() != nil {
			if lastErr != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, lastErr)
			}
			return ErrCancelled
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Timeout)
		err := call(callCtx)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}
		if timedOut && !extract.IsRetryable(err) {
			err = &extract.RetryableError{
				Message: fmt.Sprintf("no answer within %s: %v", p.Timeout, err),
				Kind:    extract.ErrServiceUnavailable,
			}
		}
		lastErr = err
		if !extract.IsRetryable(err) {
			return err
		}
		log.Warn("retryable extraction error", "attempt", attempt+1, "max_attempts", p.MaxAttempts,
			"quota", errors.Is(err, extract.ErrQuotaExceeded), "error", err)
	}
	return fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, lastErr)
}
