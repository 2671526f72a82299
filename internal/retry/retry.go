// Package retry centralizes the backoff policies used throughout the
// engine as plain data, per design note §9 ("Fibonacci / fixed retry
// policies. Keep as data: attempts, base delay, backoff function.
// Centralize so tests can inject a zero-delay variant."). No single
// teacher file implements this — the shape is inferred from the
// retry::retry(Fixed::from_millis(5000).take(24), ...) call sites ported
// from container_registry/ecr.rs.
package retry

import (
	"context"
	"time"
)

// Policy computes the delay before the nth retry attempt (1-indexed: the
// delay before the first retry is Delay(1)).
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// Fixed returns a Policy that waits the same delay before every attempt,
// up to maxAttempts attempts. Mirrors ECR's
// retry::retry(Fixed::from_millis(5000).take(24), ...).
func Fixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay:       func(int) time.Duration { return delay },
	}
}

// Fibonacci returns a Policy whose Delay(n), the wait before the nth
// retry, is base times the nth Fibonacci number (1, 1, 2, 3, 5, ...). Used by the docker login retry
// of spec.md §4.5 step 3.
func Fibonacci(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay: func(attempt int) time.Duration {
			a, b := 1, 1
			for i := 1; i < attempt; i++ {
				a, b = b, a+b
			}
			return time.Duration(a) * base
		},
	}
}

// Zero returns a Policy with no delay at all, for tests that want retry
// semantics without slowing the test suite down.
func Zero(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay:       func(int) time.Duration { return 0 },
	}
}

// Do runs fn until it returns a nil error or the policy's attempts are
// exhausted, sleeping Delay(attempt) between tries. It returns the last
// error seen. ctx cancellation aborts immediately between attempts (not
// mid-sleep is impossible to guarantee with time.Sleep alone, so Do uses a
// timer select instead).
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := time.Duration(0)
		if p.Delay != nil {
			delay = p.Delay(attempt)
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
