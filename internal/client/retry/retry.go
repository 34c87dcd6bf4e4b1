// Package retry re-issues pipeline calls that failed for transient reasons.
// The pipeline itself never retries; callers opt in per operation.
package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	goretry "github.com/sethvargo/go-retry"
)

type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RetryTimeouts also retries calls that hit their deadline. Leave it off
	// for non-idempotent requests.
	RetryTimeouts bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// retryable reports whether p retries an outcome. Rate limiting (429) and
// unavailability (503) are retried, including when a proxy answered with an
// unparseable page. Other HTTP errors, 2xx parse failures and 401s never are.
func (p Policy) retryable(success bool, kind transport.ErrorKind, status int) bool {
	if success {
		return false
	}
	switch kind {
	case transport.KindHTTP, transport.KindParseFailed:
		return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
	case transport.KindTimedOut:
		return p.RetryTimeouts
	}
	return false
}

// Do calls call until it succeeds, fails permanently or the policy gives up,
// and returns the last result. Between attempts it waits for the exponential
// backoff or the server's Retry-After, whichever is longer.
func Do[T any](ctx context.Context, p Policy, call func(ctx context.Context) transport.Result[T]) transport.Result[T] {
	var (
		last       transport.Result[T]
		retryAfter time.Duration
	)

	b := goretry.NewExponential(nonZero(p.BaseDelay, DefaultPolicy().BaseDelay))
	b = goretry.WithCappedDuration(nonZero(p.MaxDelay, DefaultPolicy().MaxDelay), b)
	b = goretry.WithMaxRetries(p.MaxRetries, b)
	b = atLeast(b, &retryAfter)

	_ = goretry.Do(ctx, b, func(ctx context.Context) error {
		last = call(ctx)
		if !p.retryable(last.Success, last.Kind, last.Status) {
			return nil
		}
		retryAfter = last.RetryAfter
		return goretry.RetryableError(last.Err())
	})
	return last
}

func atLeast(next goretry.Backoff, floor *time.Duration) goretry.Backoff {
	return goretry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			return 0, true
		}
		if *floor > d {
			d = *floor
		}
		return d, false
	})
}

func nonZero(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
