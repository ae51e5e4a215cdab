package httpclient

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// exponentialMultiplier doubles the wait on each retry.
const exponentialMultiplier = 2.0

// newBackOff returns a fresh backoff schedule for one logical call.
func newBackOff(opts RetryOptions) backoff.BackOff {
	if opts.NewBackOff != nil {
		b := opts.NewBackOff()
		b.Reset()
		return b
	}

	maxInterval := opts.MaxDelay
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     opts.Delay,
		RandomizationFactor: opts.JitterFactor,
		Multiplier:          exponentialMultiplier,
		MaxInterval:         maxInterval,
	}
	b.Reset()
	return b
}

// nextDelay returns the wait before the next retry. Retry-After wins over
// the computed schedule; the schedule is still advanced so later retries
// keep growing. ok is false when the schedule says stop.
func nextDelay(b backoff.BackOff, resp *http.Response, maxDelay time.Duration, now time.Time) (time.Duration, bool) {
	computed := b.NextBackOff()

	if d, found := retryAfter(resp.Header, now); found {
		return d, true
	}

	if computed == backoff.Stop {
		return 0, false
	}
	if maxDelay > 0 && computed > maxDelay {
		computed = maxDelay
	}
	return computed, true
}

// retryAfter parses a Retry-After header given either as delta-seconds or as
// an HTTP-date. Past dates and negative values yield zero.
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second, true
	}

	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(now), 0), true
	}

	return 0, false
}

// sleepContext waits for d or until ctx is done.
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
