package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/kroma-labs/graph-go/serviceerror"
)

// RetryOptions configures the retry handler.
// Use DefaultRetryOptions() for the service's recommended defaults, then
// modify as needed.
//
// The wait before each retry is taken from the response's Retry-After
// header when present. Otherwise it grows exponentially from Delay:
//
//	retry 1: Delay, retry 2: Delay×2, retry 3: Delay×4, ...
//
// capped at MaxDelay and optionally randomized by JitterFactor.
type RetryOptions struct {
	// MaxRetries is the maximum number of re-sends after the first attempt.
	// 0 disables retries. Must not exceed MaxRetriesLimit.
	// Default: 3
	MaxRetries int

	// Delay is the base wait before the first retry.
	// Default: 3s
	Delay time.Duration

	// MaxDelay caps each computed backoff wait. It does not cap waits
	// requested through Retry-After. 0 means no cap.
	// Default: 180s
	MaxDelay time.Duration

	// JitterFactor randomizes each computed wait by ±JitterFactor
	// (0.0 - 1.0). Default: 0 (deterministic).
	JitterFactor float64

	// NewBackOff, if set, replaces the exponential schedule. It is called
	// once per logical call so the returned BackOff is never shared.
	// Returning backoff.Stop from NextBackOff ends retrying and returns the
	// last response.
	NewBackOff func() backoff.BackOff

	// Sleep performs the wait between attempts. It must return promptly with
	// ctx.Err() when ctx is done. Default: a timer that honors ctx.
	Sleep func(ctx context.Context, d time.Duration) error

	// RetriesTimeLimit bounds the total time spent waiting between attempts.
	// When the next wait would exceed it, the last response is returned
	// instead. 0 means no limit.
	RetriesTimeLimit time.Duration

	// Classifier decides which responses are retryable.
	// Default: DefaultRetryClassifier (429, 503, 504)
	Classifier RetryClassifier

	// ShouldRetry, if set, is consulted before each retry with the wait that
	// would be applied, the 1-based retry number and the failed response.
	// Returning false returns that response to the caller.
	ShouldRetry func(delay time.Duration, attempt int, resp *http.Response) bool
}

// Retry defaults and limits.
const (
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 3 * time.Second
	DefaultMaxRetryDelay = 180 * time.Second

	// MaxRetriesLimit is the largest accepted MaxRetries.
	MaxRetriesLimit = 10
)

// DefaultRetryOptions returns the recommended retry configuration:
// 3 retries, 3s base delay doubling each time, capped at 180s.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultRetryDelay,
		MaxDelay:   DefaultMaxRetryDelay,
	}
}

// NoRetryOptions disables retries.
func NoRetryOptions() RetryOptions {
	return RetryOptions{}
}

// validate reports configuration errors as *serviceerror.ServiceError.
func (o RetryOptions) validate() error {
	switch {
	case o.MaxRetries < 0:
		return serviceerror.Newf(serviceerror.CodeInvalidArgument,
			serviceerror.MsgInvalidArgumentFormat, "a negative value", "MaxRetries")
	case o.MaxRetries > MaxRetriesLimit:
		return serviceerror.Newf(serviceerror.CodeMaximumValueExceeded,
			serviceerror.MsgMaximumValueExceededFormat, "MaxRetries", MaxRetriesLimit)
	case o.Delay < 0:
		return serviceerror.Newf(serviceerror.CodeInvalidArgument,
			serviceerror.MsgInvalidArgumentFormat, "a negative value", "Delay")
	case o.MaxDelay < 0:
		return serviceerror.Newf(serviceerror.CodeInvalidArgument,
			serviceerror.MsgInvalidArgumentFormat, "a negative value", "MaxDelay")
	case o.JitterFactor < 0 || o.JitterFactor > 1:
		return serviceerror.Newf(serviceerror.CodeInvalidArgument,
			serviceerror.MsgInvalidArgumentFormat, "a value outside [0, 1]", "JitterFactor")
	case o.RetriesTimeLimit < 0:
		return serviceerror.Newf(serviceerror.CodeInvalidArgument,
			serviceerror.MsgInvalidArgumentFormat, "a negative value", "RetriesTimeLimit")
	}
	return nil
}

type retryOptionsKey struct{}

// ContextWithRetryOptions overrides the client's retry options for requests
// sent with the returned context. Invalid options fail the request when it
// reaches the retry handler.
func ContextWithRetryOptions(ctx context.Context, opts RetryOptions) context.Context {
	return context.WithValue(ctx, retryOptionsKey{}, opts)
}

func retryOptionsFromContext(ctx context.Context) (RetryOptions, bool) {
	opts, ok := ctx.Value(retryOptionsKey{}).(RetryOptions)
	return opts, ok
}
