package httpclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/kroma-labs/graph-go/serviceerror"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side rate limiting. It keeps a client
// under the service's throttling limits instead of relying on 429s.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a burst.
	Burst int

	// WaitOnLimit determines behavior when the limit is hit.
	// If true, requests wait for a token (respecting context deadline).
	// If false, requests immediately fail with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns 100 requests per second with a burst of
// 10, waiting for tokens.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is returned when a request is rejected by the client-side
// rate limiter.
var ErrRateLimited = errors.New("rate limit exceeded")

// NewRateLimitHandler returns a rate limit stage. The limiter is shared by
// every request going through the returned handler.
func NewRateLimitHandler(cfg RateLimitConfig) (Handler, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, serviceerror.Newf(serviceerror.CodeInvalidArgument,
			serviceerror.MsgInvalidArgumentFormat, "a non-positive value", "RequestsPerSecond")
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &rateLimitHandler{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}, nil
}

type rateLimitHandler struct {
	limiter *rate.Limiter
	wait    bool
}

func (h *rateLimitHandler) Kind() HandlerKind { return KindRateLimit }

func (h *rateLimitHandler) Wrap(next http.RoundTripper) http.RoundTripper {
	return &rateLimitTransport{next: next, limiter: h.limiter, wait: h.wait}
}

// rateLimitTransport implements http.RoundTripper with rate limiting.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.wait {
		if err := t.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			// The wait would outlast the context deadline.
			return nil, ErrRateLimited
		}
	} else if !t.limiter.Allow() {
		return nil, ErrRateLimited
	}

	return t.next.RoundTrip(req)
}
