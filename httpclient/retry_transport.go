package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kroma-labs/graph-go/serviceerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HeaderRetryAttempt carries the 1-based retry number on every re-sent request.
const HeaderRetryAttempt = "Retry-Attempt"

// NewRetryHandler returns the handler that re-sends throttled or
// temporarily failed requests. Invalid options are reported here.
func NewRetryHandler(opts RetryOptions) (Handler, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &retryHandler{opts: opts}, nil
}

type retryHandler struct {
	opts RetryOptions
}

func (h *retryHandler) Kind() HandlerKind { return KindRetry }

func (h *retryHandler) Wrap(next http.RoundTripper) http.RoundTripper {
	return h.wrapInstrumented(next, nil)
}

func (h *retryHandler) wrapInstrumented(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	return &retryTransport{next: next, opts: h.opts, inst: instrumentsFrom(cfg)}
}

// retryTransport keeps no per-call state; attempt counters and waits live on
// the stack of RoundTrip.
type retryTransport struct {
	next http.RoundTripper
	opts RetryOptions
	inst instruments
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	opts := t.opts
	if override, ok := retryOptionsFromContext(ctx); ok {
		if err := override.validate(); err != nil {
			return nil, err
		}
		opts = override
	}

	if opts.MaxRetries == 0 {
		return t.next.RoundTrip(req)
	}

	// Bodies of known length are buffered so they can be re-sent. Bodies of
	// unknown length are streamed once and never retried, even when GetBody
	// could recreate them.
	replayable := isReplayable(req) && !hasUnknownLength(req)
	if !replayable && hasKnownLength(req) {
		buffered, err := bufferBody(req)
		if err != nil {
			return nil, serviceerror.FromTransportError(err)
		}
		req = buffered
		replayable = true
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	classify := opts.Classifier
	if classify == nil {
		classify = DefaultRetryClassifier
	}
	if !classify(resp) || !replayable {
		return resp, nil
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		span      = trace.SpanFromContext(ctx)
		schedule  = newBackOff(opts)
		start     = time.Now()
		cumulated time.Duration
	)
	defer func() {
		t.inst.metrics.recordRetryDuration(ctx, t.inst.attrs, time.Since(start))
	}()

	for attempt := 1; ; attempt++ {
		if attempt > opts.MaxRetries {
			drainAndClose(resp)
			t.inst.metrics.recordRetryExhausted(ctx, t.inst.attrs)
			t.inst.logger.Debug().
				Int("max_retries", opts.MaxRetries).
				Str("url", req.URL.Redacted()).
				Msg("retries exhausted")
			return nil, serviceerror.Newf(serviceerror.CodeTooManyRetries,
				serviceerror.MsgTooManyRetriesFormat, opts.MaxRetries)
		}

		delay, ok := nextDelay(schedule, resp, opts.MaxDelay, time.Now())
		if !ok {
			return resp, nil
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(delay, attempt, resp) {
			return resp, nil
		}
		if opts.RetriesTimeLimit > 0 && cumulated+delay > opts.RetriesTimeLimit {
			return resp, nil
		}

		status := resp.StatusCode
		drainAndClose(resp)

		t.inst.logger.Debug().
			Int("attempt", attempt).
			Int("status", status).
			Dur("delay", delay).
			Str("url", req.URL.Redacted()).
			Msg("retrying request")
		recordRetryEvent(span, attempt, status, delay)

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		cumulated += delay

		retryReq, err := resend(req)
		if err != nil {
			return nil, serviceerror.FromTransportError(err)
		}
		retryReq.Header.Set(HeaderRetryAttempt, strconv.Itoa(attempt))

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t.inst.metrics.recordRetryAttempt(ctx, t.inst.attrs, attempt)

		resp, err = t.next.RoundTrip(retryReq)
		if err != nil {
			return nil, err
		}
		if !classify(resp) {
			if span.IsRecording() {
				span.SetAttributes(attribute.Int("http.retry_count", attempt))
			}
			return resp, nil
		}
	}
}

// recordRetryEvent adds a span event for the retry attempt.
func recordRetryEvent(span trace.Span, attempt, status int, delay time.Duration) {
	if !span.IsRecording() {
		return
	}
	span.AddEvent("http.retry", trace.WithAttributes(
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", delay.Milliseconds()),
		attribute.String("retry.reason", fmt.Sprintf("status %d", status)),
	))
}
