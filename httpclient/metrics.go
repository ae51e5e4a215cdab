package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for the client pipeline.
// All record methods are safe to call on a nil receiver.
type metrics struct {
	// === Per-hop transport metrics ===

	requestDuration  metric.Float64Histogram
	requestBodySize  metric.Int64Histogram
	responseBodySize metric.Int64Histogram
	activeRequests   metric.Int64UpDownCounter
	requestErrors    metric.Int64Counter

	// === Retry handler ===

	// retryAttempts is incremented each time a request is re-sent.
	retryAttempts metric.Int64Counter

	// retryExhausted counts calls that failed with tooManyRetries.
	retryExhausted metric.Int64Counter

	// retryDuration measures time spent in the retry loop, waits included.
	retryDuration metric.Float64Histogram

	// === Redirect handler ===

	redirectHops      metric.Int64Counter
	redirectExhausted metric.Int64Counter

	// === Circuit breaker ===

	breakerState    metric.Int64Gauge
	breakerRequests metric.Int64Counter
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of a single HTTP hop in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.requestBodySize, err = meter.Int64Histogram(
		"http.client.request.body.size",
		metric.WithDescription("Size of HTTP client request bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(0, 100, 1024, 10*1024, 100*1024, 1024*1024, 4*1024*1024),
	)
	if err != nil {
		return nil, err
	}

	m.responseBodySize, err = meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP client response bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(0, 100, 1024, 10*1024, 100*1024, 1024*1024, 4*1024*1024),
	)
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"http.client.active_requests",
		metric.WithDescription("Number of in-flight HTTP hops"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.requestErrors, err = meter.Int64Counter(
		"http.client.request.error",
		metric.WithDescription("Number of HTTP hops that failed below the HTTP layer"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryAttempts, err = meter.Int64Counter(
		"graph.client.retry.attempts",
		metric.WithDescription("Number of re-sent requests"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryExhausted, err = meter.Int64Counter(
		"graph.client.retry.exhausted",
		metric.WithDescription("Number of calls that exhausted their retry budget"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryDuration, err = meter.Float64Histogram(
		"graph.client.retry.duration",
		metric.WithDescription("Time spent in the retry loop in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	m.redirectHops, err = meter.Int64Counter(
		"graph.client.redirect.hops",
		metric.WithDescription("Number of redirects followed"),
		metric.WithUnit("{redirect}"),
	)
	if err != nil {
		return nil, err
	}

	m.redirectExhausted, err = meter.Int64Counter(
		"graph.client.redirect.exhausted",
		metric.WithDescription("Number of calls that exceeded the redirect limit"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerState, err = meter.Int64Gauge(
		"graph.client.breaker.state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 half-open, 2 open)"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerRequests, err = meter.Int64Counter(
		"graph.client.breaker.requests",
		metric.WithDescription("Requests seen by the circuit breaker by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordRequestDuration(ctx context.Context, duration time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.requestBodySize == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.responseBodySize == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequestStart(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequestEnd(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil || m.requestErrors == nil {
		return
	}
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(withAttr(attrs, attribute.String("error.type", errorType))...))
}

func (m *metrics) recordRetryAttempt(ctx context.Context, attrs []attribute.KeyValue, attempt int) {
	if m == nil || m.retryAttempts == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(withAttr(attrs, attribute.Int("retry.attempt", attempt))...))
}

func (m *metrics) recordRetryExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.retryExhausted == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordRetryDuration(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration) {
	if m == nil || m.retryDuration == nil {
		return
	}
	m.retryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordRedirect(ctx context.Context, attrs []attribute.KeyValue, statusCode int) {
	if m == nil || m.redirectHops == nil {
		return
	}
	m.redirectHops.Add(ctx, 1, metric.WithAttributes(
		withAttr(attrs, attribute.Int("http.response.status_code", statusCode))...))
}

func (m *metrics) recordRedirectExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.redirectExhausted == nil {
		return
	}
	m.redirectExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker.name", name)))
}

func (m *metrics) recordBreakerRequest(ctx context.Context, name, outcome string) {
	if m == nil || m.breakerRequests == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.outcome", outcome),
	))
}

// withAttr returns a copy of attrs with extra appended.
func withAttr(attrs []attribute.KeyValue, extra ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs)+len(extra))
	out = append(out, attrs...)
	return append(out, extra...)
}
