package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kroma-labs/graph-go/serviceerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var _ http.RoundTripper = (*otelTransport)(nil)

// otelTransport is the terminal sender of the pipeline. It emits one client
// span and one set of metrics per hop, then hands the request to base.
type otelTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	propagator propagation.TextMapPropagator
}

// newOtelTransport creates a new instrumented transport.
func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	propagator := cfg.Propagators
	if propagator == nil {
		propagator = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		)
	}
	return &otelTransport{base: base, cfg: cfg, propagator: propagator}
}

// RoundTrip implements http.RoundTripper with tracing and metrics.
// The returned response always references the request that produced it.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := t.cfg.Tracer.Start(ctx, t.spanName(req),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)
	defer span.End()

	req = req.WithContext(ctx)
	req.Header = req.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	baseAttrs := t.cfg.baseAttributes()
	t.cfg.Metrics.recordActiveRequestStart(ctx, baseAttrs)
	defer t.cfg.Metrics.recordActiveRequestEnd(ctx, baseAttrs)

	if req.ContentLength > 0 {
		t.cfg.Metrics.recordRequestBodySize(ctx, req.ContentLength, baseAttrs)
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		errorType := classifyError(err)
		setSpanError(span, err, errorType)
		t.cfg.Metrics.recordError(ctx, errorType, baseAttrs)
		t.cfg.Metrics.recordRequestDuration(ctx, duration, t.errorAttributes(req, errorType))
		return nil, err
	}

	resp.Request = req
	span.SetAttributes(t.responseAttributes(resp)...)

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		span.SetAttributes(attribute.String("error.type", errorTypeFromStatusCode(resp.StatusCode)))
	}

	if resp.ContentLength > 0 {
		t.cfg.Metrics.recordResponseBodySize(ctx, resp.ContentLength, baseAttrs)
	}
	t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, resp))

	return resp, nil
}

// spanName defaults to "HTTP {method}", followed by the operation name
// when the request came from a RequestBuilder.
func (t *otelTransport) spanName(req *http.Request) string {
	if t.cfg.SpanNameFormatter != nil {
		return t.cfg.SpanNameFormatter(req.Method, req)
	}
	if op := operationFromContext(req.Context()); op != "" {
		return "HTTP " + req.Method + " " + op
	}
	return "HTTP " + req.Method
}

// requestAttributes returns span attributes for the request.
func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 10)
	attrs = append(attrs, t.cfg.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))

	if req.URL != nil {
		attrs = append(attrs,
			attribute.String("url.full", req.URL.Redacted()),
			attribute.String("url.scheme", req.URL.Scheme),
		)
		attrs = append(attrs, serverAttributes(req)...)
	}

	if req.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.request.body.size", req.ContentLength))
	}
	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	if id := req.Header.Get(serviceerror.HeaderClientRequestID); id != "" {
		attrs = append(attrs, attribute.String(attrClientRequestID, id))
	}
	if attempt := req.Header.Get(HeaderRetryAttempt); attempt != "" {
		if n, err := strconv.Atoi(attempt); err == nil {
			attrs = append(attrs, attribute.Int("http.request.resend_count", n))
		}
	}

	return attrs
}

// responseAttributes returns span attributes for the response.
func (t *otelTransport) responseAttributes(resp *http.Response) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.response.body.size", resp.ContentLength))
	}
	if resp.ProtoMajor > 0 {
		version := strconv.Itoa(resp.ProtoMajor)
		if resp.ProtoMajor == 1 {
			version += "." + strconv.Itoa(resp.ProtoMinor)
		}
		attrs = append(attrs, attribute.String("network.protocol.version", version))
	}
	if id := resp.Header.Get("request-id"); id != "" {
		attrs = append(attrs, attribute.String(attrRequestID, id))
	}

	return attrs
}

// metricsAttributes returns attributes for metrics recording.
func (t *otelTransport) metricsAttributes(req *http.Request, resp *http.Response) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6)
	attrs = append(attrs, t.cfg.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))
	attrs = append(attrs, serverAttributes(req)...)

	if resp != nil {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
		if errorType := errorTypeFromStatusCode(resp.StatusCode); errorType != "" {
			attrs = append(attrs, attribute.String("error.type", errorType))
		}
	}

	return attrs
}

// errorAttributes returns attributes for error metrics.
func (t *otelTransport) errorAttributes(req *http.Request, errorType string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)
	attrs = append(attrs, t.cfg.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", req.Method))
	attrs = append(attrs, serverAttributes(req)...)

	if errorType != "" {
		attrs = append(attrs, attribute.String("error.type", errorType))
	}

	return attrs
}

// serverAttributes returns server.address and server.port, defaulting the
// port from the scheme.
func serverAttributes(req *http.Request) []attribute.KeyValue {
	if req.URL == nil {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, 2)
	if host := req.URL.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}

	if port := req.URL.Port(); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			attrs = append(attrs, attribute.Int("server.port", p))
		}
		return attrs
	}

	switch req.URL.Scheme {
	case "http":
		attrs = append(attrs, attribute.Int("server.port", 80))
	case "https":
		attrs = append(attrs, attribute.Int("server.port", 443))
	}
	return attrs
}
