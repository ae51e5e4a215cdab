package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/graph-go/httpclient"

	// DefaultBaseURL is the Microsoft Graph v1.0 service root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
)

// =============================================================================
// Config - HTTP Transport Configuration
// =============================================================================

// Config holds the tuning of the default terminal transport.
// It has no effect when WithTransport supplies a transport.
//
// Example:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 30 * time.Second
//	cfg.MaxIdleConnsPerHost = 50
//
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL(httpclient.DefaultBaseURL),
//	    httpclient.WithAuthenticationProvider(provider),
//	    httpclient.WithConfig(cfg),
//	)
type Config struct {
	// Timeout bounds one logical call, every retry and redirect hop
	// included. Zero means no timeout.
	//
	// Default: 100s
	Timeout time.Duration

	// MaxIdleConns is the idle connection limit across all hosts.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost is the idle connection limit per host. Graph
	// clients talk to a single host, so this is usually the setting that
	// matters.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits idle plus active connections per host.
	// 0 means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout is the wait for "100 Continue" on large uploads.
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers once the
	// request is written. 0 defers to Timeout.
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds TCP connection establishment.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// FallbackDelay is the RFC 6555 dual-stack delay. Negative disables it.
	//
	// Default: 300ms
	FallbackDelay time.Duration

	// WriteBufferSize and ReadBufferSize size the per-connection buffers.
	//
	// Default: 64KB
	WriteBufferSize int
	ReadBufferSize  int

	// MaxResponseHeaderBytes limits response header size.
	// 0 uses the net/http default.
	MaxResponseHeaderBytes int64

	// DisableKeepAlives forces a new connection per request.
	DisableKeepAlives bool

	// ForceHTTP2 attempts HTTP/2 even with a custom dialer or TLS config.
	//
	// Default: true
	ForceHTTP2 bool
}

// DefaultConfig returns balanced transport settings for a Graph client.
func DefaultConfig() Config {
	return Config{
		Timeout: 100 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DialTimeout:   5 * time.Second,
		KeepAlive:     30 * time.Second,
		FallbackDelay: 300 * time.Millisecond,

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,

		ForceHTTP2: true,
	}
}

// HighThroughputConfig returns settings for bulk workloads such as batch
// fan-out or delta sync, where many calls run concurrently.
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 300 * time.Second
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 0 // Unlimited for bursts
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.WriteBufferSize = 128 * 1024
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// LowLatencyConfig returns settings that fail fast, for interactive calls.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Second
	cfg.MaxIdleConnsPerHost = 50
	cfg.IdleConnTimeout = 60 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ResponseHeaderTimeout = 10 * time.Second
	cfg.DialTimeout = 2 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.FallbackDelay = 100 * time.Millisecond
	cfg.WriteBufferSize = 32 * 1024
	cfg.ReadBufferSize = 32 * 1024
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds everything New needs to assemble a Client.
type internalConfig struct {
	httpConfig Config

	// === Service ===

	BaseURL        string
	DefaultHeaders http.Header

	// AuthProvider is required unless withoutAuth is set.
	AuthProvider AuthenticationProvider
	withoutAuth  bool

	// === Pipeline ===

	// Handlers, when non-nil, replaces the default handler list.
	Handlers []Handler

	RetryOptions       RetryOptions
	RedirectOptions    RedirectOptions
	DisableCompression bool
	BreakerConfig      *BreakerConfig
	RateLimit          *RateLimitConfig

	// Transport replaces the default *http.Transport built from httpConfig.
	Transport http.RoundTripper

	TLSConfig            *tls.Config
	ProxyURL             *url.URL
	ProxyFromEnvironment bool

	// === Logging ===

	Logger    zerolog.Logger
	loggerSet bool
	Debug     bool

	// === OpenTelemetry ===

	// ServiceName is added as "http.client.name" on spans and metrics.
	ServiceName string

	TracerProvider    trace.TracerProvider
	MeterProvider     metric.MeterProvider
	Tracer            trace.Tracer
	Meter             metric.Meter
	Metrics           *metrics
	Propagators       propagation.TextMapPropagator
	SpanNameFormatter SpanNameFormatter
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:           DefaultConfig(),
		DefaultHeaders:       make(http.Header),
		RetryOptions:         DefaultRetryOptions(),
		RedirectOptions:      DefaultRedirectOptions(),
		ProxyFromEnvironment: true,
		Logger:               zerolog.Nop(),
		TracerProvider:       otel.GetTracerProvider(),
		MeterProvider:        otel.GetMeterProvider(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Debug && !cfg.loggerSet {
		cfg.Logger = debugLogger
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Metrics stay nil if instrument creation fails; recording is nil-safe.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates the terminal *http.Transport from httpConfig.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:       hc.DialTimeout,
		KeepAlive:     hc.KeepAlive,
		FallbackDelay: hc.FallbackDelay,
	}

	transport := &http.Transport{
		DialContext:            dialer.DialContext,
		MaxIdleConns:           hc.MaxIdleConns,
		MaxIdleConnsPerHost:    hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:        hc.MaxConnsPerHost,
		IdleConnTimeout:        hc.IdleConnTimeout,
		TLSHandshakeTimeout:    hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout:  hc.ResponseHeaderTimeout,
		ExpectContinueTimeout:  hc.ExpectContinueTimeout,
		DisableKeepAlives:      hc.DisableKeepAlives,
		WriteBufferSize:        hc.WriteBufferSize,
		ReadBufferSize:         hc.ReadBufferSize,
		MaxResponseHeaderBytes: hc.MaxResponseHeaderBytes,
		TLSClientConfig:        cfg.TLSConfig,
		ForceAttemptHTTP2:      hc.ForceHTTP2,

		// Decompression belongs to the compression handler.
		DisableCompression: true,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// breakerName identifies the circuit breaker in metrics and shared stores.
func (cfg *internalConfig) breakerName() string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return "graph-client"
}

// handlers returns the pipeline stages from outermost to innermost.
func (cfg *internalConfig) handlers() ([]Handler, error) {
	if cfg.Handlers != nil {
		return cfg.Handlers, nil
	}

	handlers := make([]Handler, 0, 7)
	if !cfg.withoutAuth {
		handlers = append(handlers, NewAuthenticationHandler(cfg.AuthProvider))
	}
	if !cfg.DisableCompression {
		handlers = append(handlers, NewCompressionHandler())
	}

	retry, err := NewRetryHandler(cfg.RetryOptions)
	if err != nil {
		return nil, err
	}
	redirect, err := NewRedirectHandler(cfg.RedirectOptions)
	if err != nil {
		return nil, err
	}
	handlers = append(handlers, retry, redirect)

	if cfg.BreakerConfig != nil {
		handlers = append(handlers, NewCircuitBreakerHandler(cfg.breakerName(), *cfg.BreakerConfig))
	}
	if cfg.RateLimit != nil {
		limiter, err := NewRateLimitHandler(*cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, limiter)
	}
	if cfg.Debug {
		handlers = append(handlers, NewLoggingHandler(cfg.Logger))
	}

	return handlers, nil
}

// instruments is the logging and metrics handle given to handlers.
type instruments struct {
	logger  zerolog.Logger
	metrics *metrics
	attrs   []attribute.KeyValue
}

// instrumentsFrom returns the instruments of cfg. A nil cfg, as used by
// NewPipeline, yields a disabled logger and no metrics.
func instrumentsFrom(cfg *internalConfig) instruments {
	if cfg == nil {
		return instruments{logger: zerolog.Nop()}
	}
	return instruments{
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		attrs:   cfg.baseAttributes(),
	}
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// SpanNameFormatter formats span names based on the HTTP request.
// Default behavior produces "HTTP {method}".
type SpanNameFormatter func(method string, r *http.Request) string

// Option configures the Client.
type Option func(*internalConfig)

// WithBaseURL sets the service root that relative request URLs resolve
// against, e.g. DefaultBaseURL. Required.
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithAuthenticationProvider sets the provider used by the authentication
// handler. Required unless WithoutAuthentication is given.
func WithAuthenticationProvider(p AuthenticationProvider) Option {
	return func(cfg *internalConfig) {
		cfg.AuthProvider = p
	}
}

// WithoutAuthentication drops the authentication handler, for endpoints
// that take no credentials or for tests.
func WithoutAuthentication() Option {
	return func(cfg *internalConfig) {
		cfg.withoutAuth = true
	}
}

// WithHandlers replaces the default handler list. The list is used as
// given: retry, redirect and authentication options do not apply to it.
//
//	retry, _ := httpclient.NewRetryHandler(httpclient.DefaultRetryOptions())
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL(httpclient.DefaultBaseURL),
//	    httpclient.WithoutAuthentication(),
//	    httpclient.WithHandlers(retry, myHandler),
//	)
func WithHandlers(handlers ...Handler) Option {
	return func(cfg *internalConfig) {
		cfg.Handlers = append([]Handler{}, handlers...)
	}
}

// WithRetryOptions configures the retry handler.
func WithRetryOptions(opts RetryOptions) Option {
	return func(cfg *internalConfig) {
		cfg.RetryOptions = opts
	}
}

// WithRedirectOptions configures the redirect handler.
func WithRedirectOptions(opts RedirectOptions) Option {
	return func(cfg *internalConfig) {
		cfg.RedirectOptions = opts
	}
}

// WithoutCompression drops the compression handler.
func WithoutCompression() Option {
	return func(cfg *internalConfig) {
		cfg.DisableCompression = true
	}
}

// WithTimeout sets the overall timeout of a logical call.
func WithTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.Timeout = d
	}
}

// WithConfig sets the transport tuning. Start from DefaultConfig(),
// HighThroughputConfig() or LowLatencyConfig().
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithTransport sets the terminal transport, e.g. a MockTransport in
// tests. Config, TLS and proxy settings are then ignored.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = rt
	}
}

// WithTLSConfig sets the TLS configuration of the default transport.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithProxyURL routes all requests through proxyURL instead of the
// environment's proxy settings.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
		cfg.ProxyFromEnvironment = false
	}
}

// WithDefaultHeader adds a header sent on every request unless the request
// already sets it.
func WithDefaultHeader(key, value string) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultHeaders.Add(key, value)
	}
}

// WithServiceName sets an identifier for this client in traces and metrics.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithLogger sets the logger used by the pipeline. The default logger is
// disabled.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
		cfg.loggerSet = true
	}
}

// WithDebug adds a logging handler that logs every hop at debug level,
// with credentials redacted. Without WithLogger, output goes to stdout.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets the propagators used to inject trace context.
// Default: W3C TraceContext and Baggage.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithSpanNameFormatter sets a custom function to generate span names.
func WithSpanNameFormatter(f SpanNameFormatter) Option {
	return func(cfg *internalConfig) {
		cfg.SpanNameFormatter = f
	}
}

// WithCircuitBreaker adds a circuit breaker stage below the redirect
// handler. Use DefaultBreakerConfig() or DistributedBreakerConfig(store).
func WithCircuitBreaker(c BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &c
	}
}

// WithRateLimit adds a client-side rate limit stage. Each hop, retries
// and redirects included, takes one token.
func WithRateLimit(c RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &c
	}
}
