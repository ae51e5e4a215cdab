package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kroma-labs/graph-go/serviceerror"
)

// SDK identification sent on every request.
const (
	HeaderSdkVersion = "SdkVersion"
	SdkVersion       = "graph-go/1.0.0"
)

// Client sends requests to the service through the handler pipeline.
//
// A Client is immutable after New, apart from SetTimeout before the first
// request, and is safe for concurrent use.
//
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL(httpclient.DefaultBaseURL),
//	    httpclient.WithAuthenticationProvider(httpclient.StaticTokenProvider(token)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	var me User
//	_, err = client.Request("GetMe").Decode(&me).Get(ctx, "/me")
type Client struct {
	// httpClient runs the pipeline. Redirects are never followed by it;
	// the redirect handler owns them.
	httpClient *http.Client

	pipeline       *Pipeline
	config         *internalConfig
	baseURL        *url.URL
	defaultHeaders http.Header

	mu      sync.Mutex
	started bool
}

// New assembles a Client.
//
// It fails when the base URL is missing or not an absolute http(s) URL,
// when no authentication provider is given and neither
// WithoutAuthentication nor WithHandlers is used, and when the retry or
// redirect options or the handler list are invalid.
func New(opts ...Option) (*Client, error) {
	cfg := newConfig(opts...)

	baseURL, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.AuthProvider == nil && !cfg.withoutAuth && cfg.Handlers == nil {
		return nil, serviceerror.New(serviceerror.CodeInvalidRequest, serviceerror.MsgAuthenticationProviderMissing)
	}

	handlers, err := cfg.handlers()
	if err != nil {
		return nil, err
	}

	var transport http.RoundTripper = cfg.Transport
	if transport == nil {
		transport = cfg.buildTransport()
	}

	pipeline, err := newPipeline(newOtelTransport(transport, cfg), cfg, handlers)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{
			Transport: pipeline,
			Timeout:   cfg.httpConfig.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		pipeline:       pipeline,
		config:         cfg,
		baseURL:        baseURL,
		defaultHeaders: cfg.DefaultHeaders,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, serviceerror.New(serviceerror.CodeInvalidRequest, serviceerror.MsgBaseURLMissing)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, serviceerror.Wrap(err, serviceerror.CodeInvalidRequest, serviceerror.MsgBaseURLInvalid)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, serviceerror.New(serviceerror.CodeInvalidRequest, serviceerror.MsgBaseURLInvalid)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u, nil
}

// Send sends req through the pipeline and returns the final response,
// whatever its status. Translating error statuses is left to the caller,
// see serviceerror.FromResponse.
//
// A relative request URL is resolved under the base URL path. The request
// is not modified: a copy carries the client-request-id, SdkVersion and
// default headers.
//
// Transport failures are returned as *serviceerror.ServiceError, except
// cancellation, which is returned as an error matching context.Canceled.
func (c *Client) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil || *req.URL == (url.URL{}) {
		return nil, serviceerror.New(serviceerror.CodeInvalidRequest, serviceerror.MsgRequestURLMissing)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	out := req.Clone(ctx)
	if !out.URL.IsAbs() {
		out.URL = c.ResolveURL(out.URL)
		out.Host = ""
	}

	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if out.Header.Get(serviceerror.HeaderClientRequestID) == "" {
		out.Header.Set(serviceerror.HeaderClientRequestID, uuid.NewString())
	}
	if out.Header.Get(HeaderSdkVersion) == "" {
		out.Header.Set(HeaderSdkVersion, SdkVersion)
	}
	for k, vs := range c.defaultHeaders {
		if _, ok := out.Header[k]; !ok {
			out.Header[k] = append([]string(nil), vs...)
		}
	}

	resp, err := c.httpClient.Do(out) //nolint:bodyclose // Returned to caller
	if err != nil {
		return nil, serviceerror.FromTransportError(err)
	}
	return resp, nil
}

// Do sends req with its own context. See Send.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return c.Send(context.Background(), nil)
	}
	return c.Send(req.Context(), req)
}

// ResolveURL resolves ref under the base URL path: "/me" and "me" both
// become "{base}/me". Absolute URLs are returned unchanged.
func (c *Client) ResolveURL(ref *url.URL) *url.URL {
	if ref.IsAbs() {
		return ref
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimPrefix(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ref.Fragment
	return &u
}

// SetTimeout changes the overall timeout. It fails with notAllowed once a
// request has been sent.
func (c *Client) SetTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return serviceerror.New(serviceerror.CodeNotAllowed, serviceerror.MsgOverallTimeoutCannotBeSet)
	}
	c.httpClient.Timeout = d
	return nil
}

// Timeout returns the overall timeout.
func (c *Client) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient.Timeout
}

// BaseURL returns the service root requests are resolved against.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Kinds returns the pipeline's handler kinds from outermost to innermost.
func (c *Client) Kinds() []HandlerKind {
	return c.pipeline.Kinds()
}

// HTTP returns the underlying *http.Client for libraries that need one.
// Requests sent through it skip the header stamping done by Send.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// Request creates a new RequestBuilder. operationName is added to span
// names and debug logs.
//
//	resp, err := client.Request("ListUsers").
//	    Query("$top", "10").
//	    Decode(&page).
//	    Get(ctx, "/users")
func (c *Client) Request(operationName string) *RequestBuilder {
	return &RequestBuilder{
		client:        c,
		operationName: operationName,
		headers:       make(http.Header),
		pathParams:    make(map[string]string),
	}
}
