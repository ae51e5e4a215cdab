// Package httpclient is the request pipeline of the Microsoft Graph client:
// a chain of handlers wrapped around an instrumented transport.
//
// # Quick Start
//
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL(httpclient.DefaultBaseURL),
//	    httpclient.WithAuthenticationProvider(
//	        httpclient.ClientCredentialsProvider(ctx, &clientcredentials.Config{
//	            ClientID:     clientID,
//	            ClientSecret: secret,
//	            TokenURL:     "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/token",
//	            Scopes:       []string{"https://graph.microsoft.com/.default"},
//	        }),
//	    ),
//	    httpclient.WithServiceName("directory-sync"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	var me User
//	if _, err := client.Request("GetMe").Decode(&me).Get(ctx, "/me"); err != nil {
//	    return err
//	}
//
// # Pipeline
//
// Every request passes through the handlers in order, then the transport:
//
//	Authentication -> Compression -> Retry -> Redirect -> [CircuitBreaker] -> [RateLimit] -> [Logging] -> Transport
//
// Authentication asks an AuthenticationProvider to stamp credentials.
// Compression advertises gzip and decodes gzip responses. Retry re-sends
// 429, 503 and 504 responses, honoring Retry-After. Redirect follows 301,
// 302, 303, 307 and 308, dropping credentials on cross-host hops. The
// bracketed stages are added by WithCircuitBreaker, WithRateLimit and
// WithDebug.
//
// Each handler kind may appear once. Custom lists are assembled with
// NewPipeline or installed with WithHandlers:
//
//	retry, err := httpclient.NewRetryHandler(httpclient.RetryOptions{MaxRetries: 5, Delay: time.Second})
//	if err != nil {
//	    return err
//	}
//	pipeline, err := httpclient.NewPipeline(http.DefaultTransport,
//	    httpclient.NewAuthenticationHandler(provider),
//	    retry,
//	)
//
// Retry and redirect budgets are separate. Because retry sits above
// redirect, a retried request starts a fresh redirect chain.
//
// # Per-request options
//
// Retry and redirect options can be overridden for one call through the
// context:
//
//	ctx = httpclient.ContextWithRetryOptions(ctx, httpclient.NoRetryOptions())
//
// # Errors
//
// Pipeline failures are *serviceerror.ServiceError values with a stable
// code, e.g. tooManyRetries or tooManyRedirects. RequestBuilder also
// translates non-2xx responses with serviceerror.FromResponse. Cancelled
// calls return an error matching context.Canceled.
//
// # Observability
//
// The transport emits one OpenTelemetry client span and one set of metrics
// per hop. Spans carry graph.client_request_id and, when the service
// returns one, graph.request_id. Retry and redirect decisions are recorded
// as span events and logged through zerolog at debug level.
//
// # Testing
//
// MockTransport is a terminal transport with canned responses:
//
//	mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, `{"id":"1"}`)
//	client, _ := httpclient.New(
//	    httpclient.WithBaseURL(httpclient.DefaultBaseURL),
//	    httpclient.WithoutAuthentication(),
//	    httpclient.WithTransport(mock),
//	)
package httpclient
