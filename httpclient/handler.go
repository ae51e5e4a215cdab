package httpclient

import (
	"net/http"
)

// HandlerKind identifies the role a Handler plays in the pipeline.
// A pipeline holds at most one handler of each kind.
type HandlerKind string

// Handler kinds known to the client.
const (
	KindAuthentication HandlerKind = "authentication"
	KindCompression    HandlerKind = "compression"
	KindRetry          HandlerKind = "retry"
	KindRedirect       HandlerKind = "redirect"
	KindCircuitBreaker HandlerKind = "circuit_breaker"
	KindRateLimit      HandlerKind = "rate_limit"
	KindLogging        HandlerKind = "logging"
)

// Handler is one stage of the request pipeline.
//
// Wrap returns a RoundTripper that performs the handler's work and delegates
// to next. Wrap is called once when the pipeline is assembled; the returned
// RoundTripper must be safe for concurrent use and keep all per-call state on
// the stack of RoundTrip.
type Handler interface {
	Kind() HandlerKind
	Wrap(next http.RoundTripper) http.RoundTripper
}

// instrumentedHandler is implemented by handlers that log or record metrics.
// The pipeline uses it in place of Wrap when it has a client configuration.
type instrumentedHandler interface {
	Handler
	wrapInstrumented(next http.RoundTripper, cfg *internalConfig) http.RoundTripper
}

// HandlerFunc adapts a wrap function to a Handler of the given kind.
//
//	tagger := httpclient.HandlerFunc(httpclient.KindLogging, func(next http.RoundTripper) http.RoundTripper {
//	    return httpclient.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
//	        req.Header.Set("X-Team", "platform")
//	        return next.RoundTrip(req)
//	    })
//	})
func HandlerFunc(kind HandlerKind, wrap func(next http.RoundTripper) http.RoundTripper) Handler {
	return handlerFunc{kind: kind, wrap: wrap}
}

type handlerFunc struct {
	kind HandlerKind
	wrap func(next http.RoundTripper) http.RoundTripper
}

func (h handlerFunc) Kind() HandlerKind { return h.kind }

func (h handlerFunc) Wrap(next http.RoundTripper) http.RoundTripper { return h.wrap(next) }
