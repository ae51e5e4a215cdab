package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// Pipeline assembly errors.
var (
	// ErrDuplicateHandler is returned when two handlers share a HandlerKind.
	ErrDuplicateHandler = errors.New("duplicate pipeline handler")

	// ErrNilHandler is returned when a handler in the list is nil.
	ErrNilHandler = errors.New("nil pipeline handler")

	// ErrNilTransport is returned when the pipeline has no terminal transport.
	ErrNilTransport = errors.New("nil pipeline transport")
)

var _ http.RoundTripper = (*Pipeline)(nil)

// Pipeline is an assembled chain of handlers ending in a transport.
// It is immutable and safe for concurrent use.
type Pipeline struct {
	head  http.RoundTripper
	kinds []HandlerKind
}

// NewPipeline composes handlers around transport.
//
// handlers[0] is the outermost stage: it sees the request first and the
// response last. The last handler wraps transport directly. With no
// handlers the pipeline is the transport itself.
//
// Duplicate kinds, nil handlers and a nil transport are rejected here,
// before any request is sent.
func NewPipeline(transport http.RoundTripper, handlers ...Handler) (*Pipeline, error) {
	return newPipeline(transport, nil, handlers)
}

// DefaultHandlers returns the standard stages in their standard order:
// authentication, compression, retry, redirect.
func DefaultHandlers(
	provider AuthenticationProvider,
	retry RetryOptions,
	redirect RedirectOptions,
) ([]Handler, error) {
	retryHandler, err := NewRetryHandler(retry)
	if err != nil {
		return nil, err
	}
	redirectHandler, err := NewRedirectHandler(redirect)
	if err != nil {
		return nil, err
	}

	return []Handler{
		NewAuthenticationHandler(provider),
		NewCompressionHandler(),
		retryHandler,
		redirectHandler,
	}, nil
}

// newPipeline is NewPipeline with an optional client configuration used to
// wire logging and metrics into handlers that support them.
func newPipeline(transport http.RoundTripper, cfg *internalConfig, handlers []Handler) (*Pipeline, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}

	seen := make(map[HandlerKind]struct{}, len(handlers))
	kinds := make([]HandlerKind, 0, len(handlers))
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: position %d", ErrNilHandler, i)
		}
		kind := h.Kind()
		if _, dup := seen[kind]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
		}
		seen[kind] = struct{}{}
		kinds = append(kinds, kind)
	}

	// Wrap from the innermost handler outwards so handlers[0] ends up on top.
	next := transport
	for i := len(handlers) - 1; i >= 0; i-- {
		if ih, ok := handlers[i].(instrumentedHandler); ok && cfg != nil {
			next = ih.wrapInstrumented(next, cfg)
			continue
		}
		next = handlers[i].Wrap(next)
	}

	return &Pipeline{head: next, kinds: kinds}, nil
}

// Kinds returns the handler kinds from outermost to innermost.
func (p *Pipeline) Kinds() []HandlerKind {
	return slices.Clone(p.kinds)
}

// RoundTrip sends req through the pipeline.
func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	return p.head.RoundTrip(req)
}
