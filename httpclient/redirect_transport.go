package httpclient

import (
	"net/http"
	"strings"

	"github.com/kroma-labs/graph-go/serviceerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NewRedirectHandler returns the handler that follows 301, 302, 303, 307
// and 308 responses. Invalid options are reported here.
func NewRedirectHandler(opts RedirectOptions) (Handler, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &redirectHandler{opts: opts}, nil
}

type redirectHandler struct {
	opts RedirectOptions
}

func (h *redirectHandler) Kind() HandlerKind { return KindRedirect }

func (h *redirectHandler) Wrap(next http.RoundTripper) http.RoundTripper {
	return h.wrapInstrumented(next, nil)
}

func (h *redirectHandler) wrapInstrumented(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	return &redirectTransport{next: next, opts: h.opts, inst: instrumentsFrom(cfg)}
}

type redirectTransport struct {
	next http.RoundTripper
	opts RedirectOptions
	inst instruments
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	opts := t.opts
	if override, ok := redirectOptionsFromContext(ctx); ok {
		if err := override.validate(); err != nil {
			return nil, err
		}
		opts = override
	}

	if opts.MaxRedirects == 0 {
		return t.next.RoundTrip(req)
	}

	// The body may have to be sent again to the redirect target.
	if !isReplayable(req) {
		buffered, err := bufferBody(req)
		if err != nil {
			return nil, serviceerror.FromTransportError(err)
		}
		req = buffered
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	span := trace.SpanFromContext(ctx)

	// redirects counts hops followed for this call only.
	for redirects := 0; isRedirect(resp.StatusCode); redirects++ {
		if opts.ShouldRedirect != nil && !opts.ShouldRedirect(resp) {
			return resp, nil
		}

		if redirects >= opts.MaxRedirects {
			drainAndClose(resp)
			t.inst.metrics.recordRedirectExhausted(ctx, t.inst.attrs)
			return nil, serviceerror.Newf(serviceerror.CodeTooManyRedirects,
				serviceerror.MsgTooManyRedirectsFormat, opts.MaxRedirects)
		}

		next, err := t.redirectRequest(req, resp, opts)
		drainAndClose(resp)
		if err != nil {
			return nil, err
		}

		t.inst.logger.Debug().
			Int("status", resp.StatusCode).
			Str("method", next.Method).
			Str("location_host", next.URL.Host).
			Int("redirect", redirects+1).
			Msg("following redirect")
		t.inst.metrics.recordRedirect(ctx, t.inst.attrs, resp.StatusCode)
		if span.IsRecording() {
			span.AddEvent("http.redirect", trace.WithAttributes(
				attribute.Int("redirect.count", redirects+1),
				attribute.Int("http.response.status_code", resp.StatusCode),
				attribute.String("redirect.location", next.URL.Redacted()),
			))
		}

		if err := ctx.Err(); err != nil {
			if next.Body != nil {
				_ = next.Body.Close()
			}
			return nil, err
		}

		req = next
		resp, err = t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// redirectRequest builds the request sent to the target of resp.
func (t *redirectTransport) redirectRequest(
	req *http.Request,
	resp *http.Response,
	opts RedirectOptions,
) (*http.Request, error) {
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, serviceerror.New(serviceerror.CodeGeneralException, serviceerror.MsgLocationHeaderNotSet)
	}

	target, err := req.URL.Parse(location)
	if err != nil {
		return nil, serviceerror.Wrap(err, serviceerror.CodeGeneralException, serviceerror.MsgLocationHeaderInvalid)
	}

	next, err := resend(req)
	if err != nil {
		return nil, serviceerror.FromTransportError(err)
	}
	next.URL = target
	next.Host = ""

	downgrade := resp.StatusCode == http.StatusSeeOther ||
		(resp.StatusCode == http.StatusFound && opts.DowngradeOn302)
	if downgrade && req.Method != http.MethodHead {
		if next.Body != nil {
			_ = next.Body.Close()
		}
		next.Method = http.MethodGet
		next.Body = nil
		next.GetBody = nil
		next.ContentLength = 0
		next.Header.Del("Content-Type")
		next.Header.Del("Content-Length")
	}

	// Credentials only travel to the host they were issued for.
	if !strings.EqualFold(target.Hostname(), req.URL.Hostname()) {
		next.Header.Del("Authorization")
	}

	return next, nil
}
