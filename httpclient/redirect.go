package httpclient

import (
	"context"
	"net/http"

	"github.com/kroma-labs/graph-go/serviceerror"
)

// RedirectOptions configures the redirect handler.
type RedirectOptions struct {
	// MaxRedirects is the number of redirects followed before the call fails
	// with tooManyRedirects. 0 disables following: redirect responses are
	// returned to the caller. Must not exceed MaxRedirectsLimit.
	// Default: 5
	MaxRedirects int

	// DowngradeOn302 turns a 302 into a GET without body, as browsers do.
	// 303 is always downgraded. Default: false
	DowngradeOn302 bool

	// ShouldRedirect, if set, may veto following a redirect response.
	// Vetoed responses are returned to the caller as-is.
	ShouldRedirect func(resp *http.Response) bool
}

// Redirect defaults and limits.
const (
	DefaultMaxRedirects = 5
	MaxRedirectsLimit   = 20
)

// DefaultRedirectOptions returns the recommended redirect configuration.
func DefaultRedirectOptions() RedirectOptions {
	return RedirectOptions{MaxRedirects: DefaultMaxRedirects}
}

func (o RedirectOptions) validate() error {
	switch {
	case o.MaxRedirects < 0:
		return serviceerror.Newf(serviceerror.CodeInvalidArgument,
			serviceerror.MsgInvalidArgumentFormat, "a negative value", "MaxRedirects")
	case o.MaxRedirects > MaxRedirectsLimit:
		return serviceerror.Newf(serviceerror.CodeMaximumValueExceeded,
			serviceerror.MsgMaximumValueExceededFormat, "MaxRedirects", MaxRedirectsLimit)
	}
	return nil
}

type redirectOptionsKey struct{}

// ContextWithRedirectOptions overrides the client's redirect options for
// requests sent with the returned context.
func ContextWithRedirectOptions(ctx context.Context, opts RedirectOptions) context.Context {
	return context.WithValue(ctx, redirectOptionsKey{}, opts)
}

func redirectOptionsFromContext(ctx context.Context) (RedirectOptions, bool) {
	opts, ok := ctx.Value(redirectOptionsKey{}).(RedirectOptions)
	return opts, ok
}

// isRedirect reports whether status is one the redirect handler follows.
func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}
