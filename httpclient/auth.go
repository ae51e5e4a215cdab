package httpclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/kroma-labs/graph-go/serviceerror"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthenticationProvider stamps credentials onto an outgoing request.
// Implementations must be safe for concurrent use.
type AuthenticationProvider interface {
	AuthenticateRequest(ctx context.Context, req *http.Request) error
}

// AuthenticationProviderFunc adapts a function to AuthenticationProvider.
type AuthenticationProviderFunc func(ctx context.Context, req *http.Request) error

// AuthenticateRequest calls f(ctx, req).
func (f AuthenticationProviderFunc) AuthenticateRequest(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// StaticTokenProvider sets a fixed bearer token on every request.
func StaticTokenProvider(token string) AuthenticationProvider {
	return AuthenticationProviderFunc(func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// TokenSourceProvider authenticates with tokens from ts. Tokens are cached
// and refreshed by oauth2.ReuseTokenSource.
func TokenSourceProvider(ts oauth2.TokenSource) AuthenticationProvider {
	return &tokenSourceProvider{source: oauth2.ReuseTokenSource(nil, ts)}
}

// ClientCredentialsProvider authenticates as an application using the
// OAuth2 client credentials grant, e.g. against the Microsoft identity
// platform:
//
//	provider := httpclient.ClientCredentialsProvider(ctx, &clientcredentials.Config{
//	    ClientID:     clientID,
//	    ClientSecret: secret,
//	    TokenURL:     "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/token",
//	    Scopes:       []string{"https://graph.microsoft.com/.default"},
//	})
//
// ctx is used for token fetches, not for the Graph requests themselves.
func ClientCredentialsProvider(ctx context.Context, cfg *clientcredentials.Config) AuthenticationProvider {
	return TokenSourceProvider(cfg.TokenSource(ctx))
}

type tokenSourceProvider struct {
	source oauth2.TokenSource
}

func (p *tokenSourceProvider) AuthenticateRequest(_ context.Context, req *http.Request) error {
	tok, err := p.source.Token()
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}

// NewAuthenticationHandler returns the handler that asks provider to
// authenticate each request before forwarding it. A nil provider forwards
// requests untouched.
func NewAuthenticationHandler(provider AuthenticationProvider) Handler {
	return &authHandler{provider: provider}
}

type authHandler struct {
	provider AuthenticationProvider
}

func (h *authHandler) Kind() HandlerKind { return KindAuthentication }

func (h *authHandler) Wrap(next http.RoundTripper) http.RoundTripper {
	if h.provider == nil {
		return next
	}

	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		ctx := req.Context()
		authed := req.Clone(ctx)

		if err := h.provider.AuthenticateRequest(ctx, authed); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, serviceerror.Wrap(err, serviceerror.CodeGeneralException, serviceerror.MsgAuthenticationFailed)
		}

		return next.RoundTrip(authed)
	})
}
