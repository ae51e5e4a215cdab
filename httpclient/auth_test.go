package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kroma-labs/graph-go/serviceerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type mockAuthProvider struct {
	mock.Mock
}

func (m *mockAuthProvider) AuthenticateRequest(ctx context.Context, req *http.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func TestAuthenticationHandler(t *testing.T) {
	errBoom := errors.New("token endpoint unreachable")

	tests := []struct {
		name         string
		provider     func() AuthenticationProvider
		wantAuth     string
		wantCode     string
		wantErr      error
		wantRequests int
	}{
		{
			name:         "given a static token, then stamps the bearer header",
			provider:     func() AuthenticationProvider { return StaticTokenProvider("abc") },
			wantAuth:     "Bearer abc",
			wantRequests: 1,
		},
		{
			name: "given an oauth2 token source, then stamps its token",
			provider: func() AuthenticationProvider {
				return TokenSourceProvider(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "xyz"}))
			},
			wantAuth:     "Bearer xyz",
			wantRequests: 1,
		},
		{
			name:         "given a nil provider, then forwards the request untouched",
			provider:     func() AuthenticationProvider { return nil },
			wantAuth:     "",
			wantRequests: 1,
		},
		{
			name: "given a provider error, then fails with generalException and sends nothing",
			provider: func() AuthenticationProvider {
				m := &mockAuthProvider{}
				m.On("AuthenticateRequest", mock.Anything, mock.Anything).Return(errBoom)
				return m
			},
			wantCode: serviceerror.CodeGeneralException,
			wantErr:  errBoom,
		},
		{
			name: "given the provider is cancelled, then returns context.Canceled",
			provider: func() AuthenticationProvider {
				m := &mockAuthProvider{}
				m.On("AuthenticateRequest", mock.Anything, mock.Anything).Return(context.Canceled)
				return m
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport().StubResponse(http.StatusOK, "")
			p, err := NewPipeline(transport, NewAuthenticationHandler(tt.provider()))
			require.NoError(t, err)

			req := newTestRequest(t, http.MethodGet, "https://graph.microsoft.com/v1.0/me")
			resp, err := p.RoundTrip(req)

			assert.Equal(t, tt.wantRequests, transport.RequestCount())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, resp)
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantCode != "" {
					assert.True(t, serviceerror.HasCode(err, tt.wantCode))
					assert.Contains(t, err.Error(), serviceerror.MsgAuthenticationFailed)
				}
				return
			}

			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantAuth, transport.LastRequest().Header.Get("Authorization"))
			assert.Empty(t, req.Header.Get("Authorization"), "original request must not be modified")
		})
	}
}

func TestAuthenticationHandler_ProviderSeesRequest(t *testing.T) {
	provider := &mockAuthProvider{}
	provider.On("AuthenticateRequest", mock.Anything, mock.MatchedBy(func(req *http.Request) bool {
		return req.URL.Path == "/v1.0/users" && req.Method == http.MethodGet
	})).Return(nil).Once()

	transport := NewMockTransport().StubResponse(http.StatusOK, "")
	p, err := NewPipeline(transport, NewAuthenticationHandler(provider))
	require.NoError(t, err)

	resp, err := p.RoundTrip(newTestRequest(t, http.MethodGet, "https://graph.microsoft.com/v1.0/users"))
	require.NoError(t, err)
	defer resp.Body.Close()

	provider.AssertExpectations(t)
}

func TestClientCredentialsProvider(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	provider := ClientCredentialsProvider(context.Background(), &clientcredentials.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     tokenServer.URL,
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	})

	transport := NewMockTransport().StubResponse(http.StatusOK, "")
	p, err := NewPipeline(transport, NewAuthenticationHandler(provider))
	require.NoError(t, err)

	for range 3 {
		resp, err := p.RoundTrip(newTestRequest(t, http.MethodGet, "https://graph.microsoft.com/v1.0/users"))
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, int32(1), tokenCalls.Load(), "token must be cached between requests")
	for _, req := range transport.Requests() {
		assert.Equal(t, "Bearer app-token", req.Header.Get("Authorization"))
	}
}
