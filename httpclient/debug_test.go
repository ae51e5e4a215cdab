package httpclient

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurlCommand(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		url     string
		headers map[string]string
		want    string
	}{
		{
			name:   "given a GET without headers, then omits the method",
			method: http.MethodGet,
			url:    "https://graph.microsoft.com/v1.0/me",
			want:   "curl 'https://graph.microsoft.com/v1.0/me'",
		},
		{
			name:    "given a POST with headers, then sorts them and redacts credentials",
			method:  http.MethodPost,
			url:     "https://graph.microsoft.com/v1.0/me/sendMail",
			headers: map[string]string{"Content-Type": "application/json", "Authorization": "Bearer secret"},
			want: "curl -X POST 'https://graph.microsoft.com/v1.0/me/sendMail' " +
				"-H 'Authorization: [REDACTED]' -H 'Content-Type: application/json'",
		},
		{
			name:    "given a quote in a header value, then escapes it",
			method:  http.MethodGet,
			url:     "https://graph.microsoft.com/v1.0/users",
			headers: map[string]string{"Prefer": "it's"},
			want:    `curl 'https://graph.microsoft.com/v1.0/users' -H 'Prefer: it'\''s'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newTestRequest(t, tt.method, tt.url)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, curlCommand(req))
		})
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Cookie", "session=1")
	h.Set("ConsistencyLevel", "eventual")

	got := redactHeaders(h)

	assert.Equal(t, redacted, got.Get("Authorization"))
	assert.Equal(t, redacted, got.Get("Cookie"))
	assert.Equal(t, "eventual", got.Get("ConsistencyLevel"))
	assert.Equal(t, "Bearer secret", h.Get("Authorization"), "input must not be modified")
	assert.Empty(t, redactHeaders(nil))
}

func TestLoggingHandler(t *testing.T) {
	tests := []struct {
		name         string
		level        zerolog.Level
		stubErr      error
		wantContains []string
		wantEmpty    bool
	}{
		{
			name:  "given debug level, then logs request and response without credentials",
			level: zerolog.DebugLevel,
			wantContains: []string{
				`"message":"HTTP request"`,
				`"message":"HTTP response"`,
				`"status":200`,
				`"request_id":"srv-1"`,
				`"client_request_id":"cli-1"`,
				redacted,
			},
		},
		{
			name:         "given a transport failure, then logs the failure",
			level:        zerolog.DebugLevel,
			stubErr:      errors.New("connection reset"),
			wantContains: []string{`"message":"HTTP request failed"`, "connection reset"},
		},
		{
			name:      "given info level, then logs nothing",
			level:     zerolog.InfoLevel,
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(tt.level)

			mock := NewMockTransport()
			if tt.stubErr != nil {
				mock.StubError(tt.stubErr)
			} else {
				mock.StubDefault(MockResponse(http.StatusOK, "{}").WithHeader("request-id", "srv-1"))
			}
			p, err := NewPipeline(mock, NewLoggingHandler(logger))
			require.NoError(t, err)

			req := newTestRequest(t, http.MethodGet, "https://graph.microsoft.com/v1.0/me")
			req.Header.Set("Authorization", "Bearer secret")
			req.Header.Set("client-request-id", "cli-1")

			resp, err := p.RoundTrip(req)
			if tt.stubErr != nil {
				assert.ErrorIs(t, err, tt.stubErr)
			} else {
				require.NoError(t, err)
				resp.Body.Close()
			}

			out := buf.String()
			if tt.wantEmpty {
				assert.Empty(t, out)
				return
			}
			for _, s := range tt.wantContains {
				assert.Contains(t, out, s)
			}
			assert.NotContains(t, out, "secret")
		})
	}
}

func TestWithDebug_LogsEachRetry(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	mock := NewMockTransport().StubSequence(
		MockResponse(http.StatusServiceUnavailable, "").WithHeader("Retry-After", "0"),
		MockResponse(http.StatusOK, ""),
	)
	c, err := New(
		WithBaseURL(DefaultBaseURL),
		WithAuthenticationProvider(StaticTokenProvider("secret-token")),
		WithRetryOptions(RetryOptions{MaxRetries: 2, Sleep: func(context.Context, time.Duration) error { return nil }}),
		WithTransport(mock),
		WithLogger(logger),
		WithDebug(true),
	)
	require.NoError(t, err)

	resp, err := c.Request("GetMe").Get(context.Background(), "/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, `"message":"HTTP request"`), "each hop is logged")
	assert.Contains(t, out, `"message":"retrying request"`)
	assert.NotContains(t, out, "secret-token")
}
