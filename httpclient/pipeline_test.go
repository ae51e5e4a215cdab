package httpclient

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/kroma-labs/graph-go/serviceerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// traceHandler appends its name to a shared log on the way in and out.
func traceHandler(kind HandlerKind, name string, log *[]string, mu *sync.Mutex) Handler {
	return HandlerFunc(kind, func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			mu.Lock()
			*log = append(*log, "in:"+name)
			mu.Unlock()

			resp, err := next.RoundTrip(req)

			mu.Lock()
			*log = append(*log, "out:"+name)
			mu.Unlock()
			return resp, err
		})
	})
}

func newTestRequest(t *testing.T, method, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, rawURL, nil)
	require.NoError(t, err)
	return req
}

func TestNewPipeline(t *testing.T) {
	tests := []struct {
		name      string
		transport func() http.RoundTripper
		handlers  func(log *[]string, mu *sync.Mutex) []Handler
		wantErr   error
		wantKinds []HandlerKind
		wantLog   []string
	}{
		{
			name:      "given handlers A B C, then A sees the request first and the response last",
			transport: func() http.RoundTripper { return NewMockTransport().StubResponse(http.StatusOK, "") },
			handlers: func(log *[]string, mu *sync.Mutex) []Handler {
				return []Handler{
					traceHandler(KindAuthentication, "A", log, mu),
					traceHandler(KindRetry, "B", log, mu),
					traceHandler(KindRedirect, "C", log, mu),
				}
			},
			wantKinds: []HandlerKind{KindAuthentication, KindRetry, KindRedirect},
			wantLog:   []string{"in:A", "in:B", "in:C", "out:C", "out:B", "out:A"},
		},
		{
			name:      "given no handlers, then the pipeline is the transport",
			transport: func() http.RoundTripper { return NewMockTransport().StubResponse(http.StatusOK, "") },
			handlers:  func(*[]string, *sync.Mutex) []Handler { return nil },
			wantKinds: []HandlerKind{},
		},
		{
			name:      "given two handlers of the same kind, then assembly fails",
			transport: func() http.RoundTripper { return NewMockTransport() },
			handlers: func(log *[]string, mu *sync.Mutex) []Handler {
				return []Handler{
					traceHandler(KindRetry, "A", log, mu),
					traceHandler(KindRetry, "B", log, mu),
				}
			},
			wantErr: ErrDuplicateHandler,
		},
		{
			name:      "given a nil handler, then assembly fails",
			transport: func() http.RoundTripper { return NewMockTransport() },
			handlers:  func(*[]string, *sync.Mutex) []Handler { return []Handler{NewCompressionHandler(), nil} },
			wantErr:   ErrNilHandler,
		},
		{
			name:      "given a nil transport, then assembly fails",
			transport: func() http.RoundTripper { return nil },
			handlers:  func(*[]string, *sync.Mutex) []Handler { return nil },
			wantErr:   ErrNilTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				log []string
				mu  sync.Mutex
			)

			p, err := NewPipeline(tt.transport(), tt.handlers(&log, &mu)...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKinds, p.Kinds())

			resp, err := p.RoundTrip(newTestRequest(t, http.MethodGet, "https://graph.microsoft.com/v1.0/me"))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.wantLog, log)
		})
	}
}

func TestNewPipeline_DuplicateDetectedBeforeSend(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "")

	_, err := NewPipeline(mock, NewCompressionHandler(), NewCompressionHandler())

	require.ErrorIs(t, err, ErrDuplicateHandler)
	assert.Contains(t, err.Error(), string(KindCompression))
	assert.Zero(t, mock.RequestCount())
}

func TestPipeline_Kinds(t *testing.T) {
	p, err := NewPipeline(NewMockTransport(), NewCompressionHandler())
	require.NoError(t, err)

	kinds := p.Kinds()
	kinds[0] = KindLogging

	assert.Equal(t, []HandlerKind{KindCompression}, p.Kinds(), "Kinds must return a copy")
}

func TestDefaultHandlers(t *testing.T) {
	tests := []struct {
		name      string
		retry     RetryOptions
		redirect  RedirectOptions
		wantCode  string
		wantKinds []HandlerKind
	}{
		{
			name:      "given default options, then returns auth, compression, retry and redirect in order",
			retry:     DefaultRetryOptions(),
			redirect:  DefaultRedirectOptions(),
			wantKinds: []HandlerKind{KindAuthentication, KindCompression, KindRetry, KindRedirect},
		},
		{
			name:     "given more than 10 retries, then fails with maximumValueExceeded",
			retry:    RetryOptions{MaxRetries: 11},
			redirect: DefaultRedirectOptions(),
			wantCode: serviceerror.CodeMaximumValueExceeded,
		},
		{
			name:     "given more than 20 redirects, then fails with maximumValueExceeded",
			retry:    DefaultRetryOptions(),
			redirect: RedirectOptions{MaxRedirects: 21},
			wantCode: serviceerror.CodeMaximumValueExceeded,
		},
		{
			name:     "given negative retries, then fails with invalidArgument",
			retry:    RetryOptions{MaxRetries: -1},
			redirect: DefaultRedirectOptions(),
			wantCode: serviceerror.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, err := DefaultHandlers(StaticTokenProvider("token"), tt.retry, tt.redirect)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, serviceerror.HasCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)

			kinds := make([]HandlerKind, 0, len(handlers))
			for _, h := range handlers {
				kinds = append(kinds, h.Kind())
			}
			assert.Equal(t, tt.wantKinds, kinds)
		})
	}
}
