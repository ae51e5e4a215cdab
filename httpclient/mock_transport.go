package httpclient

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// MockTransport is a terminal http.RoundTripper for tests. It answers
// from stubs and records every request it receives, body included.
//
//	mock := httpclient.NewMockTransport().
//	    StubSequence(
//	        httpclient.MockResponse(http.StatusServiceUnavailable, "").WithHeader("Retry-After", "0"),
//	        httpclient.MockResponse(http.StatusOK, `{"id":"1"}`),
//	    )
//	client, _ := httpclient.New(
//	    httpclient.WithBaseURL(httpclient.DefaultBaseURL),
//	    httpclient.WithoutAuthentication(),
//	    httpclient.WithTransport(mock),
//	)
type MockTransport struct {
	mu          sync.Mutex
	stubs       []stub
	sequence    []*StubbedResponse
	defaultResp *StubbedResponse
	defaultErr  error
	requests    []*http.Request
	bodies      [][]byte
	requestHook func(*http.Request)
}

type stub struct {
	matcher  func(*http.Request) bool
	response *StubbedResponse
	err      error
}

// StubbedResponse is a canned response. It is copied on every use.
type StubbedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// MockResponse returns a StubbedResponse with the given status and body.
func MockResponse(statusCode int, body string) *StubbedResponse {
	return &StubbedResponse{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       []byte(body),
	}
}

// WithHeader adds a response header.
func (s *StubbedResponse) WithHeader(key, value string) *StubbedResponse {
	s.Header.Add(key, value)
	return s
}

func (s *StubbedResponse) build(req *http.Request) *http.Response {
	return &http.Response{
		Status:        http.StatusText(s.StatusCode),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// NewMockTransport creates a new MockTransport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse answers every otherwise unmatched request with the given
// status and body.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	return m.StubDefault(MockResponse(statusCode, body))
}

// StubDefault answers every otherwise unmatched request with resp.
func (m *MockTransport) StubDefault(resp *StubbedResponse) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = resp
	return m
}

// StubError fails every otherwise unmatched request with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = err
	return m
}

// StubSequence queues responses returned one per request, in order,
// before stubs and defaults are consulted.
func (m *MockTransport) StubSequence(responses ...*StubbedResponse) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = append(m.sequence, responses...)
	return m
}

// StubPath answers requests for the exact URL path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, MockResponse(statusCode, body))
}

// StubPathRegex answers requests whose URL path matches pattern.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, MockResponse(statusCode, body))
}

// StubFunc answers requests matching the predicate with resp. The first
// matching stub wins.
func (m *MockTransport) StubFunc(matcher func(*http.Request) bool, resp *StubbedResponse) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{matcher: matcher, response: resp})
	return m
}

// StubFuncError fails requests matching the predicate with err.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{matcher: matcher, err: err})
	return m
}

// OnRequest sets a hook that is called for each request before it is
// answered.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)
	hook := m.requestHook
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sequence) > 0 {
		next := m.sequence[0]
		m.sequence = m.sequence[1:]
		return next.build(req), nil
	}

	for _, s := range m.stubs {
		if s.matcher(req) {
			if s.err != nil {
				return nil, s.err
			}
			return s.response.build(req), nil
		}
	}

	if m.defaultErr != nil {
		return nil, m.defaultErr
	}
	if m.defaultResp != nil {
		return m.defaultResp.build(req), nil
	}

	return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestBodies returns the body sent with each request, nil for none.
func (m *MockTransport) RequestBodies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte{}, m.bodies...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears all recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.bodies = nil
	m.stubs = nil
	m.sequence = nil
	m.defaultResp = nil
	m.defaultErr = nil
	m.requestHook = nil
}
