package httpclient

import (
	"net/http"
	"slices"
)

// RetryClassifier decides whether a response should be retried.
//
// Only responses are classified. Transport faults are never retried by the
// retry handler; they surface to the caller as errors.
//
// Example classifier that also retries 502:
//
//	opts := httpclient.DefaultRetryOptions()
//	opts.Classifier = func(resp *http.Response) bool {
//	    return resp.StatusCode == http.StatusBadGateway || httpclient.DefaultRetryClassifier(resp)
//	}
type RetryClassifier func(resp *http.Response) bool

// DefaultRetryClassifier retries the statuses the service uses for
// throttling and transient unavailability:
//
//   - 429 Too Many Requests
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// Everything else, redirects included, is returned as-is.
func DefaultRetryClassifier(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// StatusCodeClassifier retries exactly the given status codes.
func StatusCodeClassifier(codes ...int) RetryClassifier {
	return func(resp *http.Response) bool {
		return resp != nil && slices.Contains(codes, resp.StatusCode)
	}
}

// NeverRetryClassifier never retries.
func NeverRetryClassifier() RetryClassifier {
	return func(_ *http.Response) bool { return false }
}
