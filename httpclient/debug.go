package httpclient

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// debugLogger is the logger WithDebug uses when no logger is given.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// redacted replaces credential header values in logs.
const redacted = "[REDACTED]"

// sensitiveHeaders are never logged in clear.
var sensitiveHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie", "Set-Cookie"}

// NewLoggingHandler returns a stage that logs every hop at debug level.
// Credential headers are redacted. Place it last so each retry and
// redirect hop is logged separately.
func NewLoggingHandler(logger zerolog.Logger) Handler {
	return &loggingHandler{logger: logger}
}

type loggingHandler struct {
	logger zerolog.Logger
}

func (h *loggingHandler) Kind() HandlerKind { return KindLogging }

func (h *loggingHandler) Wrap(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		logRequest(h.logger, req)

		resp, err := next.RoundTrip(req)
		if err != nil {
			h.logger.Debug().
				Err(err).
				Str("method", req.Method).
				Str("url", req.URL.Redacted()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request failed")
			return nil, err
		}

		logResponse(h.logger, resp, time.Since(start))
		return resp, nil
	})
}

// redactHeaders returns a copy of h with credential values replaced.
func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range sensitiveHeaders {
		if _, ok := out[k]; ok {
			out[k] = []string{redacted}
		}
	}
	return out
}

// curlCommand renders req as a cURL command with credentials redacted.
// The body is not included.
//
//	curl -X POST 'https://graph.microsoft.com/v1.0/me/sendMail' -H 'Authorization: [REDACTED]'
func curlCommand(req *http.Request) string {
	parts := []string{"curl"}

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}
	parts = append(parts, fmt.Sprintf("'%s'", req.URL.String()))

	headers := redactHeaders(req.Header)
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range headers[k] {
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, strings.ReplaceAll(v, "'", `'\''`)))
		}
	}

	return strings.Join(parts, " ")
}

// logRequest logs the request details using zerolog.
func logRequest(logger zerolog.Logger, req *http.Request) {
	e := logger.Debug()
	if !e.Enabled() {
		return
	}
	e.Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("client_request_id", req.Header.Get("client-request-id")).
		Str("curl", curlCommand(req)).
		Msg("HTTP request")
}

// logResponse logs the response details using zerolog.
func logResponse(logger zerolog.Logger, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Int("status", resp.StatusCode).
		Str("request_id", resp.Header.Get("request-id")).
		Dur("duration", duration).
		Int64("content_length", resp.ContentLength).
		Msg("HTTP response")
}
