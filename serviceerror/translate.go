package serviceerror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// FromResponse translates a non-success response into a ServiceError.
//
// The body is read fully and closed; resp.Body is replaced with a reader over
// the same bytes so callers can still inspect it. A JSON error envelope is
// parsed into Err. Anything else falls back to itemNotFound for 404 and
// generalException otherwise, with the body text kept in RawResponseBody.
func FromResponse(resp *http.Response) *ServiceError {
	if resp == nil {
		return New(CodeGeneralException, MsgUnexpectedExceptionResponse)
	}

	var raw []byte
	if resp.Body != nil {
		// A failed read still leaves whatever bytes arrived.
		raw, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(raw))
	}

	svcErr := &ServiceError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	if len(raw) > 0 {
		svcErr.RawResponseBody = string(raw)
	}

	model := parseEnvelope(resp.Header.Get("Content-Type"), raw)
	if model == nil {
		if resp.StatusCode == http.StatusNotFound {
			model = &Error{Code: CodeItemNotFound}
		} else {
			model = &Error{Code: CodeGeneralException, Message: MsgUnexpectedExceptionResponse}
		}
	}

	if model.ThrowSite == "" {
		model.ThrowSite = resp.Header.Get(HeaderThrowSite)
	}
	if id := resp.Header.Get(HeaderClientRequestID); id != "" {
		model.ClientRequestID = id
	}

	svcErr.Err = model
	return svcErr
}

// FromTransportError translates an error returned by the transport.
//
// Cancellation is returned unchanged so callers can tell it apart from a
// failure. A ServiceError already in the chain is returned as is. Timeouts
// map to the timeout code and everything else to generalException; both
// keep err as the cause.
func FromTransportError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if isTimeout(err) {
		return Wrap(err, CodeTimeout, MsgRequestTimedOut)
	}

	return Wrap(err, CodeGeneralException, MsgUnexpectedExceptionOnSend)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseEnvelope returns the error model from body, or nil when the body is
// not a JSON error envelope.
func parseEnvelope(contentType string, body []byte) *Error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	if !isJSONMediaType(contentType, trimmed) {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil
	}
	return env.Error
}

func isJSONMediaType(contentType string, body []byte) bool {
	if contentType == "" {
		return body[0] == '{'
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
