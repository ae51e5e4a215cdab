package httpclient

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/kroma-labs/graph-go/serviceerror"
)

// Response wraps http.Response with a cached body and status helpers.
//
//	var user User
//	resp, err := client.Request("GetUser").Decode(&user).Get(ctx, "/users/"+id)
//	if serviceerror.HasCode(err, serviceerror.CodeItemNotFound) {
//	    // resp is still available, resp.StatusCode == 404
//	}
type Response struct {
	// Response embeds the standard http.Response.
	*http.Response

	// body is the cached response body, read on first Body() call.
	body     []byte
	bodyRead bool

	// result holds the decoded success response, set by Decode.
	result any
}

// Body returns the response body as bytes. The body is read and closed on
// first access; later calls return the cached value.
func (r *Response) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}
	if r.Response.Body == nil {
		r.bodyRead = true
		return nil, nil
	}

	defer r.Response.Body.Close()
	body, err := io.ReadAll(r.Response.Body)
	if err != nil {
		return nil, err
	}

	r.body = body
	r.bodyRead = true
	return r.body, nil
}

// String returns the response body as a string.
func (r *Response) String() (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Result returns the Decode target, populated for 2xx responses.
func (r *Response) Result() any {
	return r.result
}

// IsSuccess returns true if the response status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the response status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// decode reads the body into result. Empty bodies, as on 204, decode to
// nothing. A body that does not match result fails with generalException.
func (r *Response) decode() error {
	body, err := r.Body()
	if err != nil {
		return serviceerror.FromTransportError(err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, r.result); err != nil {
		return serviceerror.Wrap(err, serviceerror.CodeGeneralException, msgUndecodableBody)
	}
	return nil
}

const msgUndecodableBody = "Unable to decode the response body."
