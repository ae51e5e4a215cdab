package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/kroma-labs/graph-go/serviceerror"
)

// RequestBuilder provides a fluent API for a single service call.
//
// Create a RequestBuilder using Client.Request():
//
//	resp, err := client.Request("CreateUser").
//	    Body(user).
//	    Decode(&created).
//	    Post(ctx, "/users")
//
// Non-2xx responses are returned together with a *serviceerror.ServiceError
// translated from the response body.
type RequestBuilder struct {
	client        *Client
	operationName string
	path          string
	pathParams    map[string]string
	queryParams   url.Values
	headers       http.Header
	body          io.Reader
	bodyErr       error
	contentType   string
	result        any
}

// Path sets the request path, relative to the client's base URL, or an
// absolute URL such as an @odata.nextLink. Parameters written as {name}
// are filled by PathParam.
func (rb *RequestBuilder) Path(path string) *RequestBuilder {
	rb.path = path
	return rb
}

// PathParam sets a path parameter value. The value is path-escaped.
//
//	client.Request("GetMessage").
//	    Path("/users/{user}/messages/{id}").
//	    PathParam("user", userID).
//	    PathParam("id", messageID).
//	    Get(ctx)
func (rb *RequestBuilder) PathParam(key, value string) *RequestBuilder {
	rb.pathParams[key] = value
	return rb
}

// Query sets a query parameter, e.g. Query("$select", "id,displayName").
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	if rb.queryParams == nil {
		rb.queryParams = make(url.Values)
	}
	rb.queryParams.Set(key, value)
	return rb
}

// Queries sets multiple query parameters.
func (rb *RequestBuilder) Queries(params map[string]string) *RequestBuilder {
	for k, v := range params {
		rb.Query(k, v)
	}
	return rb
}

// Header sets a single request header.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.headers.Set(key, value)
	return rb
}

// Headers sets multiple request headers.
func (rb *RequestBuilder) Headers(headers map[string]string) *RequestBuilder {
	for k, v := range headers {
		rb.headers.Set(k, v)
	}
	return rb
}

// Body sets the request body:
//   - string: text/plain
//   - []byte: application/octet-stream
//   - io.Reader: sent as-is, without a content type
//   - anything else: encoded as JSON
func (rb *RequestBuilder) Body(v any) *RequestBuilder {
	switch body := v.(type) {
	case nil:
	case string:
		rb.body = strings.NewReader(body)
		rb.contentType = "text/plain; charset=utf-8"
	case []byte:
		rb.body = bytes.NewReader(body)
		rb.contentType = "application/octet-stream"
	case io.Reader:
		rb.body = body
	default:
		return rb.BodyJSON(v)
	}
	return rb
}

// BodyJSON encodes v as the JSON request body.
func (rb *RequestBuilder) BodyJSON(v any) *RequestBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		rb.bodyErr = err
		return rb
	}
	rb.body = bytes.NewReader(data)
	rb.contentType = "application/json"
	return rb
}

// Decode sets the target a 2xx JSON response body is decoded into.
func (rb *RequestBuilder) Decode(v any) *RequestBuilder {
	rb.result = v
	return rb
}

// Get executes a GET request.
func (rb *RequestBuilder) Get(ctx context.Context, path ...string) (*Response, error) {
	return rb.Send(ctx, http.MethodGet, path...)
}

// Post executes a POST request.
func (rb *RequestBuilder) Post(ctx context.Context, path ...string) (*Response, error) {
	return rb.Send(ctx, http.MethodPost, path...)
}

// Put executes a PUT request.
func (rb *RequestBuilder) Put(ctx context.Context, path ...string) (*Response, error) {
	return rb.Send(ctx, http.MethodPut, path...)
}

// Patch executes a PATCH request.
func (rb *RequestBuilder) Patch(ctx context.Context, path ...string) (*Response, error) {
	return rb.Send(ctx, http.MethodPatch, path...)
}

// Delete executes a DELETE request.
func (rb *RequestBuilder) Delete(ctx context.Context, path ...string) (*Response, error) {
	return rb.Send(ctx, http.MethodDelete, path...)
}

// Build returns the request without sending it, e.g. to add it to a batch.
func (rb *RequestBuilder) Build(ctx context.Context, method string, path ...string) (*http.Request, error) {
	if len(path) > 0 {
		rb.path = path[0]
	}
	if rb.bodyErr != nil {
		return nil, rb.bodyErr
	}

	target, err := rb.buildURL()
	if err != nil {
		return nil, err
	}

	if rb.operationName != "" {
		ctx = contextWithOperation(ctx, rb.operationName)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rb.body)
	if err != nil {
		return nil, err
	}

	for k, v := range rb.headers {
		req.Header[k] = v
	}
	if rb.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", rb.contentType)
	}
	return req, nil
}

// Send executes the request with the given method.
func (rb *RequestBuilder) Send(ctx context.Context, method string, path ...string) (*Response, error) {
	req, err := rb.Build(ctx, method, path...)
	if err != nil {
		return nil, err
	}

	//nolint:bodyclose // Caller closes via Response
	httpResp, err := rb.client.Send(req.Context(), req)
	if err != nil {
		return nil, err
	}

	resp := &Response{Response: httpResp, result: rb.result}

	if !resp.IsSuccess() {
		return resp, serviceerror.FromResponse(httpResp)
	}

	if rb.result != nil {
		if err := resp.decode(); err != nil {
			return resp, err
		}
	}

	return resp, nil
}

// buildURL fills path parameters and appends query parameters. The result
// is relative unless the path was absolute; Client.Send resolves it.
func (rb *RequestBuilder) buildURL() (string, error) {
	path := rb.path
	for k, v := range rb.pathParams {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}
	if path == "" {
		return "", serviceerror.New(serviceerror.CodeInvalidRequest, serviceerror.MsgRequestURLMissing)
	}

	if len(rb.queryParams) == 0 {
		return path, nil
	}

	u, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range rb.queryParams {
		for _, vv := range v {
			q.Add(k, vv)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type operationKey struct{}

func contextWithOperation(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationKey{}, name)
}

func operationFromContext(ctx context.Context) string {
	name, _ := ctx.Value(operationKey{}).(string)
	return name
}
