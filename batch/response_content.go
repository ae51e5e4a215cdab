package batch

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/kroma-labs/graph-go/serviceerror"
)

const msgInvalidBatchResponse = "The batch response body is not a valid batch document."

// responseEnvelope is the wire form of a batch response body.
type responseEnvelope struct {
	Responses []responseItem `json:"responses"`
	NextLink  string         `json:"@odata.nextLink,omitempty"`
}

type responseItem struct {
	ID      string            `json:"id"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// ResponseContent gives access to the per-step responses of a batch call.
// The body is parsed on first use. Responses are matched by id, so the
// order the service lists them in does not matter.
//
// Accessors are safe for concurrent use. Each call returns fresh
// *http.Response values whose bodies can be read independently.
type ResponseContent struct {
	resp     *http.Response
	requests map[string]*http.Request

	once   sync.Once
	parsed responseEnvelope
	index  map[string]int
	err    error
}

// NewResponseContent wraps the response of a $batch call.
func NewResponseContent(resp *http.Response) *ResponseContent {
	return newResponseContent(resp, nil)
}

func newResponseContent(resp *http.Response, requests map[string]*http.Request) *ResponseContent {
	return &ResponseContent{resp: resp, requests: requests}
}

// Response returns the physical batch response. Its body stays readable
// after parsing.
func (c *ResponseContent) Response() *http.Response {
	return c.resp
}

func (c *ResponseContent) parse() error {
	c.once.Do(func() {
		if c.resp == nil || c.resp.Body == nil {
			c.err = serviceerror.New(serviceerror.CodeGeneralException, msgInvalidBatchResponse)
			return
		}

		raw, err := io.ReadAll(c.resp.Body)
		_ = c.resp.Body.Close()
		c.resp.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			c.err = serviceerror.FromTransportError(err)
			return
		}

		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &c.parsed); err != nil {
				c.err = serviceerror.Wrap(err, serviceerror.CodeGeneralException, msgInvalidBatchResponse)
				return
			}
		}

		c.index = make(map[string]int, len(c.parsed.Responses))
		for i, item := range c.parsed.Responses {
			c.index[item.ID] = i
		}
	})
	return c.err
}

// ResponseByID returns the response of step id. An id with no response
// fails with ErrStepNotFound.
func (c *ResponseContent) ResponseByID(id string) (*http.Response, error) {
	if err := c.parse(); err != nil {
		return nil, err
	}

	i, ok := c.index[id]
	if !ok {
		return nil, stepNotFound(id)
	}
	return c.build(c.parsed.Responses[i]), nil
}

// Responses returns every step response keyed by id.
func (c *ResponseContent) Responses() (map[string]*http.Response, error) {
	if err := c.parse(); err != nil {
		return nil, err
	}

	out := make(map[string]*http.Response, len(c.parsed.Responses))
	for _, item := range c.parsed.Responses {
		out[item.ID] = c.build(item)
	}
	return out, nil
}

// StatusCodes returns the status of every step keyed by id.
func (c *ResponseContent) StatusCodes() (map[string]int, error) {
	if err := c.parse(); err != nil {
		return nil, err
	}

	out := make(map[string]int, len(c.parsed.Responses))
	for _, item := range c.parsed.Responses {
		out[item.ID] = item.Status
	}
	return out, nil
}

// NextLink returns the @odata.nextLink of the batch response, if any.
func (c *ResponseContent) NextLink() (string, error) {
	if err := c.parse(); err != nil {
		return "", err
	}
	return c.parsed.NextLink, nil
}

// Decode unmarshals the JSON body of step id into v. A step that did not
// succeed is returned as a *serviceerror.ServiceError translated from its
// own status and body. An empty body leaves v untouched.
func (c *ResponseContent) Decode(id string, v any) error {
	resp, err := c.ResponseByID(id)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return serviceerror.FromResponse(resp)
	}

	body, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return serviceerror.Wrap(err, serviceerror.CodeGeneralException,
			fmt.Sprintf("unable to decode the body of step %q", id))
	}
	return nil
}

func (c *ResponseContent) build(item responseItem) *http.Response {
	header := make(http.Header, len(item.Headers))
	for k, v := range item.Headers {
		header.Set(k, v)
	}
	body := decodeBody(item.Body, header.Get("Content-Type"))

	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", item.Status, http.StatusText(item.Status)),
		StatusCode:    item.Status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       c.requests[item.ID],
	}
	if c.resp != nil {
		resp.Proto = c.resp.Proto
		resp.ProtoMajor = c.resp.ProtoMajor
		resp.ProtoMinor = c.resp.ProtoMinor
	}
	return resp
}

// decodeBody turns a step body back into the bytes the step would have
// received on its own. Objects and arrays are JSON already. A string body
// is base64 for binary content types and plain text otherwise.
func decodeBody(raw json.RawMessage, contentType string) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '"' || isJSON(contentType) {
		return trimmed
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return trimmed
	}

	mt := mediaType(contentType)
	if mt == "" || strings.HasPrefix(mt, "text/") {
		return []byte(s)
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}

func stepNotFound(id string) error {
	return serviceerror.Wrap(ErrStepNotFound, serviceerror.CodeItemNotFound,
		fmt.Sprintf("the batch response has no step with id %q", id))
}
