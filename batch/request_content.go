package batch

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/kroma-labs/graph-go/serviceerror"
)

// Sender sends the physical batch request and knows the service root step
// URLs are relative to. *httpclient.Client implements it.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
	BaseURL() *url.URL
}

// RequestContent is an ordered set of at most MaxSteps steps sent as one
// $batch call.
//
//	content, _ := batch.NewRequestContent(client)
//	meID, _ := content.AddRequest(meReq)
//	_, _ = content.AddRequest(sendMailReq, meID)
//
//	resp, err := content.Post(ctx)
//	if err != nil {
//	    return err
//	}
//	var me User
//	err = resp.Decode(meID, &me)
//
// A RequestContent is not safe for concurrent mutation.
type RequestContent struct {
	sender Sender
	steps  []*Step
}

// requestEnvelope is the wire form of a batch request body.
type requestEnvelope struct {
	Requests []requestItem `json:"requests"`
}

type requestItem struct {
	ID        string            `json:"id"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      json.RawMessage   `json:"body,omitempty"`
	DependsOn []string          `json:"dependsOn,omitempty"`
}

// NewRequestContent returns a batch sent through sender, holding steps in
// order.
func NewRequestContent(sender Sender, steps ...*Step) (*RequestContent, error) {
	c := &RequestContent{sender: sender}
	for _, step := range steps {
		if err := c.AddStep(step); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddStep appends step. It fails when the batch is full, when the id is
// taken, or when a dependsOn id is not an earlier step.
func (c *RequestContent) AddStep(step *Step) error {
	if err := step.validate(); err != nil {
		return err
	}
	if len(c.steps) >= MaxSteps {
		return maxStepsExceeded()
	}
	if c.indexOf(step.ID) >= 0 {
		return duplicateStepID(step.ID)
	}
	for _, dep := range step.DependsOn {
		if c.indexOf(dep) < 0 {
			return invalidDependsOn(step.ID, dep)
		}
	}

	c.steps = append(c.steps, step)
	return nil
}

// AddRequest appends req as a step with a generated id and returns the id.
func (c *RequestContent) AddRequest(req *http.Request, dependsOn ...string) (string, error) {
	step, err := NewStep(uuid.NewString(), req, dependsOn...)
	if err != nil {
		return "", err
	}
	if err := c.AddStep(step); err != nil {
		return "", err
	}
	return step.ID, nil
}

// RemoveStep removes the step with the given id and drops it from the
// dependsOn lists of the remaining steps. It reports whether a step was
// removed.
func (c *RequestContent) RemoveStep(id string) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}

	c.steps = slices.Delete(c.steps, i, i+1)
	for _, s := range c.steps {
		s.DependsOn = slices.DeleteFunc(s.DependsOn, func(dep string) bool { return dep == id })
	}
	return true
}

// Steps returns the steps in order.
func (c *RequestContent) Steps() []*Step {
	return slices.Clone(c.steps)
}

// Len returns the number of steps.
func (c *RequestContent) Len() int {
	return len(c.steps)
}

func (c *RequestContent) indexOf(id string) int {
	return slices.IndexFunc(c.steps, func(s *Step) bool { return s.ID == id })
}

// Validate re-checks every rule AddStep enforces. Steps may have been
// changed through the pointers returned by Steps.
func (c *RequestContent) Validate() error {
	if len(c.steps) > MaxSteps {
		return maxStepsExceeded()
	}

	seen := make(map[string]struct{}, len(c.steps))
	for _, s := range c.steps {
		if err := s.validate(); err != nil {
			return err
		}
		if _, dup := seen[s.ID]; dup {
			return duplicateStepID(s.ID)
		}
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				return invalidDependsOn(s.ID, dep)
			}
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Encode returns the JSON batch document. Step URLs are made relative to
// the sender's base URL.
func (c *RequestContent) Encode() ([]byte, error) {
	var base *url.URL
	if c.sender != nil {
		base = c.sender.BaseURL()
	}
	return c.encode(base)
}

func (c *RequestContent) encode(base *url.URL) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	env := requestEnvelope{Requests: make([]requestItem, 0, len(c.steps))}
	for _, s := range c.steps {
		item, err := encodeStep(s, base)
		if err != nil {
			return nil, err
		}
		env.Requests = append(env.Requests, item)
	}
	return json.Marshal(env)
}

func encodeStep(s *Step, base *url.URL) (requestItem, error) {
	target, err := relativeURL(s.Request.URL, base)
	if err != nil {
		return requestItem{}, err
	}

	method := s.Request.Method
	if method == "" {
		method = http.MethodGet
	}

	item := requestItem{
		ID:        s.ID,
		Method:    method,
		URL:       target,
		DependsOn: s.DependsOn,
	}

	if len(s.Request.Header) > 0 {
		item.Headers = make(map[string]string, len(s.Request.Header))
		for k, vs := range s.Request.Header {
			item.Headers[k] = strings.Join(vs, ", ")
		}
	}

	body, err := readBody(s.Request)
	if err != nil {
		return requestItem{}, serviceerror.FromTransportError(err)
	}
	if len(body) > 0 {
		item.Body, err = encodeBody(body, s.Request.Header.Get("Content-Type"))
		if err != nil {
			return requestItem{}, err
		}
	}
	return item, nil
}

// relativeURL returns u as a path relative to the service root, query
// included. Absolute URLs must point under base.
func relativeURL(u *url.URL, base *url.URL) (string, error) {
	path := u.EscapedPath()

	if u.IsAbs() {
		if base == nil || !strings.EqualFold(u.Host, base.Host) {
			return "", invalidStepURL(u)
		}
		rest, ok := strings.CutPrefix(path, strings.TrimSuffix(base.EscapedPath(), "/"))
		if !ok || (rest != "" && rest[0] != '/') {
			return "", invalidStepURL(u)
		}
		path = rest
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, nil
}

func invalidStepURL(u *url.URL) error {
	return serviceerror.Newf(serviceerror.CodeInvalidArgument,
		serviceerror.MsgInvalidArgumentFormat, u.Redacted(), "a batch step URL")
}

// readBody returns the request body and leaves the request able to send it
// again.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return data, nil
}

// encodeBody embeds JSON bodies as JSON and everything else as a base64
// string.
func encodeBody(body []byte, contentType string) (json.RawMessage, error) {
	if isJSON(contentType) && json.Valid(body) {
		return json.RawMessage(body), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(body))
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

func isJSON(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// NewRequest returns the physical POST {base}/$batch request.
func (c *RequestContent) NewRequest(ctx context.Context) (*http.Request, error) {
	if c.sender == nil {
		return nil, serviceerror.New(serviceerror.CodeInvalidRequest, "A batch needs a sender to be posted.")
	}

	base := c.sender.BaseURL()
	body, err := c.encode(base)
	if err != nil {
		return nil, err
	}

	target := *base
	target.Path = strings.TrimSuffix(base.Path, "/") + "/$batch"
	target.RawPath = ""
	target.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, serviceerror.Wrap(err, serviceerror.CodeInvalidRequest, serviceerror.MsgRequestURLMissing)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Post sends the batch and returns its response content. A non-success
// status on the batch call itself is returned as a
// *serviceerror.ServiceError; failed steps are ordinary step responses.
func (c *RequestContent) Post(ctx context.Context) (*ResponseContent, error) {
	req, err := c.NewRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serviceerror.FromResponse(resp)
	}

	return newResponseContent(resp, c.stepRequests()), nil
}

func (c *RequestContent) stepRequests() map[string]*http.Request {
	out := make(map[string]*http.Request, len(c.steps))
	for _, s := range c.steps {
		out[s.ID] = s.Request
	}
	return out
}
