package batch

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/kroma-labs/graph-go/serviceerror"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is how many batches a collection posts at once.
const DefaultConcurrency = 4

// CollectionOption configures a RequestContentCollection.
type CollectionOption func(*RequestContentCollection)

// WithConcurrency sets how many batches are in flight at once. Values below
// 1 keep the default.
func WithConcurrency(n int) CollectionOption {
	return func(c *RequestContentCollection) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// RequestContentCollection accepts any number of steps and posts them as
// as many batches as needed. Steps linked through dependsOn always land in
// the same batch, so a dependency chain longer than MaxSteps is rejected.
type RequestContentCollection struct {
	sender      Sender
	concurrency int
	steps       []*Step
	ids         map[string]struct{}
}

// NewRequestContentCollection returns an empty collection sent through
// sender.
func NewRequestContentCollection(sender Sender, opts ...CollectionOption) *RequestContentCollection {
	c := &RequestContentCollection{
		sender:      sender,
		concurrency: DefaultConcurrency,
		ids:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddStep appends step. Ids are unique across the whole collection and
// dependsOn must name earlier steps.
func (c *RequestContentCollection) AddStep(step *Step) error {
	if err := step.validate(); err != nil {
		return err
	}
	if _, dup := c.ids[step.ID]; dup {
		return duplicateStepID(step.ID)
	}
	for _, dep := range step.DependsOn {
		if _, ok := c.ids[dep]; !ok {
			return invalidDependsOn(step.ID, dep)
		}
	}

	c.steps = append(c.steps, step)
	c.ids[step.ID] = struct{}{}
	return nil
}

// AddRequest appends req with a generated id and returns the id.
func (c *RequestContentCollection) AddRequest(req *http.Request, dependsOn ...string) (string, error) {
	step, err := NewStep(uuid.NewString(), req, dependsOn...)
	if err != nil {
		return "", err
	}
	if err := c.AddStep(step); err != nil {
		return "", err
	}
	return step.ID, nil
}

// Len returns the number of steps across all batches.
func (c *RequestContentCollection) Len() int {
	return len(c.steps)
}

// Batches splits the steps into request contents of at most MaxSteps each.
func (c *RequestContentCollection) Batches() ([]*RequestContent, error) {
	parts, err := c.partition()
	if err != nil {
		return nil, err
	}

	out := make([]*RequestContent, 0, len(parts))
	for _, part := range parts {
		content, err := NewRequestContent(c.sender, part...)
		if err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	return out, nil
}

// partition groups steps connected through dependsOn and packs the groups
// into batches in insertion order.
func (c *RequestContentCollection) partition() ([][]*Step, error) {
	pos := make(map[string]int, len(c.steps))
	for i, s := range c.steps {
		pos[s.ID] = i
	}

	parent := make([]int, len(c.steps))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i, s := range c.steps {
		for _, dep := range s.DependsOn {
			j, ok := pos[dep]
			if !ok {
				return nil, invalidDependsOn(s.ID, dep)
			}
			if ri, rj := find(i), find(j); ri != rj {
				parent[max(ri, rj)] = min(ri, rj)
			}
		}
	}

	var roots []int
	groups := make(map[int][]*Step)
	for i, s := range c.steps {
		r := find(i)
		if _, seen := groups[r]; !seen {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], s)
	}

	var (
		parts   [][]*Step
		current []*Step
	)
	for _, r := range roots {
		group := groups[r]
		if len(group) > MaxSteps {
			return nil, serviceerror.Wrap(ErrMaxStepsExceeded, serviceerror.CodeMaximumValueExceeded,
				fmt.Sprintf(serviceerror.MsgMaximumValueExceededFormat,
					fmt.Sprintf("Dependency chain of step %q", group[0].ID), MaxSteps))
		}
		if len(current)+len(group) > MaxSteps {
			parts = append(parts, current)
			current = nil
		}
		current = append(current, group...)
	}
	if len(current) > 0 {
		parts = append(parts, current)
	}
	return parts, nil
}

// Post sends every batch, at most the configured number at once. Batches
// that fail do not stop the others: the returned response holds every
// batch that succeeded and the error combines every failure.
func (c *RequestContentCollection) Post(ctx context.Context) (*CollectionResponse, error) {
	batches, err := c.Batches()
	if err != nil {
		return nil, err
	}

	results := make([]*ResponseContent, len(batches))
	errs := make([]error, len(batches))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, content := range batches {
		g.Go(func() error {
			resp, err := content.Post(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("batch %d: %w", i+1, err)
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	out := &CollectionResponse{}
	for _, r := range results {
		if r != nil {
			out.contents = append(out.contents, r)
		}
	}
	return out, multierr.Combine(errs...)
}

// CollectionResponse merges the responses of every posted batch.
type CollectionResponse struct {
	contents []*ResponseContent
}

// Contents returns the per-batch responses in batch order.
func (r *CollectionResponse) Contents() []*ResponseContent {
	return slices.Clone(r.contents)
}

// ResponseByID returns the response of step id from whichever batch holds
// it.
func (r *CollectionResponse) ResponseByID(id string) (*http.Response, error) {
	for _, content := range r.contents {
		if err := content.parse(); err != nil {
			continue
		}
		if _, ok := content.index[id]; ok {
			return content.ResponseByID(id)
		}
	}
	return nil, stepNotFound(id)
}

// Responses returns every step response keyed by id. Batches whose body
// cannot be parsed are reported in the error and skipped.
func (r *CollectionResponse) Responses() (map[string]*http.Response, error) {
	out := make(map[string]*http.Response)
	var errs error
	for _, content := range r.contents {
		part, err := content.Responses()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for id, resp := range part {
			out[id] = resp
		}
	}
	return out, errs
}

// StatusCodes returns the status of every step keyed by id.
func (r *CollectionResponse) StatusCodes() (map[string]int, error) {
	out := make(map[string]int)
	var errs error
	for _, content := range r.contents {
		part, err := content.StatusCodes()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for id, status := range part {
			out[id] = status
		}
	}
	return out, errs
}
