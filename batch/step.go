package batch

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/kroma-labs/graph-go/serviceerror"
)

// MaxSteps is the largest number of steps the service accepts in one batch.
const MaxSteps = 20

// Validation errors. They are returned wrapped in a
// *serviceerror.ServiceError, so both errors.Is and serviceerror.HasCode
// work on them.
var (
	// ErrMaxStepsExceeded is returned when a batch would hold more than
	// MaxSteps steps. Code: maximumValueExceeded.
	ErrMaxStepsExceeded = errors.New("batch: too many steps")

	// ErrDuplicateStepID is returned when two steps share an id.
	// Code: invalidRequest.
	ErrDuplicateStepID = errors.New("batch: duplicate step id")

	// ErrInvalidDependsOn is returned when a step depends on itself or on an
	// id that is not in the same batch. Code: invalidRequest.
	ErrInvalidDependsOn = errors.New("batch: invalid dependsOn")

	// ErrInvalidStep is returned for a step without id or request.
	// Code: invalidRequest.
	ErrInvalidStep = errors.New("batch: invalid step")

	// ErrStepNotFound is returned when a response has no entry for an id.
	// Code: itemNotFound.
	ErrStepNotFound = errors.New("batch: step not found")
)

// Step is one request inside a batch, addressed by ID.
type Step struct {
	// ID identifies the step within its batch. Responses carry the same id.
	ID string

	// Request is the logical request. Its URL is either relative to the
	// service root ("/me/messages") or absolute under the client's base URL.
	Request *http.Request

	// DependsOn lists ids that must complete before this step runs.
	DependsOn []string
}

// NewStep returns a validated step.
//
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/me", nil)
//	step, err := batch.NewStep("1", req)
func NewStep(id string, req *http.Request, dependsOn ...string) (*Step, error) {
	step := &Step{ID: id, Request: req, DependsOn: slices.Clone(dependsOn)}
	if err := step.validate(); err != nil {
		return nil, err
	}
	return step, nil
}

func (s *Step) validate() error {
	switch {
	case s == nil:
		return invalidStep("step is nil")
	case s.ID == "":
		return invalidStep("step id is empty")
	case s.Request == nil || s.Request.URL == nil:
		return invalidStep(fmt.Sprintf("step %q has no request", s.ID))
	case slices.Contains(s.DependsOn, s.ID):
		return invalidDependsOn(s.ID, s.ID)
	}
	return nil
}

func invalidStep(msg string) error {
	return serviceerror.Wrap(ErrInvalidStep, serviceerror.CodeInvalidRequest, msg)
}

func invalidDependsOn(id, dep string) error {
	return serviceerror.Wrap(ErrInvalidDependsOn, serviceerror.CodeInvalidRequest,
		fmt.Sprintf("step %q depends on %q, which is not an earlier step of the same batch", id, dep))
}

func duplicateStepID(id string) error {
	return serviceerror.Wrap(ErrDuplicateStepID, serviceerror.CodeInvalidRequest,
		fmt.Sprintf("a step with id %q already exists", id))
}

func maxStepsExceeded() error {
	return serviceerror.Wrap(ErrMaxStepsExceeded, serviceerror.CodeMaximumValueExceeded,
		fmt.Sprintf(serviceerror.MsgMaximumValueExceededFormat, "Number of batch request steps", MaxSteps))
}
