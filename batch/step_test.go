package batch

import (
	"context"
	"net/http"
	"testing"

	"github.com/kroma-labs/graph-go/serviceerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, target, nil)
	require.NoError(t, err)
	return req
}

func TestNewStep(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		withReq   bool
		dependsOn []string
		wantErr   error
	}{
		{name: "given an id and a request, then returns the step", id: "1", withReq: true},
		{name: "given dependencies, then keeps them", id: "2", withReq: true, dependsOn: []string{"1"}},
		{name: "given an empty id, then fails with ErrInvalidStep", withReq: true, wantErr: ErrInvalidStep},
		{name: "given no request, then fails with ErrInvalidStep", id: "1", wantErr: ErrInvalidStep},
		{
			name:      "given a step depending on itself, then fails with ErrInvalidDependsOn",
			id:        "1",
			withReq:   true,
			dependsOn: []string{"1"},
			wantErr:   ErrInvalidDependsOn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.withReq {
				req = newRequest(t, http.MethodGet, "/me")
			}

			step, err := NewStep(tt.id, req, tt.dependsOn...)
			if tt.wantErr != nil {
				assert.Nil(t, step)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, serviceerror.HasCode(err, serviceerror.CodeInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, step.ID)
			assert.Same(t, req, step.Request)
			assert.Equal(t, len(tt.dependsOn), len(step.DependsOn))
		})
	}
}

func TestNewStep_CopiesDependsOn(t *testing.T) {
	deps := []string{"1"}
	step, err := NewStep("2", newRequest(t, http.MethodGet, "/me"), deps...)
	require.NoError(t, err)

	deps[0] = "changed"
	assert.Equal(t, []string{"1"}, step.DependsOn)
}

func TestMaxStepsExceeded(t *testing.T) {
	err := maxStepsExceeded()

	assert.ErrorIs(t, err, ErrMaxStepsExceeded)
	assert.True(t, serviceerror.HasCode(err, serviceerror.CodeMaximumValueExceeded))
	assert.Contains(t, err.Error(), "Number of batch request steps exceeds the maximum value of 20.")
}
