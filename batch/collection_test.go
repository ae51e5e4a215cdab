package batch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kroma-labs/graph-go/serviceerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func batchSizes(posts []requestEnvelope) []int {
	sizes := make([]int, 0, len(posts))
	for _, env := range posts {
		sizes = append(sizes, len(env.Requests))
	}
	return sizes
}

func TestRequestContentCollection_AddStep(t *testing.T) {
	c := NewRequestContentCollection(nil)
	require.NoError(t, c.AddStep(mustStep(t, "1", "/me")))

	assert.ErrorIs(t, c.AddStep(mustStep(t, "1", "/me")), ErrDuplicateStepID)
	assert.ErrorIs(t, c.AddStep(mustStep(t, "2", "/me", "missing")), ErrInvalidDependsOn)
	assert.ErrorIs(t, c.AddStep(nil), ErrInvalidStep)

	id, err := c.AddRequest(newRequest(t, http.MethodGet, "/me/drive"), "1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 2, c.Len())
}

func TestRequestContentCollection_Batches(t *testing.T) {
	tests := []struct {
		name      string
		build     func(t *testing.T, c *RequestContentCollection)
		wantSizes []int
		wantErr   error
	}{
		{
			name: "given no steps, then returns no batches",
			build: func(*testing.T, *RequestContentCollection) {
			},
			wantSizes: []int{},
		},
		{
			name: "given independent steps, then fills batches of twenty",
			build: func(t *testing.T, c *RequestContentCollection) {
				for i := range 45 {
					require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint(i), "/users")))
				}
			},
			wantSizes: []int{20, 20, 5},
		},
		{
			name: "given a chain that does not fit the open batch, then starts a new batch for it",
			build: func(t *testing.T, c *RequestContentCollection) {
				for i := range 15 {
					require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint("s", i), "/users")))
				}
				require.NoError(t, c.AddStep(mustStep(t, "c0", "/me")))
				for i := 1; i < 10; i++ {
					require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint("c", i), "/me", fmt.Sprint("c", i-1))))
				}
			},
			wantSizes: []int{15, 10},
		},
		{
			name: "given a chain longer than a batch, then fails with ErrMaxStepsExceeded",
			build: func(t *testing.T, c *RequestContentCollection) {
				require.NoError(t, c.AddStep(mustStep(t, "c0", "/me")))
				for i := 1; i <= MaxSteps; i++ {
					require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint("c", i), "/me", fmt.Sprint("c", i-1))))
				}
			},
			wantErr: ErrMaxStepsExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewRequestContentCollection(newFakeSender(t, echoResponder))
			tt.build(t, c)

			batches, err := c.Batches()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, serviceerror.HasCode(err, serviceerror.CodeMaximumValueExceeded))
				return
			}
			require.NoError(t, err)

			sizes := make([]int, 0, len(batches))
			for _, b := range batches {
				sizes = append(sizes, b.Len())
				assert.NoError(t, b.Validate())
			}
			assert.Equal(t, tt.wantSizes, sizes)
		})
	}
}

func TestRequestContentCollection_Batches_KeepsDependenciesTogether(t *testing.T) {
	c := NewRequestContentCollection(nil)
	require.NoError(t, c.AddStep(mustStep(t, "root", "/me")))
	for i := range 25 {
		require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint("s", i), "/users")))
	}
	require.NoError(t, c.AddStep(mustStep(t, "leaf", "/me/drive", "root")))

	batches, err := c.Batches()
	require.NoError(t, err)
	require.Len(t, batches, 2)

	var ids []string
	for _, s := range batches[0].Steps() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, "root", ids[0])
	assert.Equal(t, "leaf", ids[1], "dependent steps share the first batch")
	assert.Equal(t, 20, batches[0].Len())
	assert.Equal(t, 7, batches[1].Len())
}

func TestRequestContentCollection_Post(t *testing.T) {
	sender := newFakeSender(t, echoResponder)
	c := NewRequestContentCollection(sender)
	for i := range 45 {
		require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint(i), "/users")))
	}

	resp, err := c.Post(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{20, 20, 5}, batchSizes(sender.recorded()))
	assert.Len(t, resp.Contents(), 3)

	codes, err := resp.StatusCodes()
	require.NoError(t, err)
	assert.Len(t, codes, 45)

	all, err := resp.Responses()
	require.NoError(t, err)
	assert.Len(t, all, 45)

	step, err := resp.ResponseByID("44")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"44"}`, readAll(t, step))

	_, err = resp.ResponseByID("missing")
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestRequestContentCollection_Post_PartialFailure(t *testing.T) {
	sender := newFakeSender(t, func(req *http.Request, env requestEnvelope) (*http.Response, error) {
		for _, item := range env.Requests {
			if item.ID == "fail-a" || item.ID == "fail-b" {
				return jsonResponse(http.StatusServiceUnavailable,
					`{"error":{"code":"serviceNotAvailable","message":"try later"}}`), nil
			}
		}
		return echoResponder(req, env)
	})

	c := NewRequestContentCollection(sender)
	add := func(prefix string, n int) {
		for i := range n {
			require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint(prefix, i), "/users")))
		}
	}
	require.NoError(t, c.AddStep(mustStep(t, "fail-a", "/users")))
	add("a", 19)
	add("ok", 20)
	require.NoError(t, c.AddStep(mustStep(t, "fail-b", "/users")))

	resp, err := c.Post(context.Background())
	require.Error(t, err)
	require.NotNil(t, resp)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "batch 1:")
	assert.Contains(t, errs[1].Error(), "batch 3:")
	assert.True(t, serviceerror.HasCode(errs[0], "serviceNotAvailable"))
	assert.Equal(t, http.StatusServiceUnavailable, serviceerror.StatusCode(errs[1]))

	codes, err := resp.StatusCodes()
	require.NoError(t, err)
	assert.Len(t, codes, 20, "the successful batch is still returned")
	assert.Contains(t, codes, "ok0")
}

func TestRequestContentCollection_Post_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	sender := newFakeSender(t, func(req *http.Request, env requestEnvelope) (*http.Response, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return echoResponder(req, env)
	})

	c := NewRequestContentCollection(sender, WithConcurrency(2))
	for i := range 5 * MaxSteps {
		require.NoError(t, c.AddStep(mustStep(t, fmt.Sprint(i), "/users")))
	}

	_, err := c.Post(context.Background())
	require.NoError(t, err)

	assert.Len(t, sender.recorded(), 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRequestContentCollection_Post_CancelledContext(t *testing.T) {
	c := NewRequestContentCollection(newFakeSender(t, echoResponder))
	require.NoError(t, c.AddStep(mustStep(t, "1", "/me")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := c.Post(ctx)
	require.NotNil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, resp.Contents())
}

func TestWithConcurrency(t *testing.T) {
	assert.Equal(t, DefaultConcurrency, NewRequestContentCollection(nil).concurrency)
	assert.Equal(t, 8, NewRequestContentCollection(nil, WithConcurrency(8)).concurrency)
	assert.Equal(t, DefaultConcurrency, NewRequestContentCollection(nil, WithConcurrency(0)).concurrency)
}
