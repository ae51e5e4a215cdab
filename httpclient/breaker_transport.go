package httpclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// errSyntheticFailure tells the breaker that a call failed even though the
// transport returned a response. The response is handed back unchanged.
var errSyntheticFailure = errors.New("synthetic failure")

// ignoredError carries a transport error the classifier does not count,
// such as a cancellation. The breaker treats it as a success.
type ignoredError struct{ err error }

func (e *ignoredError) Error() string { return e.err.Error() }
func (e *ignoredError) Unwrap() error { return e.err }

func countsAsSuccess(err error) bool {
	var ignored *ignoredError
	return err == nil || errors.As(err, &ignored)
}

// NewCircuitBreakerHandler returns a breaker stage named name. Breakers
// sharing a name and a Store share their state.
//
// If a distributed breaker cannot be created from cfg.Store, the stage
// falls back to an in-memory breaker.
func NewCircuitBreakerHandler(name string, cfg BreakerConfig) Handler {
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultBreakerClassifier
	}
	return &breakerHandler{name: name, cfg: cfg}
}

type breakerHandler struct {
	name string
	cfg  BreakerConfig
}

func (h *breakerHandler) Kind() HandlerKind { return KindCircuitBreaker }

func (h *breakerHandler) Wrap(next http.RoundTripper) http.RoundTripper {
	return h.wrapInstrumented(next, nil)
}

func (h *breakerHandler) wrapInstrumented(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	inst := instrumentsFrom(cfg)
	bc := h.cfg

	st := gobreaker.Settings{
		Name:         h.name,
		MaxRequests:  bc.MaxRequests,
		Interval:     bc.Interval,
		Timeout:      bc.Timeout,
		IsSuccessful: countsAsSuccess,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if bc.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
				return true
			}
			if counts.Requests < bc.FailureThreshold || counts.Requests == 0 {
				return false
			}
			return bc.FailureRatio > 0 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			inst.metrics.recordBreakerState(context.Background(), name, int64(to))
			inst.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	var cb circuitBreaker = gobreaker.NewCircuitBreaker[*http.Response](st)
	if bc.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[*http.Response](bc.Store, st)
		if err != nil {
			inst.logger.Error().Err(err).Str("breaker", h.name).
				Msg("distributed circuit breaker unavailable, using local state")
		} else {
			cb = dcb
		}
	}

	return &circuitBreakerTransport{
		breaker:    cb,
		next:       next,
		classifier: bc.Classifier,
		inst:       inst,
		name:       h.name,
	}
}

// circuitBreakerTransport runs each hop through a circuit breaker.
type circuitBreakerTransport struct {
	breaker    circuitBreaker
	next       http.RoundTripper
	classifier BreakerClassifier
	inst       instruments
	name       string
}

// RoundTrip implements http.RoundTripper.
func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose
		failed := t.classifier(resp, err)
		switch {
		case err == nil && failed:
			return resp, errSyntheticFailure
		case err != nil && !failed:
			return nil, &ignoredError{err: err}
		}
		return resp, err
	})

	var ignored *ignoredError
	switch {
	case err == nil:
		t.inst.metrics.recordBreakerRequest(ctx, t.name, "success")
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		t.inst.metrics.recordBreakerRequest(ctx, t.name, "rejected")
		return nil, err
	case errors.As(err, &ignored):
		t.inst.metrics.recordBreakerRequest(ctx, t.name, "ignored")
		return nil, ignored.err
	case errors.Is(err, errSyntheticFailure):
		t.inst.metrics.recordBreakerRequest(ctx, t.name, "failure")
		return resp, nil
	default:
		t.inst.metrics.recordBreakerRequest(ctx, t.name, "failure")
		return nil, err
	}
}
