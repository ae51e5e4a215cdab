package httpclient

import (
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore returns a breaker state store shared through Redis, so
// every process calling Graph with the same breaker name trips together.
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client, err := httpclient.New(
//	    httpclient.WithBaseURL(httpclient.DefaultBaseURL),
//	    httpclient.WithAuthenticationProvider(provider),
//	    httpclient.WithCircuitBreaker(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
//	)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// circuitBreaker is satisfied by both the local and the distributed
// gobreaker implementations.
type circuitBreaker interface {
	Execute(req func() (*http.Response, error)) (*http.Response, error)
}

// BreakerClassifier reports whether an outcome counts as a failure
// towards tripping the breaker.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig configures the optional circuit breaker stage. While the
// breaker is open, requests fail immediately with gobreaker.ErrOpenState
// instead of reaching the service.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open (probing).
	// If 0, the circuit breaker allows 1 request.
	MaxRequests uint32

	// Interval is how often counts are cleared while closed.
	// 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	// 0 uses the gobreaker default of 60s.
	Timeout time.Duration

	// FailureThreshold is the minimum number of requests in an interval
	// before the breaker may trip.
	FailureThreshold uint32

	// FailureRatio is the threshold of failure ratio (0.0 - 1.0) to trip the circuit.
	// Default: 0.5 (50% failure rate)
	FailureRatio float64

	// ConsecutiveFailures trips the breaker after that many failures in a
	// row. 0 disables the rule.
	ConsecutiveFailures uint32

	// Store is the shared data store for distributed circuit breaking.
	// If nil, the circuit breaker is local (in-memory).
	Store gobreaker.SharedDataStore

	// Classifier determines which errors count as failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is a callback invoked when the circuit breaker state changes.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DistributedBreakerConfig returns DefaultBreakerConfig with state kept
// in store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerConfig returns an in-memory breaker that trips on 5
// consecutive failures, or on a 50% failure ratio over at least 20
// requests in a 10s window, and probes again after 10s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DefaultBreakerClassifier counts 5xx responses and network faults as
// failures. Throttling (429) is left to the retry handler.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return resp != nil && resp.StatusCode >= http.StatusInternalServerError
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
