package supabase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"
)

// RetryConfig controls retry behavior of the client transport.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	// InitialBackoff before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the backoff per attempt.
	BackoffMultiplier float64
	// Jitter randomizes the backoff, 0.0 to 1.0.
	Jitter float64
	// RetryableStatusCodes are retried in addition to transient network
	// errors.
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry policy used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// CircuitState is the state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls the breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold successes in half-open close it again.
	SuccessThreshold int
	// Timeout keeps the circuit open before probing.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns the breaker policy used in production.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the backend is considered down.
var ErrCircuitOpen = errors.New("backend circuit breaker is open")

type circuitBreaker struct {
	mu sync.Mutex

	cfg           CircuitBreakerConfig
	onStateChange func(from, to CircuitState)

	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

func newCircuitBreaker(cfg CircuitBreakerConfig, onStateChange func(from, to CircuitState)) *circuitBreaker {
	if cfg.FailureThreshold == 0 {
		return nil
	}
	return &circuitBreaker{cfg: cfg, onStateChange: onStateChange}
}

func (cb *circuitBreaker) allow() error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Since(cb.openedAt) > cb.cfg.Timeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

func (cb *circuitBreaker) recordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

func (cb *circuitBreaker) currentState() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == CircuitOpen {
		cb.openedAt = time.Now()
	}
	if cb.onStateChange != nil {
		go cb.onStateChange(from, to)
	}
}

// resilientTransport retries transient failures and trips a circuit breaker
// when the backend keeps failing.
type resilientTransport struct {
	base    http.RoundTripper
	retry   RetryConfig
	breaker *circuitBreaker
	onRetry func()
}

func (rt *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.base
	if base == nil {
		base = http.DefaultTransport
	}

	if err := rt.breaker.allow(); err != nil {
		return nil, err
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= rt.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if rt.onRetry != nil {
				rt.onRetry()
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(rt.backoff(attempt)):
			}
			req = cloneRequest(req)
		}

		resp, lastErr = base.RoundTrip(req)

		if lastErr != nil {
			if isTransient(lastErr) {
				continue
			}
			rt.breaker.recordFailure()
			return nil, lastErr
		}

		if rt.retryableStatus(resp.StatusCode) && attempt < rt.retry.MaxRetries {
			lastErr = &statusError{status: resp.StatusCode}
			resp.Body.Close()
			continue
		}

		if resp.StatusCode >= 500 {
			rt.breaker.recordFailure()
		} else {
			rt.breaker.recordSuccess()
		}
		return resp, nil
	}

	rt.breaker.recordFailure()
	if resp != nil {
		return resp, nil
	}
	return nil, lastErr
}

func (rt *resilientTransport) backoff(attempt int) time.Duration {
	d := float64(rt.retry.InitialBackoff) * math.Pow(rt.retry.BackoffMultiplier, float64(attempt-1))
	if max := float64(rt.retry.MaxBackoff); rt.retry.MaxBackoff > 0 && d > max {
		d = max
	}
	if rt.retry.Jitter > 0 {
		d += d * rt.retry.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (rt *resilientTransport) retryableStatus(code int) bool {
	for _, c := range rt.retry.RetryableStatusCodes {
		if code == c {
			return true
		}
	}
	return false
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return http.StatusText(e.status)
}
