package planner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/butler/internal/backend"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 200ms)
	MaxInterval         time.Duration // Maximum retry interval (default 5s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 30s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration. Planning calls
// sit on the user's turn, so the budget is shorter than for task execution.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry keeps one circuit breaker per backend role ("proposer",
// "classifier").
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewBreakerRegistry creates a new circuit breaker registry.
func NewBreakerRegistry(logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for role, creating it on first use.
func (r *BreakerRegistry) Get(role string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[role]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        role,
		MaxRequests: 3, // trial requests allowed while half-open
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not a backend failure.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[role] = cb
	return cb
}

// Resilient wraps a Backend with retries and a circuit breaker. It is itself
// a Backend, so proposers and classifiers take it transparently.
type Resilient struct {
	backend backend.Backend
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
}

// NewResilient wraps b.
func NewResilient(b backend.Backend, cb *gobreaker.CircuitBreaker, retry RetryConfig) *Resilient {
	return &Resilient{backend: b, breaker: cb, retry: retry}
}

// Send delegates to the wrapped backend, retrying transient failures.
func (r *Resilient) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	return sendWithRetry(ctx, r.backend, msg, r.breaker, r.retry)
}

// Close closes the wrapped backend.
func (r *Resilient) Close() error {
	return r.backend.Close()
}

// SessionID returns the wrapped backend's session.
func (r *Resilient) SessionID() string {
	return r.backend.SessionID()
}

func sendWithRetry(ctx context.Context, b backend.Backend, msg backend.Message, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) (backend.Response, error) {
	var resp backend.Response

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return b.Send(ctx, msg)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		resp = result.(backend.Response)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime
	policy.Multiplier = retryCfg.Multiplier
	policy.RandomizationFactor = retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return resp, err
}
