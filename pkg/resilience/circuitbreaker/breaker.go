// Package circuitbreaker provides circuit breaker functionality using
// sony/gobreaker.
package circuitbreaker

import (
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/pkg/logger"
)

// State represents the circuit breaker state.
type State = gobreaker.State

// States
const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// ErrOpenState is returned while the breaker refuses calls.
var ErrOpenState = gobreaker.ErrOpenState

// Breaker protects the upstream resource API. It only trips on sustained
// failure, so bounded retry loops pass through it unchanged.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker[*http.Response]
	enabled bool
}

// New creates a breaker from configuration. A disabled breaker passes every
// call through.
func New(name string, cfg config.BreakerConfig) *Breaker {
	if !cfg.Enabled {
		return &Breaker{enabled: false}
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				logger.String("upstream", name),
				logger.String("from", stateToString(from)),
				logger.String("to", stateToString(to)),
			)
		},
	})

	return &Breaker{cb: cb, enabled: true}
}

// Execute runs fn with circuit breaker protection.
func (b *Breaker) Execute(fn func() (*http.Response, error)) (*http.Response, error) {
	if !b.enabled {
		return fn()
	}
	return b.cb.Execute(fn)
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	if !b.enabled {
		return StateClosed
	}
	return b.cb.State()
}

// stateToString converts a state to a readable string.
func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
