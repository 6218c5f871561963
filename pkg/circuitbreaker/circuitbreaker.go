// Package circuitbreaker stops calling a vendor host that keeps failing,
// so requests for its badges fail fast instead of burning the timeout
// budget.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

var (
	stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "badge_circuit_breaker_state",
		Help: "Circuit breaker state per vendor host (0=closed, 1=open, 2=half-open)",
	}, []string{"host"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "badge_circuit_breaker_rejected_total",
		Help: "Vendor calls rejected by an open circuit breaker",
	}, []string{"host"})
)

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls until Timeout has passed.
	StateOpen
	// StateHalfOpen lets calls through to probe for recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes needed to close it
	SuccessThreshold int

	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
}

// DefaultConfig returns a default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker guards calls to a single vendor host.
type CircuitBreaker struct {
	name   string
	config Config
	logger zerolog.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a closed circuit breaker named after the host it guards.
func New(name string, config Config, logger zerolog.Logger) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	stateGauge.WithLabelValues(name).Set(float64(StateClosed))
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger.With().Str("circuit_breaker", name).Logger(),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the circuit is open, recording its outcome.
// A nil ctx error is required to start the call.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.lastFailureTime) < cb.config.Timeout {
		rejectedTotal.WithLabelValues(cb.name).Inc()
		return ErrCircuitOpen
	}
	cb.setState(StateHalfOpen)
	cb.successCount = 0
	cb.logger.Info().Msg("Circuit breaker transitioning to half-open")
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
			cb.logger.Warn().
				Int("failure_count", cb.failureCount).
				Msg("Circuit breaker opened due to failures")
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.Warn().Msg("Circuit breaker reopened after half-open failure")
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failureCount = 0

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
			cb.successCount = 0
			cb.logger.Info().Msg("Circuit breaker closed after successful recovery")
		}
	}
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	stateGauge.WithLabelValues(cb.name).Set(float64(s))
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name         string
	State        string
	FailureCount int
	SuccessCount int
	LastFailure  time.Time
}

// GetStats returns current circuit breaker statistics.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:         cb.name,
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		LastFailure:  cb.lastFailureTime,
	}
}

// Set keeps one breaker per vendor host, created on first use.
type Set struct {
	config Config
	logger zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewSet creates an empty Set whose breakers share config.
func NewSet(config Config, logger zerolog.Logger) *Set {
	return &Set{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker guarding host.
func (s *Set) For(host string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[host]
	if !ok {
		cb = New(host, s.config, s.logger)
		s.breakers[host] = cb
	}
	return cb
}

// Stats returns a snapshot of every breaker in the set.
func (s *Set) Stats() []Stats {
	s.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(s.breakers))
	for _, cb := range s.breakers {
		breakers = append(breakers, cb)
	}
	s.mu.Unlock()

	stats := make([]Stats, 0, len(breakers))
	for _, cb := range breakers {
		stats = append(stats, cb.GetStats())
	}
	return stats
}
