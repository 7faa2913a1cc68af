// Package circuitbreaker implements a circuit breaker for a single
// destination.
//
// After a run of consecutive delivery failures the circuit opens and
// requests are blocked. Once the cooldown elapses a single probe request
// is allowed through; its outcome closes the circuit or re-opens it.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of the circuit.
type State int

const (
	Closed   State = iota // normal operation
	Open                  // blocking requests
	HalfOpen              // probing for recovery
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker tracks consecutive failures against one destination.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
}

// New creates a breaker that opens after threshold consecutive failures
// and probes again after cooldown. Non-positive arguments use 5 failures
// and 30 seconds.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     Closed,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a request should be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	}
	return true
}

// Success records a successful request and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
}

// Failure records a failed request, opening the circuit when the
// threshold is reached or when a half-open probe fails.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
