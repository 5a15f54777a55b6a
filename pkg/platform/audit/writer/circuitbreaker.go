package writer

import (
	"sync"
	"time"
)

// CircuitBreaker stops the writer from hammering an unhealthy store. Once
// open, inserts are skipped until the cooldown elapses; the next insert after
// that is the half-open probe.
type CircuitBreaker struct {
	mu sync.RWMutex

	threshold int           // consecutive failures to open
	cooldown  time.Duration // how long to stay open
	now       func() time.Time

	failures  int
	openUntil time.Time
	isOpen    bool
}

// NewCircuitBreaker creates a circuit breaker. Non-positive arguments fall back
// to 5 failures and a one minute cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether an insert may be attempted.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	if !cb.isOpen {
		cb.mu.RUnlock()
		return true
	}
	expired := cb.now().After(cb.openUntil)
	cb.mu.RUnlock()

	if !expired {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.isOpen && cb.now().After(cb.openUntil) {
		cb.isOpen = false
		cb.failures = cb.threshold - 1 // a failed probe reopens immediately
	}
	return !cb.isOpen
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
}

// RecordFailure counts a failed insert and reports whether the circuit is now open.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.isOpen = true
		cb.openUntil = cb.now().Add(cb.cooldown)
	}
	return cb.isOpen
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.isOpen
}

// Reset manually closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
}
