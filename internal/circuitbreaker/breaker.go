// Package circuitbreaker implements the per-channel circuit breaker that
// shields the load balancer from repeatedly dispatching to a channel that is
// currently failing. Grounded on original_source/src-tauri/src/routing/
// circuit.rs, restructured around the teacher's mutex-guarded map idiom from
// internal/cache/thought_signature_cache.go.
package circuitbreaker

import (
	"sync"
	"time"
)

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type channelCircuit struct {
	consecutiveFailures int
	state               state
	lastFailure         time.Time
}

// Breaker tracks circuit state per channel ID. The zero value is not usable;
// construct with New. A Breaker is safe for concurrent use.
type Breaker struct {
	mu               sync.Mutex
	circuits         map[string]*channelCircuit
	failureThreshold int
	cooldown         time.Duration
}

// New constructs a Breaker that opens a channel's circuit after
// failureThreshold consecutive failures, and re-probes it after cooldown has
// elapsed since the last failure.
func New(failureThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		circuits:         make(map[string]*channelCircuit),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

// IsAvailable reports whether channelID may currently receive requests. A
// channel with no recorded state is treated as healthy. An Open circuit
// whose cooldown has elapsed lazily transitions to HalfOpen; a HalfOpen
// circuit reports available on every call until the next recorded outcome.
func (b *Breaker) IsAvailable(channelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[channelID]
	if !ok {
		return true
	}

	switch c.state {
	case stateClosed:
		return true
	case stateHalfOpen:
		return true
	case stateOpen:
		if !c.lastFailure.IsZero() && time.Since(c.lastFailure) >= b.cooldown {
			c.state = stateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes channelID's circuit and resets its failure count.
func (b *Breaker) RecordSuccess(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[channelID]; ok {
		c.consecutiveFailures = 0
		c.state = stateClosed
	}
}

// RecordFailure increments channelID's consecutive failure count and opens
// its circuit once the configured threshold is reached.
func (b *Breaker) RecordFailure(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[channelID]
	if !ok {
		c = &channelCircuit{state: stateClosed}
		b.circuits[channelID] = c
	}

	c.consecutiveFailures++
	c.lastFailure = time.Now()
	if c.consecutiveFailures >= b.failureThreshold {
		c.state = stateOpen
	}
}
