// Package breaker implements the latency circuit breaker that gates calls
// to the scorer. It opens on sustained high latency and recovers through a
// half-open probe after a cool-off period.
//
// Unlike a generic error-rate breaker, the trip condition is a latency
// threshold on successful calls, and a half-open failure does not re-open
// immediately but only counts toward the consecutive-failure rule. This is
// why sony/gobreaker is not used here.
package breaker

import (
	"sync"
	"time"
)

// State of the breaker.
type State string

const (
	Closed   State = "closed"
	HalfOpen State = "half_open"
	Open     State = "open"
)

const (
	defaultLatencyLimit = 500 * time.Millisecond
	defaultTripCount    = 3
	defaultCoolOff      = 60 * time.Second
)

// Breaker is a worker-local latency guard. Safe for concurrent use.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time

	latencyLimit time.Duration
	tripCount    int
	coolOff      time.Duration
	now          func() time.Time
}

// New returns a closed Breaker with the default thresholds:
// trip after 3 consecutive observations above 500ms, cool off for 60s.
func New() *Breaker {
	return &Breaker{
		state:        Closed,
		latencyLimit: defaultLatencyLimit,
		tripCount:    defaultTripCount,
		coolOff:      defaultCoolOff,
		now:          time.Now,
	}
}

// Allow reports whether a scorer call may proceed. When the breaker is
// open and the cool-off has elapsed since the last failure, Allow flips
// to half-open and admits the probe call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return true
	}
	if b.now().Sub(b.lastFailure) > b.coolOff {
		b.state = HalfOpen
		return true
	}
	return false
}

// Record observes the latency of one scorer call. A latency above the
// limit counts as a failure; a latency at or below it resets the failure
// count and closes a half-open breaker.
func (b *Breaker) Record(latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if latency > b.latencyLimit {
		b.failureCount++
		b.lastFailure = b.now()
	} else {
		if b.state == HalfOpen {
			b.state = Closed
		}
		b.failureCount = 0
	}

	if b.failureCount >= b.tripCount {
		b.state = Open
	}
}

// RecordError observes a failed scorer call, which counts as an
// unbounded-latency observation.
func (b *Breaker) RecordError() {
	b.Record(b.latencyLimit + time.Hour)
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
