// Package circuit isolates repeatedly failing agents. A breaker trips to OPEN
// on the 3rd failure within a trailing 5-minute window and stays OPEN until an
// explicit manual reset. There is no half-open or retry-after state.
package circuit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/notify"
)

const (
	// DefaultThreshold is the failure count that trips the breaker.
	DefaultThreshold = 3
	// DefaultWindow is the trailing window failures are counted in.
	DefaultWindow = 5 * time.Minute
)

// Breaker is an explicit per-process state object: a sliding-window failure
// counter per agent, mirrored into the persisted Store when it trips. The
// failure window itself lives only in this process's memory and is lost on
// restart; the Store is the only cross-process truth.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	failures  map[string][]time.Time // per-agent failure timestamps, pruned to window
	open      map[string]bool        // in-memory trip set

	store    *Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// NewBreaker creates a breaker with the default threshold and window. store
// may not be nil; notifier and metrics may be nil.
func NewBreaker(store *Store, notifier notify.Notifier, m *metrics.Metrics) *Breaker {
	return &Breaker{
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		failures:  make(map[string][]time.Time),
		open:      make(map[string]bool),
		store:     store,
		notifier:  notifier,
		metrics:   m,
		clock:     time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (b *Breaker) SetClock(clock func() time.Time) { b.clock = clock }

// RecordFailure adds a failure for agent at the current time. Reaching the
// threshold within the trailing window trips the circuit: the OPEN state is
// persisted and an alert is emitted. Failures recorded while already OPEN are
// counted but cause no further side effects.
func (b *Breaker) RecordFailure(agent string) {
	b.mu.Lock()
	now := b.clock()
	cutoff := now.Add(-b.window)

	kept := b.failures[agent][:0:len(b.failures[agent])]
	for _, ts := range b.failures[agent] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	b.failures[agent] = kept

	trip := len(kept) >= b.threshold && !b.open[agent]
	if trip {
		b.open[agent] = true
	}
	b.mu.Unlock()

	if !trip {
		return
	}

	reason := fmt.Sprintf("%d failures within %v", b.threshold, b.window)
	log.Printf("[Circuit] OPEN for agent %q: %s", agent, reason)
	b.metrics.CircuitTrip(agent)
	b.persist(agent, Record{State: StateOpen, TrippedAt: now, Reason: reason})
	notify.Send(context.Background(), b.notifier, notify.Event{
		Agent:      agent,
		Subject:    "circuit breaker tripped",
		Message:    fmt.Sprintf("agent %q disabled: %s; manual reset required", agent, reason),
		OccurredAt: now,
	})
}

// IsOpen reports whether the agent's circuit is OPEN, consulting both the
// in-memory trip set and the persisted record. After a restart the persisted
// OPEN state is honored until an explicit reset, even though the in-memory
// window is empty. A store read failure is treated as CLOSED (fail-open).
func (b *Breaker) IsOpen(agent string) bool {
	b.mu.Lock()
	inMemory := b.open[agent]
	b.mu.Unlock()
	if inMemory {
		return true
	}

	records, err := b.store.Load()
	if err != nil {
		log.Printf("[Circuit] Cannot read circuit map, treating %q as CLOSED: %v", agent, err)
		return false
	}
	return records[agent].State == StateOpen
}

// Reset closes the agent's circuit: it clears the in-memory window and trip
// flag and persists a CLOSED record. Manual-only; nothing resets a circuit
// automatically.
func (b *Breaker) Reset(agent string) {
	b.mu.Lock()
	delete(b.failures, agent)
	delete(b.open, agent)
	now := b.clock()
	b.mu.Unlock()

	log.Printf("[Circuit] Reset for agent %q", agent)
	b.persist(agent, Record{State: StateClosed, ResetAt: now})
}

// persist mirrors one agent's record into the store via read-modify-write.
// Persistence errors are logged, not propagated: breaker decisions keep
// working from process memory.
func (b *Breaker) persist(agent string, rec Record) {
	records, err := b.store.Load()
	if err != nil {
		log.Printf("[Circuit] Cannot read circuit map before write: %v", err)
		records = map[string]Record{}
	}
	records[agent] = rec
	if err := b.store.Save(records); err != nil {
		log.Printf("[Circuit] Cannot persist circuit map: %v", err)
	}
}
