// Package health tracks fleet liveness: a per-agent registry of last-run
// times and daily token counters, plus a heartbeat file writer.
package health

import (
	"sync"
	"time"
)

// Entry is the health record for one registered agent.
type Entry struct {
	StartedAt    time.Time
	LastRun      time.Time
	TokensToday  int64
	TokensBudget int64
}

// Registry holds the in-memory health entries for all agents in this process.
// It carries no persistence: a restart resets uptime and last-run, which is
// the correct reading of "this process's health".
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	clock   func() time.Time
}

// NewRegistry creates an empty health registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		clock:   time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (r *Registry) SetClock(clock func() time.Time) { r.clock = clock }

// Register adds an agent with its daily token budget. Re-registering an
// existing agent resets its entry.
func (r *Registry) Register(agent string, tokensBudget int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[agent] = &Entry{
		StartedAt:    r.clock(),
		TokensBudget: tokensBudget,
	}
}

// Deregister removes an agent from the registry.
func (r *Registry) Deregister(agent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, agent)
}

// RecordRun updates the agent's last-run time and today's token count.
// tokensToday is the absolute count for the current date, not a delta.
// Unregistered agents are ignored.
func (r *Registry) RecordRun(agent string, tokensToday int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[agent]
	if !ok {
		return
	}
	e.LastRun = r.clock()
	e.TokensToday = tokensToday
}

// Entry returns a copy of the agent's health record.
func (r *Registry) Entry(agent string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[agent]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns a copy of every entry keyed by agent name.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for name, e := range r.entries {
		out[name] = *e
	}
	return out
}
