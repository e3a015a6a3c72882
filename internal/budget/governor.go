// Package budget gates and bills model calls. The Governor composes the usage
// ledger, pause map, circuit probe, and tier configuration to decide whether
// an agent may place a call right now, and applies post-call accounting with
// auto-pause once the fleet blows its monthly budget.
//
// On any internal read failure the Governor fails open (admission allowed,
// usage silently not recorded): one corrupt state file must not ground the
// whole fleet.
package budget

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/notify"
)

// Tier is a fixed priority class controlling at what monthly-utilization
// threshold an agent's calls are throttled.
type Tier int

const (
	// Tier1 agents are never throttled, even at or above 100% utilization.
	Tier1 Tier = 1
	// Tier2 agents are throttled once utilization reaches 80%.
	Tier2 Tier = 2
	// Tier3 agents are throttled once utilization reaches 60%.
	Tier3 Tier = 3
)

// Cutoff returns the utilization at which the tier is denied admission.
// Tier1 has no cutoff.
func (t Tier) Cutoff() (cutoff float64, throttled bool) {
	switch t {
	case Tier2:
		return 0.80, true
	case Tier3:
		return 0.60, true
	default:
		return 0, false
	}
}

// CircuitProbe is the slice of the circuit breaker the Governor needs for
// admission decisions.
type CircuitProbe interface {
	IsOpen(agent string) bool
}

// Config is the externally-supplied fleet classification and budget.
type Config struct {
	// MonthlyBudgetUSD is the shared fleet budget for one month.
	MonthlyBudgetUSD float64
	// Tiers assigns each known agent to exactly one tier. Agents missing
	// from the map are treated as Tier3 (least permissive).
	Tiers map[string]Tier
	// CriticalAgents are never auto-paused when the budget is exceeded.
	CriticalAgents []string
}

// SpendReport summarizes the live month's ledger.
type SpendReport struct {
	Month     string             `json:"month"`
	Total     float64            `json:"total"`
	Budget    float64            `json:"budget"`
	Remaining float64            `json:"remaining"`
	PerAgent  map[string]float64 `json:"per_agent"`
}

// DaySpend is one agent's usage for the current local date.
type DaySpend struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Governor is an explicit state object constructed once per process. All
// ledger mutations are serialized behind its mutex, making this process a
// single owning writer; across processes the persisted documents remain
// last-writer-wins.
type Governor struct {
	mu       sync.Mutex
	cfg      Config
	rates    *RateTable
	usage    *UsageStore
	pause    *PauseStore
	circuit  CircuitProbe
	notifier notify.Notifier
	metrics  *metrics.Metrics
	clock    func() time.Time
	critical map[string]bool
}

// NewGovernor wires the governor. circuit, notifier, and m may be nil.
func NewGovernor(cfg Config, rates *RateTable, usage *UsageStore, pause *PauseStore, circuit CircuitProbe, notifier notify.Notifier, m *metrics.Metrics) *Governor {
	critical := make(map[string]bool, len(cfg.CriticalAgents))
	for _, name := range cfg.CriticalAgents {
		critical[name] = true
	}
	return &Governor{
		cfg:      cfg,
		rates:    rates,
		usage:    usage,
		pause:    pause,
		circuit:  circuit,
		notifier: notifier,
		metrics:  m,
		clock:    time.Now,
		critical: critical,
	}
}

// SetClock replaces the time source. Test hook.
func (g *Governor) SetClock(clock func() time.Time) { g.clock = clock }

// tierOf returns the agent's tier, defaulting to Tier3 for unknown agents.
func (g *Governor) tierOf(agent string) Tier {
	if t, ok := g.cfg.Tiers[agent]; ok && t >= Tier1 && t <= Tier3 {
		return t
	}
	return Tier3
}

// CheckBudget decides whether agent may place a call now. Deny order: open
// circuit first, then explicit pause, then tier utilization cutoffs. The
// estimate is advisory (logged, not part of the decision). Read failures on
// persisted state allow the call.
func (g *Governor) CheckBudget(agent string, estimatedTokens int) bool {
	if g.circuit != nil && g.circuit.IsOpen(agent) {
		log.Printf("[Governor] Denied %q: circuit OPEN", agent)
		g.metrics.BudgetDenial(agent, "circuit-open")
		return false
	}

	if g.IsPaused(agent) {
		log.Printf("[Governor] Denied %q: paused", agent)
		g.metrics.BudgetDenial(agent, "paused")
		return false
	}

	if g.cfg.MonthlyBudgetUSD <= 0 {
		return true
	}

	g.mu.Lock()
	doc, err := g.usage.Load(g.clock())
	g.mu.Unlock()
	if err != nil {
		// Fail open: availability over safety.
		log.Printf("[Governor] Ledger unreadable, allowing %q: %v", agent, err)
		return true
	}

	utilization := doc.TotalCost / g.cfg.MonthlyBudgetUSD
	tier := g.tierOf(agent)

	if utilization >= 1.0 && tier != Tier1 {
		log.Printf("[Governor] Denied %q (tier %d): utilization %.2f >= 1.00, estimate %d tokens", agent, tier, utilization, estimatedTokens)
		g.metrics.BudgetDenial(agent, "budget")
		return false
	}
	if cutoff, throttled := tier.Cutoff(); throttled && utilization >= cutoff {
		log.Printf("[Governor] Denied %q (tier %d): utilization %.2f >= %.2f, estimate %d tokens", agent, tier, utilization, cutoff, estimatedTokens)
		g.metrics.BudgetDenial(agent, "budget")
		return false
	}
	return true
}

// RecordUsage adds one call's token counts to the agent's daily bucket and to
// the agent and global monthly totals, then persists the ledger. When the new
// global total exceeds the monthly budget, every non-critical agent is
// auto-paused (idempotent). Persistence failures are logged and swallowed.
func (g *Governor) RecordUsage(agent string, promptTokens, completionTokens int, model string) {
	tokens := promptTokens + completionTokens
	if tokens < 0 {
		return
	}
	cost := g.rates.Cost(model, tokens)

	g.mu.Lock()
	now := g.clock()
	doc, err := g.usage.Load(now)
	if err != nil {
		g.mu.Unlock()
		log.Printf("[Governor] Ledger unreadable, usage for %q not recorded: %v", agent, err)
		return
	}

	au := doc.Agents[agent]
	if au == nil {
		au = &AgentUsage{Daily: make(map[string]DailyUsage)}
		doc.Agents[agent] = au
	}
	if au.Daily == nil {
		au.Daily = make(map[string]DailyUsage)
	}
	day := au.Daily[DayKey(now)]
	day.Tokens += int64(tokens)
	day.Cost += cost
	au.Daily[DayKey(now)] = day
	au.MonthlyTokens += int64(tokens)
	au.MonthlyCost += cost
	doc.TotalCost += cost
	total := doc.TotalCost

	if err := g.usage.Save(doc); err != nil {
		log.Printf("[Governor] Cannot persist ledger: %v", err)
	}
	g.mu.Unlock()

	g.metrics.Tokens(agent, promptTokens, completionTokens)
	log.Printf("[Governor] Recorded %d tokens ($%.5f) for %q on %s, month total $%.2f", tokens, cost, agent, model, total)

	if g.cfg.MonthlyBudgetUSD > 0 && total > g.cfg.MonthlyBudgetUSD {
		g.autoPause(total)
	}
}

// autoPause pauses every known agent outside the critical allow-list. Already
// paused agents are left untouched, so repeated invocations are no-ops.
func (g *Governor) autoPause(total float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	states, err := g.pause.Load()
	if err != nil {
		log.Printf("[Governor] Cannot read pause map for auto-pause: %v", err)
		return
	}

	now := g.clock()
	reason := fmt.Sprintf("monthly budget exceeded: $%.2f of $%.2f", total, g.cfg.MonthlyBudgetUSD)
	var paused []string
	for agent := range g.cfg.Tiers {
		if g.critical[agent] || states[agent].Paused {
			continue
		}
		states[agent] = PauseState{Paused: true, Reason: reason, PausedAt: now}
		paused = append(paused, agent)
	}
	if len(paused) == 0 {
		return
	}

	if err := g.pause.Save(states); err != nil {
		log.Printf("[Governor] Cannot persist pause map: %v", err)
		return
	}
	log.Printf("[Governor] Auto-paused %d agent(s): %v (%s)", len(paused), paused, reason)
	notify.Send(context.Background(), g.notifier, notify.Event{
		Subject:    "fleet auto-paused",
		Message:    fmt.Sprintf("%s; paused agents: %v", reason, paused),
		OccurredAt: now,
	})
}

// CostOf prices a token count for the given model.
func (g *Governor) CostOf(model string, tokens int) float64 {
	return g.rates.Cost(model, tokens)
}

// IsPaused reports whether agent is explicitly paused. Read failures report
// not-paused (fail open).
func (g *Governor) IsPaused(agent string) bool {
	g.mu.Lock()
	states, err := g.pause.Load()
	g.mu.Unlock()
	if err != nil {
		log.Printf("[Governor] Cannot read pause map, treating %q as unpaused: %v", agent, err)
		return false
	}
	return states[agent].Paused
}

// UnpauseAgent removes the agent's pause entry if present. Manual-only;
// nothing unpauses an agent automatically.
func (g *Governor) UnpauseAgent(agent string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	states, err := g.pause.Load()
	if err != nil {
		return fmt.Errorf("unpause %q: %w", agent, err)
	}
	if _, ok := states[agent]; !ok {
		return nil
	}
	delete(states, agent)
	if err := g.pause.Save(states); err != nil {
		return fmt.Errorf("unpause %q: %w", agent, err)
	}
	log.Printf("[Governor] Unpaused %q", agent)
	return nil
}

// MonthlySpend returns the live month's totals. Read failures yield an empty
// report for the current month.
func (g *Governor) MonthlySpend() SpendReport {
	g.mu.Lock()
	now := g.clock()
	doc, err := g.usage.Load(now)
	g.mu.Unlock()

	report := SpendReport{
		Month:    MonthKey(now),
		Budget:   g.cfg.MonthlyBudgetUSD,
		PerAgent: make(map[string]float64),
	}
	if err != nil {
		log.Printf("[Governor] Ledger unreadable for spend report: %v", err)
		report.Remaining = report.Budget
		return report
	}

	report.Month = doc.Month
	report.Total = doc.TotalCost
	report.Remaining = report.Budget - doc.TotalCost
	if report.Remaining < 0 {
		report.Remaining = 0
	}
	for agent, au := range doc.Agents {
		report.PerAgent[agent] = au.MonthlyCost
	}
	return report
}

// TodaySpend returns agent's tokens and cost for the current local date.
func (g *Governor) TodaySpend(agent string) DaySpend {
	g.mu.Lock()
	now := g.clock()
	doc, err := g.usage.Load(now)
	g.mu.Unlock()
	if err != nil {
		log.Printf("[Governor] Ledger unreadable for today-spend: %v", err)
		return DaySpend{}
	}

	au := doc.Agents[agent]
	if au == nil {
		return DaySpend{}
	}
	day := au.Daily[DayKey(now)]
	return DaySpend{Tokens: day.Tokens, Cost: day.Cost}
}
