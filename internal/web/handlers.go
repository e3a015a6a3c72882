package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	maxRequestBody  = 1 << 20 // 1MB max request body
	maxMessageRunes = 8000    // max user message length in runes
)

// Agent health statuses, from worst to best. An open circuit outranks a
// pause because the circuit means the agent is broken, not just throttled.
const (
	statusCircuitOpen = "circuit-open"
	statusPaused      = "paused"
	statusHealthy     = "healthy"
)

type runRequest struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

type runResponse struct {
	Agent    string `json:"agent"`
	Response string `json:"response"`
}

type agentHealthResponse struct {
	Agent             string  `json:"agent"`
	Status            string  `json:"status"`
	LastRun           *string `json:"lastRun"`
	TokensTodayUsed   int64   `json:"tokensTodayUsed"`
	TokensTodayBudget int64   `json:"tokensTodayBudget"`
	CircuitBreaker    string  `json:"circuitBreaker"`
	UptimeSeconds     int64   `json:"uptimeSeconds"`
}

type fleetHealthEntry struct {
	Status        string  `json:"status"`
	LastRun       *string `json:"lastRun"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
}

// handleRun invokes one agent's governed run loop. The runtime never fails;
// the only HTTP errors here are request-shape problems.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Agent == "" || req.Message == "" {
		http.Error(w, "Fields 'agent' and 'message' are required", http.StatusBadRequest)
		return
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		http.Error(w, "Message too long", http.StatusRequestEntityTooLarge)
		return
	}

	rt, ok := s.runtimes[req.Agent]
	if !ok {
		http.Error(w, "Unknown agent", http.StatusNotFound)
		return
	}

	log.Printf("[Web] Run request for agent %q", req.Agent)
	// A client disconnect must not abort the model call: the run completes
	// and its accounting commits regardless of the caller.
	text := rt.Run(context.WithoutCancel(r.Context()), req.Message, req.Context)
	writeJSON(w, http.StatusOK, runResponse{Agent: req.Agent, Response: text})
}

// handleHealthAgent reports one agent's health. 404 for agents never
// registered in this process.
func (s *Server) handleHealthAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("agent")
	entry, ok := s.health.Entry(name)
	if !ok {
		http.Error(w, "Unknown agent", http.StatusNotFound)
		return
	}

	circuitState := "CLOSED"
	if s.breaker != nil && s.breaker.IsOpen(name) {
		circuitState = "OPEN"
	}

	writeJSON(w, http.StatusOK, agentHealthResponse{
		Agent:             name,
		Status:            s.statusOf(name),
		LastRun:           formatLastRun(entry.LastRun),
		TokensTodayUsed:   entry.TokensToday,
		TokensTodayBudget: entry.TokensBudget,
		CircuitBreaker:    circuitState,
		UptimeSeconds:     int64(time.Since(entry.StartedAt).Seconds()),
	})
}

// handleHealthAll reports a condensed view of every registered agent.
func (s *Server) handleHealthAll(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.health.Snapshot()
	out := make(map[string]fleetHealthEntry, len(snapshot))
	for name, entry := range snapshot {
		out[name] = fleetHealthEntry{
			Status:        s.statusOf(name),
			LastRun:       formatLastRun(entry.LastRun),
			UptimeSeconds: int64(time.Since(entry.StartedAt).Seconds()),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSpend returns the live month's spend report.
func (s *Server) handleSpend(w http.ResponseWriter, _ *http.Request) {
	if s.governor == nil {
		http.Error(w, "Budget governor not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.governor.MonthlySpend())
}

// handleUnpause clears an agent's pause entry.
func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("agent")
	if s.governor == nil {
		http.Error(w, "Budget governor not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.governor.UnpauseAgent(name); err != nil {
		log.Printf("[Web] Unpause %q failed: %v", name, err)
		http.Error(w, "Unpause failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent": name, "status": "unpaused"})
}

// handleResetCircuit closes an agent's circuit. Manual reset is the only way
// an OPEN circuit closes.
func (s *Server) handleResetCircuit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("agent")
	if s.breaker == nil {
		http.Error(w, "Circuit breaker not configured", http.StatusServiceUnavailable)
		return
	}
	s.breaker.Reset(name)
	writeJSON(w, http.StatusOK, map[string]string{"agent": name, "circuitBreaker": "CLOSED"})
}

// statusOf derives the agent's health status: an open circuit wins, then an
// explicit pause, otherwise healthy.
func (s *Server) statusOf(agent string) string {
	if s.breaker != nil && s.breaker.IsOpen(agent) {
		return statusCircuitOpen
	}
	if s.governor != nil && s.governor.IsPaused(agent) {
		return statusPaused
	}
	return statusHealthy
}

// formatLastRun renders the last-run time as RFC3339, or nil when the agent
// has never run in this process.
func formatLastRun(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Web] Encode response: %v", err)
	}
}
