package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/droverhq/drover/internal/agent"
	"github.com/droverhq/drover/internal/budget"
	"github.com/droverhq/drover/internal/circuit"
	"github.com/droverhq/drover/internal/health"
	"github.com/droverhq/drover/internal/llm"
	"github.com/droverhq/drover/internal/metrics"
)

// staticProvider always answers with the same text.
type staticProvider struct {
	text string
}

func (p *staticProvider) Call(context.Context, []llm.Message) (llm.Response, error) {
	return llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: p.text}}, nil
}

func (p *staticProvider) CallWithTools(context.Context, []llm.Message, []llm.ToolDefinition) (llm.Response, error) {
	return llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: p.text}}, nil
}

type serverFixture struct {
	srv      *Server
	governor *budget.Governor
	breaker  *circuit.Breaker
	health   *health.Registry
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	dir := t.TempDir()

	breaker := circuit.NewBreaker(circuit.NewStore(filepath.Join(dir, "circuits.json")), nil, nil)
	governor := budget.NewGovernor(
		budget.Config{
			MonthlyBudgetUSD: 100,
			Tiers:            map[string]budget.Tier{"scout": budget.Tier2},
		},
		budget.NewRateTable(nil, 0),
		budget.NewUsageStore(filepath.Join(dir, "usage.json")),
		budget.NewPauseStore(filepath.Join(dir, "pauses.json")),
		breaker, nil, nil,
	)

	healthReg := health.NewRegistry()
	healthReg.Register("scout", 50000)

	rt := agent.NewRuntime(agent.Options{
		Name:     "scout",
		Model:    "test-model",
		Provider: &staticProvider{text: "hello from scout"},
		Governor: governor,
		Breaker:  breaker,
		Health:   healthReg,
		Attempts: 1,
	})

	srv := NewServer(Options{
		Port:     0,
		Runtimes: map[string]*agent.Runtime{"scout": rt},
		Health:   healthReg,
		Governor: governor,
		Breaker:  breaker,
		Metrics:  metrics.New(),
	})
	return &serverFixture{srv: srv, governor: governor, breaker: breaker, health: healthReg}
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleRun_InvokesAgent(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, "POST", "/api/run", `{"agent":"scout","message":"status?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "hello from scout" {
		t.Errorf("unexpected response %q", resp.Response)
	}
}

// cancelAwareProvider fails when its context has been cancelled, the way a
// real HTTP client does once the request context dies.
type cancelAwareProvider struct {
	text string
}

func (p *cancelAwareProvider) Call(ctx context.Context, _ []llm.Message) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: p.text}}, nil
}

func (p *cancelAwareProvider) CallWithTools(ctx context.Context, msgs []llm.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	return p.Call(ctx, msgs)
}

func TestHandleRun_ClientDisconnectDoesNotAbortRun(t *testing.T) {
	dir := t.TempDir()
	breaker := circuit.NewBreaker(circuit.NewStore(filepath.Join(dir, "circuits.json")), nil, nil)
	rt := agent.NewRuntime(agent.Options{
		Name:     "scout",
		Model:    "test-model",
		Provider: &cancelAwareProvider{text: "still here"},
		Breaker:  breaker,
		Attempts: 1,
	})
	srv := NewServer(Options{
		Runtimes: map[string]*agent.Runtime{"scout": rt},
		Health:   health.NewRegistry(),
		Breaker:  breaker,
	})

	// The request context is already dead, as after a client disconnect.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/api/run",
		strings.NewReader(`{"agent":"scout","message":"hi"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "still here" {
		t.Errorf("run must complete despite the disconnect, got %q", resp.Response)
	}
	if breaker.IsOpen("scout") {
		t.Error("client disconnects must not feed the circuit breaker")
	}
}

func TestHandleRun_Validation(t *testing.T) {
	f := newServerFixture(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{broken`, http.StatusBadRequest},
		{"missing agent", `{"message":"hi"}`, http.StatusBadRequest},
		{"missing message", `{"agent":"scout"}`, http.StatusBadRequest},
		{"unknown agent", `{"agent":"ghost","message":"hi"}`, http.StatusNotFound},
		{"oversized message", `{"agent":"scout","message":"` + strings.Repeat("a", 9000) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if rec := f.do(t, "POST", "/api/run", c.body); rec.Code != c.want {
				t.Errorf("expected %d, got %d", c.want, rec.Code)
			}
		})
	}
}

func TestHandleHealthAgent_Healthy(t *testing.T) {
	f := newServerFixture(t)
	f.do(t, "POST", "/api/run", `{"agent":"scout","message":"warm up"}`)

	rec := f.do(t, "GET", "/health/scout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp agentHealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != statusHealthy {
		t.Errorf("expected healthy, got %q", resp.Status)
	}
	if resp.CircuitBreaker != "CLOSED" {
		t.Errorf("expected CLOSED breaker, got %q", resp.CircuitBreaker)
	}
	if resp.LastRun == nil {
		t.Error("lastRun should be set after a run")
	}
	if resp.TokensTodayBudget != 50000 {
		t.Errorf("expected budget 50000, got %d", resp.TokensTodayBudget)
	}
}

func TestHandleHealthAgent_UnknownIs404(t *testing.T) {
	f := newServerFixture(t)
	if rec := f.do(t, "GET", "/health/ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleHealthAgent_CircuitOpenOutranksPause(t *testing.T) {
	f := newServerFixture(t)
	for i := 0; i < 3; i++ {
		f.breaker.RecordFailure("scout")
	}

	rec := f.do(t, "GET", "/health/scout", "")
	var resp agentHealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != statusCircuitOpen {
		t.Errorf("expected circuit-open, got %q", resp.Status)
	}
	if resp.CircuitBreaker != "OPEN" {
		t.Errorf("expected OPEN breaker, got %q", resp.CircuitBreaker)
	}
}

func TestHandleHealthAll(t *testing.T) {
	f := newServerFixture(t)
	f.health.Register("digest", 1000)

	rec := f.do(t, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]fleetHealthEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(resp))
	}
	if resp["scout"].Status != statusHealthy {
		t.Errorf("expected scout healthy, got %q", resp["scout"].Status)
	}
	if resp["scout"].LastRun != nil {
		t.Error("lastRun should be null before any run")
	}
}

func TestHandleResetCircuit(t *testing.T) {
	f := newServerFixture(t)
	for i := 0; i < 3; i++ {
		f.breaker.RecordFailure("scout")
	}
	if !f.breaker.IsOpen("scout") {
		t.Fatal("expected open circuit")
	}

	rec := f.do(t, "POST", "/api/agents/scout/reset-circuit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.breaker.IsOpen("scout") {
		t.Error("circuit should be closed after reset")
	}
}

func TestHandleSpend(t *testing.T) {
	f := newServerFixture(t)
	f.do(t, "POST", "/api/run", `{"agent":"scout","message":"bill me"}`)

	rec := f.do(t, "GET", "/api/spend", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report budget.SpendReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Budget != 100 {
		t.Errorf("expected budget 100, got %v", report.Budget)
	}
	if report.Total <= 0 {
		t.Error("expected non-zero spend after a run")
	}
}

func TestHandleUnpause(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, "POST", "/api/agents/scout/unpause", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
