package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/droverhq/drover/internal/agent"
	"github.com/droverhq/drover/internal/budget"
	"github.com/droverhq/drover/internal/circuit"
	"github.com/droverhq/drover/internal/config"
	"github.com/droverhq/drover/internal/health"
	"github.com/droverhq/drover/internal/llm"
	"github.com/droverhq/drover/internal/llm/openai"
	"github.com/droverhq/drover/internal/mcp"
	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/notify"
	"github.com/droverhq/drover/internal/tool"
	"github.com/droverhq/drover/internal/tool/builtin"
	"github.com/droverhq/drover/internal/web"
)

func main() {
	configPath := flag.String("config", "drover.yaml", "path to the fleet configuration file")
	flag.Parse()

	// Everything lives in run so deferred cleanups (heartbeats, tools, MCP)
	// execute even when startup fails partway through.
	if err := run(*configPath); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(configPath string) error {
	// Load .env file
	config.LoadEnv()

	fmt.Println(`  ____  ____   _____     _______ ____`)
	fmt.Println(` |  _ \|  _ \ / _ \ \   / / ____|  _ \`)
	fmt.Println(` | | | | |_) | | | \ \ / /|  _| | |_) |`)
	fmt.Println(` | |_| |  _ <| |_| |\ V / | |___|  _ <`)
	fmt.Println(` |____/|_| \_\\___/  \_/  |_____|_| \_\`)
	fmt.Println(`        governed agent fleet`)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Printf("📋 Fleet: %d agent(s), budget $%.2f/month\n", len(cfg.Agents), cfg.Budget.MonthlyUSD)

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir %q: %w", cfg.StateDir, err)
	}

	// Alert channel
	var notifier notify.Notifier = notify.Nop{}
	if cfg.AlertWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.AlertWebhookURL)
		fmt.Println("🔔 Alert webhook enabled")
	}

	// Governed execution core: metrics, circuit breaker, budget governor
	m := metrics.New()

	breaker := circuit.NewBreaker(
		circuit.NewStore(filepath.Join(cfg.StateDir, "circuits.json")),
		notifier, m,
	)

	tiers := make(map[string]budget.Tier, len(cfg.Agents))
	for _, a := range cfg.Agents {
		tiers[a.Name] = budget.Tier(a.Tier)
	}
	governor := budget.NewGovernor(
		budget.Config{
			MonthlyBudgetUSD: cfg.Budget.MonthlyUSD,
			Tiers:            tiers,
			CriticalAgents:   cfg.Budget.CriticalAgents,
		},
		budget.NewRateTable(cfg.Rates, cfg.DefaultRate),
		budget.NewUsageStore(filepath.Join(cfg.StateDir, "usage.json")),
		budget.NewPauseStore(filepath.Join(cfg.StateDir, "pauses.json")),
		breaker, notifier, m,
	)

	// LLM provider
	llmClient, err := openai.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("initialize LLM client: %w", err)
	}
	fmt.Printf("🤖 LLM: %s (timeout=%ds)\n", llmClient.GetConfig().Model, llmClient.GetConfig().HTTPTimeout)

	// Tool registry with built-in tools
	registry := tool.NewRegistry()
	if cfg.Tools.TimeEnabled {
		registry.Register(builtin.NewTimeTool())
	}
	if cfg.Tools.WebReaderEnabled {
		registry.Register(builtin.NewWebReaderTool())
	}
	if cfg.Tools.HTTPEnabled {
		registry.Register(builtin.NewHTTPRequestTool(cfg.Tools.HTTPAllowInternal))
		if cfg.Tools.HTTPAllowInternal {
			fmt.Println("🌐 HTTP request tool enabled (internal addresses allowed)")
		} else {
			fmt.Println("🌐 HTTP request tool enabled")
		}
	}

	// MCP servers (optional)
	if cfg.MCPConfig != "" {
		mcpMgr := mcp.NewManager(cfg.MCPConfig)
		n, mcpErrs := mcpMgr.ConnectAll(context.Background())
		for _, e := range mcpErrs {
			log.Printf("⚠️  MCP connect: %v", e)
		}
		if n > 0 {
			if err := mcpMgr.RegisterTools(context.Background(), registry); err != nil {
				log.Printf("⚠️  MCP register tools: %v", err)
			}
			fmt.Printf("🔌 MCP: %d server(s) connected\n", n)
		}
		defer mcpMgr.CloseAll()
	}

	if err := registry.InitAll(context.Background()); err != nil {
		return fmt.Errorf("initialize tools: %w", err)
	}
	defer registry.CloseAll()
	fmt.Printf("🛠️  Tools: %d registered\n", len(registry.List()))

	// Interaction log
	interactions, err := agent.NewInteractionLog(filepath.Join(cfg.StateDir, "interactions.jsonl"))
	if err != nil {
		log.Printf("⚠️  Interaction log disabled: %v", err)
	} else {
		defer interactions.Close()
	}

	// Health registry, per-agent runtimes and heartbeats
	healthReg := health.NewRegistry()
	runtimes := make(map[string]*agent.Runtime, len(cfg.Agents))
	for _, a := range cfg.Agents {
		provider, model, err := agentProvider(llmClient, a.Model)
		if err != nil {
			return fmt.Errorf("agent %q: create LLM client: %w", a.Name, err)
		}

		healthReg.Register(a.Name, a.TokensBudget)
		runtimes[a.Name] = agent.NewRuntime(agent.Options{
			Name:         a.Name,
			Model:        model,
			SystemPrompt: a.SystemPrompt,
			Provider:     provider,
			Registry:     registry,
			Governor:     governor,
			Breaker:      breaker,
			Health:       healthReg,
			Interactions: interactions,
			Metrics:      m,
		})

		hb := health.StartHeartbeat(
			a.Name,
			filepath.Join(cfg.StateDir, "heartbeats", a.Name+".json"),
			cfg.HeartbeatInterval(),
		)
		defer hb.Close()
	}
	fmt.Printf("💓 Heartbeats every %v\n", cfg.HeartbeatInterval())

	server := web.NewServer(web.Options{
		Port:     cfg.WebPort,
		Runtimes: runtimes,
		Health:   healthReg,
		Governor: governor,
		Breaker:  breaker,
		Metrics:  m,
	})
	err = server.Start()

	// Graceful path: drop health entries before the deferred cleanups run.
	for _, a := range cfg.Agents {
		healthReg.Deregister(a.Name)
	}
	return err
}

// agentProvider resolves one agent's provider: the shared base client when
// the agent declares no model (or the base model), otherwise a client clone
// bound to the agent's model against the same endpoint.
func agentProvider(base *openai.Client, model string) (llm.Provider, string, error) {
	if model == "" || model == base.GetConfig().Model {
		return base, base.GetConfig().Model, nil
	}
	agentCfg := *base.GetConfig()
	agentCfg.Model = model
	client, err := openai.NewClient(&agentCfg)
	if err != nil {
		return nil, "", err
	}
	return client, model, nil
}
