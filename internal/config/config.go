// Package config loads the fleet configuration: the .env ambient settings and
// the drover.yaml fleet file describing agents, budget, rates, and tools.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig describes one agent in the fleet.
type AgentConfig struct {
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Tier         int    `yaml:"tier"`          // 1..3; defaults to 3
	TokensBudget int64  `yaml:"tokens_budget"` // daily token budget, informational
	SystemPrompt string `yaml:"system_prompt"`
}

// BudgetConfig is the shared fleet budget section.
type BudgetConfig struct {
	MonthlyUSD     float64  `yaml:"monthly_usd"`
	CriticalAgents []string `yaml:"critical_agents"`
}

// ToolsConfig toggles the built-in tools.
type ToolsConfig struct {
	HTTPEnabled       bool `yaml:"http_enabled"`
	HTTPAllowInternal bool `yaml:"http_allow_internal"`
	WebReaderEnabled  bool `yaml:"web_reader_enabled"`
	TimeEnabled       bool `yaml:"time_enabled"`
}

// Config is the full fleet configuration file.
type Config struct {
	Agents []AgentConfig `yaml:"agents"`
	Budget BudgetConfig  `yaml:"budget"`

	// Rates maps model name to USD per token; DefaultRate covers models
	// missing from the map.
	Rates       map[string]float64 `yaml:"rates"`
	DefaultRate float64            `yaml:"default_rate"`

	StateDir                 string `yaml:"state_dir"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds"`
	AlertWebhookURL          string `yaml:"alert_webhook_url"`
	WebPort                  int    `yaml:"web_port"`

	Tools     ToolsConfig `yaml:"tools"`
	MCPConfig string      `yaml:"mcp_config"` // path to mcp.json; empty disables MCP
}

// Load reads and validates the fleet configuration from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = "state"
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		c.HeartbeatIntervalSeconds = 30
	}
	if c.WebPort <= 0 {
		c.WebPort = 8080
	}
	for i := range c.Agents {
		if c.Agents[i].Tier == 0 {
			c.Agents[i].Tier = 3
		}
	}
}

// Validate checks the parts a misconfigured fleet cannot run without.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("no agents configured")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
		if a.Tier < 1 || a.Tier > 3 {
			return fmt.Errorf("agent %q: tier must be 1..3, got %d", a.Name, a.Tier)
		}
	}
	for _, name := range c.Budget.CriticalAgents {
		if !seen[name] {
			return fmt.Errorf("critical agent %q is not in the agents list", name)
		}
	}
	if c.Budget.MonthlyUSD < 0 {
		return fmt.Errorf("budget.monthly_usd must not be negative")
	}
	return nil
}

// HeartbeatInterval returns the heartbeat period as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}
