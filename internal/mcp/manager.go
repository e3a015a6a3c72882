package mcp

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/droverhq/drover/internal/tool"
)

// Manager owns the connections to all configured MCP servers for one agent
// process. It connects them at startup, registers their tools as adapters,
// and closes everything on shutdown.
type Manager struct {
	configPath string

	mu      sync.Mutex
	clients map[string]*Client
}

// NewManager creates a manager for the MCP config file at configPath.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		clients:    make(map[string]*Client),
	}
}

// ConnectAll reads the config and connects every server. It returns the
// number of servers connected and the per-server errors; a partially
// connected fleet is usable.
func (m *Manager) ConnectAll(ctx context.Context) (int, []error) {
	configs, err := LoadConfig(m.configPath)
	if err != nil {
		return 0, []error{err}
	}

	var errs []error
	connected := 0
	for name, cfg := range configs {
		client := NewClient(cfg)
		if err := client.Connect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("connect %q: %w", name, err))
			continue
		}
		m.mu.Lock()
		m.clients[name] = client
		m.mu.Unlock()
		connected++
		log.Printf("[MCP] Connected to server %q", name)
	}
	return connected, errs
}

// RegisterTools lists the tools of every connected server and registers a
// ToolAdapter for each into the registry.
func (m *Manager) RegisterTools(ctx context.Context, registry *tool.Registry) error {
	m.mu.Lock()
	clients := make(map[string]*Client, len(m.clients))
	for name, c := range m.clients {
		clients[name] = c
	}
	m.mu.Unlock()

	for name, client := range clients {
		tools, err := client.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("list tools for %q: %w", name, err)
		}
		for _, info := range tools {
			registry.Register(NewToolAdapter(name, info, client))
		}
		log.Printf("[MCP] Registered %d tool(s) from server %q", len(tools), name)
	}
	return nil
}

// CloseAll disconnects every server, logging errors but not failing.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			log.Printf("[MCP] Error closing client %q: %v", name, err)
		}
	}
	m.clients = make(map[string]*Client)
}
