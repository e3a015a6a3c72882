// Package web exposes the fleet over HTTP: agent invocation, per-agent and
// fleet health, spend reporting, admin unpause/reset, and Prometheus metrics.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/droverhq/drover/internal/agent"
	"github.com/droverhq/drover/internal/budget"
	"github.com/droverhq/drover/internal/circuit"
	"github.com/droverhq/drover/internal/health"
	"github.com/droverhq/drover/internal/metrics"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	mux      *http.ServeMux
	port     int
	runtimes map[string]*agent.Runtime
	health   *health.Registry
	governor *budget.Governor
	breaker  *circuit.Breaker
}

// Options groups the Server dependencies.
type Options struct {
	Port     int
	Runtimes map[string]*agent.Runtime
	Health   *health.Registry
	Governor *budget.Governor
	Breaker  *circuit.Breaker
	Metrics  *metrics.Metrics
}

// NewServer creates the fleet HTTP server and registers all routes.
func NewServer(opts Options) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		port:     opts.Port,
		runtimes: opts.Runtimes,
		health:   opts.Health,
		governor: opts.Governor,
		breaker:  opts.Breaker,
	}

	s.mux.HandleFunc("POST /api/run", s.handleRun)
	s.mux.HandleFunc("GET /health", s.handleHealthAll)
	s.mux.HandleFunc("GET /health/{agent}", s.handleHealthAgent)
	s.mux.HandleFunc("GET /api/spend", s.handleSpend)
	s.mux.HandleFunc("POST /api/agents/{agent}/unpause", s.handleUnpause)
	s.mux.HandleFunc("POST /api/agents/{agent}/reset-circuit", s.handleResetCircuit)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	return s
}

// Handler returns the route multiplexer. Test hook.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins listening with graceful shutdown. On SIGINT/SIGTERM, it waits
// up to 10s for in-flight requests to complete, so deferred cleanup
// (registry.CloseAll, heartbeat.Close) runs reliably.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{Addr: addr, Handler: s.mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("[Web] Received signal %v, shutting down gracefully...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Web] Graceful shutdown error: %v", err)
		}
	}()

	log.Printf("[Web] drover fleet server running at http://localhost%s", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		log.Println("[Web] Server stopped gracefully")
		return nil
	}
	return err
}
