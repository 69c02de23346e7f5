// Package mcp exposes a read-only view of the fleet over the Model Context
// Protocol so assistants can inspect agents, tasks and telemetry.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/dashboard"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// ServerConfig configures the MCP listener.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	// APIKey returns the key clients must present. Nil, or an empty
	// result, disables authentication.
	APIKey func() string
}

// AgentReader reads agent records.
type AgentReader interface {
	List(ctx context.Context) ([]agent.Agent, error)
	Get(ctx context.Context, id int64) (*agent.Agent, error)
}

// TaskReader reads task records.
type TaskReader interface {
	List(ctx context.Context) ([]task.Task, error)
	ListByAgent(ctx context.Context, agentID int64) ([]task.Task, error)
}

// TelemetryReader reads agent logs and performance samples.
type TelemetryReader interface {
	ListLogs(ctx context.Context, agentID int64, q agentlog.Query) ([]agentlog.Entry, error)
	ListMetrics(ctx context.Context, agentID int64, hours int) ([]metric.Sample, error)
}

// DashboardReader computes the fleet overview.
type DashboardReader interface {
	Overview(ctx context.Context) (dashboard.Overview, error)
}

// ServerDeps are the read sides the tools dispatch to. Any may be nil, in
// which case the matching tools report "not configured".
type ServerDeps struct {
	Agents    AgentReader
	Tasks     TaskReader
	Telemetry TelemetryReader
	Dashboard DashboardReader
}

// Server wraps an mcp-go server behind a streamable HTTP listener.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer

	mu   sync.Mutex
	http *http.Server
}

// NewServer builds the MCP server and registers its tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return errors.New("mcp server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}

	handler := mcpserver.NewStreamableHTTPServer(s.mcpServer)
	s.http = &http.Server{
		Handler:           AuthMiddleware(s.cfg.APIKey, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.http
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the listener down. Stopping a server that was never
// started is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	slog.Info("mcp server stopped")
	return nil
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}
