package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	cfmcp "github.com/Strob0t/AgentFleet/internal/adapter/mcp"
	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/dashboard"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// --- Mocks ---

type mockAgents struct {
	agents []agent.Agent
	err    error
}

func (m *mockAgents) List(_ context.Context) ([]agent.Agent, error) {
	return m.agents, m.err
}

func (m *mockAgents) Get(_ context.Context, id int64) (*agent.Agent, error) {
	for i := range m.agents {
		if m.agents[i].ID == id {
			return &m.agents[i], nil
		}
	}
	return nil, fmt.Errorf("get agent %d: %w", id, domain.ErrNotFound)
}

type mockTasks struct {
	tasks       []task.Task
	lastAgentID int64
}

func (m *mockTasks) List(_ context.Context) ([]task.Task, error) { return m.tasks, nil }

func (m *mockTasks) ListByAgent(_ context.Context, agentID int64) ([]task.Task, error) {
	m.lastAgentID = agentID
	var out []task.Task
	for _, t := range m.tasks {
		if t.AgentID == agentID {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockTelemetry struct {
	lastQuery agentlog.Query
	lastHours int
}

func (m *mockTelemetry) ListLogs(_ context.Context, agentID int64, q agentlog.Query) ([]agentlog.Entry, error) {
	m.lastQuery = q
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	return []agentlog.Entry{{ID: 1, AgentID: agentID, Level: agentlog.LevelInfo, Message: "hello"}}, nil
}

func (m *mockTelemetry) ListMetrics(_ context.Context, agentID int64, hours int) ([]metric.Sample, error) {
	m.lastHours = hours
	return []metric.Sample{{ID: 1, AgentID: agentID, CPUUsage: 12.5}}, nil
}

type mockDashboard struct {
	overview dashboard.Overview
	err      error
}

func (m *mockDashboard) Overview(_ context.Context) (dashboard.Overview, error) {
	return m.overview, m.err
}

// --- Helpers ---

func callTool(t *testing.T, s *cfmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

func fullDeps() (cfmcp.ServerDeps, *mockTasks, *mockTelemetry) {
	tasks := &mockTasks{tasks: []task.Task{
		{ID: 1, AgentID: 1, Name: "build", Status: task.StatusRunning},
		{ID: 2, AgentID: 2, Name: "test", Status: task.StatusPending},
	}}
	tel := &mockTelemetry{}
	return cfmcp.ServerDeps{
		Agents: &mockAgents{agents: []agent.Agent{
			{ID: 1, Name: "a1", Status: agent.StatusOnline},
			{ID: 2, Name: "a2", Status: agent.StatusOffline},
		}},
		Tasks:     tasks,
		Telemetry: tel,
		Dashboard: &mockDashboard{overview: dashboard.Overview{TotalAgents: 2, RunningTasks: 1}},
	}, tasks, tel
}

func newServer(deps cfmcp.ServerDeps) *cfmcp.Server {
	return cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Addr: ":3001", Name: "test-server", Version: "0.1.0"}, cfmcp.ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestServerStartStop(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Addr: "127.0.0.1:0", Name: "test-server", Version: "0.1.0"}, cfmcp.ServerDeps{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	deps, _, _ := fullDeps()
	tools := newServer(deps).MCPServer().ListTools()

	expected := []string{
		"list_agents", "get_agent", "list_tasks",
		"get_agent_logs", "get_performance_metrics", "get_dashboard_overview",
	}
	if len(tools) != len(expected) {
		t.Fatalf("expected %d tools, got %d", len(expected), len(tools))
	}
	for _, name := range expected {
		if _, ok := tools[name]; !ok {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleListAgents(t *testing.T) {
	deps, _, _ := fullDeps()
	result := callTool(t, newServer(deps), "list_agents", nil)
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var agents []agent.Agent
	if err := json.Unmarshal([]byte(resultText(t, result)), &agents); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
}

func TestHandleGetAgent(t *testing.T) {
	deps, _, _ := fullDeps()
	s := newServer(deps)

	result := callTool(t, s, "get_agent", map[string]any{"agent_id": float64(2)})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var a agent.Agent
	if err := json.Unmarshal([]byte(resultText(t, result)), &a); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if a.Name != "a2" {
		t.Errorf("expected a2, got %q", a.Name)
	}

	result = callTool(t, s, "get_agent", map[string]any{"agent_id": float64(99)})
	if !result.IsError || !strings.Contains(resultText(t, result), "not found") {
		t.Errorf("expected not found error, got %+v", result.Content)
	}
}

func TestHandleGetAgentBadArgument(t *testing.T) {
	deps, _, _ := fullDeps()
	s := newServer(deps)

	for _, args := range []map[string]any{
		nil,
		{"agent_id": "one"},
		{"agent_id": float64(0)},
		{"agent_id": 1.5},
	} {
		if result := callTool(t, s, "get_agent", args); !result.IsError {
			t.Errorf("args %v: expected error result", args)
		}
	}
}

func TestHandleListTasks(t *testing.T) {
	deps, tasks, _ := fullDeps()
	s := newServer(deps)

	var all []task.Task
	if err := json.Unmarshal([]byte(resultText(t, callTool(t, s, "list_tasks", nil))), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(all))
	}

	var scoped []task.Task
	if err := json.Unmarshal([]byte(resultText(t, callTool(t, s, "list_tasks", map[string]any{"agent_id": float64(2)}))), &scoped); err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].Name != "test" || tasks.lastAgentID != 2 {
		t.Errorf("scoped tasks = %+v (agent %d)", scoped, tasks.lastAgentID)
	}

	if got := resultText(t, callTool(t, s, "list_tasks", map[string]any{"agent_id": float64(7)})); got != "[]" {
		t.Errorf("expected empty array, got %s", got)
	}
}

func TestHandleGetAgentLogs(t *testing.T) {
	deps, _, tel := fullDeps()
	s := newServer(deps)

	result := callTool(t, s, "get_agent_logs", map[string]any{
		"agent_id": float64(1), "level": "info", "limit": float64(10), "offset": float64(5),
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	want := agentlog.Query{Level: agentlog.LevelInfo, Limit: 10, Offset: 5}
	if tel.lastQuery != want {
		t.Errorf("query = %+v, want %+v", tel.lastQuery, want)
	}

	result = callTool(t, s, "get_agent_logs", map[string]any{"agent_id": float64(1), "limit": float64(5000)})
	if !result.IsError {
		t.Error("expected error for limit above maximum")
	}
}

func TestHandleGetPerformanceMetrics(t *testing.T) {
	deps, _, tel := fullDeps()
	s := newServer(deps)

	result := callTool(t, s, "get_performance_metrics", map[string]any{"agent_id": float64(1)})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if tel.lastHours != 0 {
		t.Errorf("absent hours should pass 0, got %d", tel.lastHours)
	}

	callTool(t, s, "get_performance_metrics", map[string]any{"agent_id": float64(1), "hours": float64(48)})
	if tel.lastHours != 48 {
		t.Errorf("hours = %d, want 48", tel.lastHours)
	}
}

func TestHandleGetDashboardOverview(t *testing.T) {
	deps, _, _ := fullDeps()
	result := callTool(t, newServer(deps), "get_dashboard_overview", nil)
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var o dashboard.Overview
	if err := json.Unmarshal([]byte(resultText(t, result)), &o); err != nil {
		t.Fatal(err)
	}
	if o.TotalAgents != 2 || o.RunningTasks != 1 {
		t.Errorf("overview = %+v", o)
	}
}

func TestHandleDashboardFailure(t *testing.T) {
	s := newServer(cfmcp.ServerDeps{Dashboard: &mockDashboard{err: errors.New("db down")}})
	if result := callTool(t, s, "get_dashboard_overview", nil); !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := newServer(cfmcp.ServerDeps{})
	for _, name := range []string{"list_agents", "list_tasks", "get_dashboard_overview"} {
		if result := callTool(t, s, name, nil); !result.IsError {
			t.Errorf("%s: expected error result when deps are nil", name)
		}
	}
}

func TestAuthMiddlewareNilKeyFunc(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	rec := httptest.NewRecorder()
	cfmcp.AuthMiddleware(nil, next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddlewareSeesRotatedKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	key := "first"
	h := cfmcp.AuthMiddleware(func() string { return key }, next)

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if got := send("first"); got != http.StatusOK {
		t.Fatalf("status = %d", got)
	}
	key = "second"
	if got := send("first"); got != http.StatusForbidden {
		t.Errorf("old key after rotation: status = %d, want 403", got)
	}
	if got := send("second"); got != http.StatusOK {
		t.Errorf("new key: status = %d, want 200", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{"disabled", "", "", http.StatusOK},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"bearer token", "secret", "Bearer secret", http.StatusOK},
		{"plain key", "secret", "secret", http.StatusOK},
		{"wrong key", "secret", "Bearer nope", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			key := tt.key
			cfmcp.AuthMiddleware(func() string { return key }, next).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
