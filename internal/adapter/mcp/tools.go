package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listAgentsTool(),
		s.getAgentTool(),
		s.listTasksTool(),
		s.getAgentLogsTool(),
		s.getPerformanceMetricsTool(),
		s.getDashboardOverviewTool(),
	)
}

func (s *Server) listAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agents",
		mcplib.WithDescription("List every agent in the fleet with its latest telemetry snapshot"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListAgents}
}

func (s *Server) getAgentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_agent",
		mcplib.WithDescription("Get a single agent by ID"),
		mcplib.WithNumber("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent ID to look up"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetAgent}
}

func (s *Server) listTasksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_tasks",
		mcplib.WithDescription("List tasks, newest first, optionally restricted to one agent"),
		mcplib.WithNumber("agent_id",
			mcplib.Description("Only list tasks assigned to this agent"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListTasks}
}

func (s *Server) getAgentLogsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_agent_logs",
		mcplib.WithDescription("Page through an agent's log entries, newest first"),
		mcplib.WithNumber("agent_id", mcplib.Required(), mcplib.Description("The agent ID")),
		mcplib.WithString("level",
			mcplib.Description("Only return entries at this level"),
			mcplib.Enum("debug", "info", "warn", "error", "fatal"),
		),
		mcplib.WithNumber("limit", mcplib.Description("Page size, 1 to 1000 (default 100)")),
		mcplib.WithNumber("offset", mcplib.Description("Entries to skip")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetAgentLogs}
}

func (s *Server) getPerformanceMetricsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_performance_metrics",
		mcplib.WithDescription("Get an agent's performance samples from the trailing window"),
		mcplib.WithNumber("agent_id", mcplib.Required(), mcplib.Description("The agent ID")),
		mcplib.WithNumber("hours", mcplib.Description("Window length, 1 to 168 (default 24)")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetPerformanceMetrics}
}

func (s *Server) getDashboardOverviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_dashboard_overview",
		mcplib.WithDescription("Get fleet-wide agent and task counts with averaged telemetry"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetDashboardOverview}
}

func (s *Server) handleListAgents(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent reader not configured"), nil
	}
	agents, err := s.deps.Agents.List(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list agents", err), nil
	}
	return marshalResult("agents", agents), nil
}

func (s *Server) handleGetAgent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent reader not configured"), nil
	}
	id, errResult := requireID(req.GetArguments(), "agent_id")
	if errResult != nil {
		return errResult, nil
	}
	a, err := s.deps.Agents.Get(ctx, id)
	if err != nil {
		return readError(fmt.Sprintf("failed to get agent %d", id), err), nil
	}
	return marshalResult("agent", a), nil
}

func (s *Server) handleListTasks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task reader not configured"), nil
	}
	args := req.GetArguments()
	var (
		tasks []task.Task
		err   error
	)
	if _, scoped := args["agent_id"]; scoped {
		id, errResult := requireID(args, "agent_id")
		if errResult != nil {
			return errResult, nil
		}
		tasks, err = s.deps.Tasks.ListByAgent(ctx, id)
	} else {
		tasks, err = s.deps.Tasks.List(ctx)
	}
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list tasks", err), nil
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return marshalResult("tasks", tasks), nil
}

func (s *Server) handleGetAgentLogs(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Telemetry == nil {
		return mcplib.NewToolResultError("telemetry reader not configured"), nil
	}
	args := req.GetArguments()
	id, errResult := requireID(args, "agent_id")
	if errResult != nil {
		return errResult, nil
	}
	limit, errResult := optionalInt(args, "limit")
	if errResult != nil {
		return errResult, nil
	}
	offset, errResult := optionalInt(args, "offset")
	if errResult != nil {
		return errResult, nil
	}
	level, _ := args["level"].(string)

	entries, err := s.deps.Telemetry.ListLogs(ctx, id, agentlog.Query{
		Level:  agentlog.Level(level),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return readError(fmt.Sprintf("failed to get logs for agent %d", id), err), nil
	}
	if entries == nil {
		entries = []agentlog.Entry{}
	}
	return marshalResult("logs", entries), nil
}

func (s *Server) handleGetPerformanceMetrics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Telemetry == nil {
		return mcplib.NewToolResultError("telemetry reader not configured"), nil
	}
	args := req.GetArguments()
	id, errResult := requireID(args, "agent_id")
	if errResult != nil {
		return errResult, nil
	}
	hours, errResult := optionalInt(args, "hours")
	if errResult != nil {
		return errResult, nil
	}
	samples, err := s.deps.Telemetry.ListMetrics(ctx, id, hours)
	if err != nil {
		return readError(fmt.Sprintf("failed to get metrics for agent %d", id), err), nil
	}
	return marshalResult("metrics", samples), nil
}

func (s *Server) handleGetDashboardOverview(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Dashboard == nil {
		return mcplib.NewToolResultError("dashboard reader not configured"), nil
	}
	o, err := s.deps.Dashboard.Overview(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to compute overview", err), nil
	}
	return marshalResult("overview", o), nil
}

// marshalResult encodes v as the tool's JSON text content.
func marshalResult(what string, v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err)
	}
	return toolResultJSON(string(data))
}

// readError reports missing records and rejected arguments without the
// wrapped storage detail.
func readError(msg string, err error) *mcplib.CallToolResult {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return mcplib.NewToolResultError(msg + ": not found")
	case errors.Is(err, domain.ErrValidation):
		return mcplib.NewToolResultError(msg + ": " + err.Error())
	default:
		return mcplib.NewToolResultErrorFromErr(msg, err)
	}
}

// requireID reads a positive integer argument. JSON numbers arrive as float64.
func requireID(args map[string]any, name string) (int64, *mcplib.CallToolResult) {
	f, ok := args[name].(float64)
	if !ok || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, mcplib.NewToolResultError(name + " must be a positive integer")
	}
	return int64(f), nil
}

// optionalInt reads an integer argument; absent means 0 so the domain
// default applies.
func optionalInt(args map[string]any, name string) (int, *mcplib.CallToolResult) {
	raw, present := args[name]
	if !present || raw == nil {
		return 0, nil
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, mcplib.NewToolResultError(name + " must be an integer")
	}
	return int(f), nil
}
