package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const dashboardURI = "agentfleet://dashboard"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			dashboardURI,
			"Fleet Dashboard",
			mcplib.WithResourceDescription("Current fleet overview: agent and task counts with averaged telemetry"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDashboardResource,
	)
}

func (s *Server) handleDashboardResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	text := `{"error":"dashboard reader not configured"}`
	if s.deps.Dashboard != nil {
		o, err := s.deps.Dashboard.Overview(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		text = string(data)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     text,
		},
	}, nil
}
