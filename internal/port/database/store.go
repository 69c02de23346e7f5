// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// Store is the port interface for fleet persistence. Lookups of missing
// records return errors wrapping domain.ErrNotFound. Inserting a task, log
// entry or sample for an unknown agent also returns domain.ErrNotFound.
type Store interface {
	// Agents
	ListAgents(ctx context.Context) ([]agent.Agent, error)
	GetAgent(ctx context.Context, id int64) (*agent.Agent, error)
	CreateAgent(ctx context.Context, a *agent.Agent) (*agent.Agent, error)
	UpdateAgent(ctx context.Context, a *agent.Agent) error
	// DeleteAgent removes the agent with its tasks, log entries and samples
	// as one atomic unit.
	DeleteAgent(ctx context.Context, id int64) error

	// Tasks
	ListTasks(ctx context.Context) ([]task.Task, error)
	ListTasksByAgent(ctx context.Context, agentID int64) ([]task.Task, error)
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) (*task.Task, error)
	// UpdateTask writes t only if the stored status still equals from;
	// otherwise it returns domain.ErrConflict.
	UpdateTask(ctx context.Context, t *task.Task, from task.Status) error

	// Agent logs, newest first.
	CreateAgentLog(ctx context.Context, e *agentlog.Entry) (*agentlog.Entry, error)
	FindAgentLogs(ctx context.Context, agentID int64, q agentlog.Query) ([]agentlog.Entry, error)

	// Performance samples, oldest first, recorded_at within [from, to].
	CreateMetric(ctx context.Context, s *metric.Sample) (*metric.Sample, error)
	FindMetricsInRange(ctx context.Context, agentID int64, from, to time.Time) ([]metric.Sample, error)
}
