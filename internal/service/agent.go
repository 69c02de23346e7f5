package service

import (
	"context"
	"fmt"
	"log/slog"

	cfotel "github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/logger"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// AgentService is the agent registry.
type AgentService struct {
	base
}

// NewAgentService creates a new AgentService. queue may be nil.
func NewAgentService(store database.Store, queue messagequeue.Queue) *AgentService {
	return &AgentService{base: newBase(store, queue)}
}

// List returns every agent in ascending id order.
func (s *AgentService) List(ctx context.Context) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx)
}

// Get returns an agent by ID.
func (s *AgentService) Get(ctx context.Context, id int64) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// Create registers a new agent, offline and idle with zeroed telemetry.
func (s *AgentService) Create(ctx context.Context, req agent.CreateRequest) (_ *agent.Agent, err error) {
	ctx, span := cfotel.StartAgentSpan(ctx, "create", 0)
	defer func() { cfotel.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.store.CreateAgent(ctx, agent.New(&req, s.now()))
	if err != nil {
		return nil, err
	}

	s.metrics.AgentCreated(ctx)
	logger.From(ctx, slog.Default()).Info("agent created", "agent_id", a.ID, "name", a.Name, "node", a.Node)
	s.publish(ctx, messagequeue.SubjectAgentCreated, messagequeue.AgentEventPayload{
		AgentID: a.ID, Name: a.Name, Timestamp: a.CreatedAt,
	})
	return a, nil
}

// Update applies a partial update. The merged record is validated as a
// whole before anything is written.
func (s *AgentService) Update(ctx context.Context, id int64, req agent.UpdateRequest) (_ *agent.Agent, err error) {
	ctx, span := cfotel.StartAgentSpan(ctx, "update", id)
	defer func() { cfotel.EndSpan(span, err) }()

	return s.update(ctx, id, &req, false)
}

func (s *AgentService) update(ctx context.Context, id int64, req *agent.UpdateRequest, heartbeat bool) (*agent.Agent, error) {
	cur, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next, err := req.Apply(cur, now)
	if err != nil {
		return nil, err
	}
	if heartbeat {
		next.LastSeen = now
	}
	if err := s.store.UpdateAgent(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete removes an agent together with its tasks, logs and samples.
// Deleting an absent agent fails with domain.ErrNotFound.
func (s *AgentService) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := cfotel.StartAgentSpan(ctx, "delete", id)
	defer func() { cfotel.EndSpan(span, err) }()

	if err := s.store.DeleteAgent(ctx, id); err != nil {
		return err
	}
	s.metrics.AgentDeleted(ctx)
	logger.From(ctx, slog.Default()).Info("agent deleted", "agent_id", id)
	s.publish(ctx, messagequeue.SubjectAgentDeleted, messagequeue.AgentEventPayload{
		AgentID: id, Timestamp: s.now(),
	})
	return nil
}

// ApplyHeartbeat merges a telemetry report into the agent's snapshot.
// A heartbeat always refreshes last_seen, even when it carries no fields.
func (s *AgentService) ApplyHeartbeat(ctx context.Context, hb agent.Heartbeat) (*agent.Agent, error) {
	if hb.AgentID <= 0 {
		return nil, domain.NewValidationError("agent_id", "must be a positive id")
	}
	a, err := s.update(ctx, hb.AgentID, hb.UpdateRequest(), true)
	if err != nil {
		return nil, err
	}
	s.metrics.Heartbeat(ctx)
	return a, nil
}

// HandleTelemetry is the agents.telemetry bus handler.
func (s *AgentService) HandleTelemetry(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.TelemetryPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	hb := agent.Heartbeat{
		AgentID:     p.AgentID,
		CPUUsage:    p.CPUUsage,
		MemoryUsage: p.MemoryUsage,
		MemoryLimit: p.MemoryLimit,
		NetworkRX:   p.NetworkRX,
		NetworkTX:   p.NetworkTX,
		DiskUsage:   p.DiskUsage,
		Uptime:      p.Uptime,
	}
	if p.Status != nil {
		st := agent.Status(*p.Status)
		hb.Status = &st
	}
	if p.State != nil {
		st := agent.State(*p.State)
		hb.State = &st
	}
	if _, err := s.ApplyHeartbeat(ctx, hb); err != nil {
		return fmt.Errorf("telemetry for agent %d: %w", p.AgentID, err)
	}
	return nil
}
