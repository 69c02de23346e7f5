// Package memory provides an in-process implementation of database.Store.
// It backs the "memory" store driver and the service and handler tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// Store keeps every record in maps guarded by a single RWMutex. Reads return
// copies so callers never alias stored state.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	agents  map[int64]agent.Agent
	tasks   map[int64]task.Task
	logs    map[int64][]agentlog.Entry // by agent
	metrics map[int64][]metric.Sample  // by agent
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		agents:  make(map[int64]agent.Agent),
		tasks:   make(map[int64]task.Task),
		logs:    make(map[int64][]agentlog.Entry),
		metrics: make(map[int64][]metric.Sample),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- Agents ---

func (s *Store) ListAgents(_ context.Context) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b agent.Agent) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetAgent(_ context.Context, id int64) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("get agent %d: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) CreateAgent(_ context.Context, a *agent.Agent) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := *a
	created.ID = s.id()
	s.agents[created.ID] = created
	return &created, nil
}

func (s *Store) UpdateAgent(_ context.Context, a *agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.agents[a.ID]
	if !ok {
		return fmt.Errorf("update agent %d: %w", a.ID, domain.ErrNotFound)
	}
	next := *a
	next.CreatedAt = current.CreatedAt
	s.agents[a.ID] = next
	return nil
}

// DeleteAgent removes the agent and everything that references it inside one
// critical section, so no reader observes a partial cascade.
func (s *Store) DeleteAgent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[id]; !ok {
		return fmt.Errorf("delete agent %d: %w", id, domain.ErrNotFound)
	}
	delete(s.agents, id)
	for tid, t := range s.tasks {
		if t.AgentID == id {
			delete(s.tasks, tid)
		}
	}
	delete(s.logs, id)
	delete(s.metrics, id)
	return nil
}

// --- Tasks ---

func (s *Store) ListTasks(_ context.Context) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTasks(func(task.Task) bool { return true }), nil
}

func (s *Store) ListTasksByAgent(_ context.Context, agentID int64) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTasks(func(t task.Task) bool { return t.AgentID == agentID }), nil
}

func (s *Store) filterTasks(keep func(task.Task) bool) []task.Task {
	out := make([]task.Task, 0)
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b task.Task) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) GetTask(_ context.Context, id int64) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %d: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) CreateTask(_ context.Context, t *task.Task) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[t.AgentID]; !ok {
		return nil, fmt.Errorf("create task: agent %d: %w", t.AgentID, domain.ErrNotFound)
	}
	created := *t
	created.ID = s.id()
	s.tasks[created.ID] = created
	return &created, nil
}

func (s *Store) UpdateTask(_ context.Context, t *task.Task, from task.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[t.ID]
	if !ok {
		return fmt.Errorf("update task %d: %w", t.ID, domain.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("update task %d: %w", t.ID, domain.ErrConflict)
	}
	next := *t
	next.AgentID = current.AgentID
	next.CreatedAt = current.CreatedAt
	s.tasks[t.ID] = next
	return nil
}

// --- Agent logs ---

func (s *Store) CreateAgentLog(_ context.Context, e *agentlog.Entry) (*agentlog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[e.AgentID]; !ok {
		return nil, fmt.Errorf("create agent log: agent %d: %w", e.AgentID, domain.ErrNotFound)
	}
	created := *e
	created.ID = s.id()
	s.logs[e.AgentID] = append(s.logs[e.AgentID], created)
	return &created, nil
}

func (s *Store) FindAgentLogs(_ context.Context, agentID int64, q agentlog.Query) ([]agentlog.Entry, error) {
	s.mu.RLock()
	matched := make([]agentlog.Entry, 0)
	for _, e := range s.logs[agentID] {
		if q.Level == "" || e.Level == q.Level {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b agentlog.Entry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if q.Offset >= len(matched) {
		return []agentlog.Entry{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], nil
}

// --- Performance metrics ---

func (s *Store) CreateMetric(_ context.Context, m *metric.Sample) (*metric.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[m.AgentID]; !ok {
		return nil, fmt.Errorf("record metric: agent %d: %w", m.AgentID, domain.ErrNotFound)
	}
	created := *m
	created.ID = s.id()
	s.metrics[m.AgentID] = append(s.metrics[m.AgentID], created)
	return &created, nil
}

func (s *Store) FindMetricsInRange(_ context.Context, agentID int64, from, to time.Time) ([]metric.Sample, error) {
	s.mu.RLock()
	out := make([]metric.Sample, 0)
	for _, m := range s.metrics[agentID] {
		if !m.RecordedAt.Before(from) && !m.RecordedAt.After(to) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b metric.Sample) int {
		if c := a.RecordedAt.Compare(b.RecordedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
