package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cfotel "github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/logger"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// maxUpdateAttempts bounds re-reads when a concurrent writer moves a task
// between our read and our write.
const maxUpdateAttempts = 3

// TaskService owns the task lifecycle.
type TaskService struct {
	base
}

// NewTaskService creates a new TaskService. queue may be nil.
func NewTaskService(store database.Store, queue messagequeue.Queue) *TaskService {
	return &TaskService{base: newBase(store, queue)}
}

// List returns every task in ascending id order.
func (s *TaskService) List(ctx context.Context) ([]task.Task, error) {
	return s.store.ListTasks(ctx)
}

// ListByAgent returns the agent's tasks in ascending id order. An unknown
// agent yields an empty list.
func (s *TaskService) ListByAgent(ctx context.Context, agentID int64) ([]task.Task, error) {
	return s.store.ListTasksByAgent(ctx, agentID)
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, id int64) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Create records a new pending task for an existing agent.
func (s *TaskService) Create(ctx context.Context, req task.CreateRequest) (_ *task.Task, err error) {
	ctx, span := cfotel.StartTaskSpan(ctx, "create", 0)
	defer func() { cfotel.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireAgent(ctx, req.AgentID); err != nil {
		return nil, err
	}
	t, err := s.store.CreateTask(ctx, task.New(&req, s.now()))
	if err != nil {
		return nil, err
	}

	logger.From(ctx, slog.Default()).Info("task created", "task_id", t.ID, "agent_id", t.AgentID)
	s.publish(ctx, messagequeue.SubjectTaskCreated, messagequeue.TaskCreatedPayload{
		TaskID: t.ID, AgentID: t.AgentID, Name: t.Name, Command: t.Command,
	})
	return t, nil
}

// Update validates the requested transition against the current status and
// persists it. If another writer changes the status first, the request is
// re-applied to the fresh record, so a stale transition is rejected rather
// than silently overwriting the newer state.
func (s *TaskService) Update(ctx context.Context, id int64, req task.UpdateRequest) (_ *task.Task, err error) {
	ctx, span := cfotel.StartTaskSpan(ctx, "update", id)
	defer func() { cfotel.EndSpan(span, err) }()

	for range maxUpdateAttempts {
		cur, err := s.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := req.Apply(cur, s.now())
		if err != nil {
			return nil, err
		}
		err = s.store.UpdateTask(ctx, &next, cur.Status)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if next.Status != cur.Status {
			s.transitioned(ctx, cur.Status, &next)
		}
		return &next, nil
	}
	return nil, fmt.Errorf("update task %d: %w", id, domain.ErrConflict)
}

func (s *TaskService) transitioned(ctx context.Context, from task.Status, t *task.Task) {
	s.metrics.TaskTransition(ctx, string(from), string(t.Status))
	logger.From(ctx, slog.Default()).Info("task transitioned",
		"task_id", t.ID, "agent_id", t.AgentID, "from", from, "to", t.Status)
	s.publish(ctx, messagequeue.SubjectTaskStatus, messagequeue.TaskStatusPayload{
		TaskID:    t.ID,
		AgentID:   t.AgentID,
		From:      string(from),
		To:        string(t.Status),
		ExitCode:  t.ExitCode,
		Timestamp: t.UpdatedAt,
	})
}
