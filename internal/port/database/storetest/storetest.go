// Package storetest holds the behavioral test suite every database.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/port/database"
)

// missingID is never assigned by a store under test.
const missingID int64 = 1 << 62

// Run runs the compliance suite against s. Stores may already hold data, so
// assertions only look at records created by the suite.
func Run(t *testing.T, s database.Store) {
	t.Helper()

	t.Run("AgentRoundTrip", func(t *testing.T) { testAgentRoundTrip(t, s) })
	t.Run("AgentNotFound", func(t *testing.T) { testAgentNotFound(t, s) })
	t.Run("ListAgentsAscending", func(t *testing.T) { testListAgentsAscending(t, s) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, s) })
	t.Run("ChildInsertUnknownAgent", func(t *testing.T) { testChildInsertUnknownAgent(t, s) })
	t.Run("UpdateTaskGuardsStatus", func(t *testing.T) { testUpdateTaskGuardsStatus(t, s) })
	t.Run("LogsNewestFirst", func(t *testing.T) { testLogsNewestFirst(t, s) })
	t.Run("MetricsWindow", func(t *testing.T) { testMetricsWindow(t, s) })
}

// baseTime is truncated to the precision Postgres keeps.
func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newAgent(t *testing.T, s database.Store) *agent.Agent {
	t.Helper()
	req := agent.CreateRequest{
		Name:        "agent-" + uuid.New().String()[:8],
		Node:        "pve1",
		ContainerID: "ct-" + uuid.New().String()[:8],
		Image:       "alpine:3",
	}
	a, err := s.CreateAgent(context.Background(), agent.New(&req, baseTime()))
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a
}

func newTask(t *testing.T, s database.Store, agentID int64) *task.Task {
	t.Helper()
	tk, err := s.CreateTask(context.Background(), task.New(&task.CreateRequest{AgentID: agentID, Name: "build", Command: "make"}, baseTime()))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return tk
}

func testAgentRoundTrip(t *testing.T, s database.Store) {
	ctx := context.Background()
	a := newAgent(t, s)
	if a.ID <= 0 {
		t.Fatalf("expected store-assigned id, got %d", a.ID)
	}
	if a.Status != agent.StatusOffline || a.State != agent.StateIdle || a.MemoryLimit != agent.DefaultMemoryLimit {
		t.Fatalf("unexpected initial record %+v", a)
	}

	a.Status = agent.StatusOnline
	a.CPUUsage = 37.25
	a.Uptime = 42
	a.UpdatedAt = baseTime()
	if err := s.UpdateAgent(ctx, a); err != nil {
		t.Fatalf("update agent: %v", err)
	}

	got, err := s.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got.Status != agent.StatusOnline || got.CPUUsage != 37.25 || got.Uptime != 42 {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.Name != a.Name || got.Node != "pve1" {
		t.Fatalf("identity fields changed: %+v", got)
	}
}

func testAgentNotFound(t *testing.T, s database.Store) {
	ctx := context.Background()
	if _, err := s.GetAgent(ctx, missingID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get: expected ErrNotFound, got %v", err)
	}
	ghost := &agent.Agent{ID: missingID, Name: "x", Status: agent.StatusOffline, State: agent.StateIdle, MemoryLimit: 1}
	if err := s.UpdateAgent(ctx, ghost); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteAgent(ctx, missingID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("delete: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetTask(ctx, missingID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get task: expected ErrNotFound, got %v", err)
	}
}

func testListAgentsAscending(t *testing.T, s database.Store) {
	first := newAgent(t, s)
	second := newAgent(t, s)

	agents, err := s.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	posFirst, posSecond := -1, -1
	for i := range agents {
		if i > 0 && agents[i-1].ID >= agents[i].ID {
			t.Fatalf("agents not in ascending id order at %d", i)
		}
		switch agents[i].ID {
		case first.ID:
			posFirst = i
		case second.ID:
			posSecond = i
		}
	}
	if posFirst < 0 || posSecond < 0 || posFirst > posSecond {
		t.Fatalf("expected both agents listed in creation order, got %d, %d", posFirst, posSecond)
	}
}

func testDeleteCascades(t *testing.T, s database.Store) {
	ctx := context.Background()
	a := newAgent(t, s)
	tk := newTask(t, s, a.ID)
	now := baseTime()

	if _, err := s.CreateAgentLog(ctx, agentlog.New(a.ID, &agentlog.CreateRequest{Level: agentlog.LevelInfo, Message: "hello"}, now)); err != nil {
		t.Fatalf("create log: %v", err)
	}
	if _, err := s.CreateMetric(ctx, metric.New(a.ID, &metric.RecordRequest{CPUUsage: 1, MemoryLimit: 1}, now)); err != nil {
		t.Fatalf("create metric: %v", err)
	}

	if err := s.DeleteAgent(ctx, a.ID); err != nil {
		t.Fatalf("delete agent: %v", err)
	}

	if _, err := s.GetAgent(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected agent gone, got %v", err)
	}
	if _, err := s.GetTask(ctx, tk.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected task cascaded, got %v", err)
	}
	tasks, err := s.ListTasksByAgent(ctx, a.ID)
	if err != nil || len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d (err=%v)", len(tasks), err)
	}
	logs, err := s.FindAgentLogs(ctx, a.ID, agentlog.Query{Limit: 10})
	if err != nil || len(logs) != 0 {
		t.Errorf("expected no logs, got %d (err=%v)", len(logs), err)
	}
	samples, err := s.FindMetricsInRange(ctx, a.ID, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil || len(samples) != 0 {
		t.Errorf("expected no samples, got %d (err=%v)", len(samples), err)
	}
	if err := s.DeleteAgent(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func testChildInsertUnknownAgent(t *testing.T, s database.Store) {
	ctx := context.Background()
	now := baseTime()

	if _, err := s.CreateTask(ctx, task.New(&task.CreateRequest{AgentID: missingID, Name: "n", Command: "c"}, now)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("task: expected ErrNotFound, got %v", err)
	}
	if _, err := s.CreateAgentLog(ctx, agentlog.New(missingID, &agentlog.CreateRequest{Level: agentlog.LevelInfo, Message: "m"}, now)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("log: expected ErrNotFound, got %v", err)
	}
	if _, err := s.CreateMetric(ctx, metric.New(missingID, &metric.RecordRequest{MemoryLimit: 1}, now)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("metric: expected ErrNotFound, got %v", err)
	}
}

func testUpdateTaskGuardsStatus(t *testing.T, s database.Store) {
	ctx := context.Background()
	a := newAgent(t, s)
	tk := newTask(t, s, a.ID)

	running := task.StatusRunning
	next, err := (&task.UpdateRequest{Status: &running}).Apply(tk, baseTime())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.UpdateTask(ctx, &next, task.StatusPending); err != nil {
		t.Fatalf("update task: %v", err)
	}

	// A second writer still believing the task is pending loses.
	if err := s.UpdateTask(ctx, &next, task.StatusPending); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != task.StatusRunning || got.StartedAt == nil {
		t.Fatalf("unexpected stored task %+v", got)
	}

	ghost := next
	ghost.ID = missingID
	if err := s.UpdateTask(ctx, &ghost, task.StatusRunning); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testLogsNewestFirst(t *testing.T, s database.Store) {
	ctx := context.Background()
	a := newAgent(t, s)
	now := baseTime()

	levels := []agentlog.Level{agentlog.LevelInfo, agentlog.LevelError, agentlog.LevelInfo, agentlog.LevelWarn}
	for i, lvl := range levels {
		ts := now.Add(time.Duration(i) * time.Second)
		e := agentlog.New(a.ID, &agentlog.CreateRequest{Level: lvl, Message: string(lvl), Timestamp: &ts}, now)
		if _, err := s.CreateAgentLog(ctx, e); err != nil {
			t.Fatalf("create log %d: %v", i, err)
		}
	}

	all, err := s.FindAgentLogs(ctx, a.ID, agentlog.Query{Limit: 100})
	if err != nil {
		t.Fatalf("find logs: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 logs, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatalf("logs not newest first at %d", i)
		}
	}
	if all[0].Level != agentlog.LevelWarn {
		t.Errorf("expected newest entry warn, got %s", all[0].Level)
	}

	infos, err := s.FindAgentLogs(ctx, a.ID, agentlog.Query{Level: agentlog.LevelInfo, Limit: 100})
	if err != nil {
		t.Fatalf("find info logs: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 info logs, got %d", len(infos))
	}
	for _, e := range infos {
		if e.Level != agentlog.LevelInfo {
			t.Fatalf("level filter leaked %s", e.Level)
		}
	}

	page, err := s.FindAgentLogs(ctx, a.ID, agentlog.Query{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("find page: %v", err)
	}
	if len(page) != 2 || page[0].Level != agentlog.LevelInfo || page[1].Level != agentlog.LevelError {
		t.Fatalf("unexpected page %+v", page)
	}

	past, err := s.FindAgentLogs(ctx, a.ID, agentlog.Query{Limit: 10, Offset: 10})
	if err != nil || len(past) != 0 {
		t.Fatalf("expected empty page past the end, got %d (err=%v)", len(past), err)
	}
}

func testMetricsWindow(t *testing.T, s database.Store) {
	ctx := context.Background()
	a := newAgent(t, s)
	now := baseTime()

	for _, age := range []time.Duration{25 * time.Hour, 2 * time.Hour, 30 * time.Minute} {
		m := metric.New(a.ID, &metric.RecordRequest{CPUUsage: 10, MemoryLimit: 100}, now.Add(-age))
		if _, err := s.CreateMetric(ctx, m); err != nil {
			t.Fatalf("create metric: %v", err)
		}
	}

	got, err := s.FindMetricsInRange(ctx, a.ID, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("find metrics: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 samples in window, got %d", len(got))
	}
	if !got[0].RecordedAt.Equal(now.Add(-2*time.Hour)) || !got[1].RecordedAt.Equal(now.Add(-30*time.Minute)) {
		t.Fatalf("expected oldest first, got %v then %v", got[0].RecordedAt, got[1].RecordedAt)
	}
}
