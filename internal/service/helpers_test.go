package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/AgentFleet/internal/adapter/memory"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu        sync.Mutex
	published []publishedMsg
	handlers  map[string]messagequeue.Handler

	publishErr   error
	subscribeErr map[string]error
	cancelled    int
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, publishedMsg{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.subscribeErr[subject]; err != nil {
		return nil, err
	}
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		q.cancelled++
		q.mu.Unlock()
	}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

// subjects returns the published subjects in order.
func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, m := range q.published {
		out[i] = m.subject
	}
	return out
}

// last decodes the most recent message on subject into v.
func (q *mockQueue) last(t *testing.T, subject string, v any) {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.published) - 1; i >= 0; i-- {
		if q.published[i].subject == subject {
			if err := json.Unmarshal(q.published[i].data, v); err != nil {
				t.Fatalf("decode %s: %v", subject, err)
			}
			return
		}
	}
	t.Fatalf("nothing published on %s", subject)
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixture wires every manager to one memory store, queue and clock.
type fixture struct {
	store     *memory.Store
	queue     *mockQueue
	clock     *clock
	agents    *AgentService
	tasks     *TaskService
	telemetry *TelemetryService
	dashboard *DashboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		queue: &mockQueue{},
		clock: newClock(),
	}
	f.agents = NewAgentService(f.store, f.queue)
	f.tasks = NewTaskService(f.store, f.queue)
	f.telemetry = NewTelemetryService(f.store)
	f.dashboard = NewDashboardService(f.store)
	f.agents.now = f.clock.Now
	f.tasks.now = f.clock.Now
	f.telemetry.now = f.clock.Now
	f.dashboard.now = f.clock.Now
	return f
}

func (f *fixture) createAgent(t *testing.T, name string) *agent.Agent {
	t.Helper()
	a, err := f.agents.Create(context.Background(), agent.CreateRequest{
		Name: name, Node: "pve1", ContainerID: "ct-" + name, Image: "build:latest",
	})
	if err != nil {
		t.Fatalf("create agent %s: %v", name, err)
	}
	return a
}

func ptr[T any](v T) *T { return &v }

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
