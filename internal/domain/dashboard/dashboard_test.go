package dashboard_test

import (
	"testing"

	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/dashboard"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

func TestComputeEmptyFleet(t *testing.T) {
	got := dashboard.Compute(nil, nil)
	if got != (dashboard.Overview{}) {
		t.Fatalf("expected all zeros, got %+v", got)
	}
}

func TestComputeBucketsAndAverages(t *testing.T) {
	agents := []agent.Agent{
		{Status: agent.StatusOnline, State: agent.StateBusy, CPUUsage: 50, MemoryUsage: 100, Uptime: 10},
		{Status: agent.StatusOffline, State: agent.StateIdle, CPUUsage: 10, MemoryUsage: 300, Uptime: 20},
		{Status: agent.StatusError, State: agent.StateMaintenance, CPUUsage: 0, MemoryUsage: 200, Uptime: 30},
		{Status: agent.StatusStarting, State: agent.StateIdle, CPUUsage: 20, MemoryUsage: 0, Uptime: 0},
	}
	tasks := []task.Task{
		{Status: task.StatusPending},
		{Status: task.StatusRunning},
		{Status: task.StatusRunning},
		{Status: task.StatusCompleted},
		{Status: task.StatusFailed},
		{Status: task.StatusCancelled},
	}

	got := dashboard.Compute(agents, tasks)
	want := dashboard.Overview{
		TotalAgents:    4,
		OnlineAgents:   1,
		OfflineAgents:  1,
		BusyAgents:     1,
		IdleAgents:     2,
		TotalTasks:     6,
		RunningTasks:   2,
		CompletedTasks: 1,
		FailedTasks:    1,
		AvgCPUUsage:    20,
		AvgMemoryUsage: 150,
		TotalUptime:    60,
	}
	if got != want {
		t.Fatalf("Compute() =\n%+v\nwant\n%+v", got, want)
	}
}
