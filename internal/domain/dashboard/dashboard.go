// Package dashboard computes the fleet health overview.
package dashboard

import (
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// Overview is a derived snapshot of the fleet. It is never persisted.
//
// Agents that are starting, stopping or in error are counted only in
// TotalAgents, as are agents in maintenance. Pending and cancelled tasks
// are counted only in TotalTasks.
type Overview struct {
	TotalAgents    int     `json:"total_agents"`
	OnlineAgents   int     `json:"online_agents"`
	OfflineAgents  int     `json:"offline_agents"`
	BusyAgents     int     `json:"busy_agents"`
	IdleAgents     int     `json:"idle_agents"`
	TotalTasks     int     `json:"total_tasks"`
	RunningTasks   int     `json:"running_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	FailedTasks    int     `json:"failed_tasks"`
	AvgCPUUsage    float64 `json:"avg_cpu_usage"`
	AvgMemoryUsage float64 `json:"avg_memory_usage"`
	TotalUptime    int64   `json:"total_uptime"`
}

// Compute reduces agents and tasks to an Overview. Averages over an empty
// fleet are zero.
func Compute(agents []agent.Agent, tasks []task.Task) Overview {
	var o Overview
	var cpuSum, memSum float64

	o.TotalAgents = len(agents)
	for i := range agents {
		a := &agents[i]
		switch a.Status {
		case agent.StatusOnline:
			o.OnlineAgents++
		case agent.StatusOffline:
			o.OfflineAgents++
		}
		switch a.State {
		case agent.StateBusy:
			o.BusyAgents++
		case agent.StateIdle:
			o.IdleAgents++
		}
		cpuSum += a.CPUUsage
		memSum += float64(a.MemoryUsage)
		o.TotalUptime += a.Uptime
	}
	if o.TotalAgents > 0 {
		o.AvgCPUUsage = cpuSum / float64(o.TotalAgents)
		o.AvgMemoryUsage = memSum / float64(o.TotalAgents)
	}

	o.TotalTasks = len(tasks)
	for i := range tasks {
		switch tasks[i].Status {
		case task.StatusRunning:
			o.RunningTasks++
		case task.StatusCompleted:
			o.CompletedTasks++
		case task.StatusFailed:
			o.FailedTasks++
		}
	}
	return o
}
