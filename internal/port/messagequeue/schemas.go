package messagequeue

import "time"

// TelemetryPayload is the schema for agents.telemetry messages.
type TelemetryPayload struct {
	AgentID     int64    `json:"agent_id"`
	Status      *string  `json:"status,omitempty"`
	State       *string  `json:"state,omitempty"`
	CPUUsage    *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage *int64   `json:"memory_usage,omitempty"`
	MemoryLimit *int64   `json:"memory_limit,omitempty"`
	NetworkRX   *int64   `json:"network_rx,omitempty"`
	NetworkTX   *int64   `json:"network_tx,omitempty"`
	DiskUsage   *int64   `json:"disk_usage,omitempty"`
	Uptime      *int64   `json:"uptime,omitempty"`
}

// LogPayload is the schema for agents.logs messages.
type LogPayload struct {
	AgentID   int64      `json:"agent_id"`
	Level     string     `json:"level"`
	Message   string     `json:"message"`
	Metadata  *string    `json:"metadata,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MetricPayload is the schema for agents.metrics messages.
type MetricPayload struct {
	AgentID     int64   `json:"agent_id"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage int64   `json:"memory_usage"`
	MemoryLimit int64   `json:"memory_limit"`
	NetworkRX   int64   `json:"network_rx"`
	NetworkTX   int64   `json:"network_tx"`
	DiskUsage   int64   `json:"disk_usage"`
}

// AgentEventPayload is the schema for agents.created and agents.deleted messages.
type AgentEventPayload struct {
	AgentID   int64     `json:"agent_id"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskCreatedPayload is the schema for tasks.created messages.
type TaskCreatedPayload struct {
	TaskID  int64  `json:"task_id"`
	AgentID int64  `json:"agent_id"`
	Name    string `json:"name"`
	Command string `json:"command"`
}

// TaskStatusPayload is the schema for tasks.status messages.
type TaskStatusPayload struct {
	TaskID    int64     `json:"task_id"`
	AgentID   int64     `json:"agent_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
