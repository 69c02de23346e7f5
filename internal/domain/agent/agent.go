// Package agent defines the Agent domain entity: a remotely managed
// execution container bound to a virtualization node.
package agent

import (
	"math"
	"strings"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain"
)

// DefaultMemoryLimit is applied when a create request omits memory_limit (1 GiB).
const DefaultMemoryLimit int64 = 1 << 30

// Status is the operational status of an agent.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusStarting Status = "starting"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusStarting, StatusStopping, StatusError:
		return true
	}
	return false
}

// State is the workload state of an agent. It is independent of Status:
// an offline agent may still be recorded as busy.
type State string

const (
	StateIdle        State = "idle"
	StateBusy        State = "busy"
	StateMaintenance State = "maintenance"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateBusy, StateMaintenance:
		return true
	}
	return false
}

// Agent is the current record of a fleet agent, including its most recent
// telemetry snapshot.
type Agent struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Node        string    `json:"proxmox_node"`
	ContainerID string    `json:"container_id"`
	Image       string    `json:"docker_image"`
	Status      Status    `json:"status"`
	State       State     `json:"state"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage int64     `json:"memory_usage"`
	MemoryLimit int64     `json:"memory_limit"`
	NetworkRX   int64     `json:"network_rx"`
	NetworkTX   int64     `json:"network_tx"`
	DiskUsage   int64     `json:"disk_usage"`
	Uptime      int64     `json:"uptime"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the record-level invariants of a.
func (a *Agent) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return domain.NewValidationError("name", "is required")
	}
	if !a.Status.Valid() {
		return domain.NewValidationError("status", "unknown status %q", a.Status)
	}
	if !a.State.Valid() {
		return domain.NewValidationError("state", "unknown state %q", a.State)
	}
	if a.CPUUsage < 0 || a.CPUUsage > 100 {
		return domain.NewValidationError("cpu_usage", "must be between 0 and 100")
	}
	if a.MemoryLimit <= 0 {
		return domain.NewValidationError("memory_limit", "must be positive")
	}
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"memory_usage", a.MemoryUsage},
		{"network_rx", a.NetworkRX},
		{"network_tx", a.NetworkTX},
		{"disk_usage", a.DiskUsage},
		{"uptime", a.Uptime},
	} {
		if f.v < 0 {
			return domain.NewValidationError(f.name, "must not be negative")
		}
	}
	return nil
}

// CreateRequest holds the fields needed to register a new agent.
type CreateRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	Node        string  `json:"proxmox_node" validate:"required"`
	ContainerID string  `json:"container_id" validate:"required"`
	Image       string  `json:"docker_image" validate:"required"`
	MemoryLimit *int64  `json:"memory_limit,omitempty" validate:"omitempty,gt=0"`
}

// Validate checks required fields after trimming whitespace.
func (r *CreateRequest) Validate() error {
	required := []struct {
		field, v string
	}{
		{"name", r.Name},
		{"proxmox_node", r.Node},
		{"container_id", r.ContainerID},
		{"docker_image", r.Image},
	}
	for _, f := range required {
		if strings.TrimSpace(f.v) == "" {
			return domain.NewValidationError(f.field, "is required")
		}
	}
	if r.MemoryLimit != nil && *r.MemoryLimit <= 0 {
		return domain.NewValidationError("memory_limit", "must be positive")
	}
	return nil
}

// New builds the initial record for req: offline, idle, zeroed telemetry.
// The caller must have validated req.
func New(req *CreateRequest, now time.Time) *Agent {
	limit := DefaultMemoryLimit
	if req.MemoryLimit != nil {
		limit = *req.MemoryLimit
	}
	return &Agent{
		Name:        strings.TrimSpace(req.Name),
		Description: normalizeDescription(req.Description),
		Node:        strings.TrimSpace(req.Node),
		ContainerID: strings.TrimSpace(req.ContainerID),
		Image:       strings.TrimSpace(req.Image),
		Status:      StatusOffline,
		State:       StateIdle,
		MemoryLimit: limit,
		LastSeen:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string  `json:"description,omitempty"`
	Status      *Status  `json:"status,omitempty" validate:"omitempty,oneof=online offline starting stopping error"`
	State       *State   `json:"state,omitempty" validate:"omitempty,oneof=idle busy maintenance"`
	CPUUsage    *float64 `json:"cpu_usage,omitempty" validate:"omitempty,min=0,max=100"`
	MemoryUsage *int64   `json:"memory_usage,omitempty" validate:"omitempty,min=0"`
	MemoryLimit *int64   `json:"memory_limit,omitempty" validate:"omitempty,gt=0"`
	NetworkRX   *int64   `json:"network_rx,omitempty" validate:"omitempty,min=0"`
	NetworkTX   *int64   `json:"network_tx,omitempty" validate:"omitempty,min=0"`
	DiskUsage   *int64   `json:"disk_usage,omitempty" validate:"omitempty,min=0"`
	Uptime      *int64   `json:"uptime,omitempty" validate:"omitempty,min=0"`
}

// touchesTelemetry reports whether the update carries any snapshot field.
func (u *UpdateRequest) touchesTelemetry() bool {
	return u.CPUUsage != nil || u.MemoryUsage != nil || u.MemoryLimit != nil ||
		u.NetworkRX != nil || u.NetworkTX != nil || u.DiskUsage != nil || u.Uptime != nil
}

// Apply merges u onto a copy of current and validates the merged result.
// current is never modified; on error the returned Agent is the zero value.
func (u *UpdateRequest) Apply(current *Agent, now time.Time) (Agent, error) {
	next := *current

	if u.Name != nil {
		next.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		next.Description = normalizeDescription(u.Description)
	}
	if u.Status != nil {
		next.Status = *u.Status
	}
	if u.State != nil {
		next.State = *u.State
	}
	if u.CPUUsage != nil {
		if *u.CPUUsage < 0 || *u.CPUUsage > 100 || math.IsNaN(*u.CPUUsage) {
			return Agent{}, domain.NewValidationError("cpu_usage", "must be between 0 and 100")
		}
		next.CPUUsage = RoundCPU(*u.CPUUsage)
	}
	setInt64(&next.MemoryUsage, u.MemoryUsage)
	setInt64(&next.MemoryLimit, u.MemoryLimit)
	setInt64(&next.NetworkRX, u.NetworkRX)
	setInt64(&next.NetworkTX, u.NetworkTX)
	setInt64(&next.DiskUsage, u.DiskUsage)
	setInt64(&next.Uptime, u.Uptime)

	if err := next.Validate(); err != nil {
		return Agent{}, err
	}

	next.UpdatedAt = now
	if u.touchesTelemetry() || u.Status != nil {
		next.LastSeen = now
	}
	return next, nil
}

// Heartbeat is a telemetry report pushed by an agent over the ingestion bus.
type Heartbeat struct {
	AgentID     int64    `json:"agent_id"`
	Status      *Status  `json:"status,omitempty"`
	State       *State   `json:"state,omitempty"`
	CPUUsage    *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage *int64   `json:"memory_usage,omitempty"`
	MemoryLimit *int64   `json:"memory_limit,omitempty"`
	NetworkRX   *int64   `json:"network_rx,omitempty"`
	NetworkTX   *int64   `json:"network_tx,omitempty"`
	DiskUsage   *int64   `json:"disk_usage,omitempty"`
	Uptime      *int64   `json:"uptime,omitempty"`
}

// UpdateRequest converts the heartbeat to the equivalent partial update.
func (h *Heartbeat) UpdateRequest() *UpdateRequest {
	return &UpdateRequest{
		Status:      h.Status,
		State:       h.State,
		CPUUsage:    h.CPUUsage,
		MemoryUsage: h.MemoryUsage,
		MemoryLimit: h.MemoryLimit,
		NetworkRX:   h.NetworkRX,
		NetworkTX:   h.NetworkTX,
		DiskUsage:   h.DiskUsage,
		Uptime:      h.Uptime,
	}
}

// RoundCPU rounds a CPU percentage to two decimals, matching the stored precision.
func RoundCPU(v float64) float64 {
	return math.Round(v*100) / 100
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

// normalizeDescription trims d and maps blank descriptions to null.
func normalizeDescription(d *string) *string {
	if d == nil {
		return nil
	}
	s := strings.TrimSpace(*d)
	if s == "" {
		return nil
	}
	return &s
}
