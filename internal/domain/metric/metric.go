// Package metric defines point-in-time performance samples of an agent.
package metric

import (
	"math"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain"
)

// Window bounds, in hours.
const (
	DefaultWindowHours = 24
	MaxWindowHours     = 168
)

// Sample is an immutable performance reading. Recording a sample does not
// change the agent's own telemetry snapshot.
type Sample struct {
	ID          int64     `json:"id"`
	AgentID     int64     `json:"agent_id"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage int64     `json:"memory_usage"`
	MemoryLimit int64     `json:"memory_limit"`
	NetworkRX   int64     `json:"network_rx"`
	NetworkTX   int64     `json:"network_tx"`
	DiskUsage   int64     `json:"disk_usage"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// RecordRequest holds the readings for a new sample.
type RecordRequest struct {
	CPUUsage    float64 `json:"cpu_usage" validate:"min=0,max=100"`
	MemoryUsage int64   `json:"memory_usage" validate:"min=0"`
	MemoryLimit int64   `json:"memory_limit" validate:"gt=0"`
	NetworkRX   int64   `json:"network_rx" validate:"min=0"`
	NetworkTX   int64   `json:"network_tx" validate:"min=0"`
	DiskUsage   int64   `json:"disk_usage" validate:"min=0"`
}

// Validate checks reading ranges.
func (r *RecordRequest) Validate() error {
	if r.CPUUsage < 0 || r.CPUUsage > 100 || math.IsNaN(r.CPUUsage) {
		return domain.NewValidationError("cpu_usage", "must be between 0 and 100")
	}
	if r.MemoryLimit <= 0 {
		return domain.NewValidationError("memory_limit", "must be positive")
	}
	if r.MemoryUsage < 0 {
		return domain.NewValidationError("memory_usage", "must not be negative")
	}
	if r.NetworkRX < 0 {
		return domain.NewValidationError("network_rx", "must not be negative")
	}
	if r.NetworkTX < 0 {
		return domain.NewValidationError("network_tx", "must not be negative")
	}
	if r.DiskUsage < 0 {
		return domain.NewValidationError("disk_usage", "must not be negative")
	}
	return nil
}

// New builds the sample for agentID. The caller must have validated req.
func New(agentID int64, req *RecordRequest, now time.Time) *Sample {
	return &Sample{
		AgentID:     agentID,
		CPUUsage:    math.Round(req.CPUUsage*100) / 100,
		MemoryUsage: req.MemoryUsage,
		MemoryLimit: req.MemoryLimit,
		NetworkRX:   req.NetworkRX,
		NetworkTX:   req.NetworkTX,
		DiskUsage:   req.DiskUsage,
		RecordedAt:  now,
	}
}

// Window returns the closed interval [now-hours, now]. hours of 0 selects
// DefaultWindowHours.
func Window(hours int, now time.Time) (from, to time.Time, err error) {
	if hours == 0 {
		hours = DefaultWindowHours
	}
	if hours < 1 || hours > MaxWindowHours {
		return time.Time{}, time.Time{}, domain.NewValidationError("hours", "must be between 1 and %d", MaxWindowHours)
	}
	return now.Add(-time.Duration(hours) * time.Hour), now, nil
}
