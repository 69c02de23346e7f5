package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentfleet"

// Ingestion sources.
const (
	SourceHTTP = "http"
	SourceBus  = "bus"
)

// Metrics holds all AgentFleet metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	AgentsCreated    metric.Int64Counter
	AgentsDeleted    metric.Int64Counter
	Heartbeats       metric.Int64Counter
	TaskTransitions  metric.Int64Counter
	LogsIngested     metric.Int64Counter
	SamplesIngested  metric.Int64Counter
	DashboardLatency metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.AgentsCreated, err = meter.Int64Counter("agentfleet.agents.created",
		metric.WithDescription("Number of agents registered"))
	if err != nil {
		return nil, err
	}

	m.AgentsDeleted, err = meter.Int64Counter("agentfleet.agents.deleted",
		metric.WithDescription("Number of agents removed"))
	if err != nil {
		return nil, err
	}

	m.Heartbeats, err = meter.Int64Counter("agentfleet.agents.heartbeats",
		metric.WithDescription("Number of telemetry heartbeats applied"))
	if err != nil {
		return nil, err
	}

	m.TaskTransitions, err = meter.Int64Counter("agentfleet.tasks.transitions",
		metric.WithDescription("Number of task status transitions"))
	if err != nil {
		return nil, err
	}

	m.LogsIngested, err = meter.Int64Counter("agentfleet.logs.ingested",
		metric.WithDescription("Number of agent log entries stored"))
	if err != nil {
		return nil, err
	}

	m.SamplesIngested, err = meter.Int64Counter("agentfleet.metrics.ingested",
		metric.WithDescription("Number of performance samples stored"))
	if err != nil {
		return nil, err
	}

	m.DashboardLatency, err = meter.Float64Histogram("agentfleet.dashboard.duration_seconds",
		metric.WithDescription("Dashboard overview computation time in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AgentCreated counts one registration.
func (m *Metrics) AgentCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.AgentsCreated.Add(ctx, 1)
}

// AgentDeleted counts one removal.
func (m *Metrics) AgentDeleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.AgentsDeleted.Add(ctx, 1)
}

// Heartbeat counts one applied telemetry heartbeat.
func (m *Metrics) Heartbeat(ctx context.Context) {
	if m == nil {
		return
	}
	m.Heartbeats.Add(ctx, 1)
}

// TaskTransition counts a status change, labelled by both ends.
func (m *Metrics) TaskTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.TaskTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// LogIngested counts a stored log entry by level and source.
func (m *Metrics) LogIngested(ctx context.Context, level, source string) {
	if m == nil {
		return
	}
	m.LogsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", level),
		attribute.String("source", source),
	))
}

// SampleIngested counts a stored performance sample by source.
func (m *Metrics) SampleIngested(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.SamplesIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// DashboardComputed records how long an overview took.
func (m *Metrics) DashboardComputed(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.DashboardLatency.Record(ctx, seconds)
}
