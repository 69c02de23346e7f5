package service

import (
	"context"
	"fmt"

	cfotel "github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// TelemetryService appends and queries agent log entries and performance
// samples. Samples never touch the agent's own snapshot.
type TelemetryService struct {
	base
}

// NewTelemetryService creates a new TelemetryService.
func NewTelemetryService(store database.Store) *TelemetryService {
	return &TelemetryService{base: newBase(store, nil)}
}

// CreateLog appends a log entry. The timestamp defaults to ingestion time.
func (s *TelemetryService) CreateLog(ctx context.Context, agentID int64, req agentlog.CreateRequest) (*agentlog.Entry, error) {
	return s.createLog(ctx, agentID, &req, cfotel.SourceHTTP)
}

func (s *TelemetryService) createLog(ctx context.Context, agentID int64, req *agentlog.CreateRequest, source string) (*agentlog.Entry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	e, err := s.store.CreateAgentLog(ctx, agentlog.New(agentID, req, s.now()))
	if err != nil {
		return nil, err
	}
	s.metrics.LogIngested(ctx, string(e.Level), source)
	return e, nil
}

// ListLogs returns a page of the agent's log, newest first. An unknown
// agent fails with domain.ErrNotFound rather than returning an empty page.
func (s *TelemetryService) ListLogs(ctx context.Context, agentID int64, q agentlog.Query) ([]agentlog.Entry, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.store.FindAgentLogs(ctx, agentID, q)
}

// RecordMetric appends a performance sample stamped with the current time.
func (s *TelemetryService) RecordMetric(ctx context.Context, agentID int64, req metric.RecordRequest) (*metric.Sample, error) {
	return s.recordMetric(ctx, agentID, &req, cfotel.SourceHTTP)
}

func (s *TelemetryService) recordMetric(ctx context.Context, agentID int64, req *metric.RecordRequest, source string) (*metric.Sample, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	m, err := s.store.CreateMetric(ctx, metric.New(agentID, req, s.now()))
	if err != nil {
		return nil, err
	}
	s.metrics.SampleIngested(ctx, source)
	return m, nil
}

// ListMetrics returns the samples recorded in the last hours, oldest first.
// hours of 0 selects the default window.
func (s *TelemetryService) ListMetrics(ctx context.Context, agentID int64, hours int) ([]metric.Sample, error) {
	from, to, err := metric.Window(hours, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.store.FindMetricsInRange(ctx, agentID, from, to)
}

// HandleLog is the agents.logs bus handler.
func (s *TelemetryService) HandleLog(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.LogPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	req := agentlog.CreateRequest{
		Level:     agentlog.Level(p.Level),
		Message:   p.Message,
		Metadata:  p.Metadata,
		Timestamp: p.Timestamp,
	}
	if _, err := s.createLog(ctx, p.AgentID, &req, cfotel.SourceBus); err != nil {
		return fmt.Errorf("log for agent %d: %w", p.AgentID, err)
	}
	return nil
}

// HandleMetric is the agents.metrics bus handler.
func (s *TelemetryService) HandleMetric(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.MetricPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	req := metric.RecordRequest{
		CPUUsage:    p.CPUUsage,
		MemoryUsage: p.MemoryUsage,
		MemoryLimit: p.MemoryLimit,
		NetworkRX:   p.NetworkRX,
		NetworkTX:   p.NetworkTX,
		DiskUsage:   p.DiskUsage,
	}
	if _, err := s.recordMetric(ctx, p.AgentID, &req, cfotel.SourceBus); err != nil {
		return fmt.Errorf("sample for agent %d: %w", p.AgentID, err)
	}
	return nil
}
