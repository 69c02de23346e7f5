package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// Ingestor subscribes the managers to the inbound telemetry subjects.
type Ingestor struct {
	queue     messagequeue.Queue
	agents    *AgentService
	telemetry *TelemetryService
}

// NewIngestor creates a new Ingestor.
func NewIngestor(queue messagequeue.Queue, agents *AgentService, telemetry *TelemetryService) *Ingestor {
	return &Ingestor{queue: queue, agents: agents, telemetry: telemetry}
}

// Start registers one subscription per inbound subject. The returned
// function cancels all of them. On error, subscriptions made so far are
// cancelled.
func (i *Ingestor) Start(ctx context.Context) (func(), error) {
	subs := []struct {
		subject string
		handler messagequeue.Handler
	}{
		{messagequeue.SubjectAgentTelemetry, i.agents.HandleTelemetry},
		{messagequeue.SubjectAgentLogs, i.telemetry.HandleLog},
		{messagequeue.SubjectAgentMetrics, i.telemetry.HandleMetric},
	}

	var cancels []func()
	stopAll := func() {
		for _, c := range cancels {
			c()
		}
	}
	for _, sub := range subs {
		cancel, err := i.queue.Subscribe(ctx, sub.subject, sub.handler)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
		cancels = append(cancels, cancel)
		slog.Info("ingestion subscribed", "subject", sub.subject)
	}
	return stopAll, nil
}
