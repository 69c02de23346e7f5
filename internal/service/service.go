// Package service holds the fleet managers: agent registry, task lifecycle,
// telemetry (logs and samples) and the dashboard aggregator. Managers
// validate input, persist through database.Store and publish best-effort
// lifecycle events when a queue is attached.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cfotel "github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/logger"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// base carries the dependencies shared by every manager.
type base struct {
	store   database.Store
	queue   messagequeue.Queue
	metrics *cfotel.Metrics
	now     func() time.Time
}

func newBase(store database.Store, queue messagequeue.Queue) base {
	return base{store: store, queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

// SetMetrics attaches metric instruments.
func (b *base) SetMetrics(m *cfotel.Metrics) { b.metrics = m }

// publish marshals payload and sends it on subject. Failures are logged and
// never surface to the caller: the write has already been committed.
func (b *base) publish(ctx context.Context, subject string, payload any) {
	if b.queue == nil {
		return
	}
	log := logger.From(ctx, slog.Default())
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("marshal event", "subject", subject, "error", err)
		return
	}
	if err := b.queue.Publish(ctx, subject, data); err != nil {
		log.Warn("publish event failed", "subject", subject, "error", err)
	}
}

// requireAgent returns the agent or an error wrapping domain.ErrNotFound.
func (b *base) requireAgent(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("agent %d: %w", id, domain.ErrNotFound)
	}
	_, err := b.store.GetAgent(ctx, id)
	return err
}

// decodePayload unmarshals a bus message, reporting malformed JSON as a
// validation failure so the queue dead-letters it instead of retrying.
func decodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(domain.ErrValidation, fmt.Errorf("decode payload: %w", err))
	}
	return nil
}
