package resilience

import (
	"context"

	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// GuardedQueue decorates a messagequeue.Queue so Publish goes through a
// Guard. Subscriptions and lifecycle calls pass straight through.
type GuardedQueue struct {
	messagequeue.Queue
	guard *Guard
}

// GuardQueue wraps q with g.
func GuardQueue(q messagequeue.Queue, g *Guard) *GuardedQueue {
	return &GuardedQueue{Queue: q, guard: g}
}

// Publish sends data, retrying transient failures. While the breaker is
// open it fails fast with ErrCircuitOpen.
func (g *GuardedQueue) Publish(ctx context.Context, subject string, data []byte) error {
	return g.guard.Do(ctx, func() error {
		return g.Queue.Publish(ctx, subject, data)
	})
}
