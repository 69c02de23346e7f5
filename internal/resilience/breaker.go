// Package resilience guards outbound calls to the event bus: a short retry
// for transient errors, wrapped in a circuit breaker so a broker that is
// down makes publishing fail fast instead of slowing every write.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Policy tunes a Guard.
type Policy struct {
	// MaxFailures consecutive failed calls open the circuit.
	MaxFailures uint32
	// Cooldown is how long the circuit stays open before one probe is let through.
	Cooldown time.Duration
	// Attempts per call, including the first. Retries happen inside the
	// breaker, so an exhausted retry counts as one failure.
	Attempts uint
	// Delay is the base backoff between attempts.
	Delay time.Duration
}

// DefaultPolicy suits best-effort event publishing.
var DefaultPolicy = Policy{
	MaxFailures: 5,
	Cooldown:    30 * time.Second,
	Attempts:    3,
	Delay:       50 * time.Millisecond,
}

// Guard runs calls through retry and a circuit breaker.
type Guard struct {
	cb     *gobreaker.CircuitBreaker
	policy Policy
}

// NewGuard returns a closed Guard named name. Breaker transitions are logged on log.
func NewGuard(name string, p Policy, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	if p.MaxFailures == 0 {
		p.MaxFailures = 1
	}
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     p.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= p.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Guard{cb: cb, policy: p}
}

// State reports "closed", "half-open" or "open".
func (g *Guard) State() string { return g.cb.State().String() }

// Do runs fn with retries unless the circuit is open. The error of the last
// attempt is returned as is.
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(g.policy.Attempts),
			retry.Delay(g.policy.Delay),
			retry.LastErrorOnly(true),
		)
		return nil, r.Do(fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}
