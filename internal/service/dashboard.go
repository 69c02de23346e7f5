package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/dashboard"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/port/database"
)

// DashboardService computes the fleet overview on demand.
type DashboardService struct {
	base
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(store database.Store) *DashboardService {
	return &DashboardService{base: newBase(store, nil)}
}

// Overview reads agents and tasks concurrently and reduces them. The two
// reads are not one snapshot; counts may straddle a concurrent write.
func (s *DashboardService) Overview(ctx context.Context) (_ dashboard.Overview, err error) {
	ctx, span := cfotel.StartDashboardSpan(ctx)
	defer func() { cfotel.EndSpan(span, err) }()
	start := time.Now()

	var (
		agents []agent.Agent
		tasks  []task.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agents, err = s.store.ListAgents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.store.ListTasks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return dashboard.Overview{}, err
	}

	o := dashboard.Compute(agents, tasks)
	s.metrics.DashboardComputed(ctx, time.Since(start).Seconds())
	return o, nil
}
