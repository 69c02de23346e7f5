package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Agents ---

const agentColumns = `id, name, description, proxmox_node, container_id, docker_image, status, state,
	cpu_usage::float8, memory_usage, memory_limit, network_rx, network_tx, disk_usage, uptime,
	last_seen, created_at, updated_at`

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return orEmpty(agents), nil
}

func (s *Store) GetAgent(ctx context.Context, id int64) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent %d", id)
	}
	return &a, nil
}

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (name, description, proxmox_node, container_id, docker_image, status, state,
			cpu_usage, memory_usage, memory_limit, network_rx, network_tx, disk_usage, uptime,
			last_seen, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING `+agentColumns,
		a.Name, a.Description, a.Node, a.ContainerID, a.Image, string(a.Status), string(a.State),
		a.CPUUsage, a.MemoryUsage, a.MemoryLimit, a.NetworkRX, a.NetworkTX, a.DiskUsage, a.Uptime,
		a.LastSeen, a.CreatedAt, a.UpdatedAt)

	created, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &created, nil
}

func (s *Store) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET name = $2, description = $3, status = $4, state = $5,
			cpu_usage = $6, memory_usage = $7, memory_limit = $8, network_rx = $9, network_tx = $10,
			disk_usage = $11, uptime = $12, last_seen = $13, updated_at = $14
		 WHERE id = $1`,
		a.ID, a.Name, a.Description, string(a.Status), string(a.State),
		a.CPUUsage, a.MemoryUsage, a.MemoryLimit, a.NetworkRX, a.NetworkTX,
		a.DiskUsage, a.Uptime, a.LastSeen, a.UpdatedAt)
	return execExpectOne(tag, err, "update agent %d", a.ID)
}

// DeleteAgent relies on ON DELETE CASCADE: the single statement removes the
// agent's tasks, log entries and samples atomically.
func (s *Store) DeleteAgent(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete agent %d", id)
}

func scanAgent(row scannable) (agent.Agent, error) {
	var a agent.Agent
	var status, state string
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Node, &a.ContainerID, &a.Image, &status, &state,
		&a.CPUUsage, &a.MemoryUsage, &a.MemoryLimit, &a.NetworkRX, &a.NetworkTX, &a.DiskUsage, &a.Uptime,
		&a.LastSeen, &a.CreatedAt, &a.UpdatedAt)
	a.Status = agent.Status(status)
	a.State = agent.State(state)
	return a, err
}

// --- Tasks ---

const taskColumns = `id, agent_id, name, description, command, status, started_at, completed_at,
	exit_code, output, error_message, created_at, updated_at`

func (s *Store) ListTasks(ctx context.Context) ([]task.Task, error) {
	return s.queryTasks(ctx, "list tasks", `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
}

func (s *Store) ListTasksByAgent(ctx context.Context, agentID int64) ([]task.Task, error) {
	return s.queryTasks(ctx, fmt.Sprintf("list tasks for agent %d", agentID),
		`SELECT `+taskColumns+` FROM tasks WHERE agent_id = $1 ORDER BY id`, agentID)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orEmpty(tasks), nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %d", id)
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (agent_id, name, description, command, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+taskColumns,
		t.AgentID, t.Name, t.Description, t.Command, string(t.Status), t.CreatedAt, t.UpdatedAt)

	created, err := scanTask(row)
	if err != nil {
		return nil, agentRefWrap(err, t.AgentID, "create task")
	}
	return &created, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task, from task.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, started_at = $3, completed_at = $4, exit_code = $5,
			output = $6, error_message = $7, updated_at = $8
		 WHERE id = $1 AND status = $9`,
		t.ID, string(t.Status), t.StartedAt, t.CompletedAt, t.ExitCode,
		t.Output, t.ErrorMessage, t.UpdatedAt, string(from))
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either gone or moved on since it was read.
		if _, err := s.GetTask(ctx, t.ID); err != nil {
			return err
		}
		return fmt.Errorf("update task %d: %w", t.ID, domain.ErrConflict)
	}
	return nil
}

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	var status string
	err := row.Scan(&t.ID, &t.AgentID, &t.Name, &t.Description, &t.Command, &status,
		&t.StartedAt, &t.CompletedAt, &t.ExitCode, &t.Output, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	t.Status = task.Status(status)
	return t, err
}

// --- Agent logs ---

func (s *Store) CreateAgentLog(ctx context.Context, e *agentlog.Entry) (*agentlog.Entry, error) {
	var created agentlog.Entry
	var level string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agent_logs (agent_id, level, message, metadata, timestamp)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, agent_id, level, message, metadata, timestamp`,
		e.AgentID, string(e.Level), e.Message, e.Metadata, e.Timestamp,
	).Scan(&created.ID, &created.AgentID, &level, &created.Message, &created.Metadata, &created.Timestamp)
	if err != nil {
		return nil, agentRefWrap(err, e.AgentID, "create agent log")
	}
	created.Level = agentlog.Level(level)
	return &created, nil
}

func (s *Store) FindAgentLogs(ctx context.Context, agentID int64, q agentlog.Query) ([]agentlog.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, level, message, metadata, timestamp
		 FROM agent_logs
		 WHERE agent_id = $1 AND ($2::text = '' OR level = $2::text)
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		agentID, string(q.Level), q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("find agent logs %d: %w", agentID, err)
	}
	defer rows.Close()

	var entries []agentlog.Entry
	for rows.Next() {
		var e agentlog.Entry
		var level string
		if err := rows.Scan(&e.ID, &e.AgentID, &level, &e.Message, &e.Metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan agent log: %w", err)
		}
		e.Level = agentlog.Level(level)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find agent logs %d: %w", agentID, err)
	}
	return orEmpty(entries), nil
}

// --- Performance metrics ---

const metricColumns = `id, agent_id, cpu_usage::float8, memory_usage, memory_limit, network_rx, network_tx, disk_usage, recorded_at`

func (s *Store) CreateMetric(ctx context.Context, m *metric.Sample) (*metric.Sample, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO performance_metrics (agent_id, cpu_usage, memory_usage, memory_limit, network_rx, network_tx, disk_usage, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+metricColumns,
		m.AgentID, m.CPUUsage, m.MemoryUsage, m.MemoryLimit, m.NetworkRX, m.NetworkTX, m.DiskUsage, m.RecordedAt)

	created, err := scanMetric(row)
	if err != nil {
		return nil, agentRefWrap(err, m.AgentID, "record metric")
	}
	return &created, nil
}

func (s *Store) FindMetricsInRange(ctx context.Context, agentID int64, from, to time.Time) ([]metric.Sample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+metricColumns+`
		 FROM performance_metrics
		 WHERE agent_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		 ORDER BY recorded_at, id`,
		agentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("find metrics %d: %w", agentID, err)
	}
	defer rows.Close()

	var samples []metric.Sample
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		samples = append(samples, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find metrics %d: %w", agentID, err)
	}
	return orEmpty(samples), nil
}

func scanMetric(row scannable) (metric.Sample, error) {
	var m metric.Sample
	err := row.Scan(&m.ID, &m.AgentID, &m.CPUUsage, &m.MemoryUsage, &m.MemoryLimit,
		&m.NetworkRX, &m.NetworkTX, &m.DiskUsage, &m.RecordedAt)
	return m, err
}
