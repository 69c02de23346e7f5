package http

import (
	"net/http"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/service"
)

const (
	msgAgentNotFound = "agent not found"
	msgTaskNotFound  = "task not found"

	defaultMaxBodySize = 1 << 20 // 1 MB
)

// Limits bounds request processing.
type Limits struct {
	MaxRequestBodySize int64
}

// Handlers holds the managers the REST surface dispatches to.
type Handlers struct {
	Agents    *service.AgentService
	Tasks     *service.TaskService
	Telemetry *service.TelemetryService
	Dashboard *service.DashboardService
	Limits    Limits
	Version   string

	now func() time.Time
}

func (h *Handlers) bodyLimit() int64 {
	if h.Limits.MaxRequestBodySize > 0 {
		return h.Limits.MaxRequestBodySize
	}
	return defaultMaxBodySize
}

func (h *Handlers) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now().UTC()
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.clock().Format(time.RFC3339),
	})
}

// APIVersion handles GET /api/v1/
func (h *Handlers) APIVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

// GetAgentLogs handles GET /api/v1/agents/{id}/logs?level=&limit=&offset=
func (h *Handlers) GetAgentLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset")
	if !ok {
		return
	}
	q := agentlog.Query{
		Level:  agentlog.Level(r.URL.Query().Get("level")),
		Limit:  limit,
		Offset: offset,
	}
	entries, err := h.Telemetry.ListLogs(r.Context(), id, q)
	if err != nil {
		writeDomainError(w, r, err, msgAgentNotFound)
		return
	}
	if entries == nil {
		entries = []agentlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetPerformanceMetrics handles GET /api/v1/agents/{id}/metrics?hours=
func (h *Handlers) GetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	hours, ok := intQuery(w, r, "hours")
	if !ok {
		return
	}
	samples, err := h.Telemetry.ListMetrics(r.Context(), id, hours)
	if err != nil {
		writeDomainError(w, r, err, msgAgentNotFound)
		return
	}
	if samples == nil {
		samples = []metric.Sample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// DashboardOverview handles GET /api/v1/dashboard/overview
func (h *Handlers) DashboardOverview(w http.ResponseWriter, r *http.Request) {
	o, err := h.Dashboard.Overview(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
