package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	cfhttp "github.com/Strob0t/AgentFleet/internal/adapter/http"
	"github.com/Strob0t/AgentFleet/internal/adapter/memory"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/agentlog"
	"github.com/Strob0t/AgentFleet/internal/domain/dashboard"
	"github.com/Strob0t/AgentFleet/internal/domain/metric"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/service"
)

func newTestRouter() chi.Router {
	store := memory.NewStore()
	handlers := &cfhttp.Handlers{
		Agents:    service.NewAgentService(store, nil),
		Tasks:     service.NewTaskService(store, nil),
		Telemetry: service.NewTelemetryService(store),
		Dashboard: service.NewDashboardService(store),
		Limits:    cfhttp.Limits{MaxRequestBodySize: 4096},
		Version:   "test",
	}
	r := chi.NewRouter()
	cfhttp.MountRoutes(r, handlers)
	return r
}

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field"`
	Current   string `json:"current"`
	Requested string `json:"requested"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func createAgent(t *testing.T, r http.Handler, name string) agent.Agent {
	t.Helper()
	w := do(t, r, "POST", "/api/v1/agents", map[string]any{
		"name": name, "proxmox_node": "pve1", "container_id": "101", "docker_image": "img:latest",
	})
	expectStatus(t, w, http.StatusCreated)
	return decode[agent.Agent](t, w)
}

func path(format string, id int64) string {
	return strings.Replace(format, "{id}", strconv.FormatInt(id, 10), 1)
}

func TestHealth(t *testing.T) {
	r := newTestRouter()
	w := do(t, r, "GET", "/health", nil)
	expectStatus(t, w, http.StatusOK)

	body := decode[map[string]string](t, w)
	if body["status"] != "ok" || body["timestamp"] == "" {
		t.Errorf("health body = %v", body)
	}
}

func TestAPIVersion(t *testing.T) {
	w := do(t, newTestRouter(), "GET", "/api/v1/", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]string](t, w)["version"]; got != "test" {
		t.Errorf("version = %q", got)
	}
}

func TestListAgentsEmpty(t *testing.T) {
	w := do(t, newTestRouter(), "GET", "/api/v1/agents", nil)
	expectStatus(t, w, http.StatusOK)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty JSON array, got %s", w.Body.String())
	}
}

func TestFleetScenario(t *testing.T) {
	r := newTestRouter()

	a := createAgent(t, r, "a1")
	if a.Status != agent.StatusOffline || a.State != agent.StateIdle || a.MemoryLimit != 1073741824 {
		t.Fatalf("created agent = %+v", a)
	}

	w := do(t, r, "POST", "/api/v1/tasks", map[string]any{"agent_id": a.ID, "name": "build", "command": "make"})
	expectStatus(t, w, http.StatusCreated)
	tk := decode[task.Task](t, w)
	if tk.Status != task.StatusPending {
		t.Fatalf("created task status = %s", tk.Status)
	}

	w = do(t, r, "PATCH", path("/api/v1/tasks/{id}", tk.ID), map[string]any{"status": "running"})
	expectStatus(t, w, http.StatusOK)
	running := decode[task.Task](t, w)
	if running.StartedAt == nil {
		t.Fatal("started_at not set")
	}

	w = do(t, r, "PATCH", path("/api/v1/tasks/{id}", tk.ID), map[string]any{"status": "completed", "exit_code": 0})
	expectStatus(t, w, http.StatusOK)
	done := decode[task.Task](t, w)
	if done.CompletedAt == nil || done.CompletedAt.Before(*done.StartedAt) {
		t.Fatalf("completed task = %+v", done)
	}

	w = do(t, r, "GET", "/api/v1/dashboard/overview", nil)
	expectStatus(t, w, http.StatusOK)
	o := decode[dashboard.Overview](t, w)
	if o.TotalTasks != 1 || o.CompletedTasks != 1 || o.RunningTasks != 0 || o.TotalAgents != 1 {
		t.Errorf("overview = %+v", o)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing name", map[string]any{"proxmox_node": "n", "container_id": "c", "docker_image": "i"}, "name"},
		{"missing node", map[string]any{"name": "a", "container_id": "c", "docker_image": "i"}, "proxmox_node"},
		{"zero memory limit", map[string]any{"name": "a", "proxmox_node": "n", "container_id": "c", "docker_image": "i", "memory_limit": 0}, "memory_limit"},
		{"blank name", map[string]any{"name": "   ", "proxmox_node": "n", "container_id": "c", "docker_image": "i"}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, "POST", "/api/v1/agents", tt.body)
			expectStatus(t, w, http.StatusBadRequest)
			if got := decode[errorBody](t, w); got.Field != tt.field {
				t.Errorf("field = %q, want %q (%s)", got.Field, tt.field, got.Error)
			}
		})
	}
}

func TestCreateAgentMalformedBody(t *testing.T) {
	w := do(t, newTestRouter(), "POST", "/api/v1/agents", "{not json")
	expectStatus(t, w, http.StatusBadRequest)
}

func TestCreateAgentBodyTooLarge(t *testing.T) {
	big := `{"name":"` + strings.Repeat("x", 8192) + `"}`
	w := do(t, newTestRouter(), "POST", "/api/v1/agents", big)
	expectStatus(t, w, http.StatusRequestEntityTooLarge)
}

func TestGetAgentNotFoundAndBadID(t *testing.T) {
	r := newTestRouter()

	w := do(t, r, "GET", "/api/v1/agents/999", nil)
	expectStatus(t, w, http.StatusNotFound)
	if got := decode[errorBody](t, w); got.Error != "agent not found" {
		t.Errorf("error = %q", got.Error)
	}

	w = do(t, r, "GET", "/api/v1/agents/abc", nil)
	expectStatus(t, w, http.StatusBadRequest)
	if got := decode[errorBody](t, w); got.Field != "id" {
		t.Errorf("field = %q, want id", got.Field)
	}
}

func TestUpdateAgent(t *testing.T) {
	r := newTestRouter()
	a := createAgent(t, r, "a1")

	w := do(t, r, "PATCH", path("/api/v1/agents/{id}", a.ID), map[string]any{
		"status": "online", "state": "maintenance", "cpu_usage": 55.556,
	})
	expectStatus(t, w, http.StatusOK)
	got := decode[agent.Agent](t, w)
	if got.Status != agent.StatusOnline || got.State != agent.StateMaintenance || got.CPUUsage != 55.56 {
		t.Errorf("updated agent = %+v", got)
	}

	w = do(t, r, "PATCH", path("/api/v1/agents/{id}", a.ID), map[string]any{"cpu_usage": 100.5})
	expectStatus(t, w, http.StatusBadRequest)
	if e := decode[errorBody](t, w); e.Field != "cpu_usage" {
		t.Errorf("field = %q", e.Field)
	}

	w = do(t, r, "PATCH", path("/api/v1/agents/{id}", a.ID), map[string]any{"status": "asleep"})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, r, "PATCH", "/api/v1/agents/4040", map[string]any{"name": "x"})
	expectStatus(t, w, http.StatusNotFound)
}

func TestDeleteAgentCascades(t *testing.T) {
	r := newTestRouter()
	a := createAgent(t, r, "a1")

	expectStatus(t, do(t, r, "POST", "/api/v1/tasks", map[string]any{"agent_id": a.ID, "name": "build", "command": "make"}), http.StatusCreated)
	expectStatus(t, do(t, r, "POST", path("/api/v1/agents/{id}/logs", a.ID), map[string]any{"level": "info", "message": "hello"}), http.StatusCreated)

	expectStatus(t, do(t, r, "DELETE", path("/api/v1/agents/{id}", a.ID), nil), http.StatusNoContent)

	w := do(t, r, "GET", path("/api/v1/agents/{id}/tasks", a.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("tasks of deleted agent = %s", w.Body.String())
	}
	expectStatus(t, do(t, r, "GET", path("/api/v1/agents/{id}/logs", a.ID), nil), http.StatusNotFound)
	expectStatus(t, do(t, r, "DELETE", path("/api/v1/agents/{id}", a.ID), nil), http.StatusNotFound)
}

func TestCreateTaskUnknownAgent(t *testing.T) {
	w := do(t, newTestRouter(), "POST", "/api/v1/tasks", map[string]any{"agent_id": 77, "name": "build", "command": "make"})
	expectStatus(t, w, http.StatusNotFound)
}

func TestUpdateTaskInvalidTransition(t *testing.T) {
	r := newTestRouter()
	a := createAgent(t, r, "a1")
	w := do(t, r, "POST", "/api/v1/tasks", map[string]any{"agent_id": a.ID, "name": "build", "command": "make"})
	tk := decode[task.Task](t, w)

	w = do(t, r, "PATCH", path("/api/v1/tasks/{id}", tk.ID), map[string]any{"status": "completed", "exit_code": 0})
	expectStatus(t, w, http.StatusConflict)
	e := decode[errorBody](t, w)
	if e.Current != "pending" || e.Requested != "completed" {
		t.Errorf("conflict body = %+v", e)
	}

	w = do(t, r, "PATCH", path("/api/v1/tasks/{id}", tk.ID), map[string]any{"status": "running", "exit_code": 1})
	expectStatus(t, w, http.StatusBadRequest)
	if e := decode[errorBody](t, w); e.Field != "exit_code" {
		t.Errorf("field = %q, want exit_code", e.Field)
	}

	w = do(t, r, "PATCH", path("/api/v1/tasks/{id}", tk.ID), map[string]any{"status": "paused"})
	expectStatus(t, w, http.StatusBadRequest)

	expectStatus(t, do(t, r, "GET", path("/api/v1/tasks/{id}", tk.ID), nil), http.StatusOK)
	expectStatus(t, do(t, r, "GET", "/api/v1/tasks/555", nil), http.StatusNotFound)
}

func TestAgentLogsEndpoints(t *testing.T) {
	r := newTestRouter()
	a := createAgent(t, r, "a1")
	logs := path("/api/v1/agents/{id}/logs", a.ID)

	for i, lvl := range []string{"info", "error", "info"} {
		w := do(t, r, "POST", logs, map[string]any{"level": lvl, "message": "m" + strconv.Itoa(i)})
		expectStatus(t, w, http.StatusCreated)
	}

	w := do(t, r, "GET", logs+"?level=info&limit=1", nil)
	expectStatus(t, w, http.StatusOK)
	got := decode[[]agentlog.Entry](t, w)
	if len(got) != 1 || got[0].Level != agentlog.LevelInfo {
		t.Errorf("filtered page = %+v", got)
	}

	expectStatus(t, do(t, r, "GET", logs+"?limit=1001", nil), http.StatusBadRequest)
	expectStatus(t, do(t, r, "GET", logs+"?offset=-1", nil), http.StatusBadRequest)
	expectStatus(t, do(t, r, "GET", logs+"?limit=ten", nil), http.StatusBadRequest)
	expectStatus(t, do(t, r, "POST", logs, map[string]any{"level": "loud", "message": "x"}), http.StatusBadRequest)
	expectStatus(t, do(t, r, "POST", logs, map[string]any{"level": "info"}), http.StatusBadRequest)
	expectStatus(t, do(t, r, "POST", "/api/v1/agents/999/logs", map[string]any{"level": "info", "message": "x"}), http.StatusNotFound)
}

func TestPerformanceMetricsEndpoints(t *testing.T) {
	r := newTestRouter()
	a := createAgent(t, r, "a1")
	metrics := path("/api/v1/agents/{id}/metrics", a.ID)

	w := do(t, r, "POST", metrics, map[string]any{
		"cpu_usage": 12.346, "memory_usage": 100, "memory_limit": 1000, "network_rx": 1, "network_tx": 2, "disk_usage": 3,
	})
	expectStatus(t, w, http.StatusCreated)
	if s := decode[metric.Sample](t, w); s.CPUUsage != 12.35 {
		t.Errorf("cpu_usage = %v, want 12.35", s.CPUUsage)
	}

	w = do(t, r, "GET", metrics, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]metric.Sample](t, w); len(got) != 1 {
		t.Errorf("samples = %+v", got)
	}

	expectStatus(t, do(t, r, "GET", metrics+"?hours=169", nil), http.StatusBadRequest)
	expectStatus(t, do(t, r, "POST", metrics, map[string]any{"cpu_usage": -1, "memory_limit": 1}), http.StatusBadRequest)
	expectStatus(t, do(t, r, "GET", "/api/v1/agents/999/metrics", nil), http.StatusNotFound)

	w = do(t, r, "GET", path("/api/v1/agents/{id}", a.ID), nil)
	if got := decode[agent.Agent](t, w); got.CPUUsage != 0 {
		t.Errorf("recording a sample changed the agent snapshot: %v", got.CPUUsage)
	}
}

func TestDashboardOverviewEmpty(t *testing.T) {
	w := do(t, newTestRouter(), "GET", "/api/v1/dashboard/overview", nil)
	expectStatus(t, w, http.StatusOK)
	o := decode[dashboard.Overview](t, w)
	if o != (dashboard.Overview{}) {
		t.Errorf("empty overview = %+v", o)
	}
}
