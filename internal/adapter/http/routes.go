package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all routes on the given chi router. mws wrap the
// /api/v1 group only, so /health stays cheap and unthrottled.
func MountRoutes(r chi.Router, h *Handlers, mws ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mws...)

		r.Get("/", h.APIVersion)

		// Agents
		r.Get("/agents", handleList(h.Agents.List))
		r.Post("/agents", handleCreate(h.bodyLimit(), h.Agents.Create, msgAgentNotFound))
		r.Get("/agents/{id}", handleGet(h.Agents.Get, msgAgentNotFound))
		r.Patch("/agents/{id}", handleUpdate(h.bodyLimit(), h.Agents.Update, msgAgentNotFound))
		r.Delete("/agents/{id}", handleDelete(h.Agents.Delete, msgAgentNotFound))

		// Per-agent views
		r.Get("/agents/{id}/tasks", handleListByID(h.Tasks.ListByAgent, msgAgentNotFound))
		r.Get("/agents/{id}/logs", h.GetAgentLogs)
		r.Post("/agents/{id}/logs", handleCreateUnder(h.bodyLimit(), h.Telemetry.CreateLog, msgAgentNotFound))
		r.Get("/agents/{id}/metrics", h.GetPerformanceMetrics)
		r.Post("/agents/{id}/metrics", handleCreateUnder(h.bodyLimit(), h.Telemetry.RecordMetric, msgAgentNotFound))

		// Tasks
		r.Get("/tasks", handleList(h.Tasks.List))
		r.Post("/tasks", handleCreate(h.bodyLimit(), h.Tasks.Create, msgAgentNotFound))
		r.Get("/tasks/{id}", handleGet(h.Tasks.Get, msgTaskNotFound))
		r.Patch("/tasks/{id}", handleUpdate(h.bodyLimit(), h.Tasks.Update, msgTaskNotFound))

		// Dashboard
		r.Get("/dashboard/overview", h.DashboardOverview)
	})
}
