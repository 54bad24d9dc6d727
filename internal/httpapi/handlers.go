package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.flowcatalyst.tech/internal/telemetry"
)

// StatusProvider is the subset of *relay.Pipeline the status endpoint needs.
type StatusProvider interface {
	Snapshot() telemetry.Snapshot
}

// Handlers aggregates the relay's admin HTTP surface.
type Handlers struct {
	pipeline StatusProvider
	warnings telemetry.WarningService
	health   *telemetry.HealthService
}

// NewHandlers wires the admin surface's dependencies.
func NewHandlers(pipeline StatusProvider, warnings telemetry.WarningService, health *telemetry.HealthService) *Handlers {
	return &Handlers{pipeline: pipeline, warnings: warnings, health: health}
}

// Routes mounts every admin endpoint onto a fresh chi.Router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", h.Status)
	r.Get("/warnings", h.ListWarnings)
	r.Post("/warnings/{id}/ack", h.AcknowledgeWarning)

	return r
}

// Healthz is a liveness probe: the process is up and handling requests.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz is a readiness probe: every dependency the health service knows
// about is currently reachable.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	issues := h.health.CheckAll()
	if len(issues) > 0 {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"issues": issues,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Status serves the current telemetry snapshot.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.pipeline.Snapshot())
}

// ListWarnings serves every recorded operational warning.
func (h *Handlers) ListWarnings(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.warnings.GetAllWarnings())
}

// AcknowledgeWarning marks one warning acknowledged by id.
func (h *Handlers) AcknowledgeWarning(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.warnings.AcknowledgeWarning(id) {
		WriteNotFound(w, "warning not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
