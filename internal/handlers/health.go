package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	clock  func() time.Time
}

// HealthHandlersDeps bundles constructor inputs for the health handlers.
type HealthHandlersDeps struct {
	System services.SystemService
	Clock  func() time.Time
}

// NewHealthHandlers constructs health endpoints. The system service is
// optional; without it readiness degrades to the liveness answer.
func NewHealthHandlers(deps HealthHandlersDeps) *HealthHandlers {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &HealthHandlers{
		system: deps.System,
		clock:  func() time.Time { return clock().UTC() },
	}
}

// Healthz answers liveness: the process is up and serving.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    domain.HealthStatusOK,
		"timestamp": h.clock().Format(time.RFC3339),
	})
}

// Readyz answers readiness by probing downstream dependencies.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": domain.HealthStatusError,
			"error":  err.Error(),
		})
		return
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":    report.Status,
		"checks":    report.Checks,
		"timestamp": h.clock().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
