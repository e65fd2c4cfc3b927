package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// DependencyChecker reports whether one external dependency is reachable
type DependencyChecker func(ctx context.Context) error

// HealthHandler reports liveness and the state of external dependencies
type HealthHandler struct {
	checks map[string]DependencyChecker
	logger *log.Logger
}

// NewHealthHandler creates a health handler over the given dependency
// checks. A nil checker map means liveness only.
func NewHealthHandler(checks map[string]DependencyChecker, logger *log.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// Liveness is the bare process-up probe
// @Summary Health check
// @Tags general
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Server is healthy",
	})
}

// Readiness probes every registered dependency. Degraded dependencies are
// reported per name; the endpoint returns 503 only when all are down.
// @Summary Readiness check
// @Tags general
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/ready [get]
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	healthy := 0
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Printf("Dependency %s unhealthy: %v", name, err)
			statuses[name] = err.Error()
		} else {
			statuses[name] = "ok"
			healthy++
		}
	}

	status := http.StatusOK
	overall := "ok"
	if len(h.checks) > 0 && healthy == 0 {
		status = http.StatusServiceUnavailable
		overall = "down"
	} else if healthy < len(h.checks) {
		overall = "degraded"
	}

	h.sendJSON(w, status, map[string]interface{}{
		"status":       overall,
		"dependencies": statuses,
	})
}

func (h *HealthHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}
