// Package health exposes liveness/readiness probes for each binary,
// generalized from the teacher's SFU-checker pattern into a named set of
// dependency checks any binary can register.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker reports the health of one dependency. It must return quickly and
// never panic; Readiness gives each checker a bounded context.
type Checker func(ctx context.Context) error

// Handler serves the liveness and readiness probes (each binary mounts
// them at /healthz/live and /healthz/ready) using a named set of
// dependency checkers, mirroring the teacher's Handler/Liveness/Readiness
// split.
type Handler struct {
	checks map[string]Checker
}

func NewHandler() *Handler {
	return &Handler{checks: make(map[string]Checker)}
}

// Register adds (or replaces) a named dependency check.
func (h *Handler) Register(name string, check Checker) {
	h.checks[name] = check
}

type livenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness reports the process is alive, with no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, livenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness runs every registered checker with a bounded timeout and
// reports 503 if any of them fails.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		checks[name] = "healthy"
	}

	status := "ready"
	code := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, readinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
