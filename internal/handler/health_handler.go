package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	check ReadinessCheck
}

// NewHealthHandler creates a new HealthHandler. check may be nil.
func NewHealthHandler(check ReadinessCheck) *HealthHandler {
	return &HealthHandler{check: check}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.check != nil {
		if err := h.check(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "storage gateway not usable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
