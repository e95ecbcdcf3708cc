package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports service liveness.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health handles GET /health. Liveness only: it touches no dependencies, so
// a wedged database or queue never fails the check.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "salespipe",
	})
}
