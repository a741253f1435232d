package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/ragserve/pkg/component/storage"
)

// HealthHandler reports service liveness and backing store health.
type HealthHandler struct {
	environment string
	storage     *storage.Manager
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(environment string, storage *storage.Manager) *HealthHandler {
	return &HealthHandler{
		environment: environment,
		storage:     storage,
	}
}

// Check reports overall health. The status degrades when any registered
// storage client fails its ping.
func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	components := map[string]bool{}

	if h.storage != nil {
		for name, s := range h.storage.HealthCheckAll(c.Request.Context()) {
			components[name] = s.Healthy
			if !s.Healthy {
				status = "degraded"
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"environment": h.environment,
		"components":  components,
	})
}
