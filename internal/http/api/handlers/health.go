package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/settings"
	"gorm.io/gorm"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health checks database connectivity.
func (h *HealthHandler) Health(c *gin.Context) {
	now := time.Now().UTC()
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "database": "unavailable", "timestamp": now})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "database": "disconnected", "timestamp": now})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected", "timestamp": now})
}

// Root describes the service.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   settings.String(settings.SystemNameKey, settings.DefaultSystemName) + " Backend API",
		"status":    "running",
		"version":   settings.String(settings.VersionKey, settings.DefaultVersion),
		"timestamp": time.Now().UTC(),
	})
}
