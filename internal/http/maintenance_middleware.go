package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/settings"
)

// maintenanceExemptPrefixes stay writable in maintenance mode.
var maintenanceExemptPrefixes = []string{
	"/api/system-settings",
	"/api/auth/",
	"/api/line/webhook",
}

// MaintenanceMiddleware rejects writes with 503 while MAINTENANCE_MODE is on.
func MaintenanceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if !settings.MaintenanceMode() {
			c.Next()
			return
		}
		path := c.Request.URL.Path
		for _, prefix := range maintenanceExemptPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "system is in maintenance mode"})
	}
}
