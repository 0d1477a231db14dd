package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsRefreshMiddleware reloads the settings snapshot once it is older
// than maxAge, so changes written by other instances take effect. A failed
// reload keeps serving the previous snapshot.
func SettingsRefreshMiddleware(db *gorm.DB, maxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil && maxAge > 0 {
			if errRefresh := settings.RefreshIfStale(c.Request.Context(), db, maxAge); errRefresh != nil {
				log.WithError(errRefresh).Warn("settings refresh failed")
			}
		}
		c.Next()
	}
}
