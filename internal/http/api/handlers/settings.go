package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/models"
	"github.com/linecrm/linecrm/internal/settings"
	"github.com/linecrm/linecrm/internal/util"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsHandler manages the system_settings key/value store.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns every setting ordered by key, seeding the defaults into an empty table.
func (h *SettingsHandler) List(c *gin.Context) {
	rows, errList := settings.List(c.Request.Context(), h.db, c.Query("key"))
	if errList != nil {
		serverError(c, "list settings failed", errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, settingRow(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns one setting.
func (h *SettingsHandler) Get(c *gin.Context) {
	row, errGet := settings.Get(c.Request.Context(), h.db, c.Param("key"))
	if errGet != nil {
		if errors.Is(errGet, settings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
			return
		}
		serverError(c, "get setting failed", errGet)
		return
	}
	c.JSON(http.StatusOK, settingRow(&row))
}

// updateSettingRequest defines the request body for setting updates.
type updateSettingRequest struct {
	Value *string `json:"value"`
}

// Update writes a new value for an existing key.
func (h *SettingsHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing value"})
		return
	}

	row, errUpdate := settings.Update(c.Request.Context(), h.db, key, *body.Value)
	if errUpdate != nil {
		if errors.Is(errUpdate, settings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
			return
		}
		serverError(c, "update setting failed", errUpdate)
		return
	}

	logged := *body.Value
	if util.IsSecretSettingKey(key) {
		logged = util.MaskSecret(logged)
	}
	log.WithFields(log.Fields{"key": key, "value": logged}).Info("setting updated")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "setting updated",
		"setting": settingRow(&row),
	})
}

func settingRow(row *models.SystemSetting) gin.H {
	return gin.H{
		"id":          row.ID,
		"key":         row.Key,
		"value":       row.Value,
		"description": row.Description,
		"created_at":  row.CreatedAt,
		"updated_at":  row.UpdatedAt,
	}
}
