package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/crm"
	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/gorm"
)

// TagHandler manages tag endpoints.
type TagHandler struct {
	db *gorm.DB
}

// NewTagHandler constructs a TagHandler.
func NewTagHandler(db *gorm.DB) *TagHandler {
	return &TagHandler{db: db}
}

// List returns every tag, most used first.
func (h *TagHandler) List(c *gin.Context) {
	rows, errList := crm.ListTags(c.Request.Context(), h.db)
	if errList != nil {
		serverError(c, "list tags failed", errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tagRows(rows)})
}

// createTagRequest defines the request body for tag creation.
type createTagRequest struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// Create adds a tag. An existing tag of the same name is returned unchanged.
func (h *TagHandler) Create(c *gin.Context) {
	var body createTagRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tag, created, errEnsure := crm.EnsureTag(c.Request.Context(), h.db, crm.TagInput{
		Name:        body.Name,
		Color:       body.Color,
		Description: body.Description,
	})
	if errEnsure != nil {
		if errors.Is(errEnsure, crm.ErrInvalidInput) {
			invalidInput(c, errEnsure)
			return
		}
		serverError(c, "create tag failed", errEnsure)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	out := tagRow(&tag)
	out["created"] = created
	c.JSON(status, out)
}

// Delete removes a tag from every user and group.
func (h *TagHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if errDelete := crm.DeleteTag(c.Request.Context(), h.db, id); errDelete != nil {
		if errors.Is(errDelete, crm.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
			return
		}
		serverError(c, "delete tag failed", errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// tagRow converts a tag model into a response payload.
func tagRow(row *models.Tag) gin.H {
	return gin.H{
		"id":          row.ID,
		"name":        row.Name,
		"color":       row.Color,
		"description": row.Description,
		"usage_count": row.UsageCount,
		"created_at":  row.CreatedAt,
	}
}

func tagRows(rows []models.Tag) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, tagRow(&rows[i]))
	}
	return out
}
