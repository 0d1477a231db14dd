package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/crm"
	dbutil "github.com/linecrm/linecrm/internal/db"
	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/gorm"
)

// GroupHandler manages LINE group endpoints.
type GroupHandler struct {
	db *gorm.DB
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(db *gorm.DB) *GroupHandler {
	return &GroupHandler{db: db}
}

// groupListQuery defines filters for the group list.
type groupListQuery struct {
	pageQuery
	dateRange
	Search      string `form:"search"`        // Substring of group name, custom name or notes.
	LineGroupID string `form:"line_group_id"` // Exact LINE group id.
	Tag         string `form:"tag"`           // Tag name.
}

// List returns groups newest first with paging and filters.
func (h *GroupHandler) List(c *gin.Context) {
	var q groupListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	q.normalize(defaultPageSize)
	ctx := c.Request.Context()

	query := h.db.WithContext(ctx).Model(&models.LineGroup{})
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := dbutil.ContainsPattern(h.db, search)
		query = query.Where(
			h.db.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "group_name"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(h.db, "custom_name"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(h.db, "notes"), pattern),
		)
	}
	if id := strings.TrimSpace(q.LineGroupID); id != "" {
		query = query.Where("line_group_id = ?", id)
	}
	if tag := strings.TrimSpace(q.Tag); tag != "" {
		query = query.Where("id IN (?)", crm.OwnerIDsWithTag(h.db, "group_tags", "group_id", tag))
	}
	query, ok := q.dateRange.apply(c, query, "created_at")
	if !ok {
		return
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		serverError(c, "count groups failed", errCount)
		return
	}
	var rows []models.LineGroup
	if errFind := query.Order("created_at DESC").Order("id DESC").
		Offset(q.offset()).Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		serverError(c, "list groups failed", errFind)
		return
	}

	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	tags, errTags := crm.TagsForGroups(ctx, h.db, ids)
	if errTags != nil {
		serverError(c, "load group tags failed", errTags)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		item := lineGroupRow(&rows[i])
		item["tags"] = tagRows(tags[rows[i].ID])
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{
		"groups": out,
		"total":  total,
		"page":   q.Page,
		"limit":  q.Limit,
	})
}

// Get returns one group with its tags.
func (h *GroupHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var row models.LineGroup
	if errFind := h.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		serverError(c, "get group failed", errFind)
		return
	}
	tags, errTags := crm.TagsForGroups(ctx, h.db, []uint64{row.ID})
	if errTags != nil {
		serverError(c, "load group tags failed", errTags)
		return
	}
	out := lineGroupRow(&row)
	out["tags"] = tagRows(tags[row.ID])
	c.JSON(http.StatusOK, out)
}

// Members lists the known members of a group.
func (h *GroupHandler) Members(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var exists int64
	if errCount := h.db.WithContext(ctx).Model(&models.LineGroup{}).Where("id = ?", id).Count(&exists).Error; errCount != nil {
		serverError(c, "get group failed", errCount)
		return
	}
	if exists == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	// member joins group_members with line_users.
	type member struct {
		ID          uint64
		LineUserID  string
		DisplayName string
		CustomName  string
		PictureURL  string
		Role        string
		JoinedAt    time.Time
	}
	var rows []member
	if errFind := h.db.WithContext(ctx).
		Table("group_members AS gm").
		Select("u.id, u.line_user_id, u.display_name, u.custom_name, u.picture_url, gm.role, gm.joined_at").
		Joins("JOIN line_users u ON u.id = gm.user_id").
		Where("gm.group_id = ?", id).
		Order("gm.joined_at ASC").
		Order("u.id ASC").
		Scan(&rows).Error; errFind != nil {
		serverError(c, "list group members failed", errFind)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, m := range rows {
		out = append(out, gin.H{
			"id":           m.ID,
			"line_user_id": m.LineUserID,
			"display_name": m.DisplayName,
			"custom_name":  m.CustomName,
			"picture_url":  m.PictureURL,
			"role":         m.Role,
			"joined_at":    m.JoinedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"members": out, "total": len(out)})
}

// updateGroupRequest defines the request body for group updates.
type updateGroupRequest struct {
	CustomName *string   `json:"custom_name"`
	Notes      *string   `json:"notes"`
	Tags       *[]string `json:"tags"`
}

// Update changes operator fields and, when given, replaces the tag set.
func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body updateGroupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.CustomName != nil {
		customName := strings.TrimSpace(*body.CustomName)
		if len([]rune(customName)) > 255 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "custom_name too long"})
			return
		}
		updates["custom_name"] = customName
	}
	if body.Notes != nil {
		updates["notes"] = *body.Notes
	}

	if body.Tags != nil {
		if errValidate := crm.ValidateTagNames(*body.Tags); errValidate != nil {
			invalidInput(c, errValidate)
			return
		}
	}

	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.LineGroup{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return crm.ErrNotFound
		}
		if body.Tags != nil {
			if _, errTags := crm.SetGroupTags(ctx, tx, id, *body.Tags); errTags != nil {
				return errTags
			}
		}
		return nil
	})
	switch {
	case errors.Is(errTx, crm.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	case errors.Is(errTx, crm.ErrInvalidInput):
		invalidInput(c, errTx)
		return
	case errTx != nil:
		serverError(c, "update group failed", errTx)
		return
	}
	h.Get(c)
}

// Delete removes a group.
func (h *GroupHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if errDelete := crm.DeleteGroup(c.Request.Context(), h.db, id); errDelete != nil {
		if errors.Is(errDelete, crm.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		serverError(c, "delete group failed", errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// lineGroupRow converts a group model into a response payload.
func lineGroupRow(row *models.LineGroup) gin.H {
	return gin.H{
		"id":              row.ID,
		"line_group_id":   row.LineGroupID,
		"group_name":      row.GroupName,
		"picture_url":     row.PictureURL,
		"custom_name":     row.CustomName,
		"notes":           row.Notes,
		"member_count":    row.MemberCount,
		"message_count":   row.MessageCount,
		"last_message_at": formatTime(row.LastMessageAt),
		"created_at":      row.CreatedAt,
		"updated_at":      row.UpdatedAt,
	}
}
