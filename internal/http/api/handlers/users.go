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

// UserHandler manages LINE contact endpoints.
type UserHandler struct {
	db *gorm.DB
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// userListQuery defines filters for the user list.
type userListQuery struct {
	pageQuery
	dateRange
	Search     string `form:"search"`       // Substring of display name, custom name or notes.
	LineUserID string `form:"line_user_id"` // Exact LINE user id.
	IsFriend   string `form:"is_friend"`    // true/false.
	Tag        string `form:"tag"`          // Tag name.
}

// List returns users newest first with paging and filters.
func (h *UserHandler) List(c *gin.Context) {
	var q userListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	q.normalize(defaultPageSize)
	ctx := c.Request.Context()

	query := h.db.WithContext(ctx).Model(&models.LineUser{})
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := dbutil.ContainsPattern(h.db, search)
		query = query.Where(
			h.db.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "display_name"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(h.db, "custom_name"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(h.db, "notes"), pattern),
		)
	}
	if id := strings.TrimSpace(q.LineUserID); id != "" {
		query = query.Where("line_user_id = ?", id)
	}
	isFriend, isFriendSet, errFriend := parseBoolQuery(q.IsFriend)
	if errFriend != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid is_friend"})
		return
	}
	if isFriendSet {
		query = query.Where("is_friend = ?", isFriend)
	}
	if tag := strings.TrimSpace(q.Tag); tag != "" {
		query = query.Where("id IN (?)", crm.OwnerIDsWithTag(h.db, "user_tags", "user_id", tag))
	}
	query, ok := q.dateRange.apply(c, query, "created_at")
	if !ok {
		return
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		serverError(c, "count users failed", errCount)
		return
	}
	var rows []models.LineUser
	if errFind := query.Order("created_at DESC").Order("id DESC").
		Offset(q.offset()).Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		serverError(c, "list users failed", errFind)
		return
	}

	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	tags, errTags := crm.TagsForUsers(ctx, h.db, ids)
	if errTags != nil {
		serverError(c, "load user tags failed", errTags)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		item := lineUserRow(&rows[i])
		item["tags"] = tagRows(tags[rows[i].ID])
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{
		"users": out,
		"total": total,
		"page":  q.Page,
		"limit": q.Limit,
	})
}

// Get returns one user with tags and group memberships.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var row models.LineUser
	if errFind := h.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		serverError(c, "get user failed", errFind)
		return
	}
	tags, errTags := crm.TagsForUsers(ctx, h.db, []uint64{row.ID})
	if errTags != nil {
		serverError(c, "load user tags failed", errTags)
		return
	}

	// membership joins group_members with line_groups.
	type membership struct {
		ID          uint64
		LineGroupID string
		GroupName   string
		CustomName  string
		Role        string
		JoinedAt    time.Time
	}
	var groups []membership
	if errGroups := h.db.WithContext(ctx).
		Table("group_members AS gm").
		Select("g.id, g.line_group_id, g.group_name, g.custom_name, gm.role, gm.joined_at").
		Joins("JOIN line_groups g ON g.id = gm.group_id").
		Where("gm.user_id = ?", row.ID).
		Order("gm.joined_at DESC").
		Scan(&groups).Error; errGroups != nil {
		serverError(c, "load user groups failed", errGroups)
		return
	}
	groupsOut := make([]gin.H, 0, len(groups))
	for _, g := range groups {
		groupsOut = append(groupsOut, gin.H{
			"id":            g.ID,
			"line_group_id": g.LineGroupID,
			"group_name":    g.GroupName,
			"custom_name":   g.CustomName,
			"role":          g.Role,
			"joined_at":     g.JoinedAt,
		})
	}

	out := lineUserRow(&row)
	out["tags"] = tagRows(tags[row.ID])
	out["groups"] = groupsOut
	c.JSON(http.StatusOK, out)
}

// updateUserRequest defines the request body for user updates.
type updateUserRequest struct {
	CustomName *string   `json:"custom_name"`
	Notes      *string   `json:"notes"`
	IsFriend   *bool     `json:"is_friend"`
	Tags       *[]string `json:"tags"`
}

// Update changes operator fields and, when given, replaces the tag set.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body updateUserRequest
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
	if body.IsFriend != nil {
		updates["is_friend"] = *body.IsFriend
	}

	if body.Tags != nil {
		if errValidate := crm.ValidateTagNames(*body.Tags); errValidate != nil {
			invalidInput(c, errValidate)
			return
		}
	}

	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.LineUser{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return crm.ErrNotFound
		}
		if body.Tags != nil {
			if _, errTags := crm.SetUserTags(ctx, tx, id, *body.Tags); errTags != nil {
				return errTags
			}
		}
		return nil
	})
	switch {
	case errors.Is(errTx, crm.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case errors.Is(errTx, crm.ErrInvalidInput):
		invalidInput(c, errTx)
		return
	case errTx != nil:
		serverError(c, "update user failed", errTx)
		return
	}
	h.Get(c)
}

// Delete removes a user.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if errDelete := crm.DeleteUser(c.Request.Context(), h.db, id); errDelete != nil {
		if errors.Is(errDelete, crm.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		serverError(c, "delete user failed", errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// lineUserRow converts a user model into a response payload.
func lineUserRow(row *models.LineUser) gin.H {
	return gin.H{
		"id":              row.ID,
		"line_user_id":    row.LineUserID,
		"display_name":    row.DisplayName,
		"picture_url":     row.PictureURL,
		"status_message":  row.StatusMessage,
		"is_friend":       row.IsFriend,
		"custom_name":     row.CustomName,
		"notes":           row.Notes,
		"message_count":   row.MessageCount,
		"last_message_at": formatTime(row.LastMessageAt),
		"created_at":      row.CreatedAt,
		"updated_at":      row.UpdatedAt,
	}
}
