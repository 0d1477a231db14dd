package handlers

import (
	"encoding/json"
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

const defaultMessagePageSize = 50

// MessageHandler manages message log endpoints.
type MessageHandler struct {
	db *gorm.DB
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(db *gorm.DB) *MessageHandler {
	return &MessageHandler{db: db}
}

// messageListQuery defines filters for the message list.
type messageListQuery struct {
	pageQuery
	dateRange
	UserID      string `form:"user_id"`      // LINE user id.
	GroupID     string `form:"group_id"`     // LINE group id.
	MessageType string `form:"message_type"` // text, image, sticker, ...
	Search      string `form:"search"`       // Substring of content.
	IsFromBot   string `form:"is_from_bot"`  // true/false.
}

// List returns messages newest first with paging and filters.
func (h *MessageHandler) List(c *gin.Context) {
	var q messageListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	q.normalize(defaultMessagePageSize)
	ctx := c.Request.Context()

	query := h.db.WithContext(ctx).Model(&models.Message{})
	if v := strings.TrimSpace(q.UserID); v != "" {
		query = query.Where("line_user_id = ?", v)
	}
	if v := strings.TrimSpace(q.GroupID); v != "" {
		query = query.Where("line_group_id = ?", v)
	}
	if v := strings.TrimSpace(q.MessageType); v != "" {
		query = query.Where("message_type = ?", v)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		query = query.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "content"), dbutil.ContainsPattern(h.db, search))
	}
	fromBot, fromBotSet, errBot := parseBoolQuery(q.IsFromBot)
	if errBot != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid is_from_bot"})
		return
	}
	if fromBotSet {
		query = query.Where("is_from_bot = ?", fromBot)
	}
	query, ok := q.dateRange.apply(c, query, "created_at")
	if !ok {
		return
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		serverError(c, "count messages failed", errCount)
		return
	}
	var rows []models.Message
	if errFind := query.Order("created_at DESC").Order("id DESC").
		Offset(q.offset()).Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		serverError(c, "list messages failed", errFind)
		return
	}

	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	attachments, errAttach := crm.AttachmentsFor(ctx, h.db, ids)
	if errAttach != nil {
		serverError(c, "load attachments failed", errAttach)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		rows[i].Attachments = attachments[rows[i].ID]
		out = append(out, messageRow(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": out,
		"total":    total,
		"page":     q.Page,
		"limit":    q.Limit,
	})
}

// Get returns one message with its attachments.
func (h *MessageHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var row models.Message
	if errFind := h.db.WithContext(c.Request.Context()).Preload("Attachments").First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		serverError(c, "get message failed", errFind)
		return
	}
	c.JSON(http.StatusOK, messageRow(&row))
}

// attachmentRequest defines one attachment of a recorded message.
type attachmentRequest struct {
	Type     string `json:"type"`
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

// createMessageRequest defines the request body for recording a message.
type createMessageRequest struct {
	MessageID       string              `json:"message_id"`
	LineUserID      string              `json:"line_user_id"`
	LineGroupID     string              `json:"line_group_id"`
	MessageType     string              `json:"message_type"`
	Content         string              `json:"content"`
	OriginalContent json.RawMessage     `json:"original_content"`
	IsFromBot       bool                `json:"is_from_bot"`
	SentimentScore  *float64            `json:"sentiment_score"`
	Keywords        []string            `json:"keywords"`
	CreatedAt       *time.Time          `json:"created_at"`
	Attachments     []attachmentRequest `json:"attachments"`
}

// Create records a message and updates the sender and group counters.
func (h *MessageHandler) Create(c *gin.Context) {
	var body createMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	in := crm.MessageInput{
		MessageID:   body.MessageID,
		LineUserID:  body.LineUserID,
		LineGroupID: body.LineGroupID,
		Type:        body.MessageType,
		Content:     body.Content,
		Original:    body.OriginalContent,
		IsFromBot:   body.IsFromBot,
		Sentiment:   body.SentimentScore,
		Keywords:    body.Keywords,
	}
	if body.CreatedAt != nil {
		in.SentAt = *body.CreatedAt
	}
	for _, a := range body.Attachments {
		in.Attachments = append(in.Attachments, crm.AttachmentInput{
			Type:     a.Type,
			FileURL:  a.FileURL,
			FileName: a.FileName,
			FileSize: a.FileSize,
			MimeType: a.MimeType,
		})
	}

	row, errRecord := crm.RecordMessage(c.Request.Context(), h.db, in)
	if errRecord != nil {
		switch {
		case errors.Is(errRecord, crm.ErrInvalidInput):
			invalidInput(c, errRecord)
		case errors.Is(errRecord, crm.ErrDuplicateMessage):
			c.JSON(http.StatusConflict, gin.H{"error": "message already recorded"})
		default:
			serverError(c, "record message failed", errRecord)
		}
		return
	}
	c.JSON(http.StatusCreated, messageRow(&row))
}

// Delete removes a message and rolls back its counters.
func (h *MessageHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if errDelete := crm.DeleteMessage(c.Request.Context(), h.db, id); errDelete != nil {
		if errors.Is(errDelete, crm.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		serverError(c, "delete message failed", errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// messageRow converts a message model into a response payload.
func messageRow(row *models.Message) gin.H {
	keywords := []string{}
	if len(row.Keywords) > 0 {
		_ = json.Unmarshal(row.Keywords, &keywords)
	}
	var original any
	if len(row.OriginalContent) > 0 {
		original = json.RawMessage(row.OriginalContent)
	}
	attachments := make([]gin.H, 0, len(row.Attachments))
	for _, a := range row.Attachments {
		attachments = append(attachments, gin.H{
			"id":         a.ID,
			"type":       a.AttachmentType,
			"file_url":   a.FileURL,
			"file_name":  a.FileName,
			"file_size":  a.FileSize,
			"mime_type":  a.MimeType,
			"created_at": a.CreatedAt,
		})
	}
	return gin.H{
		"id":               row.ID,
		"message_id":       row.MessageID,
		"line_user_id":     row.LineUserID,
		"line_group_id":    row.LineGroupID,
		"message_type":     row.MessageType,
		"content":          row.Content,
		"original_content": original,
		"is_from_bot":      row.IsFromBot,
		"is_read":          row.IsRead,
		"sentiment_score":  row.SentimentScore,
		"keywords":         keywords,
		"attachments":      attachments,
		"created_at":       row.CreatedAt,
		"updated_at":       row.UpdatedAt,
	}
}
