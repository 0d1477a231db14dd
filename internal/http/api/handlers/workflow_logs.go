package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/gorm"
)

// WorkflowLogHandler exposes the automation run log.
type WorkflowLogHandler struct {
	db *gorm.DB
}

// NewWorkflowLogHandler constructs a WorkflowLogHandler.
func NewWorkflowLogHandler(db *gorm.DB) *WorkflowLogHandler {
	return &WorkflowLogHandler{db: db}
}

// workflowLogQuery defines filters for the workflow log list.
type workflowLogQuery struct {
	pageQuery
	dateRange
	WorkflowName string `form:"workflow_name"`
	Status       string `form:"status"`
}

// List returns workflow runs newest first.
func (h *WorkflowLogHandler) List(c *gin.Context) {
	var q workflowLogQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	q.normalize(defaultPageSize)

	query := h.db.WithContext(c.Request.Context()).Model(&models.WorkflowLog{})
	if v := strings.TrimSpace(q.WorkflowName); v != "" {
		query = query.Where("workflow_name = ?", v)
	}
	if v := strings.TrimSpace(q.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	query, ok := q.dateRange.apply(c, query, "created_at")
	if !ok {
		return
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		serverError(c, "count workflow logs failed", errCount)
		return
	}
	var rows []models.WorkflowLog
	if errFind := query.Order("created_at DESC").Order("id DESC").
		Offset(q.offset()).Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		serverError(c, "list workflow logs failed", errFind)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, workflowLogRow(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  out,
		"total": total,
		"page":  q.Page,
		"limit": q.Limit,
	})
}

func workflowLogRow(row *models.WorkflowLog) gin.H {
	raw := func(data []byte) any {
		if len(data) == 0 {
			return nil
		}
		return json.RawMessage(data)
	}
	return gin.H{
		"id":             row.ID,
		"workflow_name":  row.WorkflowName,
		"execution_id":   row.ExecutionID,
		"status":         row.Status,
		"input_data":     raw(row.InputData),
		"output_data":    raw(row.OutputData),
		"error_message":  row.ErrorMessage,
		"execution_time": row.ExecutionTime,
		"created_at":     row.CreatedAt,
	}
}
