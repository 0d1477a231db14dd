package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/models"
	"github.com/linecrm/linecrm/internal/stats"
)

// StatisticsHandler serves dashboard aggregates.
type StatisticsHandler struct {
	stats *stats.Service
	now   func() time.Time
}

// NewStatisticsHandler constructs a StatisticsHandler.
func NewStatisticsHandler(svc *stats.Service) *StatisticsHandler {
	return &StatisticsHandler{stats: svc, now: time.Now}
}

// Overview returns totals, items created today and items active this week.
func (h *StatisticsHandler) Overview(c *gin.Context) {
	out, errOverview := h.stats.Overview(c.Request.Context(), h.now())
	if errOverview != nil {
		serverError(c, "load statistics failed", errOverview)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Users returns the most active users.
func (h *StatisticsHandler) Users(c *gin.Context) {
	rows, errTop := h.stats.TopUsers(c.Request.Context(), intQuery(c, "limit", 10))
	if errTop != nil {
		serverError(c, "load user statistics failed", errTop)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": rows})
}

// Groups returns the most active groups.
func (h *StatisticsHandler) Groups(c *gin.Context) {
	rows, errTop := h.stats.TopGroups(c.Request.Context(), intQuery(c, "limit", 10))
	if errTop != nil {
		serverError(c, "load group statistics failed", errTop)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": rows})
}

// Messages returns message counts per type over the last days days.
func (h *StatisticsHandler) Messages(c *gin.Context) {
	days := intQuery(c, "days", 7)
	if days < 1 || days > 366 {
		days = 7
	}
	since := stats.WindowAt(h.now()).StartOfDay.AddDate(0, 0, -(days - 1))
	rows, errTypes := h.stats.MessagesByType(c.Request.Context(), since)
	if errTypes != nil {
		serverError(c, "load message statistics failed", errTypes)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "since": since, "types": rows})
}

// Daily returns per-day activity, newest first.
func (h *StatisticsHandler) Daily(c *gin.Context) {
	days := intQuery(c, "days", 30)
	if days < 1 || days > 366 {
		days = 30
	}
	rows, errDaily := h.stats.DailySummary(c.Request.Context(), h.now(), days)
	if errDaily != nil {
		serverError(c, "load daily statistics failed", errDaily)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "daily": rows})
}

// Snapshots lists stored daily snapshots.
func (h *StatisticsHandler) Snapshots(c *gin.Context) {
	rows, errList := h.stats.ListSnapshots(c.Request.Context(), intQuery(c, "limit", 30))
	if errList != nil {
		serverError(c, "list snapshots failed", errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, dailyStatRow(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": out})
}

// createSnapshotRequest defines the request body for taking a snapshot.
type createSnapshotRequest struct {
	Date string `json:"date"` // YYYY-MM-DD, defaults to today.
}

// CreateSnapshot computes and stores the snapshot of one day.
func (h *StatisticsHandler) CreateSnapshot(c *gin.Context) {
	var body createSnapshotRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	day := h.now()
	if raw := strings.TrimSpace(body.Date); raw != "" {
		parsed, errParse := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
		day = parsed
	}
	row, errSnapshot := h.stats.SnapshotDay(c.Request.Context(), day)
	if errSnapshot != nil {
		serverError(c, "create snapshot failed", errSnapshot)
		return
	}
	c.JSON(http.StatusCreated, dailyStatRow(&row))
}

// dailyStatRow converts a snapshot into a response payload.
func dailyStatRow(row *models.DailyStat) gin.H {
	var byType any = map[string]int64{}
	if len(row.MessagesByType) > 0 {
		byType = json.RawMessage(row.MessagesByType)
	}
	var keywords any = []any{}
	if len(row.TopKeywords) > 0 {
		keywords = json.RawMessage(row.TopKeywords)
	}
	return gin.H{
		"id":               row.ID,
		"date":             row.Date.Format("2006-01-02"),
		"total_messages":   row.TotalMessages,
		"total_users":      row.TotalUsers,
		"total_groups":     row.TotalGroups,
		"new_users":        row.NewUsers,
		"active_users":     row.ActiveUsers,
		"messages_by_type": byType,
		"top_keywords":     keywords,
		"created_at":       row.CreatedAt,
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return def
	}
	return n
}
