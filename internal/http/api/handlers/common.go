package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/crm"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// developmentContextKey marks requests served in development mode.
const developmentContextKey = "developmentMode"

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

var errInvalidDate = errors.New("invalid date")

// DevelopmentMode records whether 500 responses may carry error details.
func DevelopmentMode(development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(developmentContextKey, development)
		c.Next()
	}
}

// serverError logs err and answers 500. Development mode echoes the error.
func serverError(c *gin.Context, msg string, err error) {
	log.WithError(err).WithFields(log.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error(msg)
	body := gin.H{"error": msg}
	if c.GetBool(developmentContextKey) && err != nil {
		body["message"] = err.Error()
	} else {
		body["message"] = "please try again later"
	}
	c.JSON(http.StatusInternalServerError, body)
}

// invalidInput answers 400 with the validation message of err, without the
// package prefix.
func invalidInput(c *gin.Context, err error) {
	msg := strings.TrimPrefix(err.Error(), crm.ErrInvalidInput.Error()+": ")
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// parseID reads the :id path parameter.
func parseID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// pageQuery is the offset/limit paging shared by list endpoints.
type pageQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

func (q *pageQuery) normalize(defaultLimit int) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
}

func (q pageQuery) offset() int { return (q.Page - 1) * q.Limit }

// parseDateBound parses YYYY-MM-DD or RFC 3339. A plain date used as an upper
// bound covers the whole day, so the returned time is exclusive in that case.
func parseDateBound(raw string, upper bool) (t time.Time, exclusive bool, err error) {
	raw = strings.TrimSpace(raw)
	if day, errDay := time.ParseInLocation("2006-01-02", raw, time.UTC); errDay == nil {
		if upper {
			return day.AddDate(0, 0, 1).UTC(), true, nil
		}
		return day.UTC(), false, nil
	}
	if ts, errTS := time.Parse(time.RFC3339, raw); errTS == nil {
		return ts.UTC(), false, nil
	}
	return time.Time{}, false, errInvalidDate
}

// dateRange holds the date_from/date_to filters.
type dateRange struct {
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
}

// apply narrows q by the range on column. It answers 400 and returns false on bad input.
func (r dateRange) apply(c *gin.Context, q *gorm.DB, column string) (*gorm.DB, bool) {
	if r.DateFrom != "" {
		from, _, errFrom := parseDateBound(r.DateFrom, false)
		if errFrom != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
			return q, false
		}
		q = q.Where(column+" >= ?", from)
	}
	if r.DateTo != "" {
		to, exclusive, errTo := parseDateBound(r.DateTo, true)
		if errTo != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
			return q, false
		}
		if exclusive {
			q = q.Where(column+" < ?", to)
		} else {
			q = q.Where(column+" <= ?", to)
		}
	}
	return q, true
}

// parseBoolQuery parses an optional boolean query value.
func parseBoolQuery(raw string) (value bool, set bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false, nil
	}
	value, err = strconv.ParseBool(raw)
	return value, err == nil, err
}

// formatTime renders an optional timestamp.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
