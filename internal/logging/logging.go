// Package logging configures logrus for the process and adapts it to gin and GORM.
package logging

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/config"
	"github.com/linecrm/linecrm/internal/util"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	gormlogger "gorm.io/gorm/logger"
)

// Setup applies level, format and outputs to the standard logrus logger.
func Setup(cfg config.LogConfig) error {
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errLevel != nil {
		return fmt.Errorf("logging: invalid level %q: %w", cfg.Level, errLevel)
	}
	log.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	}

	writers := []io.Writer{os.Stdout}
	if file := strings.TrimSpace(cfg.File); file != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		})
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// GinLogger logs one line per request with sensitive query values masked.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := util.MaskSensitiveQuery(c.Request.URL.RawQuery)

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"status":   status,
			"method":   c.Request.Method,
			"path":     path,
			"ip":       c.ClientIP(),
			"latency":  time.Since(start).String(),
			"bytes":    c.Writer.Size(),
			"clientUA": c.Request.UserAgent(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}

// GinRecovery turns panics into a JSON 500. Development mode includes the panic value.
func GinRecovery(development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.WithFields(log.Fields{
					"panic": recovered,
					"path":  c.Request.URL.Path,
				}).Errorf("panic recovered\n%s", debug.Stack())
				body := gin.H{"error": "internal server error"}
				if development {
					body["message"] = fmt.Sprint(recovered)
				} else {
					body["message"] = "please try again later"
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()
		c.Next()
	}
}

// GormLogger routes GORM warnings and errors through logrus.
func GormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.StandardLogger(),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
