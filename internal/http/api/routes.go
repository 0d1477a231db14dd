// Package api wires the admin HTTP surface onto a gin engine.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/config"
	crmhttp "github.com/linecrm/linecrm/internal/http"
	"github.com/linecrm/linecrm/internal/http/api/handlers"
	"github.com/linecrm/linecrm/internal/lineapi"
	"github.com/linecrm/linecrm/internal/lineauth"
	"github.com/linecrm/linecrm/internal/logging"
	"github.com/linecrm/linecrm/internal/session"
	"github.com/linecrm/linecrm/internal/stats"
	"github.com/linecrm/linecrm/internal/webui"
	"gorm.io/gorm"
)

// Deps are the services the routes depend on.
type Deps struct {
	Config   config.Config
	DB       *gorm.DB
	Sessions *session.Manager
	Stats    *stats.Service
	// LineLogin is nil when LINE Login is not configured.
	LineLogin *lineauth.Client
	// LineAPI is optional and only enriches webhook contacts.
	LineAPI *lineapi.Client
	// WebhookSecret returns the Messaging API channel secret.
	WebhookSecret func() string
	// Web is nil when no UI bundle is served.
	Web *webui.Bundle
}

// NewEngine builds a gin engine with every middleware and route registered.
func NewEngine(deps Deps) *gin.Engine {
	engine := gin.New()
	RegisterRoutes(engine, deps)
	return engine
}

// RegisterRoutes registers global middlewares, the /api routes and the fallback handler.
func RegisterRoutes(engine *gin.Engine, deps Deps) {
	if engine == nil || deps.DB == nil || deps.Sessions == nil {
		return
	}
	cfg := deps.Config
	development := cfg.IsDevelopment()

	engine.Use(
		logging.GinLogger(),
		logging.GinRecovery(development),
		crmhttp.SecurityHeadersMiddleware(!development),
	)
	if origin := strings.TrimSpace(cfg.Server.FrontendURL); strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     []string{strings.TrimRight(origin, "/")},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"X-RateLimit-Limit"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	engine.Use(
		handlers.DevelopmentMode(development),
		bodyLimit(cfg.Server.BodyLimitBytes),
		crmhttp.SettingsRefreshMiddleware(deps.DB, cfg.Settings.CacheTTL),
		crmhttp.MaintenanceMiddleware(),
	)

	healthHandler := handlers.NewHealthHandler(deps.DB)
	engine.GET("/", func(c *gin.Context) {
		if deps.Web != nil && deps.Web.Serve(c) {
			return
		}
		healthHandler.Root(c)
	})

	// LINE delivers webhooks from a small set of addresses, so the webhook
	// sits outside the per-IP limiter.
	webhookHandler := handlers.NewWebhookHandler(deps.DB, deps.LineAPI, deps.WebhookSecret)
	engine.POST("/api/line/webhook", webhookHandler.Receive)

	api := engine.Group("/api")
	if limiter := crmhttp.NewRateLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window); limiter != nil {
		api.Use(crmhttp.RateLimitMiddleware(limiter))
	}
	api.GET("/health", healthHandler.Health)

	authHandler := handlers.NewAuthHandler(deps.Sessions, deps.LineLogin, cfg.LINE.AllowedUserIDs, handlers.CookieOptions{
		Name:     cfg.Session.CookieName,
		Domain:   cfg.Session.Domain,
		Secure:   cfg.CookieSecure(),
		SameSite: sameSiteMode(cfg.Session.SameSite),
	})
	api.GET("/auth/login-url", authHandler.LoginURL)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/status", authHandler.Status)
	api.POST("/auth/logout", authHandler.Logout)

	authed := api.Group("")
	authed.Use(crmhttp.SessionAuthMiddleware(deps.Sessions, cfg.Session.CookieName))

	settingsHandler := handlers.NewSettingsHandler(deps.DB)
	authed.GET("/system-settings", settingsHandler.List)
	authed.GET("/system-settings/:key", settingsHandler.Get)
	authed.PUT("/system-settings/:key", settingsHandler.Update)

	userHandler := handlers.NewUserHandler(deps.DB)
	authed.GET("/line-users", userHandler.List)
	authed.GET("/line-users/:id", userHandler.Get)
	authed.PUT("/line-users/:id", userHandler.Update)
	authed.DELETE("/line-users/:id", userHandler.Delete)

	groupHandler := handlers.NewGroupHandler(deps.DB)
	authed.GET("/line-groups", groupHandler.List)
	authed.GET("/line-groups/:id", groupHandler.Get)
	authed.GET("/line-groups/:id/members", groupHandler.Members)
	authed.PUT("/line-groups/:id", groupHandler.Update)
	authed.DELETE("/line-groups/:id", groupHandler.Delete)

	messageHandler := handlers.NewMessageHandler(deps.DB)
	authed.GET("/messages", messageHandler.List)
	authed.POST("/messages", messageHandler.Create)
	authed.GET("/messages/:id", messageHandler.Get)
	authed.DELETE("/messages/:id", messageHandler.Delete)

	tagHandler := handlers.NewTagHandler(deps.DB)
	authed.GET("/tags", tagHandler.List)
	authed.POST("/tags", tagHandler.Create)
	authed.DELETE("/tags/:id", tagHandler.Delete)

	if deps.Stats != nil {
		statsHandler := handlers.NewStatisticsHandler(deps.Stats)
		authed.GET("/statistics", statsHandler.Overview)
		authed.GET("/statistics/users", statsHandler.Users)
		authed.GET("/statistics/groups", statsHandler.Groups)
		authed.GET("/statistics/messages", statsHandler.Messages)
		authed.GET("/statistics/daily", statsHandler.Daily)
		authed.GET("/statistics/snapshots", statsHandler.Snapshots)
		authed.POST("/statistics/snapshots", statsHandler.CreateSnapshot)
	}

	workflowHandler := handlers.NewWorkflowLogHandler(deps.DB)
	authed.GET("/workflow-logs", workflowHandler.List)

	engine.NoRoute(func(c *gin.Context) {
		if !isAPIRoute(c.Request.URL.Path) && deps.Web != nil && deps.Web.Serve(c) {
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Route not found",
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
			"timestamp": time.Now().UTC(),
		})
	})
}

// isAPIRoute reports whether a path targets API endpoints.
func isAPIRoute(requestPath string) bool {
	return requestPath == "/api" || strings.HasPrefix(requestPath, "/api/")
}

func sameSiteMode(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// bodyLimit caps request bodies at limit bytes. Zero disables the cap.
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
