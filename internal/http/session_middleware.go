// Package http holds the gin middlewares shared by the API routes.
package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/session"
	log "github.com/sirupsen/logrus"
)

const (
	sessionContextKey      = "session"
	sessionTokenContextKey = "sessionToken"
)

// SessionToken extracts the session token from the cookie or an Authorization Bearer header.
func SessionToken(c *gin.Context, cookieName string) string {
	if cookie, errCookie := c.Cookie(cookieName); errCookie == nil {
		if token := strings.TrimSpace(cookie); token != "" {
			return token
		}
	}
	authHeader := c.GetHeader("Authorization")
	if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
		return strings.TrimSpace(token)
	}
	return ""
}

// SessionAuthMiddleware rejects requests without a live operator session and
// stores the session in the context.
func SessionAuthMiddleware(manager *session.Manager, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		sess, errResolve := manager.Resolve(c.Request.Context(), token)
		if errResolve != nil {
			if errors.Is(errResolve, session.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
				return
			}
			log.WithError(errResolve).Error("session auth middleware error")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session service error"})
			return
		}
		c.Set(sessionContextKey, sess)
		c.Set(sessionTokenContextKey, token)
		c.Next()
	}
}

// CurrentSession returns the session stored by SessionAuthMiddleware.
func CurrentSession(c *gin.Context) (session.Session, bool) {
	val, exists := c.Get(sessionContextKey)
	if !exists {
		return session.Session{}, false
	}
	sess, ok := val.(session.Session)
	return sess, ok
}
