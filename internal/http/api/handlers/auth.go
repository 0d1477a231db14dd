package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	crmhttp "github.com/linecrm/linecrm/internal/http"
	"github.com/linecrm/linecrm/internal/lineauth"
	"github.com/linecrm/linecrm/internal/session"
	log "github.com/sirupsen/logrus"
)

// CookieOptions describes the session cookie.
type CookieOptions struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// AuthHandler handles LINE Login and the operator session lifecycle.
type AuthHandler struct {
	sessions  *session.Manager
	line      *lineauth.Client // Nil when LINE Login is not configured.
	allowlist []string
	cookie    CookieOptions
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(sessions *session.Manager, line *lineauth.Client, allowlist []string, cookie CookieOptions) *AuthHandler {
	return &AuthHandler{sessions: sessions, line: line, allowlist: allowlist, cookie: cookie}
}

// LoginURL starts a login: it stores a fresh state/nonce and returns the LINE authorization URL.
func (h *AuthHandler) LoginURL(c *gin.Context) {
	if h.line == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "LINE Login is not configured"})
		return
	}
	state, nonce, errBegin := h.sessions.BeginLogin(c.Request.Context())
	if errBegin != nil {
		serverError(c, "start login failed", errBegin)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":          h.line.AuthCodeURL(state, nonce),
		"state":        state,
		"redirect_uri": h.line.RedirectURL(),
	})
}

// loginRequest defines the request body for completing a login.
type loginRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Login redeems the authorization code, verifies the ID token and opens a session.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.line == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "LINE Login is not configured"})
		return
	}
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}
	ctx := c.Request.Context()

	nonce, errState := h.sessions.CompleteLogin(ctx, body.State)
	if errState != nil {
		if errors.Is(errState, session.ErrInvalidState) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired login state"})
			return
		}
		serverError(c, "login failed", errState)
		return
	}

	identity, errExchange := h.line.Exchange(ctx, code, nonce)
	if errExchange != nil {
		log.WithError(errExchange).Warn("LINE login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "LINE login failed"})
		return
	}
	if !lineauth.Allowed(h.allowlist, identity.UserID) {
		log.WithField("line_user_id", identity.UserID).Warn("LINE login from account outside the allowlist")
		c.JSON(http.StatusForbidden, gin.H{"error": "account is not allowed to sign in"})
		return
	}

	token, sess, errIssue := h.sessions.Issue(ctx, session.Identity{
		LineUserID:  identity.UserID,
		DisplayName: identity.DisplayName,
		PictureURL:  identity.PictureURL,
		Email:       identity.Email,
	})
	if errIssue != nil {
		serverError(c, "create session failed", errIssue)
		return
	}
	h.setCookie(c, token, int(h.sessions.TTL().Seconds()))
	log.WithField("line_user_id", identity.UserID).Info("operator signed in")

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          sess.Identity,
		"token":         token,
		"expires_at":    sess.ExpiresAt,
	})
}

// Status reports whether the request carries a live session.
func (h *AuthHandler) Status(c *gin.Context) {
	token := crmhttp.SessionToken(c, h.cookie.Name)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	sess, errResolve := h.sessions.Resolve(c.Request.Context(), token)
	if errResolve != nil {
		if errors.Is(errResolve, session.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}
		serverError(c, "check session failed", errResolve)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          sess.Identity,
		"expires_at":    sess.ExpiresAt,
	})
}

// Logout revokes the session and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := crmhttp.SessionToken(c, h.cookie.Name); token != "" {
		if errRevoke := h.sessions.Revoke(c.Request.Context(), token); errRevoke != nil {
			serverError(c, "logout failed", errRevoke)
			return
		}
	}
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "signed out"})
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
