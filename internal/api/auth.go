package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galyarder/galyarder-store/pkg/schema"
)

// AccountStore is the user and session storage behind /auth.
type AccountStore interface {
	CreateUser(ctx context.Context, creds schema.Credentials) (*schema.User, error)
	Authenticate(ctx context.Context, creds schema.Credentials) (*schema.User, error)
	CreateSession(ctx context.Context, u *schema.User, ttl time.Duration) (*schema.Session, error)
	SessionUser(ctx context.Context, token string) (*schema.User, error)
	DeleteSession(ctx context.Context, token string) error
}

const (
	userKey  = "galyarder.user"
	tokenKey = "galyarder.token"
)

const defaultSessionTTL = 7 * 24 * time.Hour

func authStatus(code string) int {
	switch code {
	case schema.AuthInvalidRequest:
		return http.StatusBadRequest
	case schema.AuthUserExists:
		return http.StatusConflict
	case schema.AuthInvalidCredentials, schema.AuthNotAuthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

// abortAuth answers with {"error", "code"} so clients can rebuild a *schema.AuthError.
func abortAuth(c *gin.Context, err error) {
	var ae *schema.AuthError
	if errors.As(err, &ae) {
		c.AbortWithStatusJSON(authStatus(ae.Code), gin.H{"error": ae.Message, "code": ae.Code})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// Browsers cannot set headers on websocket upgrades.
	return c.Query("access_token")
}

// RequireUser rejects requests without a valid bearer session.
func (h *Handler) RequireUser(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		abortAuth(c, &schema.AuthError{Code: schema.AuthNotAuthenticated, Message: "missing bearer token"})
		return
	}
	u, err := h.Accounts.SessionUser(c.Request.Context(), token)
	if err != nil {
		abortAuth(c, err)
		return
	}
	c.Set(userKey, u)
	c.Set(tokenKey, token)
	c.Next()
}

// CurrentUserOf returns the user RequireUser attached, if any.
func CurrentUserOf(c *gin.Context) (*schema.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*schema.User)
	return u, ok
}

func (h *Handler) ttl() time.Duration {
	if h.SessionTTL > 0 {
		return h.SessionTTL
	}
	return defaultSessionTTL
}

func (h *Handler) SignUp(c *gin.Context) {
	var creds schema.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		abortAuth(c, &schema.AuthError{Code: schema.AuthInvalidRequest, Message: err.Error()})
		return
	}

	u, err := h.Accounts.CreateUser(c.Request.Context(), creds)
	if err != nil {
		abortAuth(c, err)
		return
	}
	s, err := h.Accounts.CreateSession(c.Request.Context(), u, h.ttl())
	if err != nil {
		abortAuth(c, err)
		return
	}
	c.JSON(http.StatusCreated, schema.AuthResult{User: u, Session: s})
}

func (h *Handler) SignIn(c *gin.Context) {
	var creds schema.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		abortAuth(c, &schema.AuthError{Code: schema.AuthInvalidRequest, Message: err.Error()})
		return
	}

	u, err := h.Accounts.Authenticate(c.Request.Context(), creds)
	if err != nil {
		abortAuth(c, err)
		return
	}
	s, err := h.Accounts.CreateSession(c.Request.Context(), u, h.ttl())
	if err != nil {
		abortAuth(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.AuthResult{User: u, Session: s})
}

// SignOut revokes the caller's token. Must run behind RequireUser.
func (h *Handler) SignOut(c *gin.Context) {
	if err := h.Accounts.DeleteSession(c.Request.Context(), c.GetString(tokenKey)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// CurrentUser must run behind RequireUser.
func (h *Handler) CurrentUser(c *gin.Context) {
	u, ok := CurrentUserOf(c)
	if !ok {
		abortAuth(c, &schema.AuthError{Code: schema.AuthNotAuthenticated, Message: "no active session"})
		return
	}
	c.JSON(http.StatusOK, u)
}
