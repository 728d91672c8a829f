package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codexops/codex-api/internal/application"
	"github.com/codexops/codex-api/internal/domain/entity"
	"github.com/codexops/codex-api/pkg/response"
)

// Context keys set by Auth.
const (
	CtxUserKey   = "currentUser"
	CtxUserIDKey = "userID"
)

// BearerToken extracts the access token from the Authorization header,
// falling back to the access_token cookie for browser clients.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if tok, err := c.Cookie("access_token"); err == nil {
		return tok
	}
	return ""
}

// Auth resolves the current user from the bearer access token. The token is
// verified and the subject must still resolve to an active user; both
// failures abort with 401.
func Auth(svc *application.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			response.Error[any](c, http.StatusUnauthorized, "not authenticated", nil)
			c.Abort()
			return
		}
		u, err := svc.AuthenticateRequest(c.Request.Context(), token)
		if err != nil {
			response.Error[any](c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		c.Set(CtxUserKey, u)
		c.Set(CtxUserIDKey, u.ID)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth, or nil.
func CurrentUser(c *gin.Context) *entity.User {
	if v, ok := c.Get(CtxUserKey); ok {
		if u, ok := v.(*entity.User); ok {
			return u
		}
	}
	return nil
}

// RequireRoles aborts with 403 unless the current user owns at least one of
// the given roles. Role names compare case-insensitively; an empty list is a
// pass-through.
func RequireRoles(svc *application.AuthService, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			response.Error[any](c, http.StatusUnauthorized, "not authenticated", nil)
			c.Abort()
			return
		}
		if err := svc.Authorize(u, roles); err != nil {
			response.Error[any](c, http.StatusForbidden, "missing required role", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
