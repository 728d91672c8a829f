package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/codexops/codex-api/internal/application"
	"github.com/codexops/codex-api/internal/domain/entity"
	"github.com/codexops/codex-api/internal/interface/middleware"
	"github.com/codexops/codex-api/pkg/helpers"
	"github.com/codexops/codex-api/pkg/response"
	"github.com/codexops/codex-api/pkg/validation"
)

type AuthHandler struct {
	Svc     *application.AuthService
	JWT     *helpers.JWTManager
	Logger  *logrus.Logger
	Cookies *helpers.CookieManager
}

func NewAuthHandler(svc *application.AuthService, jwt *helpers.JWTManager, logger *logrus.Logger, cookieDomain string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{Svc: svc, JWT: jwt, Logger: logger, Cookies: helpers.NewCookieManager(cookieDomain, cookieSecure)}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,min=10"`
}

// rolePayload and profilePayload shape the public user representation:
// {id, email, is_active, roles:[{name}]}.
type rolePayload struct {
	Name string `json:"name"`
}

type profilePayload struct {
	ID       string        `json:"id"`
	Email    string        `json:"email"`
	IsActive bool          `json:"is_active"`
	Roles    []rolePayload `json:"roles"`
}

func profileOf(u *entity.User) profilePayload {
	roles := make([]rolePayload, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, rolePayload{Name: r.Name})
	}
	return profilePayload{ID: u.ID, Email: u.Email, IsActive: u.IsActive, Roles: roles}
}

// Login POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	pair, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, application.ErrNoRoles) {
			response.Error[any](c, http.StatusUnauthorized, "user has no roles", nil)
			return
		}
		response.Error[any](c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	h.setCookies(c, pair)
	response.Success(c, http.StatusOK, pair, "login successful", nil)
}

// Refresh POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Browser clients send the token as a cookie instead.
		tok, cerr := c.Cookie("refresh_token")
		if cerr != nil || tok == "" {
			response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
			return
		}
		req.RefreshToken = tok
	}

	pair, err := h.Svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.Error[any](c, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}

	h.setCookies(c, pair)
	response.Success(c, http.StatusOK, pair, "token refreshed", nil)
}

// Me GET /auth/me (auth required)
func (h *AuthHandler) Me(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if u == nil {
		response.Error[any](c, http.StatusUnauthorized, "not authenticated", nil)
		return
	}
	response.Success(c, http.StatusOK, profileOf(u), "current user", nil)
}

// Logout POST /auth/logout (auth required). Tokens stay valid until expiry;
// this only clears the browser cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true}, "logged out", nil)
}

func (h *AuthHandler) setCookies(c *gin.Context, pair helpers.TokenPair) {
	now := time.Now()
	h.Cookies.SetPair(c, pair.AccessToken, now.Add(h.JWT.AccessTTL()), pair.RefreshToken, now.Add(h.JWT.RefreshTTL()))
}
