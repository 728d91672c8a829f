package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/codexops/codex-api/internal/application"
	"github.com/codexops/codex-api/internal/interface/middleware"
	"github.com/codexops/codex-api/pkg/response"
	"github.com/codexops/codex-api/pkg/validation"
)

type UserHandler struct {
	Svc    *application.UserService
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type createUserRequest struct {
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required,newpwd"`
	Roles    []string `json:"roles" binding:"omitempty,dive,rolename"`
}

// Me GET /users/me (auth required)
func (h *UserHandler) Me(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if u == nil {
		response.Error[any](c, http.StatusUnauthorized, "not authenticated", nil)
		return
	}
	response.Success(c, http.StatusOK, profileOf(u), "current user", nil)
}

// AdminPulse GET /users/admin/pulse (admin role required)
func (h *UserHandler) AdminPulse(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "admin-ok"}, "pulse", nil)
}

// Create POST /users (admin role required)
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, err := h.Svc.CreateUser(c.Request.Context(), req.Email, req.Password, req.Roles)
	if err != nil {
		if errors.Is(err, application.ErrEmailTaken) {
			response.Error[any](c, http.StatusConflict, "email already registered", nil)
			return
		}
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("email", req.Email).Error("create user failed")
		}
		response.Error[any](c, http.StatusInternalServerError, "could not create user", nil)
		return
	}
	response.Success(c, http.StatusCreated, profileOf(u), "user created", nil)
}

// Search GET /users/search?q=&size= (admin role required)
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "missing query", nil)
		return
	}
	size := 10
	if v, ok := c.GetQuery("size"); ok {
		// tolerate junk; SearchUsers clamps out-of-range values
		if n, err := strconv.Atoi(v); err == nil {
			size = n
		}
	}
	hits, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		response.Error[any](c, http.StatusBadGateway, "search unavailable", nil)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}

// UploadAvatar PUT /users/me/avatar (auth required, multipart "avatar" field)
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if u == nil {
		response.Error[any](c, http.StatusUnauthorized, "not authenticated", nil)
		return
	}
	file, header, err := c.Request.FormFile("avatar")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "missing avatar file", nil)
		return
	}
	defer func() { _ = file.Close() }()

	url, err := h.Svc.UploadAvatar(c.Request.Context(), u.ID, file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "avatar upload failed", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"avatar_url": url}, "avatar updated", nil)
}
