package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codexops/codex-api/internal/application"
	"github.com/codexops/codex-api/internal/container"
	handlers "github.com/codexops/codex-api/internal/interface/http"
	"github.com/codexops/codex-api/internal/interface/middleware"
)

// UserModule wires user management endpoints. Everything here requires a
// valid access token; mutation and search additionally require the admin
// role.
type UserModule struct {
	Handler *handlers.UserHandler
	Auth    *application.AuthService
}

func NewUserModule(h *handlers.UserHandler, auth *application.AuthService) *UserModule {
	return &UserModule{Handler: h, Auth: auth}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.Auth))
	auth.Use(middleware.RateLimit(container.GetRedis(), 120, time.Minute, middleware.KeyByUserID()))
	{
		auth.GET("/users/me", m.Handler.Me)
		auth.PUT("/users/me/avatar", m.Handler.UploadAvatar)

		admin := auth.Group("/")
		admin.Use(middleware.RequireRoles(m.Auth, "admin"))
		{
			admin.GET("/users/admin/pulse", m.Handler.AdminPulse)
			admin.POST("/users", m.Handler.Create)
			admin.GET("/users/search", m.Handler.Search)
		}
	}
}
