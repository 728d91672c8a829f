package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codexops/codex-api/internal/application"
	"github.com/codexops/codex-api/internal/container"
	handlers "github.com/codexops/codex-api/internal/interface/http"
	"github.com/codexops/codex-api/internal/interface/middleware"
)

// AuthModule wires the token lifecycle endpoints.
// Public: POST /auth/login, POST /auth/refresh
// Protected: GET /auth/me, POST /auth/logout
type AuthModule struct {
	Handler *handlers.AuthHandler
	Svc     *application.AuthService
}

func NewAuthModule(h *handlers.AuthHandler, svc *application.AuthService) *AuthModule {
	return &AuthModule{Handler: h, Svc: svc}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	loginLimiter := middleware.RateLimit(container.GetRedis(), 10, time.Minute, middleware.KeyByIPAndPath())
	refreshLimiter := middleware.RateLimit(container.GetRedis(), 60, time.Minute, middleware.KeyByIP())

	rg.POST("/auth/login", loginLimiter, m.Handler.Login)
	rg.POST("/auth/refresh", refreshLimiter, m.Handler.Refresh)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.Svc))
	{
		auth.GET("/auth/me", m.Handler.Me)
		auth.POST("/auth/logout", m.Handler.Logout)
	}
}
