package router

import (
	"github.com/codexops/codex-api/internal/application"
	"github.com/codexops/codex-api/internal/container"
	pginfra "github.com/codexops/codex-api/internal/infrastructure/postgres"
	handlers "github.com/codexops/codex-api/internal/interface/http"
	"github.com/codexops/codex-api/internal/router/modules"
)

// BuildServices constructs the repositories and application services from
// the container singletons. Exposed so cmd/seed can reuse the same wiring.
func BuildServices() (*application.AuthService, *application.UserService) {
	cfg := container.GetConfig()
	users := pginfra.NewUserRepository(container.GetPGPool())
	rbac := pginfra.NewRBACRepository(container.GetPGPool())

	authSvc := application.NewAuthService(
		users,
		container.GetJWT(),
		container.GetLogger(),
		container.GetRabbitPub(),
		cfg.MailSendEnabled,
	)
	userSvc := application.NewUserService(
		users,
		rbac,
		container.GetLogger(),
		container.GetRabbitPub(),
		cfg.MailSendEnabled,
		cfg.BcryptCost,
		container.GetGCS(),
		cfg.GCSBucket,
		container.GetES(),
		cfg.ESUsersIndex,
	)
	return authSvc, userSvc
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	cfg := container.GetConfig()
	authSvc, userSvc := BuildServices()

	authHandler := handlers.NewAuthHandler(
		authSvc,
		container.GetJWT(),
		container.GetLogger(),
		cfg.CookieDomain,
		cfg.CookieSecure,
	)
	userHandler := handlers.NewUserHandler(userSvc, container.GetLogger())

	r.Add(modules.NewHealthModule())
	r.Add(modules.NewAuthModule(authHandler, authSvc))
	r.Add(modules.NewUserModule(userHandler, authSvc))
}
