package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/codexops/codex-api/config"
	"github.com/codexops/codex-api/internal/container"
	pginfra "github.com/codexops/codex-api/internal/infrastructure/postgres"
	"github.com/codexops/codex-api/internal/router"
	"github.com/codexops/codex-api/pkg/helpers"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin"
)

// Seeds the default role/permission registry and a bootstrap admin account.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)

	ctx := context.Background()
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetPGPool(pool)
	container.SetJWT(helpers.NewJWTManager(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTTLMinutes, cfg.RefreshTTLMinutes))

	_, userSvc := router.BuildServices()

	if err := userSvc.EnsureDefaultRoleset(ctx); err != nil {
		log.Fatalf("failed to ensure default roleset: %v", err)
	}
	fmt.Println("default roles and permissions ensured")

	users := pginfra.NewUserRepository(pool)
	if existing, err := users.GetByEmail(ctx, adminEmail); err == nil && existing != nil {
		fmt.Println("admin user already exists")
		return
	}

	u, err := userSvc.CreateUser(ctx, adminEmail, adminPassword, []string{"admin"})
	if err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}
	fmt.Printf("admin user created: id=%s email=%s\n", u.ID, u.Email)
}
