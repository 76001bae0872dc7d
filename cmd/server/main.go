// Copyright 2026 The TaskFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/cache"
	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/identity"
	"github.com/taskflow/taskflow/internal/observability/logger"
	"github.com/taskflow/taskflow/internal/observability/metrics"
	"github.com/taskflow/taskflow/internal/observability/tracing"
	"github.com/taskflow/taskflow/internal/registry"
	"github.com/taskflow/taskflow/internal/store/postgres"
	"github.com/taskflow/taskflow/internal/tenant"
	transportHTTP "github.com/taskflow/taskflow/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting taskflow authorization service")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		os.Exit(1)
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	authzMetrics, err := metrics.NewAuthzMetrics(meter)
	if err != nil {
		slog.Error("failed to register authz metrics", logger.Error(err))
		os.Exit(1)
	}

	db, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	permCache := cache.New(redisClient, cfg.Redis.CacheTTL)

	// Repositories
	permRepo := postgres.NewPermissionRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	assignRepo := postgres.NewAssignmentRepository(db)
	teamRepo := postgres.NewTeamRepository(db)
	userRepo := postgres.NewUserRepository(db)
	superAdminRepo := postgres.NewSuperAdminRepository(db)
	tokenRepo := postgres.NewTokenRepository(db)

	// Helpers
	reg := registry.Default()
	auditLogger := audit.NewSlogLogger()
	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	tokens := identity.NewTokenService(
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.Issuer,
		cfg.Auth.AccessTokenTTL,
		tokenRepo,
	)

	// Services
	identityService := identity.NewService(userRepo, superAdminRepo, tokens, hasher, auditLogger)
	store := authz.NewStore(reg, permRepo, roleRepo, assignRepo, permCache, auditLogger)
	directory := tenant.NewDirectory(teamRepo)
	resolver := authz.NewResolver(reg, permRepo, roleRepo, assignRepo, directory, permCache, authzMetrics)
	syncer := authz.NewSyncer(reg, permRepo, roleRepo, directory, permCache, auditLogger)
	teamService := tenant.NewService(
		teamRepo,
		identity.NewAccounts(identityService),
		store,
		syncer,
		permCache,
		auditLogger,
	)

	// The registry must be reconciled before any request is served; stale
	// role blueprints would let authorization drift from the vocabulary.
	if err := syncer.Run(ctx); err != nil {
		slog.Error("registry sync failed", logger.Error(err))
		os.Exit(1)
	}

	// A no-op when the TF_BOOTSTRAP_ADMIN_* variables are unset. An error
	// with them set means the operator account does not exist; do not serve.
	bootstrap := identity.NewBootstrapService(superAdminRepo, store, hasher, auditLogger)
	if err := bootstrap.Bootstrap(ctx); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
		os.Exit(1)
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(identityService, tokens, teamService, store, resolver, auditLogger)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info(fmt.Sprintf("listening on %s", addr), logger.Component("server"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
