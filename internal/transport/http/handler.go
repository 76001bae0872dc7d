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

// Package http is the HTTP surface of the authorization service. Handlers
// are thin glue: decode, delegate to a service, encode. All authorization
// decisions live in the authz resolver behind the RequirePermission gate.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/identity"
	"github.com/taskflow/taskflow/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identity    *identity.Service
	tokens      *identity.TokenService
	teams       *tenant.Service
	store       *authz.Store
	resolver    *authz.Resolver
	auditLogger audit.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	tokenService *identity.TokenService,
	teamService *tenant.Service,
	store *authz.Store,
	resolver *authz.Resolver,
	auditLogger audit.Logger,
) *Handler {
	return &Handler{
		identity:    identityService,
		tokens:      tokenService,
		teams:       teamService,
		store:       store,
		resolver:    resolver,
		auditLogger: auditLogger,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(SecureHeaders())
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// Unattached end users
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.Authenticate)
				r.Post("/logout", h.Logout)
				r.Get("/profile", h.Profile)
				r.Put("/profile", h.UpdateProfile)
				r.Post("/change-password", h.ChangePassword)
			})
		})

		// Team plane. Every route is scoped by the team slug header.
		r.Route("/team", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.With(h.ResolveTeam).Post("/login", h.TeamLogin)

				r.Group(func(r chi.Router) {
					r.Use(h.Authenticate, h.ResolveTeam, h.VerifyMembership)
					r.Get("/me", h.TeamMe)
					r.Get("/permissions", h.TeamPermissions)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(h.Authenticate, h.ResolveTeam, h.VerifyMembership)

				r.Route("/roles", func(r chi.Router) {
					r.With(h.RequirePermission(authz.GuardTeam, "list team roles")).Get("/", h.ListTeamRoles)
					r.With(h.RequirePermission(authz.GuardTeam, "create team role")).Post("/", h.CreateTeamRole)
					r.With(h.RequirePermission(authz.GuardTeam, "list team roles")).Get("/{roleID}", h.ShowTeamRole)
					r.With(h.RequirePermission(authz.GuardTeam, "update team role")).Put("/{roleID}", h.UpdateTeamRole)
					r.With(h.RequirePermission(authz.GuardTeam, "delete team role")).Delete("/{roleID}", h.DeleteTeamRole)
				})

				r.With(h.RequirePermission(authz.GuardTeam, "view team permissions")).
					Get("/permissions", h.TeamPermissionCatalog)

				r.Route("/members", func(r chi.Router) {
					r.With(h.RequirePermission(authz.GuardTeam, "list members")).Get("/", h.ListMembers)
					r.With(h.RequirePermission(authz.GuardTeam, "invite member")).Post("/", h.AddMember)
					r.With(h.RequirePermission(authz.GuardTeam, "remove member")).Delete("/{userID}", h.RemoveMember)
					r.With(h.RequirePermission(authz.GuardTeam, "manage team")).Put("/{userID}/roles", h.SyncMemberRoles)
				})
			})
		})

		// Operator plane
		r.Route("/super-admin", func(r chi.Router) {
			r.Post("/auth/login", h.SuperAdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.Authenticate)

				r.Route("/users", func(r chi.Router) {
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "list users")).Get("/", h.ListUsers)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "create user")).Post("/", h.CreateUser)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "show user")).Get("/{userID}", h.ShowUser)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "update user")).Put("/{userID}", h.UpdateUser)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "delete user")).Delete("/{userID}", h.DeleteUser)
				})

				r.Route("/teams", func(r chi.Router) {
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "list teams")).Get("/", h.ListTeams)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "create team")).Post("/", h.CreateTeam)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "show team")).Get("/{teamID}", h.ShowTeam)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "update team")).Put("/{teamID}", h.UpdateTeam)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "delete team")).Delete("/{teamID}", h.DeleteTeam)
				})

				r.Route("/roles", func(r chi.Router) {
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "list roles")).Get("/", h.ListRoles)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "create role")).Post("/", h.CreateRole)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "show role")).Get("/{roleID}", h.ShowRole)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "update role")).Put("/{roleID}", h.UpdateRole)
					r.With(h.RequirePermission(authz.GuardSuperAdmin, "delete role")).Delete("/{roleID}", h.DeleteRole)
				})

				r.With(h.RequirePermission(authz.GuardSuperAdmin, "view permissions")).
					Get("/permissions", h.PermissionCatalog)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "taskflow",
	})
}
