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

package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/observability/logger"
)

// TeamHeader carries the team slug that scopes team-plane requests. The
// header names a team; it never names a privilege. Whether the caller may
// act inside that team is decided by membership plus the resolver.
const TeamHeader = "X-Team-Slug"

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// SecureHeaders sets browser hardening headers on every response.
func SecureHeaders() func(next http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	})
	return sec.Handler
}

// Authenticate validates the bearer token and installs the principal on the
// request context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		principal, err := h.tokens.Verify(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// ResolveTeam resolves the team slug header into a team and installs it on
// the context. Requests without the header are rejected before any lookup.
func (h *Handler) ResolveTeam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := strings.TrimSpace(r.Header.Get(TeamHeader))
		if slug == "" {
			respondError(w, http.StatusUnprocessableEntity, TeamHeader+" header is required")
			return
		}

		team, err := h.teams.GetBySlug(r.Context(), slug)
		if err != nil {
			respondError(w, http.StatusNotFound, "team not found")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTeam(r.Context(), team)))
	})
}

// VerifyMembership requires the authenticated principal to be an account of
// the resolved team, then installs the ambient team scope that downstream
// authorization checks fall back to. Runs after Authenticate and ResolveTeam.
func (h *Handler) VerifyMembership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFrom(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		team, ok := TeamFrom(r.Context())
		if !ok {
			respondError(w, http.StatusUnprocessableEntity, TeamHeader+" header is required")
			return
		}

		if principal.Type != authz.PrincipalUser {
			respondError(w, http.StatusForbidden, "not a member of this team")
			return
		}
		user, err := h.identity.GetUser(r.Context(), principal.ID)
		if err != nil || user.TeamID == nil || *user.TeamID != team.ID {
			slog.WarnContext(r.Context(), "team access denied",
				logger.Principal(principal.ID),
				logger.TeamID(team.ID),
			)
			respondError(w, http.StatusForbidden, "not a member of this team")
			return
		}

		scope := authz.NewTeamScope()
		scope.Set(&team.ID)
		next.ServeHTTP(w, r.WithContext(authz.WithScope(r.Context(), scope)))
	})
}

// RequirePermission gates a route on one permission. Denials are logged but
// never explained to the caller beyond the status code.
func (h *Handler) RequirePermission(guard authz.Guard, permission string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			if !h.resolver.Can(r.Context(), principal, guard, permission, nil) {
				slog.WarnContext(r.Context(), "permission denied",
					logger.Principal(principal.ID),
					logger.Guard(string(guard)),
					logger.Permission(permission),
				)
				respondError(w, http.StatusForbidden, "permission denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
