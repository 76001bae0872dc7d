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
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/identity"
	"github.com/taskflow/taskflow/internal/observability/logger"
)

// RegisterRequest represents registration data
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, token, err := h.identity.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.identityError(w, r, err, "register")
		return
	}

	respondData(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  userView(user),
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, token, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.identityError(w, r, err, "login")
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  userView(user),
	})
}

// Logout revokes the presented token
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	if err := h.identity.Logout(r.Context(), bearerToken(r)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		ActorID:   principal.ID,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	respondMessage(w, http.StatusOK, "logged out")
}

// Profile returns the authenticated user's account
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	user, err := h.identity.GetUser(r.Context(), principal.ID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondData(w, http.StatusOK, userView(user))
}

// UpdateProfileRequest carries optional profile changes
type UpdateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=255"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// UpdateProfile updates name and email of the authenticated user
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	var req UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := h.identity.UpdateProfile(r.Context(), principal.ID, req.Name, req.Email)
	if err != nil {
		h.identityError(w, r, err, "update_profile")
		return
	}
	respondData(w, http.StatusOK, userView(user))
}

// ChangePasswordRequest represents password change data
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// ChangePassword changes the password and revokes outstanding tokens
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	var req ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.identity.ChangePassword(r.Context(), principal.ID, req.OldPassword, req.NewPassword); err != nil {
		h.identityError(w, r, err, "change_password")
		return
	}
	respondMessage(w, http.StatusOK, "password changed")
}

// identityError maps identity errors onto HTTP statuses.
func (h *Handler) identityError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrWrongTeam):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, identity.ErrUserAlreadyExists):
		respondError(w, http.StatusConflict, "email already in use")
	case errors.Is(err, identity.ErrWeakPassword):
		respondError(w, http.StatusUnprocessableEntity, "password does not meet security requirements")
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	default:
		slog.ErrorContext(r.Context(), "identity operation failed",
			logger.Operation(op),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func userView(user *identity.User) map[string]any {
	view := map[string]any{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	}
	if user.TeamID != nil {
		view["team_id"] = *user.TeamID
	}
	return view
}
