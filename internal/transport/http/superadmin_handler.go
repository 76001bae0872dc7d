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
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskflow/taskflow/internal/authz"
)

// SuperAdminLogin authenticates a platform operator
func (h *Handler) SuperAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	admin, token, err := h.identity.SuperAdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.identityError(w, r, err, "super_admin_login")
		return
	}

	grants, err := h.resolver.EffectivePermissions(r.Context(), admin.Principal(), authz.GuardSuperAdmin, nil)
	if err != nil {
		h.authzError(w, r, err, "super_admin_login")
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":    admin.ID,
			"name":  admin.Name,
			"email": admin.Email,
		},
		"roles":       h.roleNames(r, admin.Principal().PrincipalRef, authz.GuardSuperAdmin, nil),
		"permissions": grants,
	})
}

// ListUsers lists end user accounts across all teams
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	users, err := h.identity.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.identityError(w, r, err, "list_users")
		return
	}

	views := make([]map[string]any, 0, len(users))
	for _, user := range users {
		views = append(views, userView(user))
	}
	respondData(w, http.StatusOK, map[string]any{"users": views})
}

// CreateUserRequest provisions an account, optionally inside a team
type CreateUserRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	TeamID   *string `json:"team_id" validate:"omitempty,uuid"`
}

// CreateUser provisions an end user account
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := h.identity.CreateUser(r.Context(), req.TeamID, req.Name, req.Email, req.Password)
	if err != nil {
		h.identityError(w, r, err, "create_user")
		return
	}
	respondData(w, http.StatusCreated, userView(user))
}

// ShowUser returns one user account
func (h *Handler) ShowUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.identityError(w, r, err, "show_user")
		return
	}
	respondData(w, http.StatusOK, userView(user))
}

// UpdateUser updates a user's profile fields
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := h.identity.UpdateProfile(r.Context(), chi.URLParam(r, "userID"), req.Name, req.Email)
	if err != nil {
		h.identityError(w, r, err, "update_user")
		return
	}
	respondData(w, http.StatusOK, userView(user))
}

// DeleteUser removes a user account and revokes its tokens
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.identityError(w, r, err, "delete_user")
		return
	}
	respondMessage(w, http.StatusOK, "user deleted")
}

// ListTeams lists teams
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	teams, err := h.teams.List(r.Context(), limit, offset)
	if err != nil {
		h.tenantError(w, r, err, "list_teams")
		return
	}

	views := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		views = append(views, teamView(team))
	}
	respondData(w, http.StatusOK, map[string]any{"teams": views})
}

// CreateTeamRequest provisions a team with its owner account
type CreateTeamRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	Slug          string `json:"slug" validate:"omitempty,max=255"`
	OwnerName     string `json:"owner_name" validate:"required,max=255"`
	OwnerEmail    string `json:"owner_email" validate:"required,email"`
	OwnerPassword string `json:"owner_password" validate:"required,min=8"`
}

// CreateTeam provisions a team, its owner account and its blueprint roles
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	team, owner, err := h.teams.Provision(r.Context(), req.Name, req.Slug, req.OwnerName, req.OwnerEmail, req.OwnerPassword)
	if err != nil {
		h.tenantError(w, r, err, "create_team")
		return
	}

	respondData(w, http.StatusCreated, map[string]any{
		"team":  teamView(team),
		"owner": owner,
	})
}

// ShowTeam returns one team
func (h *Handler) ShowTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.teams.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		h.tenantError(w, r, err, "show_team")
		return
	}
	respondData(w, http.StatusOK, teamView(team))
}

// UpdateTeamRequest carries optional team changes
type UpdateTeamRequest struct {
	Name *string `json:"name" validate:"omitempty,max=255"`
	Slug *string `json:"slug" validate:"omitempty,max=255"`
}

// UpdateTeam renames a team or changes its slug
func (h *Handler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req UpdateTeamRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	team, err := h.teams.Update(r.Context(), chi.URLParam(r, "teamID"), req.Name, req.Slug)
	if err != nil {
		h.tenantError(w, r, err, "update_team")
		return
	}
	respondData(w, http.StatusOK, teamView(team))
}

// DeleteTeam removes a team with all of its members, roles and grants
func (h *Handler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.teams.Delete(r.Context(), chi.URLParam(r, "teamID")); err != nil {
		h.tenantError(w, r, err, "delete_team")
		return
	}
	respondMessage(w, http.StatusOK, "team deleted")
}

// ListRoles lists roles under a guard, optionally scoped to one team
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	guard := authz.Guard(r.URL.Query().Get("guard"))
	if guard == "" {
		guard = authz.GuardSuperAdmin
	}
	var teamID *string
	if t := r.URL.Query().Get("team_id"); t != "" {
		teamID = &t
	}

	roles, err := h.store.ListRoles(r.Context(), guard, teamID)
	if err != nil {
		h.authzError(w, r, err, "list_roles")
		return
	}

	views := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView(role))
	}
	respondData(w, http.StatusOK, map[string]any{"roles": views})
}

// CreateRoleRequest creates a role under any guard
type CreateRoleRequest struct {
	Guard       string   `json:"guard" validate:"required,oneof=super_admin team"`
	TeamID      *string  `json:"team_id" validate:"omitempty,uuid"`
	Name        string   `json:"name" validate:"required,max=255"`
	Permissions []string `json:"permissions"`
}

// CreateRole creates a role under the requested guard
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	role, err := h.store.CreateRole(r.Context(), authz.Guard(req.Guard), req.TeamID, req.Name, req.Permissions)
	if err != nil {
		h.authzError(w, r, err, "create_role")
		return
	}
	respondData(w, http.StatusCreated, roleView(role))
}

// ShowRole returns one role with its permissions
func (h *Handler) ShowRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.store.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.authzError(w, r, err, "show_role")
		return
	}

	perms, err := h.store.RolePermissions(r.Context(), role.ID)
	if err != nil {
		h.authzError(w, r, err, "show_role")
		return
	}
	respondData(w, http.StatusOK, roleDetailView(role, perms))
}

// UpdateRole renames a role and replaces its permission grants
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateTeamRoleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	role, err := h.store.UpdateRole(r.Context(), chi.URLParam(r, "roleID"), req.Name, req.Permissions)
	if err != nil {
		h.authzError(w, r, err, "update_role")
		return
	}
	respondData(w, http.StatusOK, roleView(role))
}

// DeleteRole deletes a role; blueprint roles are refused
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		h.authzError(w, r, err, "delete_role")
		return
	}
	respondMessage(w, http.StatusOK, "role deleted")
}

// PermissionCatalog lists the permission vocabulary per guard
func (h *Handler) PermissionCatalog(w http.ResponseWriter, r *http.Request) {
	reg := h.store.Registry()
	if g := r.URL.Query().Get("guard"); g != "" {
		respondData(w, http.StatusOK, map[string]any{
			"permissions": catalogView(reg, authz.Guard(g)),
		})
		return
	}

	byGuard := make(map[string][]any)
	for _, guard := range reg.Guards() {
		infos := catalogView(reg, guard)
		entries := make([]any, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, info)
		}
		byGuard[string(guard)] = entries
	}
	respondData(w, http.StatusOK, map[string]any{"permissions": byGuard})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
