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

	"github.com/go-chi/chi/v5"

	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/identity"
	"github.com/taskflow/taskflow/internal/observability/logger"
	"github.com/taskflow/taskflow/internal/registry"
	"github.com/taskflow/taskflow/internal/tenant"
)

// TeamLogin authenticates a member of the team named by the slug header
func (h *Handler) TeamLogin(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())

	var req LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, token, err := h.identity.TeamLogin(r.Context(), team.ID, req.Email, req.Password)
	if err != nil {
		h.identityError(w, r, err, "team_login")
		return
	}

	grants, err := h.resolver.EffectivePermissions(r.Context(), user.Principal(), authz.GuardTeam, &team.ID)
	if err != nil {
		h.authzError(w, r, err, "team_login")
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"token":       token,
		"user":        userView(user),
		"team":        teamView(team),
		"roles":       h.roleNames(r, user.Principal().PrincipalRef, authz.GuardTeam, &team.ID),
		"permissions": grants,
	})
}

// roleNames lists the role names a principal holds; a lookup failure leaves
// the list empty rather than failing the login.
func (h *Handler) roleNames(r *http.Request, principal authz.PrincipalRef, guard authz.Guard, teamID *string) []string {
	roles, err := h.store.PrincipalRoles(r.Context(), principal, guard, teamID)
	if err != nil {
		slog.WarnContext(r.Context(), "principal role lookup failed",
			logger.Principal(principal.ID),
			logger.Error(err),
		)
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}

// TeamMe returns the authenticated member and their team
func (h *Handler) TeamMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	team, _ := TeamFrom(r.Context())

	user, err := h.identity.GetUser(r.Context(), principal.ID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"user": userView(user),
		"team": teamView(team),
	})
}

// TeamPermissions returns the member's effective permission grants inside
// the team, names paired with their stable codes
func (h *Handler) TeamPermissions(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	team, _ := TeamFrom(r.Context())

	grants, err := h.resolver.EffectivePermissions(r.Context(), principal, authz.GuardTeam, &team.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "effective permissions failed",
			logger.Principal(principal.ID),
			logger.TeamID(team.ID),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondData(w, http.StatusOK, map[string]any{"permissions": grants})
}

// ListTeamRoles lists the team's roles
func (h *Handler) ListTeamRoles(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())

	roles, err := h.store.ListRoles(r.Context(), authz.GuardTeam, &team.ID)
	if err != nil {
		h.authzError(w, r, err, "list_team_roles")
		return
	}

	views := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView(role))
	}
	respondData(w, http.StatusOK, map[string]any{"roles": views})
}

// RoleRequest creates or updates a role
type RoleRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Permissions []string `json:"permissions"`
}

// CreateTeamRole creates a custom role inside the team
func (h *Handler) CreateTeamRole(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	team, _ := TeamFrom(r.Context())

	var req RoleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	role, err := h.store.CreateRole(r.Context(), authz.GuardTeam, &team.ID, req.Name, req.Permissions)
	if err != nil {
		h.authzError(w, r, err, "create_team_role")
		return
	}

	slog.InfoContext(r.Context(), "team role created",
		logger.Principal(principal.ID),
		logger.TeamID(team.ID),
		logger.Role(role.Name),
	)
	respondData(w, http.StatusCreated, roleView(role))
}

// ShowTeamRole returns one team role with its permissions
func (h *Handler) ShowTeamRole(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())

	role, err := h.teamRole(r, team)
	if err != nil {
		respondError(w, http.StatusNotFound, "role not found")
		return
	}

	perms, err := h.store.RolePermissions(r.Context(), role.ID)
	if err != nil {
		h.authzError(w, r, err, "show_team_role")
		return
	}
	respondData(w, http.StatusOK, roleDetailView(role, perms))
}

// UpdateTeamRoleRequest renames a role and/or replaces its grants
type UpdateTeamRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=255"`
	Permissions []string `json:"permissions"`
}

// UpdateTeamRole renames a team role and replaces its permission grants
func (h *Handler) UpdateTeamRole(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())

	role, err := h.teamRole(r, team)
	if err != nil {
		respondError(w, http.StatusNotFound, "role not found")
		return
	}

	var req UpdateTeamRoleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	updated, err := h.store.UpdateRole(r.Context(), role.ID, req.Name, req.Permissions)
	if err != nil {
		h.authzError(w, r, err, "update_team_role")
		return
	}
	respondData(w, http.StatusOK, roleView(updated))
}

// DeleteTeamRole deletes a custom team role
func (h *Handler) DeleteTeamRole(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())

	role, err := h.teamRole(r, team)
	if err != nil {
		respondError(w, http.StatusNotFound, "role not found")
		return
	}

	if err := h.store.DeleteRole(r.Context(), role.ID); err != nil {
		h.authzError(w, r, err, "delete_team_role")
		return
	}
	respondMessage(w, http.StatusOK, "role deleted")
}

// TeamPermissionCatalog lists the permission vocabulary of the team guard
func (h *Handler) TeamPermissionCatalog(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]any{
		"permissions": catalogView(h.store.Registry(), authz.GuardTeam),
	})
}

// ListMembers lists the team's member accounts
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())

	members, err := h.teams.ListMembers(r.Context(), team.ID)
	if err != nil {
		h.tenantError(w, r, err, "list_members")
		return
	}
	respondData(w, http.StatusOK, map[string]any{"members": members})
}

// AddMemberRequest provisions a member account
type AddMemberRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,max=255"`
}

// AddMember provisions an account inside the team
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())

	var req AddMemberRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	member, err := h.teams.AddMember(r.Context(), team.ID, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, identity.ErrUserAlreadyExists) {
			respondError(w, http.StatusConflict, "email already in use")
			return
		}
		if errors.Is(err, identity.ErrWeakPassword) {
			respondError(w, http.StatusUnprocessableEntity, "password does not meet security requirements")
			return
		}
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusUnprocessableEntity, "unknown role")
			return
		}
		h.tenantError(w, r, err, "add_member")
		return
	}
	respondData(w, http.StatusCreated, member)
}

// RemoveMember removes a member account from the team
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	team, _ := TeamFrom(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := h.teams.RemoveMember(r.Context(), team.ID, userID); err != nil {
		h.tenantError(w, r, err, "remove_member")
		return
	}
	respondMessage(w, http.StatusOK, "member removed")
}

// SyncMemberRolesRequest replaces a member's role set
type SyncMemberRolesRequest struct {
	Roles []string `json:"roles" validate:"required"`
}

// SyncMemberRoles replaces the role set a member holds inside the team
func (h *Handler) SyncMemberRoles(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	team, _ := TeamFrom(r.Context())
	userID := chi.URLParam(r, "userID")

	user, err := h.identity.GetUser(r.Context(), userID)
	if err != nil || user.TeamID == nil || *user.TeamID != team.ID {
		respondError(w, http.StatusNotFound, "member not found")
		return
	}

	var req SyncMemberRolesRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	err = h.store.SyncRoles(r.Context(), user.Principal(), authz.GuardTeam, &team.ID, req.Roles, principal.ID)
	if err != nil {
		h.authzError(w, r, err, "sync_member_roles")
		return
	}
	respondMessage(w, http.StatusOK, "roles updated")
}

// teamRole loads the role named in the URL and checks it belongs to the
// team. Roles of other teams or guards are reported as missing, never as
// forbidden.
func (h *Handler) teamRole(r *http.Request, team *tenant.Team) (*authz.Role, error) {
	role, err := h.store.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		return nil, err
	}
	if role.Guard != authz.GuardTeam || role.TeamID == nil || *role.TeamID != team.ID {
		return nil, authz.ErrRoleNotFound
	}
	return role, nil
}

// authzError maps authz store errors onto HTTP statuses.
func (h *Handler) authzError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, authz.ErrRoleNotFound), errors.Is(err, authz.ErrPermissionNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, authz.ErrDuplicateRole):
		respondError(w, http.StatusConflict, "role already exists")
	case errors.Is(err, authz.ErrProtectedRole):
		respondError(w, http.StatusForbidden, "role is protected")
	case errors.Is(err, authz.ErrUnknownPermission):
		respondError(w, http.StatusUnprocessableEntity, "unknown permission")
	case errors.Is(err, authz.ErrGuardMismatch),
		errors.Is(err, authz.ErrTeamRequired),
		errors.Is(err, authz.ErrTeamNotAllowed):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "authz operation failed",
			logger.Operation(op),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// tenantError maps tenant errors onto HTTP statuses.
func (h *Handler) tenantError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, tenant.ErrTeamNotFound):
		respondError(w, http.StatusNotFound, "team not found")
	case errors.Is(err, tenant.ErrMemberNotFound):
		respondError(w, http.StatusNotFound, "member not found")
	case errors.Is(err, tenant.ErrOwnerRemoval):
		respondError(w, http.StatusForbidden, "the team owner cannot be removed")
	case errors.Is(err, tenant.ErrSlugTaken):
		respondError(w, http.StatusConflict, "slug already in use")
	default:
		slog.ErrorContext(r.Context(), "tenant operation failed",
			logger.Operation(op),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func teamView(team *tenant.Team) map[string]any {
	return map[string]any{
		"id":       team.ID,
		"name":     team.Name,
		"slug":     team.Slug,
		"owner_id": team.OwnerID,
	}
}

func roleView(role *authz.Role) map[string]any {
	view := map[string]any{
		"id":    role.ID,
		"name":  role.Name,
		"guard": string(role.Guard),
	}
	if role.TeamID != nil {
		view["team_id"] = *role.TeamID
	}
	return view
}

func roleDetailView(role *authz.Role, perms []*authz.Permission) map[string]any {
	view := roleView(role)
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	view["permissions"] = names
	return view
}

func catalogView(reg *registry.Registry, guard authz.Guard) []registry.PermissionInfo {
	names := reg.Permissions(guard)
	out := make([]registry.PermissionInfo, 0, len(names))
	for _, name := range names {
		out = append(out, reg.Describe(name))
	}
	return out
}
