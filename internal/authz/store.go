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

package authz

import (
	"context"
	"fmt"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/id"
	"github.com/taskflow/taskflow/internal/registry"
)

// Store provides role and permission mutation logic on top of the
// repositories. Every mutation invalidates the permission cache for the
// affected (guard, team) bucket before returning, so callers never observe
// stale permissions after a successful call.
type Store struct {
	registry    *registry.Registry
	perms       PermissionRepository
	roles       RoleRepository
	assigns     AssignmentRepository
	cache       PermissionCache
	auditLogger audit.Logger
}

// NewStore creates a new role/permission store service.
func NewStore(
	reg *registry.Registry,
	perms PermissionRepository,
	roles RoleRepository,
	assigns AssignmentRepository,
	cache PermissionCache,
	auditLogger audit.Logger,
) *Store {
	if cache == nil {
		cache = NopCache{}
	}
	return &Store{
		registry:    reg,
		perms:       perms,
		roles:       roles,
		assigns:     assigns,
		cache:       cache,
		auditLogger: auditLogger,
	}
}

// Registry exposes the static permission registry backing this store.
func (s *Store) Registry() *registry.Registry {
	return s.registry
}

// CreateRole creates a role under (guard, teamID) carrying the given
// permission names. For the team guard a nil teamID falls back to the
// request's ambient scope; a still-missing team id is rejected.
func (s *Store) CreateRole(ctx context.Context, guard Guard, teamID *string, name string, permissionNames []string) (*Role, error) {
	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
	}
	if err := validateTeamScope(guard, teamID); err != nil {
		return nil, err
	}

	permIDs, err := s.resolvePermissionIDs(ctx, guard, permissionNames)
	if err != nil {
		return nil, err
	}

	role := &Role{
		ID:     id.NewUUIDv7(),
		Name:   name,
		Guard:  guard,
		TeamID: teamID,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}
	if len(permIDs) > 0 {
		if err := s.roles.ReplaceGrants(ctx, role.ID, permIDs); err != nil {
			return nil, fmt.Errorf("grant permissions to role %q: %w", name, err)
		}
	}

	if err := s.forgetBucket(ctx, role); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleCreated,
		TeamID:   teamString(role.TeamID),
		Resource: role.Name,
		Metadata: map[string]any{
			audit.AttrGuard:       string(guard),
			audit.AttrPermissions: permissionNames,
		},
	})
	return role, nil
}

// UpdateRole renames a role and/or fully replaces its permission grants.
// A nil newName keeps the name; a nil permissionNames slice keeps the
// grants, while an empty non-nil slice clears them. Roles on the guard's
// protected list keep their name; a renamed copy would slip past the
// deletion guard while its assignments drift from the blueprint.
func (s *Store) UpdateRole(ctx context.Context, roleID string, newName *string, permissionNames []string) (*Role, error) {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	if newName != nil && *newName != role.Name {
		if s.registry.Protected(role.Guard, role.Name) {
			return nil, fmt.Errorf("rename role %q: %w", role.Name, ErrProtectedRole)
		}
		if err := s.roles.Rename(ctx, role.ID, *newName); err != nil {
			return nil, fmt.Errorf("rename role %q: %w", role.Name, err)
		}
		role.Name = *newName
	}

	if permissionNames != nil {
		permIDs, err := s.resolvePermissionIDs(ctx, role.Guard, permissionNames)
		if err != nil {
			return nil, err
		}
		if err := s.roles.ReplaceGrants(ctx, role.ID, permIDs); err != nil {
			return nil, fmt.Errorf("replace grants of role %q: %w", role.Name, err)
		}
	}

	if err := s.forgetBucket(ctx, role); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleUpdated,
		TeamID:   teamString(role.TeamID),
		Resource: role.Name,
		Metadata: map[string]any{
			audit.AttrGuard:       string(role.Guard),
			audit.AttrPermissions: permissionNames,
		},
	})
	return role, nil
}

// DeleteRole removes a role and cascades its grants and assignments. Roles
// whose name is on the guard's protected list are refused untouched.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if s.registry.Protected(role.Guard, role.Name) {
		return fmt.Errorf("delete role %q: %w", role.Name, ErrProtectedRole)
	}

	if err := s.roles.Delete(ctx, role.ID); err != nil {
		return fmt.Errorf("delete role %q: %w", role.Name, err)
	}
	if err := s.forgetBucket(ctx, role); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleDeleted,
		TeamID:   teamString(role.TeamID),
		Resource: role.Name,
		Metadata: map[string]any{audit.AttrGuard: string(role.Guard)},
	})
	return nil
}

// AssignRole grants a role to a principal. The assignment inherits the
// role's own team id, keeping both in lockstep by construction.
func (s *Store) AssignRole(ctx context.Context, principal Principal, roleID, grantedBy string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Guard != principal.Guard {
		return fmt.Errorf("assign role %q (%s guard) to %s principal: %w",
			role.Name, role.Guard, principal.Guard, ErrGuardMismatch)
	}

	a := &RoleAssignment{
		Principal: principal.PrincipalRef,
		RoleID:    role.ID,
		TeamID:    role.TeamID,
		GrantedBy: grantedBy,
	}
	if err := s.assigns.Assign(ctx, a); err != nil {
		return fmt.Errorf("assign role %q: %w", role.Name, err)
	}
	if err := s.forgetBucket(ctx, role); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		TeamID:   teamString(role.TeamID),
		ActorID:  grantedBy,
		Resource: role.Name,
		Metadata: map[string]any{
			audit.AttrGuard: string(role.Guard),
			"principal":     string(principal.Type) + ":" + principal.ID,
		},
	})
	return nil
}

// SyncRoles replaces the principal's entire role set for (guard, teamID)
// with exactly the named roles.
func (s *Store) SyncRoles(ctx context.Context, principal Principal, guard Guard, teamID *string, roleNames []string, grantedBy string) error {
	if guard != principal.Guard {
		return fmt.Errorf("sync %s-guard roles for %s principal: %w", guard, principal.Guard, ErrGuardMismatch)
	}
	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
	}
	if err := validateTeamScope(guard, teamID); err != nil {
		return err
	}

	roleIDs := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := s.roles.GetByName(ctx, guard, teamID, name)
		if err != nil {
			return fmt.Errorf("sync roles: %q: %w", name, err)
		}
		roleIDs = append(roleIDs, role.ID)
	}

	if err := s.assigns.ReplaceRoles(ctx, principal.PrincipalRef, guard, teamID, roleIDs); err != nil {
		return fmt.Errorf("sync roles: %w", err)
	}
	if err := s.forgetGuard(ctx, guard, teamID); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeRolesSynced,
		TeamID:  teamString(teamID),
		ActorID: grantedBy,
		Metadata: map[string]any{
			audit.AttrGuard: string(guard),
			audit.AttrRole:  roleNames,
			"principal":     string(principal.Type) + ":" + principal.ID,
		},
	})
	return nil
}

// GrantPermission attaches a permission directly to a principal, bypassing
// roles.
func (s *Store) GrantPermission(ctx context.Context, principal Principal, guard Guard, teamID *string, permissionName, grantedBy string) error {
	if guard != principal.Guard {
		return fmt.Errorf("grant %s-guard permission to %s principal: %w", guard, principal.Guard, ErrGuardMismatch)
	}
	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
	}
	if err := validateTeamScope(guard, teamID); err != nil {
		return err
	}

	permIDs, err := s.resolvePermissionIDs(ctx, guard, []string{permissionName})
	if err != nil {
		return err
	}

	g := &DirectGrant{
		Principal:    principal.PrincipalRef,
		PermissionID: permIDs[0],
		TeamID:       teamID,
		GrantedBy:    grantedBy,
	}
	if err := s.assigns.GrantDirect(ctx, g); err != nil {
		return fmt.Errorf("grant permission %q: %w", permissionName, err)
	}
	if err := s.forgetGuard(ctx, guard, teamID); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionGranted,
		TeamID:   teamString(teamID),
		ActorID:  grantedBy,
		Resource: permissionName,
		Metadata: map[string]any{audit.AttrGuard: string(guard)},
	})
	return nil
}

// ClearPrincipal drops every role assignment and direct grant a principal
// holds under teamID; used when a member leaves a team.
func (s *Store) ClearPrincipal(ctx context.Context, principal Principal, teamID *string) error {
	if err := s.assigns.ClearPrincipal(ctx, principal.PrincipalRef, teamID); err != nil {
		return fmt.Errorf("clear principal roles: %w", err)
	}
	return s.forgetGuard(ctx, principal.Guard, teamID)
}

// GetRole returns a role by id.
func (s *Store) GetRole(ctx context.Context, roleID string) (*Role, error) {
	return s.roles.GetByID(ctx, roleID)
}

// ListRoles lists the roles defined under (guard, teamID). For the team
// guard a nil teamID falls back to the ambient scope.
func (s *Store) ListRoles(ctx context.Context, guard Guard, teamID *string) ([]*Role, error) {
	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
	}
	return s.roles.List(ctx, guard, teamID)
}

// PrincipalRoles lists the roles assigned to a principal under
// (guard, teamID).
func (s *Store) PrincipalRoles(ctx context.Context, principal PrincipalRef, guard Guard, teamID *string) ([]*Role, error) {
	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
	}
	roleIDs, err := s.assigns.RoleIDs(ctx, principal, guard, teamID)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return s.roles.ListByIDs(ctx, roleIDs)
}

// RolePermissions returns the permission rows granted to a role.
func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]*Permission, error) {
	ids, err := s.roles.GrantIDs(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.perms.ListByIDs(ctx, ids)
}

// ListPermissions returns the union of role-derived and directly granted
// permissions a principal holds under (guard, teamID), deduplicated by
// permission id.
func (s *Store) ListPermissions(ctx context.Context, principal PrincipalRef, guard Guard, teamID *string) ([]*Permission, error) {
	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
	}

	roleIDs, err := s.assigns.RoleIDs(ctx, principal, guard, teamID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var permIDs []string
	for _, roleID := range roleIDs {
		ids, err := s.roles.GrantIDs(ctx, roleID)
		if err != nil {
			return nil, err
		}
		for _, pid := range ids {
			if !seen[pid] {
				seen[pid] = true
				permIDs = append(permIDs, pid)
			}
		}
	}

	directIDs, err := s.assigns.DirectPermissionIDs(ctx, principal, guard, teamID)
	if err != nil {
		return nil, err
	}
	for _, pid := range directIDs {
		if !seen[pid] {
			seen[pid] = true
			permIDs = append(permIDs, pid)
		}
	}

	if len(permIDs) == 0 {
		return nil, nil
	}
	return s.perms.ListByIDs(ctx, permIDs)
}

func (s *Store) resolvePermissionIDs(ctx context.Context, guard Guard, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if !s.registry.Registered(guard, name) {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownPermission)
		}
		perm, err := s.perms.GetByName(ctx, guard, name)
		if err != nil {
			return nil, fmt.Errorf("resolve permission %q: %w", name, err)
		}
		ids = append(ids, perm.ID)
	}
	return ids, nil
}

// forgetBucket invalidates the cache bucket a role belongs to: team-guard
// roles hit their team's bucket, guard-global roles flush everything.
func (s *Store) forgetBucket(ctx context.Context, role *Role) error {
	return s.forgetGuard(ctx, role.Guard, role.TeamID)
}

func (s *Store) forgetGuard(ctx context.Context, guard Guard, teamID *string) error {
	if guard == GuardTeam && teamID != nil {
		return s.cache.Forget(ctx, guard, teamID)
	}
	return s.cache.FlushAll(ctx)
}

func validateTeamScope(guard Guard, teamID *string) error {
	switch guard {
	case GuardTeam:
		if teamID == nil {
			return ErrTeamRequired
		}
	default:
		if teamID != nil {
			return ErrTeamNotAllowed
		}
	}
	return nil
}

func teamString(teamID *string) string {
	if teamID == nil {
		return ""
	}
	return *teamID
}
