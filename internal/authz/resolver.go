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
	"log/slog"
	"sort"

	"github.com/taskflow/taskflow/internal/registry"
)

// DecisionMetrics counts authorization outcomes. Implemented by the
// observability layer; nil disables counting.
type DecisionMetrics interface {
	Decision(ctx context.Context, guard Guard, allowed bool)
}

// Resolver computes effective permission sets and yes/no decisions.
//
// Order of evaluation is fixed: the super-admin bypass runs before any
// team-scoped lookup and cannot be affected by the ambient team scope;
// guard mismatch denies before any store access; the team owner shortcut
// grants the full team set without consulting assignments; only then are
// role and direct grants resolved. A store failure denies; permission
// checks never fail open.
type Resolver struct {
	registry *registry.Registry
	perms    PermissionRepository
	roles    RoleRepository
	assigns  AssignmentRepository
	teams    TeamDirectory
	cache    PermissionCache
	metrics  DecisionMetrics
}

// NewResolver creates a resolver. cache and metrics may be nil.
func NewResolver(
	reg *registry.Registry,
	perms PermissionRepository,
	roles RoleRepository,
	assigns AssignmentRepository,
	teams TeamDirectory,
	cache PermissionCache,
	metrics DecisionMetrics,
) *Resolver {
	if cache == nil {
		cache = NopCache{}
	}
	return &Resolver{
		registry: reg,
		perms:    perms,
		roles:    roles,
		assigns:  assigns,
		teams:    teams,
		cache:    cache,
		metrics:  metrics,
	}
}

// Can reports whether the principal holds the permission under guard. A
// nil teamID falls back to the request's ambient team scope. Denial is a
// normal outcome, never an error; store failures surface as denial.
func (r *Resolver) Can(ctx context.Context, principal Principal, guard Guard, permission string, teamID *string) bool {
	allowed := r.can(ctx, principal, guard, permission, teamID)
	if r.metrics != nil {
		r.metrics.Decision(ctx, guard, allowed)
	}
	return allowed
}

func (r *Resolver) can(ctx context.Context, principal Principal, guard Guard, permission string, teamID *string) bool {
	// Global bypass, before anything team-scoped.
	if guard == GuardSuperAdmin && r.isSuperAdmin(ctx, principal) {
		return true
	}

	if guard != principal.Guard {
		return false
	}

	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
		if r.ownsTeam(ctx, principal, teamID) {
			return r.registry.Registered(guard, permission)
		}
	}

	grants, err := r.resolveGrants(ctx, principal, guard, teamID)
	if err != nil {
		slog.WarnContext(ctx, "permission resolution failed, denying",
			slog.String("guard", string(guard)),
			slog.String("permission", permission),
			slog.String("error", err.Error()),
		)
		return false
	}
	for _, g := range grants {
		if g.Name == permission {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the principal's full permission set for
// (guard, teamID) as name/code pairs. Unregistered names pass through with
// a nil code.
func (r *Resolver) EffectivePermissions(ctx context.Context, principal Principal, guard Guard, teamID *string) ([]PermissionGrant, error) {
	if guard == GuardSuperAdmin && r.isSuperAdmin(ctx, principal) {
		return r.fullGuardSet(guard), nil
	}

	if guard != principal.Guard {
		return nil, nil
	}

	if guard == GuardTeam {
		teamID = resolveTeam(ctx, teamID)
		if r.ownsTeam(ctx, principal, teamID) {
			return r.fullGuardSet(guard), nil
		}
	}

	return r.resolveGrants(ctx, principal, guard, teamID)
}

// isSuperAdmin reports whether the principal holds the top-level
// administrator role of the super_admin guard. Lookup failures deny.
func (r *Resolver) isSuperAdmin(ctx context.Context, principal Principal) bool {
	if principal.Guard != GuardSuperAdmin {
		return false
	}
	roleIDs, err := r.assigns.RoleIDs(ctx, principal.PrincipalRef, GuardSuperAdmin, nil)
	if err != nil || len(roleIDs) == 0 {
		return false
	}
	roles, err := r.roles.ListByIDs(ctx, roleIDs)
	if err != nil {
		return false
	}
	for _, role := range roles {
		if role.Name == registry.RoleSuperAdmin {
			return true
		}
	}
	return false
}

// ownsTeam reports whether the principal is the owner of teamID. Owners
// hold the full team-guard set implicitly, with zero role assignments.
func (r *Resolver) ownsTeam(ctx context.Context, principal Principal, teamID *string) bool {
	if teamID == nil || principal.Type != PrincipalUser {
		return false
	}
	ownerID, err := r.teams.OwnerID(ctx, *teamID)
	if err != nil {
		return false
	}
	return ownerID == principal.ID
}

func (r *Resolver) fullGuardSet(guard Guard) []PermissionGrant {
	names := r.registry.Permissions(guard)
	grants := make([]PermissionGrant, 0, len(names))
	for _, name := range names {
		grants = append(grants, r.toGrant(name))
	}
	return grants
}

func (r *Resolver) resolveGrants(ctx context.Context, principal Principal, guard Guard, teamID *string) ([]PermissionGrant, error) {
	key := string(principal.Type) + ":" + principal.ID
	return r.cache.Remember(ctx, guard, teamID, key, func(ctx context.Context) ([]PermissionGrant, error) {
		return r.loadGrants(ctx, principal.PrincipalRef, guard, teamID)
	})
}

func (r *Resolver) loadGrants(ctx context.Context, principal PrincipalRef, guard Guard, teamID *string) ([]PermissionGrant, error) {
	roleIDs, err := r.assigns.RoleIDs(ctx, principal, guard, teamID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var permIDs []string
	for _, roleID := range roleIDs {
		ids, err := r.roles.GrantIDs(ctx, roleID)
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

	directIDs, err := r.assigns.DirectPermissionIDs(ctx, principal, guard, teamID)
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
		return []PermissionGrant{}, nil
	}
	perms, err := r.perms.ListByIDs(ctx, permIDs)
	if err != nil {
		return nil, err
	}

	grants := make([]PermissionGrant, 0, len(perms))
	for _, p := range perms {
		grants = append(grants, r.toGrant(p.Name))
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Name < grants[j].Name })
	return grants, nil
}

// toGrant translates a name to its client-facing form. Names without a
// registered code keep a nil code rather than failing: codes are a
// presentation convenience, not an authorization dependency.
func (r *Resolver) toGrant(name string) PermissionGrant {
	if code, ok := r.registry.Code(name); ok {
		return PermissionGrant{Name: name, Code: &code}
	}
	return PermissionGrant{Name: name}
}
