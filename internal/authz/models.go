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

// Package authz implements team-scoped role-based access control: the
// role/permission store, the per-request team scope, the authorization
// resolver, and the registry sync step.
package authz

import (
	"context"
	"time"

	"github.com/taskflow/taskflow/internal/registry"
)

// Guard re-exports the registry guard type; authz and registry share the
// same namespace partitioning.
type Guard = registry.Guard

const (
	GuardSuperAdmin = registry.GuardSuperAdmin
	GuardTeam       = registry.GuardTeam
)

// PrincipalType identifies which identity table a principal comes from.
type PrincipalType string

const (
	// PrincipalUser is a team member (or an unattached end user).
	PrincipalUser PrincipalType = "user"

	// PrincipalSuperAdmin is a global administrator.
	PrincipalSuperAdmin PrincipalType = "super_admin"
)

// PrincipalRef is the persistence identity of a principal.
type PrincipalRef struct {
	Type PrincipalType
	ID   string
}

// Principal is an authenticated actor subject to authorization checks. The
// guard is fixed by the principal's identity type: super-admin users live in
// the super_admin guard, everything else in the team guard.
type Principal struct {
	PrincipalRef
	Guard Guard
}

// Permission is a persisted permission row. (Name, Guard) is globally
// unique; rows are created by sync and immutable afterwards.
type Permission struct {
	ID        string
	Name      string
	Guard     Guard
	CreatedAt time.Time
}

// Role is a persisted role. (Guard, TeamID, Name) is unique. TeamID is nil
// for guard-global roles (the super_admin guard has no team concept);
// team-guard roles always carry a concrete team id.
type Role struct {
	ID        string
	Name      string
	Guard     Guard
	TeamID    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleAssignment links a principal to a role. TeamID always equals the
// role's own TeamID; it is duplicated so assignment lookups filter by
// context without joining the role table.
type RoleAssignment struct {
	Principal PrincipalRef
	RoleID    string
	TeamID    *string
	GrantedAt time.Time
	GrantedBy string
}

// DirectGrant links a principal straight to a permission, bypassing roles.
type DirectGrant struct {
	Principal    PrincipalRef
	PermissionID string
	TeamID       *string
	GrantedAt    time.Time
	GrantedBy    string
}

// PermissionGrant is one entry of an effective permission set as exposed to
// clients: the semantic name plus its stable numeric code. Code is nil when
// the name has no registered code; codes are presentation only.
type PermissionGrant struct {
	Name string `json:"name"`
	Code *int   `json:"code"`
}

// PermissionRepository persists permission rows.
type PermissionRepository interface {
	Create(ctx context.Context, p *Permission) error
	GetByName(ctx context.Context, guard Guard, name string) (*Permission, error)
	ListByGuard(ctx context.Context, guard Guard) ([]*Permission, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Permission, error)
}

// RoleRepository persists roles and their permission grants. Create and
// Rename must enforce the (guard, team_id, name) uniqueness invariant at the
// store level and return ErrDuplicateRole on violation, so concurrent
// creation cannot produce duplicates.
type RoleRepository interface {
	Create(ctx context.Context, r *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, guard Guard, teamID *string, name string) (*Role, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Role, error)
	List(ctx context.Context, guard Guard, teamID *string) ([]*Role, error)
	Rename(ctx context.Context, id, name string) error
	// Delete removes the role and cascades its grants and assignments.
	Delete(ctx context.Context, id string) error
	// ReplaceGrants swaps the role's permission set for exactly
	// permissionIDs, atomically from the caller's point of view.
	ReplaceGrants(ctx context.Context, roleID string, permissionIDs []string) error
	GrantIDs(ctx context.Context, roleID string) ([]string, error)
}

// AssignmentRepository persists principal-role assignments and direct
// permission grants.
type AssignmentRepository interface {
	Assign(ctx context.Context, a *RoleAssignment) error
	Revoke(ctx context.Context, p PrincipalRef, roleID string, teamID *string) error
	// RoleIDs returns the ids of roles assigned to p under (guard, teamID).
	RoleIDs(ctx context.Context, p PrincipalRef, guard Guard, teamID *string) ([]string, error)
	// ReplaceRoles swaps the principal's whole role set for (guard, teamID).
	ReplaceRoles(ctx context.Context, p PrincipalRef, guard Guard, teamID *string, roleIDs []string) error
	GrantDirect(ctx context.Context, g *DirectGrant) error
	DirectPermissionIDs(ctx context.Context, p PrincipalRef, guard Guard, teamID *string) ([]string, error)
	// ClearPrincipal drops every assignment and direct grant the principal
	// holds under teamID.
	ClearPrincipal(ctx context.Context, p PrincipalRef, teamID *string) error
}

// TeamDirectory is the slice of tenant storage the resolver and sync need:
// which teams exist and who owns each. The core never resolves team slugs
// or headers itself.
type TeamDirectory interface {
	ListIDs(ctx context.Context) ([]string, error)
	OwnerID(ctx context.Context, teamID string) (string, error)
}
