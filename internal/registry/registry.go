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

// Package registry holds the canonical permission vocabulary.
//
// The registry is the single source of truth for which permission names
// exist, which guard each belongs to, the stable numeric code clients
// receive for each name, and the default role blueprints that the sync
// step reconciles into the store. It is built once at startup and is
// read-only afterwards; changing the vocabulary means redeploying and
// re-running sync.
package registry

import (
	"sort"
	"strings"
)

// Guard partitions the permission namespace. Identically named permissions
// under different guards never cross-satisfy.
type Guard string

const (
	// GuardSuperAdmin is the global administrator realm. Roles in this
	// guard are never team-scoped.
	GuardSuperAdmin Guard = "super_admin"

	// GuardTeam is the tenant realm. Roles in this guard always carry a
	// concrete team id.
	GuardTeam Guard = "team"
)

// GroupOther is the display group for permission names that carry no
// second token to derive a group from.
const GroupOther = "other"

// PermissionInfo describes one registered permission name.
type PermissionInfo struct {
	Name  string `json:"name"`
	Code  int    `json:"code"`
	Group string `json:"group"`
}

// RoleBlueprint names a default role and the permission names it carries.
type RoleBlueprint struct {
	Name        string
	Permissions []string
}

// GuardBucket is the slice of the registry belonging to one guard.
type GuardBucket struct {
	Guard       Guard
	Permissions []string
	Roles       []RoleBlueprint
	// Protected lists role names that must never be deleted through the
	// store; they are owned by the blueprint.
	Protected []string
}

// Registry is the immutable permission table.
type Registry struct {
	codes  map[string]int
	guards map[Guard]*GuardBucket
	order  []Guard
}

// New builds a registry from a code table and guard buckets. Buckets are
// kept in the order given, which sync follows.
func New(codes map[string]int, buckets ...GuardBucket) *Registry {
	r := &Registry{
		codes:  make(map[string]int, len(codes)),
		guards: make(map[Guard]*GuardBucket, len(buckets)),
	}
	for name, code := range codes {
		r.codes[name] = code
	}
	for i := range buckets {
		b := buckets[i]
		r.guards[b.Guard] = &b
		r.order = append(r.order, b.Guard)
	}
	return r
}

// Code returns the stable numeric code for a permission name.
func (r *Registry) Code(name string) (int, bool) {
	code, ok := r.codes[name]
	return code, ok
}

// Describe returns the full display record for a permission name. The code
// is taken from the code table; the group is derived from the name.
func (r *Registry) Describe(name string) PermissionInfo {
	code := r.codes[name]
	return PermissionInfo{Name: name, Code: code, Group: GroupOf(name)}
}

// GroupOf derives the display group from a permission name: the second
// whitespace-delimited token, or GroupOther when the name has no second
// token. Grouping is presentation only and never feeds a decision.
func GroupOf(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return GroupOther
	}
	return fields[1]
}

// Guards returns the guard names in declaration order.
func (r *Registry) Guards() []Guard {
	out := make([]Guard, len(r.order))
	copy(out, r.order)
	return out
}

// Bucket returns the guard bucket for a guard.
func (r *Registry) Bucket(guard Guard) (GuardBucket, bool) {
	b, ok := r.guards[guard]
	if !ok {
		return GuardBucket{}, false
	}
	return *b, true
}

// Permissions returns the permission names registered under a guard.
func (r *Registry) Permissions(guard Guard) []string {
	b, ok := r.guards[guard]
	if !ok {
		return nil
	}
	out := make([]string, len(b.Permissions))
	copy(out, b.Permissions)
	return out
}

// Registered reports whether a permission name exists under a guard.
func (r *Registry) Registered(guard Guard, name string) bool {
	b, ok := r.guards[guard]
	if !ok {
		return false
	}
	for _, p := range b.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// DefaultRoles returns the blueprint roles for a guard.
func (r *Registry) DefaultRoles(guard Guard) []RoleBlueprint {
	b, ok := r.guards[guard]
	if !ok {
		return nil
	}
	out := make([]RoleBlueprint, len(b.Roles))
	copy(out, b.Roles)
	return out
}

// Protected reports whether a role name is deletion-protected in a guard.
func (r *Registry) Protected(guard Guard, roleName string) bool {
	b, ok := r.guards[guard]
	if !ok {
		return false
	}
	for _, n := range b.Protected {
		if n == roleName {
			return true
		}
	}
	return false
}

// Groups returns the distinct display groups for a guard, sorted.
func (r *Registry) Groups(guard Guard) []string {
	b, ok := r.guards[guard]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	for _, p := range b.Permissions {
		seen[GroupOf(p)] = true
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
