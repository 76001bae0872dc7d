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

package authz_test

import (
	"context"
	"sort"
	"sync"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/registry"
)

func sameTeam(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strptr(s string) *string { return &s }

// memRepo is an in-memory implementation of the permission, role and
// assignment repositories.
type memRepo struct {
	mu      sync.Mutex
	perms   map[string]*authz.Permission
	roles   map[string]*authz.Role
	grants  map[string][]string
	assigns []*authz.RoleAssignment
	directs []*authz.DirectGrant
	// failAll simulates store outage: every read returns this error.
	failAll error
}

func newMemRepo() *memRepo {
	return &memRepo{
		perms:  make(map[string]*authz.Permission),
		roles:  make(map[string]*authz.Role),
		grants: make(map[string][]string),
	}
}

// PermissionRepository

func (m *memRepo) Create(ctx context.Context, p *authz.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.perms[p.ID] = &cp
	return nil
}

func (m *memRepo) GetByName(ctx context.Context, guard authz.Guard, name string) (*authz.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	for _, p := range m.perms {
		if p.Guard == guard && p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, authz.ErrPermissionNotFound
}

func (m *memRepo) ListByGuard(ctx context.Context, guard authz.Guard) ([]*authz.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*authz.Permission
	for _, p := range m.perms {
		if p.Guard == guard {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) ListByIDs(ctx context.Context, ids []string) ([]*authz.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	var out []*authz.Permission
	for _, id := range ids {
		if p, ok := m.perms[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// RoleRepository

func (m *memRepo) CreateRole(ctx context.Context, r *authz.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Guard == r.Guard && existing.Name == r.Name && sameTeam(existing.TeamID, r.TeamID) {
			return authz.ErrDuplicateRole
		}
	}
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*authz.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	r, ok := m.roles[id]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) RoleByName(ctx context.Context, guard authz.Guard, teamID *string, name string) (*authz.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	for _, r := range m.roles {
		if r.Guard == guard && r.Name == name && sameTeam(r.TeamID, teamID) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, authz.ErrRoleNotFound
}

func (m *memRepo) ListRolesByIDs(ctx context.Context, ids []string) ([]*authz.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	var out []*authz.Role
	for _, id := range ids {
		if r, ok := m.roles[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) List(ctx context.Context, guard authz.Guard, teamID *string) ([]*authz.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*authz.Role
	for _, r := range m.roles {
		if r.Guard == guard && sameTeam(r.TeamID, teamID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) Rename(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return authz.ErrRoleNotFound
	}
	for _, existing := range m.roles {
		if existing.ID != id && existing.Guard == role.Guard && existing.Name == name && sameTeam(existing.TeamID, role.TeamID) {
			return authz.ErrDuplicateRole
		}
	}
	role.Name = name
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return authz.ErrRoleNotFound
	}
	delete(m.roles, id)
	delete(m.grants, id)
	kept := m.assigns[:0]
	for _, a := range m.assigns {
		if a.RoleID != id {
			kept = append(kept, a)
		}
	}
	m.assigns = kept
	return nil
}

func (m *memRepo) ReplaceGrants(ctx context.Context, roleID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

func (m *memRepo) GrantIDs(ctx context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	return append([]string(nil), m.grants[roleID]...), nil
}

// AssignmentRepository

func (m *memRepo) Assign(ctx context.Context, a *authz.RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assigns {
		if existing.Principal == a.Principal && existing.RoleID == a.RoleID && sameTeam(existing.TeamID, a.TeamID) {
			return nil
		}
	}
	cp := *a
	m.assigns = append(m.assigns, &cp)
	return nil
}

func (m *memRepo) Revoke(ctx context.Context, p authz.PrincipalRef, roleID string, teamID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assigns[:0]
	for _, a := range m.assigns {
		if a.Principal == p && a.RoleID == roleID && sameTeam(a.TeamID, teamID) {
			continue
		}
		kept = append(kept, a)
	}
	m.assigns = kept
	return nil
}

func (m *memRepo) RoleIDs(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	var out []string
	for _, a := range m.assigns {
		if a.Principal != p || !sameTeam(a.TeamID, teamID) {
			continue
		}
		role, ok := m.roles[a.RoleID]
		if ok && role.Guard == guard {
			out = append(out, a.RoleID)
		}
	}
	return out, nil
}

func (m *memRepo) ReplaceRoles(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string, roleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assigns[:0]
	for _, a := range m.assigns {
		role, ok := m.roles[a.RoleID]
		if a.Principal == p && sameTeam(a.TeamID, teamID) && ok && role.Guard == guard {
			continue
		}
		kept = append(kept, a)
	}
	m.assigns = kept
	for _, roleID := range roleIDs {
		m.assigns = append(m.assigns, &authz.RoleAssignment{Principal: p, RoleID: roleID, TeamID: teamID})
	}
	return nil
}

func (m *memRepo) GrantDirect(ctx context.Context, g *authz.DirectGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.directs = append(m.directs, &cp)
	return nil
}

func (m *memRepo) DirectPermissionIDs(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	var out []string
	for _, g := range m.directs {
		if g.Principal != p || !sameTeam(g.TeamID, teamID) {
			continue
		}
		perm, ok := m.perms[g.PermissionID]
		if ok && perm.Guard == guard {
			out = append(out, g.PermissionID)
		}
	}
	return out, nil
}

func (m *memRepo) ClearPrincipal(ctx context.Context, p authz.PrincipalRef, teamID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keptAssigns := m.assigns[:0]
	for _, a := range m.assigns {
		if a.Principal == p && sameTeam(a.TeamID, teamID) {
			continue
		}
		keptAssigns = append(keptAssigns, a)
	}
	m.assigns = keptAssigns
	keptDirects := m.directs[:0]
	for _, g := range m.directs {
		if g.Principal == p && sameTeam(g.TeamID, teamID) {
			continue
		}
		keptDirects = append(keptDirects, g)
	}
	m.directs = keptDirects
	return nil
}

// roleRepo adapts memRepo to authz.RoleRepository (Create and GetByName
// collide with the permission repository's method set).
type roleRepo struct{ *memRepo }

func (r roleRepo) Create(ctx context.Context, role *authz.Role) error {
	return r.CreateRole(ctx, role)
}

func (r roleRepo) GetByName(ctx context.Context, guard authz.Guard, teamID *string, name string) (*authz.Role, error) {
	return r.RoleByName(ctx, guard, teamID, name)
}

func (r roleRepo) ListByIDs(ctx context.Context, ids []string) ([]*authz.Role, error) {
	return r.ListRolesByIDs(ctx, ids)
}

// memTeams is an in-memory TeamDirectory.
type memTeams struct {
	owners map[string]string // teamID -> ownerID
}

func (m *memTeams) ListIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.owners))
	for id := range m.owners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memTeams) OwnerID(ctx context.Context, teamID string) (string, error) {
	owner, ok := m.owners[teamID]
	if !ok {
		return "", authz.ErrRoleNotFound
	}
	return owner, nil
}

// countingCache records invalidations; reads always miss.
type countingCache struct {
	authz.NopCache
	forgets []string
	flushes int
}

func (c *countingCache) Forget(ctx context.Context, guard authz.Guard, teamID *string) error {
	key := string(guard)
	if teamID != nil {
		key += ":" + *teamID
	}
	c.forgets = append(c.forgets, key)
	return nil
}

func (c *countingCache) FlushAll(ctx context.Context) error {
	c.flushes++
	return nil
}

// fixture wires a full authz stack over in-memory storage.
type fixture struct {
	repo     *memRepo
	teams    *memTeams
	cache    *countingCache
	store    *authz.Store
	resolver *authz.Resolver
	syncer   *authz.Syncer
}

func newFixture() *fixture {
	repo := newMemRepo()
	teams := &memTeams{owners: make(map[string]string)}
	cache := &countingCache{}
	reg := registry.Default()

	f := &fixture{
		repo:  repo,
		teams: teams,
		cache: cache,
	}
	f.store = authz.NewStore(reg, repo, roleRepo{repo}, repo, cache, audit.Nop{})
	f.resolver = authz.NewResolver(reg, repo, roleRepo{repo}, repo, teams, cache, nil)
	f.syncer = authz.NewSyncer(reg, repo, roleRepo{repo}, teams, cache, audit.Nop{})
	return f
}

// addTeam registers a team with its owner and instantiates the blueprint
// roles for it.
func (f *fixture) addTeam(ctx context.Context, teamID, ownerID string) {
	f.teams.owners[teamID] = ownerID
	if err := f.syncer.SyncTeam(ctx, teamID); err != nil {
		panic(err)
	}
}

func member(id string) authz.Principal {
	return authz.Principal{
		PrincipalRef: authz.PrincipalRef{Type: authz.PrincipalUser, ID: id},
		Guard:        authz.GuardTeam,
	}
}

func admin(id string) authz.Principal {
	return authz.Principal{
		PrincipalRef: authz.PrincipalRef{Type: authz.PrincipalSuperAdmin, ID: id},
		Guard:        authz.GuardSuperAdmin,
	}
}
