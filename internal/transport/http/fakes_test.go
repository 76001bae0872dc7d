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

package http_test

import (
	"context"
	"sort"
	"sync"

	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/identity"
	"github.com/taskflow/taskflow/internal/tenant"
)

func sameTeam(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// memAuthzRepo backs the permission, role and assignment repositories with
// maps. Single instance serves all three interfaces.
type memAuthzRepo struct {
	mu      sync.Mutex
	perms   map[string]*authz.Permission
	roles   map[string]*authz.Role
	grants  map[string][]string
	assigns []*authz.RoleAssignment
	directs []*authz.DirectGrant
}

func newMemAuthzRepo() *memAuthzRepo {
	return &memAuthzRepo{
		perms:  make(map[string]*authz.Permission),
		roles:  make(map[string]*authz.Role),
		grants: make(map[string][]string),
	}
}

func (m *memAuthzRepo) Create(ctx context.Context, p *authz.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.perms[p.ID] = &cp
	return nil
}

func (m *memAuthzRepo) GetByName(ctx context.Context, guard authz.Guard, name string) (*authz.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.perms {
		if p.Guard == guard && p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, authz.ErrPermissionNotFound
}

func (m *memAuthzRepo) ListByGuard(ctx context.Context, guard authz.Guard) ([]*authz.Permission, error) {
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

func (m *memAuthzRepo) ListByIDs(ctx context.Context, ids []string) ([]*authz.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*authz.Permission
	for _, id := range ids {
		if p, ok := m.perms[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAuthzRepo) CreateRole(ctx context.Context, r *authz.Role) error {
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

func (m *memAuthzRepo) GetByID(ctx context.Context, id string) (*authz.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memAuthzRepo) RoleByName(ctx context.Context, guard authz.Guard, teamID *string, name string) (*authz.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Guard == guard && r.Name == name && sameTeam(r.TeamID, teamID) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, authz.ErrRoleNotFound
}

func (m *memAuthzRepo) ListRolesByIDs(ctx context.Context, ids []string) ([]*authz.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*authz.Role
	for _, id := range ids {
		if r, ok := m.roles[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAuthzRepo) List(ctx context.Context, guard authz.Guard, teamID *string) ([]*authz.Role, error) {
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

func (m *memAuthzRepo) Rename(ctx context.Context, id, name string) error {
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

func (m *memAuthzRepo) Delete(ctx context.Context, id string) error {
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

func (m *memAuthzRepo) ReplaceGrants(ctx context.Context, roleID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

func (m *memAuthzRepo) GrantIDs(ctx context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.grants[roleID]...), nil
}

func (m *memAuthzRepo) Assign(ctx context.Context, a *authz.RoleAssignment) error {
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

func (m *memAuthzRepo) Revoke(ctx context.Context, p authz.PrincipalRef, roleID string, teamID *string) error {
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

func (m *memAuthzRepo) RoleIDs(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memAuthzRepo) ReplaceRoles(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string, roleIDs []string) error {
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

func (m *memAuthzRepo) GrantDirect(ctx context.Context, g *authz.DirectGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.directs = append(m.directs, &cp)
	return nil
}

func (m *memAuthzRepo) DirectPermissionIDs(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memAuthzRepo) ClearPrincipal(ctx context.Context, p authz.PrincipalRef, teamID *string) error {
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

// roleRepo disambiguates the role repository's Create and GetByName from
// the permission repository's method set.
type roleRepo struct{ *memAuthzRepo }

func (r roleRepo) Create(ctx context.Context, role *authz.Role) error {
	return r.CreateRole(ctx, role)
}

func (r roleRepo) GetByName(ctx context.Context, guard authz.Guard, teamID *string, name string) (*authz.Role, error) {
	return r.RoleByName(ctx, guard, teamID, name)
}

func (r roleRepo) ListByIDs(ctx context.Context, ids []string) ([]*authz.Role, error) {
	return r.ListRolesByIDs(ctx, ids)
}

// memUserRepo implements identity.UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*identity.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*identity.User)}
}

func (m *memUserRepo) Create(ctx context.Context, user *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) GetByTeamEmail(ctx context.Context, teamID, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && u.TeamID != nil && *u.TeamID == teamID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) ListByTeam(ctx context.Context, teamID string) ([]*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.User
	for _, u := range m.users {
		if u.TeamID != nil && *u.TeamID == teamID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUserRepo) List(ctx context.Context, limit, offset int) ([]*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.User
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memUserRepo) Update(ctx context.Context, user *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return identity.ErrUserNotFound
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUserRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

// memSuperAdminRepo implements identity.SuperAdminRepository.
type memSuperAdminRepo struct {
	mu     sync.Mutex
	admins map[string]*identity.SuperAdminUser
}

func newMemSuperAdminRepo() *memSuperAdminRepo {
	return &memSuperAdminRepo{admins: make(map[string]*identity.SuperAdminUser)}
}

func (m *memSuperAdminRepo) Create(ctx context.Context, user *identity.SuperAdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.admins[user.ID] = &cp
	return nil
}

func (m *memSuperAdminRepo) GetByID(ctx context.Context, id string) (*identity.SuperAdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.admins[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memSuperAdminRepo) GetByEmail(ctx context.Context, email string) (*identity.SuperAdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.admins {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memSuperAdminRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.admins[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// memTokenRepo implements identity.TokenRepository.
type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*identity.AccessToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*identity.AccessToken)}
}

func (m *memTokenRepo) Create(ctx context.Context, token *identity.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.ID] = &cp
	return nil
}

func (m *memTokenRepo) Get(ctx context.Context, jti string) (*identity.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[jti]
	if !ok {
		return nil, identity.ErrTokenInvalid
	}
	cp := *t
	return &cp, nil
}

func (m *memTokenRepo) Delete(ctx context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, jti)
	return nil
}

func (m *memTokenRepo) DeleteByPrincipal(ctx context.Context, principal authz.PrincipalRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for jti, t := range m.tokens {
		if t.Principal == principal {
			delete(m.tokens, jti)
		}
	}
	return nil
}

// memTeamRepo implements tenant.Repository.
type memTeamRepo struct {
	mu    sync.Mutex
	teams map[string]*tenant.Team
}

func newMemTeamRepo() *memTeamRepo {
	return &memTeamRepo{teams: make(map[string]*tenant.Team)}
}

func (m *memTeamRepo) Create(ctx context.Context, team *tenant.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *team
	m.teams[team.ID] = &cp
	return nil
}

func (m *memTeamRepo) GetByID(ctx context.Context, id string) (*tenant.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, tenant.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTeamRepo) GetBySlug(ctx context.Context, slug string) (*tenant.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teams {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tenant.ErrTeamNotFound
}

func (m *memTeamRepo) Update(ctx context.Context, team *tenant.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[team.ID]; !ok {
		return tenant.ErrTeamNotFound
	}
	cp := *team
	m.teams[team.ID] = &cp
	return nil
}

func (m *memTeamRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[id]; !ok {
		return tenant.ErrTeamNotFound
	}
	delete(m.teams, id)
	return nil
}

func (m *memTeamRepo) List(ctx context.Context, limit, offset int) ([]*tenant.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*tenant.Team
	for _, t := range m.teams {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *memTeamRepo) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.teams))
	for tid := range m.teams {
		ids = append(ids, tid)
	}
	sort.Strings(ids)
	return ids, nil
}
