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

package tenant

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/id"
	"github.com/taskflow/taskflow/internal/registry"
)

type memTeamRepo struct {
	teams map[string]*Team
}

func newMemTeamRepo() *memTeamRepo {
	return &memTeamRepo{teams: make(map[string]*Team)}
}

func (m *memTeamRepo) Create(ctx context.Context, team *Team) error {
	cp := *team
	m.teams[team.ID] = &cp
	return nil
}

func (m *memTeamRepo) GetByID(ctx context.Context, id string) (*Team, error) {
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTeamRepo) GetBySlug(ctx context.Context, slug string) (*Team, error) {
	for _, t := range m.teams {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTeamNotFound
}

func (m *memTeamRepo) Update(ctx context.Context, team *Team) error {
	if _, ok := m.teams[team.ID]; !ok {
		return ErrTeamNotFound
	}
	cp := *team
	m.teams[team.ID] = &cp
	return nil
}

func (m *memTeamRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.teams[id]; !ok {
		return ErrTeamNotFound
	}
	delete(m.teams, id)
	return nil
}

func (m *memTeamRepo) List(ctx context.Context, limit, offset int) ([]*Team, error) {
	var out []*Team
	for _, t := range m.teams {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *memTeamRepo) ListIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.teams))
	for tid := range m.teams {
		ids = append(ids, tid)
	}
	sort.Strings(ids)
	return ids, nil
}

type memUsers struct {
	members   map[string]*Member
	teamOf    map[string]string
	revoked   []string
	createErr error
}

func newMemUsers() *memUsers {
	return &memUsers{
		members: make(map[string]*Member),
		teamOf:  make(map[string]string),
	}
}

func (m *memUsers) CreateUser(ctx context.Context, teamID *string, name, email, password string) (*Member, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	member := &Member{ID: id.NewUUIDv7(), Name: name, Email: email, TeamID: teamID}
	m.members[member.ID] = member
	if teamID != nil {
		m.teamOf[member.ID] = *teamID
	}
	return member, nil
}

func (m *memUsers) GetMember(ctx context.Context, userID string) (*Member, error) {
	member, ok := m.members[userID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

func (m *memUsers) ListByTeam(ctx context.Context, teamID string) ([]*Member, error) {
	var out []*Member
	for uid, tid := range m.teamOf {
		if tid == teamID {
			out = append(out, m.members[uid])
		}
	}
	return out, nil
}

func (m *memUsers) DeleteUser(ctx context.Context, userID string) error {
	delete(m.members, userID)
	delete(m.teamOf, userID)
	return nil
}

func (m *memUsers) RevokeTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

type fakeRoles struct {
	synced []string
	err    error
}

func (f *fakeRoles) SyncTeam(ctx context.Context, teamID string) error {
	if f.err != nil {
		return f.err
	}
	f.synced = append(f.synced, teamID)
	return nil
}

type assignCall struct {
	principalID string
	teamID      string
	roles       []string
}

type fakeAssigner struct {
	syncs   []assignCall
	cleared []assignCall
}

func (f *fakeAssigner) SyncRoles(ctx context.Context, principal authz.Principal, guard authz.Guard, teamID *string, roleNames []string, grantedBy string) error {
	f.syncs = append(f.syncs, assignCall{principalID: principal.ID, teamID: *teamID, roles: roleNames})
	return nil
}

func (f *fakeAssigner) ClearPrincipal(ctx context.Context, principal authz.Principal, teamID *string) error {
	f.cleared = append(f.cleared, assignCall{principalID: principal.ID, teamID: *teamID})
	return nil
}

type forgetCache struct {
	authz.NopCache
	forgotten []string
}

func (c *forgetCache) Forget(ctx context.Context, guard authz.Guard, teamID *string) error {
	c.forgotten = append(c.forgotten, *teamID)
	return nil
}

type tenantFixture struct {
	repo     *memTeamRepo
	users    *memUsers
	roles    *fakeRoles
	assigner *fakeAssigner
	cache    *forgetCache
	svc      *Service
}

func newTenantFixture() *tenantFixture {
	f := &tenantFixture{
		repo:     newMemTeamRepo(),
		users:    newMemUsers(),
		roles:    &fakeRoles{},
		assigner: &fakeAssigner{},
		cache:    &forgetCache{},
	}
	f.svc = NewService(f.repo, f.users, f.assigner, f.roles, f.cache, audit.Nop{})
	return f
}

func TestProvisionCreatesTeamOwnerAndRoles(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	team, owner, err := f.svc.Provision(ctx, "Acme Inc", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "acme", team.Slug)
	assert.Equal(t, owner.ID, team.OwnerID)

	stored, err := f.repo.GetByID(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, stored.OwnerID)
	assert.Equal(t, []string{team.ID}, f.roles.synced)
}

func TestProvisionGeneratesSlug(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	team, _, err := f.svc.Provision(ctx, "Acme Inc", "", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)
	assert.Regexp(t, `^acme-inc-[0-9a-f]{8}$`, team.Slug)
}

func TestProvisionRollsBackOnOwnerFailure(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()
	f.users.createErr = errors.New("account store unavailable")

	_, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.Error(t, err)

	teams, err := f.repo.List(ctx, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, teams, "failed provisioning must not leave a team behind")

	// The slug is free again for a retry.
	f.users.createErr = nil
	_, _, err = f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	assert.NoError(t, err)
}

func TestProvisionRollsBackOnRoleSyncFailure(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()
	f.roles.err = errors.New("role store unavailable")

	_, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.Error(t, err)

	teams, err := f.repo.List(ctx, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, teams)
	assert.Empty(t, f.users.members, "the orphaned owner account is removed with the team")
}

func TestProvisionRejectsTakenSlug(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	_, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)
	_, _, err = f.svc.Provision(ctx, "Other", "acme", "Bob", "bob@other.test", "secret")
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestUpdateRejectsSlugCollision(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	first, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)
	second, _, err := f.svc.Provision(ctx, "Beta", "beta", "Bob", "bob@beta.test", "secret")
	require.NoError(t, err)

	slug := "acme"
	_, err = f.svc.Update(ctx, second.ID, nil, &slug)
	assert.ErrorIs(t, err, ErrSlugTaken)

	// Re-submitting a team's own slug is a no-op, not a collision.
	_, err = f.svc.Update(ctx, first.ID, nil, &slug)
	assert.NoError(t, err)
}

func TestDeleteInvalidatesCacheBucket(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	team, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, team.ID))
	_, err = f.repo.GetByID(ctx, team.ID)
	assert.ErrorIs(t, err, ErrTeamNotFound)
	assert.Equal(t, []string{team.ID}, f.cache.forgotten)
}

func TestAddMemberAssignsDefaultRole(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	team, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)

	member, err := f.svc.AddMember(ctx, team.ID, "Bob", "bob@acme.test", "secret", "")
	require.NoError(t, err)

	require.Len(t, f.assigner.syncs, 1)
	call := f.assigner.syncs[0]
	assert.Equal(t, member.ID, call.principalID)
	assert.Equal(t, team.ID, call.teamID)
	assert.Equal(t, []string{registry.RoleTeamMember}, call.roles)
}

func TestRemoveMemberRefusesOwner(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	team, owner, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)

	err = f.svc.RemoveMember(ctx, team.ID, owner.ID)
	assert.ErrorIs(t, err, ErrOwnerRemoval)
	_, err = f.users.GetMember(ctx, owner.ID)
	assert.NoError(t, err)
}

func TestRemoveMemberClearsGrantsAndTokens(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	team, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)
	member, err := f.svc.AddMember(ctx, team.ID, "Bob", "bob@acme.test", "secret", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveMember(ctx, team.ID, member.ID))

	_, err = f.users.GetMember(ctx, member.ID)
	assert.ErrorIs(t, err, ErrMemberNotFound)
	require.Len(t, f.assigner.cleared, 1)
	assert.Equal(t, member.ID, f.assigner.cleared[0].principalID)
	assert.Contains(t, f.users.revoked, member.ID)
}

func TestRemoveMemberIgnoresOtherTeams(t *testing.T) {
	ctx := context.Background()
	f := newTenantFixture()

	acme, _, err := f.svc.Provision(ctx, "Acme", "acme", "Ada", "ada@acme.test", "secret")
	require.NoError(t, err)
	beta, _, err := f.svc.Provision(ctx, "Beta", "beta", "Bob", "bob@beta.test", "secret")
	require.NoError(t, err)
	outsider, err := f.svc.AddMember(ctx, beta.ID, "Eve", "eve@beta.test", "secret", "")
	require.NoError(t, err)

	err = f.svc.RemoveMember(ctx, acme.ID, outsider.ID)
	assert.ErrorIs(t, err, ErrMemberNotFound)
	_, err = f.users.GetMember(ctx, outsider.ID)
	assert.NoError(t, err)
}

func TestSlugify(t *testing.T) {
	for input, want := range map[string]string{
		"Acme Inc":         "acme-inc",
		"  Big -- Corp  ":  "big-corp",
		"Data@Works 2026!": "data-works-2026",
	} {
		assert.Equal(t, want, Slugify(input), "input %q", input)
	}
}
