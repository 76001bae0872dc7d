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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/registry"
)

func grantNames(grants []authz.PermissionGrant) []string {
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Name)
	}
	return names
}

func TestMemberWithRoleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	// Role "Viewer" under (team guard, team-T) granting view dashboard.
	_, err := f.store.CreateRole(ctx, authz.GuardTeam, strptr("team-T"), "Viewer", []string{"view dashboard"})
	require.NoError(t, err)

	m := member("member-M")
	require.NoError(t, f.store.SyncRoles(ctx, m, authz.GuardTeam, strptr("team-T"), []string{"Viewer"}, "owner-O"))

	assert.True(t, f.resolver.Can(ctx, m, authz.GuardTeam, "view dashboard", strptr("team-T")))
	assert.False(t, f.resolver.Can(ctx, m, authz.GuardTeam, "manage team", strptr("team-T")))

	// The owner holds everything with zero assignments.
	o := member("owner-O")
	assert.True(t, f.resolver.Can(ctx, o, authz.GuardTeam, "manage team", strptr("team-T")))
}

func TestNoRolesMeansEmptySet(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	m := member("member-lonely")
	grants, err := f.resolver.EffectivePermissions(ctx, m, authz.GuardTeam, strptr("team-T"))
	require.NoError(t, err)
	assert.Empty(t, grants)
	assert.False(t, f.resolver.Can(ctx, m, authz.GuardTeam, "view dashboard", strptr("team-T")))
}

func TestOwnerGetsFullTeamSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	o := member("owner-O")
	grants, err := f.resolver.EffectivePermissions(ctx, o, authz.GuardTeam, strptr("team-T"))
	require.NoError(t, err)

	reg := registry.Default()
	assert.ElementsMatch(t, reg.Permissions(authz.GuardTeam), grantNames(grants))
	for _, g := range grants {
		require.NotNil(t, g.Code, "registered permission %q must carry its code", g.Name)
	}
	// Owner of T owns nothing in another team.
	f.addTeam(ctx, "team-U", "owner-other")
	assert.False(t, f.resolver.Can(ctx, o, authz.GuardTeam, "manage team", strptr("team-U")))
}

func TestIdenticalRoleNamesAreTeamIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-1", "owner-1")
	f.addTeam(ctx, "team-2", "owner-2")

	_, err := f.store.CreateRole(ctx, authz.GuardTeam, strptr("team-1"), "Editor", []string{"update task"})
	require.NoError(t, err)
	_, err = f.store.CreateRole(ctx, authz.GuardTeam, strptr("team-2"), "Editor", []string{"list tasks"})
	require.NoError(t, err)

	m := member("member-1")
	require.NoError(t, f.store.SyncRoles(ctx, m, authz.GuardTeam, strptr("team-1"), []string{"Editor"}, "owner-1"))

	assert.True(t, f.resolver.Can(ctx, m, authz.GuardTeam, "update task", strptr("team-1")))
	assert.False(t, f.resolver.Can(ctx, m, authz.GuardTeam, "update task", strptr("team-2")))
	assert.False(t, f.resolver.Can(ctx, m, authz.GuardTeam, "list tasks", strptr("team-1")))
}

func TestSuperAdminBypassIgnoresAmbientScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	root := admin("root")
	require.NoError(t, f.store.SyncRoles(ctx, root, authz.GuardSuperAdmin, nil, []string{registry.RoleSuperAdmin}, "system"))

	reg := registry.Default()

	check := func(ctx context.Context) {
		for _, name := range reg.Permissions(authz.GuardSuperAdmin) {
			assert.True(t, f.resolver.Can(ctx, root, authz.GuardSuperAdmin, name, nil), "bypass must grant %q", name)
		}
	}

	// Unset scope.
	check(ctx)

	// Scope explicitly nil.
	scope := authz.NewTeamScope()
	check(authz.WithScope(ctx, scope))

	// Scope pointing at an arbitrary team.
	scope.Set(strptr("team-T"))
	check(authz.WithScope(ctx, scope))

	grants, err := f.resolver.EffectivePermissions(ctx, root, authz.GuardSuperAdmin, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, reg.Permissions(authz.GuardSuperAdmin), grantNames(grants))
}

func TestLesserAdminHasOnlyAssignedPermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))

	helper := admin("helper")
	require.NoError(t, f.store.SyncRoles(ctx, helper, authz.GuardSuperAdmin, nil, []string{registry.RoleAdmin}, "root"))

	assert.True(t, f.resolver.Can(ctx, helper, authz.GuardSuperAdmin, "list users", nil))
	assert.False(t, f.resolver.Can(ctx, helper, authz.GuardSuperAdmin, "delete user", nil))
}

func TestNoCrossGuardLeakage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	// A super admin holding the top role is not a team principal.
	root := admin("root")
	require.NoError(t, f.store.SyncRoles(ctx, root, authz.GuardSuperAdmin, nil, []string{registry.RoleSuperAdmin}, "system"))
	assert.False(t, f.resolver.Can(ctx, root, authz.GuardTeam, "view dashboard", strptr("team-T")))

	// A team admin never satisfies super-admin checks.
	m := member("member-M")
	require.NoError(t, f.store.SyncRoles(ctx, m, authz.GuardTeam, strptr("team-T"), []string{registry.RoleTeamAdmin}, "owner-O"))
	assert.False(t, f.resolver.Can(ctx, m, authz.GuardSuperAdmin, "list users", nil))
	assert.True(t, f.resolver.Can(ctx, m, authz.GuardTeam, "view dashboard", strptr("team-T")))
}

func TestAmbientScopeFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	m := member("member-M")
	require.NoError(t, f.store.SyncRoles(ctx, m, authz.GuardTeam, strptr("team-T"), []string{registry.RoleTeamMember}, "owner-O"))

	scope := authz.NewTeamScope()
	scope.Set(strptr("team-T"))
	scoped := authz.WithScope(ctx, scope)

	// No explicit team id: the ambient scope decides.
	assert.True(t, f.resolver.Can(scoped, m, authz.GuardTeam, "view dashboard", nil))
	// Explicit id wins over the ambient value.
	f.addTeam(ctx, "team-U", "owner-other")
	assert.False(t, f.resolver.Can(scoped, m, authz.GuardTeam, "view dashboard", strptr("team-U")))
}

func TestDirectGrantUnionsWithRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	m := member("member-M")
	require.NoError(t, f.store.SyncRoles(ctx, m, authz.GuardTeam, strptr("team-T"), []string{registry.RoleTeamMember}, "owner-O"))
	require.NoError(t, f.store.GrantPermission(ctx, m, authz.GuardTeam, strptr("team-T"), "manage team", "owner-O"))

	grants, err := f.resolver.EffectivePermissions(ctx, m, authz.GuardTeam, strptr("team-T"))
	require.NoError(t, err)
	names := grantNames(grants)
	assert.Contains(t, names, "manage team")
	assert.Contains(t, names, "view dashboard")
}

func TestStoreFailureDeniesInsteadOfFailingOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	m := member("member-M")
	require.NoError(t, f.store.SyncRoles(ctx, m, authz.GuardTeam, strptr("team-T"), []string{registry.RoleTeamAdmin}, "owner-O"))
	require.True(t, f.resolver.Can(ctx, m, authz.GuardTeam, "view dashboard", strptr("team-T")))

	f.repo.failAll = errors.New("connection reset")
	assert.False(t, f.resolver.Can(ctx, m, authz.GuardTeam, "view dashboard", strptr("team-T")))
}

func TestUnknownCodePassesThroughAsNil(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.syncer.Run(ctx))
	f.addTeam(ctx, "team-T", "owner-O")

	// A permission row that exists in the store but has no registered code
	// (e.g. registry rollback after a sync) must surface with a nil code.
	require.NoError(t, f.repo.Create(ctx, &authz.Permission{ID: "perm-x", Name: "export reports", Guard: authz.GuardTeam}))
	m := member("member-M")
	require.NoError(t, f.repo.GrantDirect(ctx, &authz.DirectGrant{
		Principal:    m.PrincipalRef,
		PermissionID: "perm-x",
		TeamID:       strptr("team-T"),
	}))

	grants, err := f.resolver.EffectivePermissions(ctx, m, authz.GuardTeam, strptr("team-T"))
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "export reports", grants[0].Name)
	assert.Nil(t, grants[0].Code)
}
