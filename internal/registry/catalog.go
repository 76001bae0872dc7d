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

package registry

// Canonical role names. Core roles are created by sync (super_admin guard)
// or by team provisioning (team guard) and are deletion-protected.
const (
	RoleSuperAdmin = "super-admin"
	RoleAdmin      = "admin"
	RoleTeamAdmin  = "team-admin"
	RoleTeamMember = "team-member"
)

// Permission codes are part of the client contract: once published a code
// never changes meaning. Blocks are allocated per resource.
var permissionCodes = map[string]int{
	// Users
	"list users":  1001,
	"show user":   1002,
	"create user": 1003,
	"update user": 1004,
	"delete user": 1005,

	// Teams
	"list teams":  2001,
	"show team":   2002,
	"create team": 2003,
	"update team": 2004,
	"delete team": 2005,

	// Role management
	"list roles":  3001,
	"show role":   3002,
	"create role": 3003,
	"update role": 3004,
	"delete role": 3005,

	// Permission management
	"view permissions": 4001,

	// Team core
	"view dashboard": 5001,
	"manage team":    5002,

	// Tasks
	"list tasks":  6001,
	"show task":   6002,
	"create task": 6003,
	"update task": 6004,
	"delete task": 6005,

	// Members
	"list members":  7001,
	"invite member": 7002,
	"remove member": 7003,

	// Team roles
	"list team roles":       8001,
	"create team role":      8002,
	"update team role":      8003,
	"delete team role":      8004,
	"view team permissions": 8005,
}

var superAdminPermissions = []string{
	"list users", "show user", "create user", "update user", "delete user",
	"list teams", "show team", "create team", "update team", "delete team",
	"list roles", "show role", "create role", "update role", "delete role",
	"view permissions",
}

var teamPermissions = []string{
	"view dashboard", "manage team",
	"list tasks", "show task", "create task", "update task", "delete task",
	"list members", "invite member", "remove member",
	"list team roles", "create team role", "update team role", "delete team role", "view team permissions",
}

// Default returns the registry shipped with this deployment.
func Default() *Registry {
	return New(permissionCodes,
		GuardBucket{
			Guard:       GuardSuperAdmin,
			Permissions: superAdminPermissions,
			Roles: []RoleBlueprint{
				{Name: RoleSuperAdmin, Permissions: superAdminPermissions},
				{Name: RoleAdmin, Permissions: []string{
					"list users", "show user", "update user",
					"list teams", "show team", "update team",
				}},
			},
			Protected: []string{RoleSuperAdmin, RoleAdmin},
		},
		GuardBucket{
			Guard:       GuardTeam,
			Permissions: teamPermissions,
			Roles: []RoleBlueprint{
				{Name: RoleTeamAdmin, Permissions: teamPermissions},
				{Name: RoleTeamMember, Permissions: []string{
					"view dashboard",
					"list tasks", "show task", "create task", "update task",
				}},
			},
			Protected: []string{RoleTeamAdmin, RoleTeamMember},
		},
	)
}
