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

import "errors"

// Domain errors. Duplicate, unknown-permission and protected-role failures
// are user-facing and map to 4xx at the boundary. Guard mismatch on a
// mutation is a programming error: it means the caller wired the wrong
// realm together and should fail loudly, not be swallowed as a denial.
var (
	ErrDuplicateRole      = errors.New("role already exists for this guard and team")
	ErrUnknownPermission  = errors.New("permission is not registered for this guard")
	ErrProtectedRole      = errors.New("role is protected and cannot be deleted")
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrGuardMismatch      = errors.New("guard mismatch")
	ErrTeamRequired       = errors.New("team-guard role requires a team id")
	ErrTeamNotAllowed     = errors.New("guard-global role cannot carry a team id")
)
