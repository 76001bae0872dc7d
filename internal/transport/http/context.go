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

package http

import (
	"context"

	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/tenant"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	teamKey      contextKey = "team"
)

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p authz.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom retrieves the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (authz.Principal, bool) {
	p, ok := ctx.Value(principalKey).(authz.Principal)
	return p, ok
}

// WithTeam stores the resolved team on the context.
func WithTeam(ctx context.Context, team *tenant.Team) context.Context {
	return context.WithValue(ctx, teamKey, team)
}

// TeamFrom retrieves the resolved team from the context.
func TeamFrom(ctx context.Context) (*tenant.Team, bool) {
	team, ok := ctx.Value(teamKey).(*tenant.Team)
	return team, ok
}
