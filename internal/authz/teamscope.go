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

import "context"

// TeamScope is the ambient "current team" consulted by team-guard
// resolution when no explicit team id is supplied. One scope belongs to one
// request: the transport layer creates it during request setup and carries
// it on the request context. It must never be shared across concurrently
// executing requests, and no goroutine may outlive the request while
// holding it.
//
// Prefer passing team ids explicitly; the scope exists for call sites where
// threading the id through is impractical. Any temporary re-scoping (for
// example serializing a resource that belongs to another team) must go
// through With so the previous value is restored on every exit path.
type TeamScope struct {
	teamID *string
}

// NewTeamScope returns an unset scope.
func NewTeamScope() *TeamScope {
	return &TeamScope{}
}

// Set overwrites the current team id. Nil clears the scope. The id is not
// validated against existing teams; callers resolve it first.
func (s *TeamScope) Set(teamID *string) {
	s.teamID = teamID
}

// Current returns the ambient team id, or nil when unset.
func (s *TeamScope) Current() *string {
	if s == nil {
		return nil
	}
	return s.teamID
}

// With runs fn with the scope set to teamID and restores the previous value
// when fn returns, fails, or panics.
func (s *TeamScope) With(teamID *string, fn func() error) error {
	prev := s.teamID
	s.teamID = teamID
	defer func() {
		s.teamID = prev
	}()
	return fn()
}

type scopeKey struct{}

// WithScope attaches a request's TeamScope to the context.
func WithScope(ctx context.Context, scope *TeamScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the request's TeamScope, or nil when none is attached.
func ScopeFrom(ctx context.Context) *TeamScope {
	scope, _ := ctx.Value(scopeKey{}).(*TeamScope)
	return scope
}

// ScopedTeam returns the ambient team id from the context's scope, nil-safe.
func ScopedTeam(ctx context.Context) *string {
	return ScopeFrom(ctx).Current()
}

// resolveTeam prefers the explicit id over the ambient scope.
func resolveTeam(ctx context.Context, explicit *string) *string {
	if explicit != nil {
		return explicit
	}
	return ScopedTeam(ctx)
}
