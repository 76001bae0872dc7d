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

// PermissionCache memoizes computed effective permission sets per
// (guard, team) bucket. Forget must take effect before the invalidating
// mutation returns: a writer's own subsequent reads never observe a stale
// set. Cross-process coherency is the deployment's problem, not this
// interface's.
type PermissionCache interface {
	// Remember returns the cached set for key within the bucket, or runs
	// loader and stores its result.
	Remember(ctx context.Context, guard Guard, teamID *string, key string, loader func(context.Context) ([]PermissionGrant, error)) ([]PermissionGrant, error)
	// Forget invalidates one (guard, team) bucket.
	Forget(ctx context.Context, guard Guard, teamID *string) error
	// FlushAll invalidates every bucket; used for guard-global mutations
	// and after sync.
	FlushAll(ctx context.Context) error
}

// NopCache always misses; every Remember call runs the loader.
type NopCache struct{}

func (NopCache) Remember(ctx context.Context, _ Guard, _ *string, _ string, loader func(context.Context) ([]PermissionGrant, error)) ([]PermissionGrant, error) {
	return loader(ctx)
}

func (NopCache) Forget(context.Context, Guard, *string) error { return nil }

func (NopCache) FlushAll(context.Context) error { return nil }
