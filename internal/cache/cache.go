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

// Package cache provides the Redis-backed permission cache. Invalidation is
// version based: every (guard, team) bucket carries a version counter that
// is part of each entry's key, so Forget is a single INCR and stale entries
// simply age out via TTL. A global counter implements FlushAll the same way.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskflow/taskflow/internal/authz"
)

const (
	globalVersionKey = "authz:ver:global"
	keyPrefix        = "authz:perms"
)

// PermissionCache implements authz.PermissionCache on Redis.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a permission cache with the given entry TTL.
func New(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

// Remember returns the cached grant set for key within the (guard, teamID)
// bucket, running loader on a miss. Redis being unreachable degrades to a
// miss: the loader still runs and authorization stays correct, only slower.
func (c *PermissionCache) Remember(ctx context.Context, guard authz.Guard, teamID *string, key string, loader func(context.Context) ([]authz.PermissionGrant, error)) ([]authz.PermissionGrant, error) {
	entryKey, err := c.entryKey(ctx, guard, teamID, key)
	if err != nil {
		slog.WarnContext(ctx, "permission cache unavailable, loading directly",
			slog.String("error", err.Error()))
		return loader(ctx)
	}

	payload, err := c.client.Get(ctx, entryKey).Bytes()
	if err == nil {
		var grants []authz.PermissionGrant
		if err := json.Unmarshal(payload, &grants); err == nil {
			return grants, nil
		}
		// Corrupt entry; drop it and fall through to the loader.
		_ = c.client.Del(ctx, entryKey).Err()
	} else if err != redis.Nil {
		slog.WarnContext(ctx, "permission cache read failed, loading directly",
			slog.String("error", err.Error()))
		return loader(ctx)
	}

	grants, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(grants)
	if err != nil {
		return nil, fmt.Errorf("encode cached grants: %w", err)
	}
	if err := c.client.Set(ctx, entryKey, raw, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "permission cache write failed",
			slog.String("error", err.Error()))
	}
	return grants, nil
}

// Forget invalidates one (guard, team) bucket by bumping its version.
func (c *PermissionCache) Forget(ctx context.Context, guard authz.Guard, teamID *string) error {
	if err := c.client.Incr(ctx, bucketVersionKey(guard, teamID)).Err(); err != nil {
		return fmt.Errorf("bump cache bucket version: %w", err)
	}
	return nil
}

// FlushAll invalidates every bucket at once.
func (c *PermissionCache) FlushAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, globalVersionKey).Err(); err != nil {
		return fmt.Errorf("bump global cache version: %w", err)
	}
	return nil
}

func (c *PermissionCache) entryKey(ctx context.Context, guard authz.Guard, teamID *string, key string) (string, error) {
	pipe := c.client.Pipeline()
	global := pipe.Get(ctx, globalVersionKey)
	bucket := pipe.Get(ctx, bucketVersionKey(guard, teamID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", err
	}

	globalVer, err := versionOf(global)
	if err != nil {
		return "", err
	}
	bucketVer, err := versionOf(bucket)
	if err != nil {
		return "", err
	}

	bucketName := string(guard)
	if teamID != nil {
		bucketName += ":" + *teamID
	}
	return fmt.Sprintf("%s:%s:%s:g%d:b%d", keyPrefix, bucketName, key, globalVer, bucketVer), nil
}

func bucketVersionKey(guard authz.Guard, teamID *string) string {
	key := "authz:ver:" + string(guard)
	if teamID != nil {
		key += ":" + *teamID
	}
	return key
}

// versionOf reads a version counter result, treating a missing key as
// version zero.
func versionOf(cmd *redis.StringCmd) (int64, error) {
	ver, err := cmd.Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}
