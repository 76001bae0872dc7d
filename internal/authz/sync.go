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

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/id"
	"github.com/taskflow/taskflow/internal/registry"
)

// Syncer reconciles the static registry into the store: it creates missing
// permission rows and default roles and forces every default role's grants
// back to the blueprint. Running it repeatedly is safe; it only repairs
// drift. The process must not serve traffic if Run fails, since a store
// that disagrees with the registry can under- or over-grant.
type Syncer struct {
	registry    *registry.Registry
	perms       PermissionRepository
	roles       RoleRepository
	teams       TeamDirectory
	cache       PermissionCache
	auditLogger audit.Logger
}

// NewSyncer creates a registry sync service.
func NewSyncer(
	reg *registry.Registry,
	perms PermissionRepository,
	roles RoleRepository,
	teams TeamDirectory,
	cache PermissionCache,
	auditLogger audit.Logger,
) *Syncer {
	if cache == nil {
		cache = NopCache{}
	}
	return &Syncer{
		registry:    reg,
		perms:       perms,
		roles:       roles,
		teams:       teams,
		cache:       cache,
		auditLogger: auditLogger,
	}
}

// Run reconciles every guard bucket and flushes all caches on completion.
func (s *Syncer) Run(ctx context.Context) error {
	for _, guard := range s.registry.Guards() {
		slog.InfoContext(ctx, "syncing guard", slog.String("guard", string(guard)))

		if err := s.ensurePermissions(ctx, guard); err != nil {
			return fmt.Errorf("sync guard %s: %w", guard, err)
		}

		if guard == GuardTeam {
			// Team-guard blueprint roles exist once per team.
			teamIDs, err := s.teams.ListIDs(ctx)
			if err != nil {
				return fmt.Errorf("sync guard %s: list teams: %w", guard, err)
			}
			for _, teamID := range teamIDs {
				if err := s.SyncTeam(ctx, teamID); err != nil {
					return err
				}
			}
			continue
		}

		if err := s.ensureRoles(ctx, guard, nil); err != nil {
			return fmt.Errorf("sync guard %s: %w", guard, err)
		}
	}

	if err := s.cache.FlushAll(ctx); err != nil {
		return fmt.Errorf("flush permission cache: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeRegistrySynced,
		ActorID: audit.ActorSync,
	})
	return nil
}

// SyncTeam instantiates (or repairs) the team-guard blueprint roles for one
// team. Provisioning calls this for every new team.
func (s *Syncer) SyncTeam(ctx context.Context, teamID string) error {
	if err := s.ensureRoles(ctx, GuardTeam, &teamID); err != nil {
		return fmt.Errorf("sync team %s: %w", teamID, err)
	}
	return nil
}

func (s *Syncer) ensurePermissions(ctx context.Context, guard Guard) error {
	for _, name := range s.registry.Permissions(guard) {
		_, err := s.perms.GetByName(ctx, guard, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrPermissionNotFound) {
			return fmt.Errorf("look up permission %q: %w", name, err)
		}
		perm := &Permission{ID: id.NewUUIDv7(), Name: name, Guard: guard}
		if err := s.perms.Create(ctx, perm); err != nil {
			return fmt.Errorf("create permission %q: %w", name, err)
		}
	}
	return nil
}

func (s *Syncer) ensureRoles(ctx context.Context, guard Guard, teamID *string) error {
	for _, blueprint := range s.registry.DefaultRoles(guard) {
		role, err := s.roles.GetByName(ctx, guard, teamID, blueprint.Name)
		if errors.Is(err, ErrRoleNotFound) {
			role = &Role{
				ID:     id.NewUUIDv7(),
				Name:   blueprint.Name,
				Guard:  guard,
				TeamID: teamID,
			}
			if createErr := s.roles.Create(ctx, role); createErr != nil {
				// Lost a race against a concurrent sync; re-read.
				if errors.Is(createErr, ErrDuplicateRole) {
					role, err = s.roles.GetByName(ctx, guard, teamID, blueprint.Name)
					if err != nil {
						return fmt.Errorf("reload role %q: %w", blueprint.Name, err)
					}
				} else {
					return fmt.Errorf("create role %q: %w", blueprint.Name, createErr)
				}
			}
		} else if err != nil {
			return fmt.Errorf("look up role %q: %w", blueprint.Name, err)
		}

		permIDs := make([]string, 0, len(blueprint.Permissions))
		for _, name := range blueprint.Permissions {
			perm, err := s.perms.GetByName(ctx, guard, name)
			if err != nil {
				return fmt.Errorf("resolve blueprint permission %q: %w", name, err)
			}
			permIDs = append(permIDs, perm.ID)
		}
		if err := s.roles.ReplaceGrants(ctx, role.ID, permIDs); err != nil {
			return fmt.Errorf("sync grants of role %q: %w", blueprint.Name, err)
		}
	}
	return nil
}
