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
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/id"
	"github.com/taskflow/taskflow/internal/registry"
)

// Service provides team management business logic
type Service struct {
	repo        Repository
	users       UserAccounts
	authzStore  RoleAssigner
	roles       RoleProvisioner
	cache       authz.PermissionCache
	auditLogger audit.Logger
}

// NewService creates a new team service
func NewService(
	repo Repository,
	users UserAccounts,
	authzStore RoleAssigner,
	roles RoleProvisioner,
	cache authz.PermissionCache,
	auditLogger audit.Logger,
) *Service {
	if cache == nil {
		cache = authz.NopCache{}
	}
	return &Service{
		repo:        repo,
		users:       users,
		authzStore:  authzStore,
		roles:       roles,
		cache:       cache,
		auditLogger: auditLogger,
	}
}

// Provision creates a team together with its owner account and instantiates
// the default team roles. The owner holds the full team permission set
// implicitly and gets no role assignment.
func (s *Service) Provision(ctx context.Context, name, slug, ownerName, ownerEmail, ownerPassword string) (*Team, *Member, error) {
	if name == "" {
		return nil, nil, fmt.Errorf("team name is required")
	}
	if slug == "" {
		slug = Slugify(name) + "-" + id.ShortID()
	}
	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, nil, fmt.Errorf("slug %q: %w", slug, ErrSlugTaken)
	} else if !errors.Is(err, ErrTeamNotFound) {
		return nil, nil, fmt.Errorf("check slug %q: %w", slug, err)
	}

	now := time.Now()
	team := &Team{
		ID:        id.NewUUIDv7(),
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, team); err != nil {
		return nil, nil, fmt.Errorf("create team: %w", err)
	}

	owner, err := s.users.CreateUser(ctx, &team.ID, ownerName, ownerEmail, ownerPassword)
	if err != nil {
		return nil, nil, s.unprovision(ctx, team, "", fmt.Errorf("create team owner: %w", err))
	}
	team.OwnerID = owner.ID
	if err := s.repo.Update(ctx, team); err != nil {
		return nil, nil, s.unprovision(ctx, team, owner.ID, fmt.Errorf("attach team owner: %w", err))
	}

	if err := s.roles.SyncTeam(ctx, team.ID); err != nil {
		return nil, nil, s.unprovision(ctx, team, owner.ID, fmt.Errorf("provision default roles: %w", err))
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTeamProvisioned,
		TeamID:   team.ID,
		Resource: team.Slug,
		Metadata: map[string]any{audit.AttrEmail: ownerEmail},
	})
	return team, owner, nil
}

// unprovision undoes the steps of a partial provisioning. A failed
// Provision must leave neither an ownerless team holding the slug nor a
// detached owner account; cleanup failures are joined onto the cause.
func (s *Service) unprovision(ctx context.Context, team *Team, ownerID string, cause error) error {
	if ownerID != "" {
		if err := s.users.DeleteUser(ctx, ownerID); err != nil {
			cause = errors.Join(cause, fmt.Errorf("remove orphaned owner: %w", err))
		}
	}
	if err := s.repo.Delete(ctx, team.ID); err != nil {
		cause = errors.Join(cause, fmt.Errorf("remove orphaned team: %w", err))
	}
	return cause
}

// GetTeam retrieves a team by ID
func (s *Service) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	return s.repo.GetByID(ctx, teamID)
}

// GetBySlug retrieves a team by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Team, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// List lists teams with pagination
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Team, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update renames a team and/or changes its slug. A nil field keeps the
// current value.
func (s *Service) Update(ctx context.Context, teamID string, name, slug *string) (*Team, error) {
	team, err := s.repo.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if name != nil && *name != "" {
		team.Name = *name
	}
	if slug != nil && *slug != "" && *slug != team.Slug {
		if existing, err := s.repo.GetBySlug(ctx, *slug); err == nil && existing.ID != team.ID {
			return nil, fmt.Errorf("slug %q: %w", *slug, ErrSlugTaken)
		}
		team.Slug = *slug
	}
	team.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("update team: %w", err)
	}
	return team, nil
}

// Delete removes a team. Team-scoped roles, assignments and member accounts
// cascade in storage; the team's permission cache bucket is invalidated so
// no stale grants survive the team.
func (s *Service) Delete(ctx context.Context, teamID string) error {
	team, err := s.repo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, team.ID); err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if err := s.cache.Forget(ctx, authz.GuardTeam, &team.ID); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTeamDeleted,
		TeamID:   team.ID,
		Resource: team.Slug,
	})
	return nil
}

// AddMember creates a member account under the team and assigns the given
// role, defaulting to the baseline member role.
func (s *Service) AddMember(ctx context.Context, teamID, name, email, password, roleName string) (*Member, error) {
	team, err := s.repo.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if roleName == "" {
		roleName = registry.RoleTeamMember
	}

	member, err := s.users.CreateUser(ctx, &team.ID, name, email, password)
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}

	principal := authz.Principal{
		PrincipalRef: authz.PrincipalRef{Type: authz.PrincipalUser, ID: member.ID},
		Guard:        authz.GuardTeam,
	}
	if err := s.authzStore.SyncRoles(ctx, principal, authz.GuardTeam, &team.ID, []string{roleName}, ""); err != nil {
		return nil, fmt.Errorf("assign member role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeMemberAdded,
		TeamID:   team.ID,
		Resource: member.ID,
		Metadata: map[string]any{
			audit.AttrEmail: email,
			audit.AttrRole:  roleName,
		},
	})
	return member, nil
}

// RemoveMember deletes a member account, its grants and its tokens. The
// owner is not removable; the team must be deleted or transferred instead.
func (s *Service) RemoveMember(ctx context.Context, teamID, userID string) error {
	team, err := s.repo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if userID == team.OwnerID {
		return ErrOwnerRemoval
	}
	member, err := s.users.GetMember(ctx, userID)
	if err != nil {
		return err
	}
	// Accounts of other teams are invisible here.
	if member.TeamID == nil || *member.TeamID != team.ID {
		return ErrMemberNotFound
	}

	principal := authz.Principal{
		PrincipalRef: authz.PrincipalRef{Type: authz.PrincipalUser, ID: userID},
		Guard:        authz.GuardTeam,
	}
	if err := s.authzStore.ClearPrincipal(ctx, principal, &team.ID); err != nil {
		return err
	}
	if err := s.users.RevokeTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke member tokens: %w", err)
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeMemberRemoved,
		TeamID:   team.ID,
		Resource: userID,
	})
	return nil
}

// ListMembers lists the member accounts of a team
func (s *Service) ListMembers(ctx context.Context, teamID string) ([]*Member, error) {
	if _, err := s.repo.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.users.ListByTeam(ctx, teamID)
}

// Slugify lowercases a name and collapses runs of non-alphanumerics into
// single dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
