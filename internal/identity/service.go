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

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/id"
	"github.com/taskflow/taskflow/internal/tenant"
)

// Service provides account and authentication business logic
type Service struct {
	users       UserRepository
	superAdmins SuperAdminRepository
	tokens      *TokenService
	hasher      *PasswordHasher
	auditLogger audit.Logger
}

// NewService creates a new identity service
func NewService(
	users UserRepository,
	superAdmins SuperAdminRepository,
	tokens *TokenService,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		users:       users,
		superAdmins: superAdmins,
		tokens:      tokens,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// Register creates a team-less account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, string, error) {
	user, err := s.createUser(ctx, nil, name, email, password)
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(ctx, user.Principal())
	if err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserRegistered,
		ActorID:  user.ID,
		Resource: email,
	})
	return user, token, nil
}

// Login authenticates by email and password and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logFailedLogin(ctx, "", email, "user_not_found")
		return nil, "", ErrInvalidCredentials
	}
	if err := s.checkPassword(ctx, user.TeamID, email, user.PasswordHash, password); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(ctx, user.Principal())
	if err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeLoginSuccess,
		TeamID:  teamString(user.TeamID),
		ActorID: user.ID,
	})
	return user, token, nil
}

// TeamLogin authenticates against one team's member pool. An account with
// matching credentials but a different team is rejected, not redirected.
func (s *Service) TeamLogin(ctx context.Context, teamID, email, password string) (*User, string, error) {
	user, err := s.users.GetByTeamEmail(ctx, teamID, email)
	if err != nil {
		s.logFailedLogin(ctx, teamID, email, "user_not_found")
		return nil, "", ErrInvalidCredentials
	}
	if user.TeamID == nil || *user.TeamID != teamID {
		s.logFailedLogin(ctx, teamID, email, "wrong_team")
		return nil, "", ErrWrongTeam
	}
	if err := s.checkPassword(ctx, &teamID, email, user.PasswordHash, password); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(ctx, user.Principal())
	if err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeLoginSuccess,
		TeamID:  teamID,
		ActorID: user.ID,
	})
	return user, token, nil
}

// SuperAdminLogin authenticates a platform operator.
func (s *Service) SuperAdminLogin(ctx context.Context, email, password string) (*SuperAdminUser, string, error) {
	admin, err := s.superAdmins.GetByEmail(ctx, email)
	if err != nil {
		s.logFailedLogin(ctx, "", email, "user_not_found")
		return nil, "", ErrInvalidCredentials
	}
	if err := s.checkPassword(ctx, nil, email, admin.PasswordHash, password); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(ctx, admin.Principal())
	if err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeLoginSuccess,
		ActorID: admin.ID,
		Metadata: map[string]any{
			audit.AttrGuard: string(authz.GuardSuperAdmin),
		},
	})
	return admin, token, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	jti, err := s.tokens.JTI(tokenString)
	if err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, jti)
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

// ListUsers lists accounts with pagination
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, error) {
	return s.users.List(ctx, limit, offset)
}

// CreateUser provisions an account without issuing a token. Used by the
// admin surface and by team member provisioning.
func (s *Service) CreateUser(ctx context.Context, teamID *string, name, email, password string) (*User, error) {
	user, err := s.createUser(ctx, teamID, name, email, password)
	if err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserRegistered,
		TeamID:   teamString(teamID),
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{audit.AttrEmail: email},
	})
	return user, nil
}

// DeleteUser removes an account and every token it holds.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.tokens.RevokeAll(ctx, authz.PrincipalRef{Type: authz.PrincipalUser, ID: userID}); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserDeleted,
		TeamID:   teamString(user.TeamID),
		ActorID:  userID,
		Resource: "user",
	})
	return nil
}

// UpdateProfile updates name and email. Email changes re-check uniqueness.
func (s *Service) UpdateProfile(ctx context.Context, userID string, name, email *string) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if name != nil && *name != "" {
		user.Name = *name
	}
	if email != nil && *email != "" && *email != user.Email {
		if _, err := s.users.GetByEmail(ctx, *email); err == nil {
			return nil, ErrUserAlreadyExists
		}
		user.Email = *email
	}
	user.UpdatedAt = time.Now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the old password, stores the new hash and revokes
// every outstanding token of the account.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}
	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// Old sessions die with the old password.
	if err := s.tokens.RevokeAll(ctx, authz.PrincipalRef{Type: authz.PrincipalUser, ID: userID}); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypePasswordChanged,
		TeamID:  teamString(user.TeamID),
		ActorID: userID,
	})
	return nil
}

func (s *Service) createUser(ctx context.Context, teamID *string, name, email, password string) (*User, error) {
	if !isStrongPassword(password) {
		return nil, ErrWeakPassword
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:           id.NewUUIDv7(),
		TeamID:       teamID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) checkPassword(ctx context.Context, teamID *string, email, hash, password string) error {
	valid, err := s.hasher.Verify(password, hash)
	if err != nil || !valid {
		s.logFailedLogin(ctx, teamString(teamID), email, "invalid_password")
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) logFailedLogin(ctx context.Context, teamID, email, reason string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginFailed,
		TeamID:   teamID,
		Resource: email,
		Metadata: map[string]any{audit.AttrReason: reason},
	})
}

func teamString(teamID *string) string {
	if teamID == nil {
		return ""
	}
	return *teamID
}

func isStrongPassword(password string) bool {
	return len(password) >= 8
}

// Accounts adapts the service to the tenant layer's UserAccounts interface.
type Accounts struct {
	svc *Service
}

// NewAccounts wraps the service for team membership management.
func NewAccounts(svc *Service) *Accounts {
	return &Accounts{svc: svc}
}

var _ tenant.UserAccounts = (*Accounts)(nil)

func (a *Accounts) CreateUser(ctx context.Context, teamID *string, name, email, password string) (*tenant.Member, error) {
	user, err := a.svc.createUser(ctx, teamID, name, email, password)
	if err != nil {
		return nil, err
	}
	return &tenant.Member{ID: user.ID, Name: user.Name, Email: user.Email, TeamID: user.TeamID}, nil
}

func (a *Accounts) GetMember(ctx context.Context, userID string) (*tenant.Member, error) {
	user, err := a.svc.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, tenant.ErrMemberNotFound
		}
		return nil, err
	}
	return &tenant.Member{ID: user.ID, Name: user.Name, Email: user.Email, TeamID: user.TeamID}, nil
}

func (a *Accounts) ListByTeam(ctx context.Context, teamID string) ([]*tenant.Member, error) {
	users, err := a.svc.users.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	members := make([]*tenant.Member, 0, len(users))
	for _, u := range users {
		members = append(members, &tenant.Member{ID: u.ID, Name: u.Name, Email: u.Email, TeamID: u.TeamID})
	}
	return members, nil
}

func (a *Accounts) DeleteUser(ctx context.Context, userID string) error {
	return a.svc.users.Delete(ctx, userID)
}

func (a *Accounts) RevokeTokens(ctx context.Context, userID string) error {
	return a.svc.tokens.RevokeAll(ctx, authz.PrincipalRef{Type: authz.PrincipalUser, ID: userID})
}
