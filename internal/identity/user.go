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
	"time"

	"github.com/taskflow/taskflow/internal/authz"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrTokenInvalid       = errors.New("token is invalid or revoked")
	ErrWrongTeam          = errors.New("user does not belong to this team")
)

// User represents a regular account. TeamID is nil for accounts registered
// outside any team; team logins require a matching TeamID.
type User struct {
	ID           string
	TeamID       *string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SuperAdminUser represents a platform operator account. These live in a
// separate table and separate guard; a team account can never satisfy a
// super-admin check.
type SuperAdminUser struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccessToken is the persisted side of an issued JWT. The jti is the row
// id; deleting the row revokes the token regardless of its expiry.
type AccessToken struct {
	ID        string
	Principal authz.PrincipalRef
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal maps a user to its authorization principal.
func (u *User) Principal() authz.Principal {
	return authz.Principal{
		PrincipalRef: authz.PrincipalRef{Type: authz.PrincipalUser, ID: u.ID},
		Guard:        authz.GuardTeam,
	}
}

// Principal maps a super-admin account to its authorization principal.
func (u *SuperAdminUser) Principal() authz.Principal {
	return authz.Principal{
		PrincipalRef: authz.PrincipalRef{Type: authz.PrincipalSuperAdmin, ID: u.ID},
		Guard:        authz.GuardSuperAdmin,
	}
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByTeamEmail(ctx context.Context, teamID, email string) (*User, error)
	ListByTeam(ctx context.Context, teamID string) ([]*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// SuperAdminRepository defines the interface for operator persistence
type SuperAdminRepository interface {
	Create(ctx context.Context, user *SuperAdminUser) error
	GetByID(ctx context.Context, id string) (*SuperAdminUser, error)
	GetByEmail(ctx context.Context, email string) (*SuperAdminUser, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// TokenRepository defines the interface for access token persistence
type TokenRepository interface {
	Create(ctx context.Context, token *AccessToken) error
	Get(ctx context.Context, jti string) (*AccessToken, error)
	Delete(ctx context.Context, jti string) error
	DeleteByPrincipal(ctx context.Context, principal authz.PrincipalRef) error
}
