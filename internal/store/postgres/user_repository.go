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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/taskflow/taskflow/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user row
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (id, team_id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.TeamID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, team_id, name, email, password_hash, created_at, updated_at`

// GetByID retrieves a user by id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

// GetByTeamEmail retrieves a member of one team by email
func (r *UserRepository) GetByTeamEmail(ctx context.Context, teamID, email string) (*identity.User, error) {
	var user identity.User
	err := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE team_id = $1 AND email = $2
	`, teamID, email).Scan(
		&user.ID, &user.TeamID, &user.Name, &user.Email,
		&user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) get(ctx context.Context, where string, arg any) (*identity.User, error) {
	var user identity.User
	err := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&user.ID, &user.TeamID, &user.Name, &user.Email,
		&user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// ListByTeam lists the accounts attached to a team
func (r *UserRepository) ListByTeam(ctx context.Context, teamID string) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users WHERE team_id = $1 ORDER BY created_at
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// List lists accounts with pagination
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY created_at LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// Update updates user profile fields
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET team_id = $2, name = $3, email = $4, updated_at = $5
		WHERE id = $1
	`, user.ID, user.TeamID, user.Name, user.Email, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// UpdatePassword stores a new password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// Delete removes a user account
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func scanUsers(rows pgx.Rows) ([]*identity.User, error) {
	var out []*identity.User
	for rows.Next() {
		var user identity.User
		if err := rows.Scan(
			&user.ID, &user.TeamID, &user.Name, &user.Email,
			&user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, &user)
	}
	return out, rows.Err()
}
