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

// SuperAdminRepository implements identity.SuperAdminRepository
type SuperAdminRepository struct {
	db *DB
}

// NewSuperAdminRepository creates a new super-admin repository
func NewSuperAdminRepository(db *DB) *SuperAdminRepository {
	return &SuperAdminRepository{db: db}
}

// Create inserts an operator account
func (r *SuperAdminRepository) Create(ctx context.Context, user *identity.SuperAdminUser) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO super_admin_users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("insert super admin: %w", err)
	}
	return nil
}

// GetByID retrieves an operator account by id
func (r *SuperAdminRepository) GetByID(ctx context.Context, id string) (*identity.SuperAdminUser, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByEmail retrieves an operator account by email
func (r *SuperAdminRepository) GetByEmail(ctx context.Context, email string) (*identity.SuperAdminUser, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

func (r *SuperAdminRepository) get(ctx context.Context, where string, arg any) (*identity.SuperAdminUser, error) {
	var user identity.SuperAdminUser
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM super_admin_users `+where, arg,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get super admin: %w", err)
	}
	return &user, nil
}

// UpdatePassword stores a new password hash
func (r *SuperAdminRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE super_admin_users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}
