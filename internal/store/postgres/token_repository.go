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
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/identity"
)

// TokenRepository implements identity.TokenRepository
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create records an issued token's jti
func (r *TokenRepository) Create(ctx context.Context, token *identity.AccessToken) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO access_tokens (id, principal_type, principal_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID, string(token.Principal.Type), token.Principal.ID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Get retrieves a token row by jti
func (r *TokenRepository) Get(ctx context.Context, jti string) (*identity.AccessToken, error) {
	var token identity.AccessToken
	var principalType string
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, principal_type, principal_id, expires_at, created_at
		FROM access_tokens
		WHERE id = $1
	`, jti).Scan(&token.ID, &principalType, &token.Principal.ID, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrTokenInvalid
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	token.Principal.Type = authz.PrincipalType(principalType)
	return &token, nil
}

// Delete revokes one token
func (r *TokenRepository) Delete(ctx context.Context, jti string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM access_tokens WHERE id = $1`, jti)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// DeleteByPrincipal revokes every token a principal holds
func (r *TokenRepository) DeleteByPrincipal(ctx context.Context, principal authz.PrincipalRef) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM access_tokens WHERE principal_type = $1 AND principal_id = $2
	`, string(principal.Type), principal.ID)
	if err != nil {
		return fmt.Errorf("delete principal tokens: %w", err)
	}
	return nil
}
