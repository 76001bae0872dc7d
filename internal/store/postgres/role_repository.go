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
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create inserts a role row, mapping unique violations to ErrDuplicateRole
func (r *RoleRepository) Create(ctx context.Context, role *authz.Role) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO roles (id, name, guard, team_id)
		VALUES ($1, $2, $3, $4)
	`, role.ID, role.Name, string(role.Guard), role.TeamID)
	if err != nil {
		if isUniqueViolation(err) {
			return authz.ErrDuplicateRole
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

// GetByID retrieves a role by id
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*authz.Role, error) {
	var role authz.Role
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, guard, team_id
		FROM roles
		WHERE id = $1
	`, id).Scan(&role.ID, &role.Name, &role.Guard, &role.TeamID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &role, nil
}

// GetByName retrieves a role by (guard, team, name)
func (r *RoleRepository) GetByName(ctx context.Context, guard authz.Guard, teamID *string, name string) (*authz.Role, error) {
	var role authz.Role
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, guard, team_id
		FROM roles
		WHERE guard = $1 AND team_id IS NOT DISTINCT FROM $2 AND name = $3
	`, string(guard), teamID, name).Scan(&role.ID, &role.Name, &role.Guard, &role.TeamID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &role, nil
}

// ListByIDs retrieves roles by id
func (r *RoleRepository) ListByIDs(ctx context.Context, ids []string) ([]*authz.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, guard, team_id
		FROM roles
		WHERE id = ANY($1)
		ORDER BY name
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

// List lists the roles under (guard, team)
func (r *RoleRepository) List(ctx context.Context, guard authz.Guard, teamID *string) ([]*authz.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, guard, team_id
		FROM roles
		WHERE guard = $1 AND team_id IS NOT DISTINCT FROM $2
		ORDER BY name
	`, string(guard), teamID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

// Rename changes a role's name, mapping unique violations to ErrDuplicateRole
func (r *RoleRepository) Rename(ctx context.Context, id, name string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE roles SET name = $2 WHERE id = $1
	`, id, name)
	if err != nil {
		if isUniqueViolation(err) {
			return authz.ErrDuplicateRole
		}
		return fmt.Errorf("rename role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}
	return nil
}

// Delete removes a role; grants and assignments cascade
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}
	return nil
}

// ReplaceGrants swaps a role's permission set in one transaction
func (r *RoleRepository) ReplaceGrants(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin grant sync: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role grants: %w", err)
	}
	for _, pid := range permissionIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, roleID, pid); err != nil {
			return fmt.Errorf("insert role grant: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GrantIDs returns the permission ids granted to a role
func (r *RoleRepository) GrantIDs(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT permission_id FROM role_permissions WHERE role_id = $1
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role grants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRoles(rows pgx.Rows) ([]*authz.Role, error) {
	var out []*authz.Role
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Guard, &role.TeamID); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, &role)
	}
	return out, rows.Err()
}
