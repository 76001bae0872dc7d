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

// AssignmentRepository implements authz.AssignmentRepository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Assign grants a role to a principal; repeating an existing grant is a no-op
func (r *AssignmentRepository) Assign(ctx context.Context, a *authz.RoleAssignment) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO principal_roles (principal_type, principal_id, role_id, team_id, granted_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, string(a.Principal.Type), a.Principal.ID, a.RoleID, a.TeamID, a.GrantedBy)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// Revoke removes one role assignment
func (r *AssignmentRepository) Revoke(ctx context.Context, p authz.PrincipalRef, roleID string, teamID *string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM principal_roles
		WHERE principal_type = $1 AND principal_id = $2 AND role_id = $3
		  AND team_id IS NOT DISTINCT FROM $4
	`, string(p.Type), p.ID, roleID, teamID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

// RoleIDs returns the roles a principal holds under (guard, team)
func (r *AssignmentRepository) RoleIDs(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT pr.role_id
		FROM principal_roles pr
		JOIN roles ro ON ro.id = pr.role_id
		WHERE pr.principal_type = $1 AND pr.principal_id = $2
		  AND ro.guard = $3 AND pr.team_id IS NOT DISTINCT FROM $4
	`, string(p.Type), p.ID, string(guard), teamID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ReplaceRoles swaps the principal's role set under (guard, team) in one
// transaction
func (r *AssignmentRepository) ReplaceRoles(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string, roleIDs []string) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin role sync: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM principal_roles pr
		USING roles ro
		WHERE ro.id = pr.role_id
		  AND pr.principal_type = $1 AND pr.principal_id = $2
		  AND ro.guard = $3 AND pr.team_id IS NOT DISTINCT FROM $4
	`, string(p.Type), p.ID, string(guard), teamID); err != nil {
		return fmt.Errorf("clear role assignments: %w", err)
	}

	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO principal_roles (principal_type, principal_id, role_id, team_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, string(p.Type), p.ID, roleID, teamID); err != nil {
			return fmt.Errorf("insert role assignment: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GrantDirect attaches a permission directly to a principal
func (r *AssignmentRepository) GrantDirect(ctx context.Context, g *authz.DirectGrant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO principal_permissions (principal_type, principal_id, permission_id, team_id, granted_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, string(g.Principal.Type), g.Principal.ID, g.PermissionID, g.TeamID, g.GrantedBy)
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}

// DirectPermissionIDs returns directly granted permission ids under
// (guard, team)
func (r *AssignmentRepository) DirectPermissionIDs(ctx context.Context, p authz.PrincipalRef, guard authz.Guard, teamID *string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT pp.permission_id
		FROM principal_permissions pp
		JOIN permissions pe ON pe.id = pp.permission_id
		WHERE pp.principal_type = $1 AND pp.principal_id = $2
		  AND pe.guard = $3 AND pp.team_id IS NOT DISTINCT FROM $4
	`, string(p.Type), p.ID, string(guard), teamID)
	if err != nil {
		return nil, fmt.Errorf("list direct grants: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ClearPrincipal drops every assignment and direct grant a principal holds
// under a team
func (r *AssignmentRepository) ClearPrincipal(ctx context.Context, p authz.PrincipalRef, teamID *string) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin principal clear: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM principal_roles
		WHERE principal_type = $1 AND principal_id = $2 AND team_id IS NOT DISTINCT FROM $3
	`, string(p.Type), p.ID, teamID); err != nil {
		return fmt.Errorf("clear role assignments: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM principal_permissions
		WHERE principal_type = $1 AND principal_id = $2 AND team_id IS NOT DISTINCT FROM $3
	`, string(p.Type), p.ID, teamID); err != nil {
		return fmt.Errorf("clear direct grants: %w", err)
	}
	return tx.Commit(ctx)
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
