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

// PermissionRepository implements authz.PermissionRepository
type PermissionRepository struct {
	db *DB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Create inserts a permission row
func (r *PermissionRepository) Create(ctx context.Context, p *authz.Permission) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO permissions (id, name, guard)
		VALUES ($1, $2, $3)
	`, p.ID, p.Name, string(p.Guard))
	if err != nil {
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

// GetByName retrieves a permission by (guard, name)
func (r *PermissionRepository) GetByName(ctx context.Context, guard authz.Guard, name string) (*authz.Permission, error) {
	var p authz.Permission
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, guard
		FROM permissions
		WHERE guard = $1 AND name = $2
	`, string(guard), name).Scan(&p.ID, &p.Name, &p.Guard)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, authz.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return &p, nil
}

// ListByGuard lists every permission under a guard
func (r *PermissionRepository) ListByGuard(ctx context.Context, guard authz.Guard) ([]*authz.Permission, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, guard
		FROM permissions
		WHERE guard = $1
		ORDER BY name
	`, string(guard))
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListByIDs retrieves permissions by id
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []string) ([]*authz.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, guard
		FROM permissions
		WHERE id = ANY($1)
		ORDER BY name
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows pgx.Rows) ([]*authz.Permission, error) {
	var out []*authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Guard); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
