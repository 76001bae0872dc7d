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
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/taskflow/taskflow/internal/tenant"
)

// TeamRepository implements tenant.Repository
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create inserts a team row
func (r *TeamRepository) Create(ctx context.Context, team *tenant.Team) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO teams (id, name, slug, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`, team.ID, team.Name, team.Slug, team.OwnerID, team.CreatedAt, team.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrSlugTaken
		}
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

// GetByID retrieves a team by id
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*tenant.Team, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetBySlug retrieves a team by slug
func (r *TeamRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Team, error) {
	return r.get(ctx, `WHERE slug = $1`, slug)
}

func (r *TeamRepository) get(ctx context.Context, where string, arg any) (*tenant.Team, error) {
	var team tenant.Team
	var ownerID sql.NullString
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM teams `+where, arg,
	).Scan(&team.ID, &team.Name, &team.Slug, &ownerID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrTeamNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	team.OwnerID = ownerID.String
	return &team, nil
}

// Update updates team name, slug and owner
func (r *TeamRepository) Update(ctx context.Context, team *tenant.Team) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE teams
		SET name = $2, slug = $3, owner_id = NULLIF($4, ''), updated_at = $5
		WHERE id = $1
	`, team.ID, team.Name, team.Slug, team.OwnerID, team.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrSlugTaken
		}
		return fmt.Errorf("update team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTeamNotFound
	}
	return nil
}

// Delete removes a team; member accounts, roles and grants cascade
func (r *TeamRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTeamNotFound
	}
	return nil
}

// List lists teams with pagination
func (r *TeamRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Team, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM teams
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var out []*tenant.Team
	for rows.Next() {
		var team tenant.Team
		var ownerID sql.NullString
		if err := rows.Scan(&team.ID, &team.Name, &team.Slug, &ownerID, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		team.OwnerID = ownerID.String
		out = append(out, &team)
	}
	return out, rows.Err()
}

// ListIDs returns every team id
func (r *TeamRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT id FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list team ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}
