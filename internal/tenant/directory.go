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

	"github.com/taskflow/taskflow/internal/authz"
)

// Directory exposes team existence and ownership to the authorization
// layer without handing it the whole repository.
type Directory struct {
	repo Repository
}

// NewDirectory wraps a repository as an authz.TeamDirectory.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

var _ authz.TeamDirectory = (*Directory)(nil)

// ListIDs returns every team id.
func (d *Directory) ListIDs(ctx context.Context) ([]string, error) {
	return d.repo.ListIDs(ctx)
}

// OwnerID returns the owner of teamID.
func (d *Directory) OwnerID(ctx context.Context, teamID string) (string, error) {
	team, err := d.repo.GetByID(ctx, teamID)
	if err != nil {
		return "", err
	}
	return team.OwnerID, nil
}
