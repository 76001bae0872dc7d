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
	"os"
	"time"

	"github.com/taskflow/taskflow/internal/audit"
	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/id"
	"github.com/taskflow/taskflow/internal/registry"
)

const (
	EnvBootstrapAdminEmail    = "TF_BOOTSTRAP_ADMIN_EMAIL"
	EnvBootstrapAdminPassword = "TF_BOOTSTRAP_ADMIN_PASSWORD"
)

// BootstrapService seeds the first platform operator. It runs after the
// registry sync, which guarantees the super-admin role row exists.
type BootstrapService struct {
	superAdmins SuperAdminRepository
	authzStore  *authz.Store
	hasher      *PasswordHasher
	auditLogger audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(
	superAdmins SuperAdminRepository,
	authzStore *authz.Store,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
) *BootstrapService {
	return &BootstrapService{
		superAdmins: superAdmins,
		authzStore:  authzStore,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// Bootstrap creates the operator account named by the environment and
// assigns it the top role. A no-op when the variables are unset or the
// account already exists.
func (s *BootstrapService) Bootstrap(ctx context.Context) error {
	email := os.Getenv(EnvBootstrapAdminEmail)
	password := os.Getenv(EnvBootstrapAdminPassword)
	if email == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("%s is set but %s is empty", EnvBootstrapAdminEmail, EnvBootstrapAdminPassword)
	}

	if _, err := s.superAdmins.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("check bootstrap admin: %w", err)
	}

	if !isStrongPassword(password) {
		return ErrWeakPassword
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	now := time.Now()
	admin := &SuperAdminUser{
		ID:           id.NewUUIDv7(),
		Name:         "Super Admin",
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.superAdmins.Create(ctx, admin); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	if err := s.authzStore.SyncRoles(ctx, admin.Principal(), authz.GuardSuperAdmin, nil,
		[]string{registry.RoleSuperAdmin}, audit.ActorSync); err != nil {
		return fmt.Errorf("assign bootstrap role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		ActorID:  audit.ActorSync,
		Resource: registry.RoleSuperAdmin,
		Metadata: map[string]any{audit.AttrEmail: email},
	})
	return nil
}
