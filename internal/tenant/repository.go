package tenant

import (
	"context"
	"errors"

	"github.com/taskflow/taskflow/internal/authz"
)

var (
	ErrTeamNotFound   = errors.New("team not found")
	ErrSlugTaken      = errors.New("team slug already in use")
	ErrMemberNotFound = errors.New("member not found")
	ErrOwnerRemoval   = errors.New("team owner cannot be removed")
)

// Repository defines the interface for team storage
type Repository interface {
	Create(ctx context.Context, team *Team) error
	GetByID(ctx context.Context, id string) (*Team, error)
	GetBySlug(ctx context.Context, slug string) (*Team, error)
	Update(ctx context.Context, team *Team) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Team, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// UserAccounts is the slice of the identity layer the tenant service
// needs: creating, listing and removing team-bound accounts.
type UserAccounts interface {
	CreateUser(ctx context.Context, teamID *string, name, email, password string) (*Member, error)
	GetMember(ctx context.Context, userID string) (*Member, error)
	ListByTeam(ctx context.Context, teamID string) ([]*Member, error)
	DeleteUser(ctx context.Context, userID string) error
	RevokeTokens(ctx context.Context, userID string) error
}

// RoleProvisioner instantiates the default team roles for a new team.
type RoleProvisioner interface {
	SyncTeam(ctx context.Context, teamID string) error
}

// RoleAssigner is the slice of the authorization store membership
// management needs. Satisfied by *authz.Store.
type RoleAssigner interface {
	SyncRoles(ctx context.Context, principal authz.Principal, guard authz.Guard, teamID *string, roleNames []string, grantedBy string) error
	ClearPrincipal(ctx context.Context, principal authz.Principal, teamID *string) error
}
