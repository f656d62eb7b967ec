package userroles

import (
	"context"

	"github.com/jrsteele09/go-session-claims/users"
	"github.com/pkg/errors"
)

// UserRepoLookup reads roles from tenant memberships and expands them to
// permissions with a RolePermissions table.
type UserRepoLookup struct {
	Users       users.UserRepo
	Permissions users.RolePermissions
}

var _ Lookup = UserRepoLookup{}

func (l UserRepoLookup) GetRolesForUser(_ context.Context, userID, tenantID string) ([]string, error) {
	u, err := l.Users.GetByID(userID)
	if errors.Is(err, users.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepoLookup.GetRolesForUser] GetByID")
	}
	return u.GetRolesForTenant(tenantID), nil
}

func (l UserRepoLookup) GetPermissionsForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	roles, err := l.GetRolesForUser(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	table := l.Permissions
	if table == nil {
		table = users.DefaultRolePermissions
	}
	return table.PermissionsFor(roles), nil
}
