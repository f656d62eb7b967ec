package emailverification

import (
	"context"

	"github.com/jrsteele09/go-session-claims/users"
	"github.com/pkg/errors"
)

// UserRepoLookup reads the verified flag from a user repository. Unknown
// users are reported as unverified.
type UserRepoLookup struct {
	Users users.UserRepo
}

var _ StatusLookup = UserRepoLookup{}

func (l UserRepoLookup) IsEmailVerified(_ context.Context, userID, tenantID string) (bool, error) {
	u, err := l.Users.GetByID(userID)
	if errors.Is(err, users.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[UserRepoLookup.IsEmailVerified] GetByID")
	}
	return u.Verified && u.HasTenant(tenantID), nil
}
