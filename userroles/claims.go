// Package userroles provides the "st-role" and "st-perm" array claims.
package userroles

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/payload"
)

const (
	RoleClaimKey       = "st-role"
	PermissionClaimKey = "st-perm"

	// DefaultMaxAge is the default max age of both claims.
	DefaultMaxAge = 5 * time.Minute
)

// Lookup resolves a user's roles and permissions within a tenant.
type Lookup interface {
	GetRolesForUser(ctx context.Context, userID, tenantID string) ([]string, error)
	GetPermissionsForUser(ctx context.Context, userID, tenantID string) ([]string, error)
}

// NewRoleClaim creates the role claim.
func NewRoleClaim(lookup Lookup, opts ...claims.Option) *claims.PrimitiveArrayClaim[string] {
	fetch := func(ctx context.Context, userID, tenantID string, _ payload.Payload) (*[]string, error) {
		roles, err := lookup.GetRolesForUser(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		return nonNil(roles), nil
	}
	return claims.NewPrimitiveArrayClaim[string](RoleClaimKey, fetch, DefaultMaxAge, opts...)
}

// NewPermissionClaim creates the permission claim.
func NewPermissionClaim(lookup Lookup, opts ...claims.Option) *claims.PrimitiveArrayClaim[string] {
	fetch := func(ctx context.Context, userID, tenantID string, _ payload.Payload) (*[]string, error) {
		perms, err := lookup.GetPermissionsForUser(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		return nonNil(perms), nil
	}
	return claims.NewPrimitiveArrayClaim[string](PermissionClaimKey, fetch, DefaultMaxAge, opts...)
}

// nonNil keeps a user without roles distinguishable from a missing claim.
func nonNil(values []string) *[]string {
	if values == nil {
		values = []string{}
	}
	return &values
}
