// Package emailverification provides the "st-ev" claim, which records whether
// the session user's email address is verified.
package emailverification

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/payload"
)

const (
	ClaimKey = "st-ev"

	// DefaultRefetchTimeOnFalse is how long an unverified status is trusted
	// before IsVerified fetches it again.
	DefaultRefetchTimeOnFalse = 10 * time.Second

	// DefaultMaxAge is the claim's default max age.
	DefaultMaxAge = 5 * time.Minute
)

// StatusLookup reports whether a user's email address is verified.
type StatusLookup interface {
	IsEmailVerified(ctx context.Context, userID, tenantID string) (bool, error)
}

// StatusLookupFunc adapts a function to StatusLookup.
type StatusLookupFunc func(ctx context.Context, userID, tenantID string) (bool, error)

func (f StatusLookupFunc) IsEmailVerified(ctx context.Context, userID, tenantID string) (bool, error) {
	return f(ctx, userID, tenantID)
}

// Claim is the email verification claim.
type Claim struct {
	*claims.BooleanClaim
}

// NewClaim creates the claim backed by lookup.
func NewClaim(lookup StatusLookup, opts ...claims.Option) *Claim {
	fetch := func(ctx context.Context, userID, tenantID string, _ payload.Payload) (*bool, error) {
		verified, err := lookup.IsEmailVerified(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		return &verified, nil
	}
	return &Claim{BooleanClaim: claims.NewBooleanClaim(ClaimKey, fetch, DefaultMaxAge, opts...)}
}

// IsVerified passes when the email is verified. A false value is refetched
// once it is older than refetchTimeOnFalse, so a user who has just verified
// does not wait for maxAge. A zero maxAge disables the age limit on a true
// value.
func (c *Claim) IsVerified(refetchTimeOnFalse, maxAge time.Duration) claims.Validator {
	inner := c.Validators().IsTrue(claims.WithMaxAge(maxAge))

	shouldRefetch := func(ctx context.Context, p payload.Payload) bool {
		verified, ok := c.GetValue(p)
		if !ok || inner.ShouldRefetch(ctx, p) {
			return true
		}
		if verified {
			return false
		}
		age, ok := c.Age(p)
		return !ok || age > refetchTimeOnFalse
	}
	return claims.NewValidator(ClaimKey, c, shouldRefetch, inner.Validate)
}

// IsVerifiedDefault is IsVerified with the default refetch time and max age.
func (c *Claim) IsVerifiedDefault() claims.Validator {
	return c.IsVerified(DefaultRefetchTimeOnFalse, DefaultMaxAge)
}
