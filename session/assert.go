package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/pkg/errors"
)

// AssertClaims runs validators in order against the session payload and
// returns the first failure as a *ClaimValidationError.
//
// A validator that asks for a refetch has its claim fetched and merged into
// the payload before it validates. Each claim is fetched at most once per
// call, however many validators share it. An empty list returns without
// touching the payload. Errors from the backing recipe and from fetches are
// returned unchanged and are never retried.
func (s *Session) AssertClaims(ctx context.Context, validators []claims.Validator) error {
	if len(validators) == 0 {
		return nil
	}

	refetched := make(map[string]struct{}, len(validators))
	for _, v := range validators {
		if v.ShouldRefetch(ctx, s.payload) {
			if err := s.refetch(ctx, v, refetched); err != nil {
				return err
			}
		}

		res, err := v.Validate(ctx, s.payload)
		if errors.Is(err, claims.ErrMisconfigured) {
			return &InputError{Message: fmt.Sprintf("validator %q: %v", v.ID(), err)}
		}
		if err != nil {
			return err
		}
		if !res.IsValid {
			return &ClaimValidationError{
				InvalidClaims: []claims.InvalidClaim{{ID: v.ID(), Reason: res.Reason}},
			}
		}
	}
	return nil
}

func (s *Session) refetch(ctx context.Context, v claims.Validator, refetched map[string]struct{}) error {
	c := v.Claim()
	if c == nil {
		return &InputError{Message: fmt.Sprintf("validator %q asked for a refetch but has no claim", v.ID())}
	}
	if _, done := refetched[c.Key()]; done {
		return nil
	}
	refetched[c.Key()] = struct{}{}

	update, err := c.Build(ctx, s.userID, s.tenantID, s.payload)
	if err != nil {
		return err
	}
	return s.MergeIntoAccessTokenPayload(ctx, update)
}
