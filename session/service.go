package session

import (
	"context"
	"maps"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/payload"
)

// Config configures a Recipe.
type Config struct {
	// GlobalClaimValidators are asserted on every GetSession, and their claims
	// are fetched into the payload when a session is created.
	GlobalClaimValidators []claims.Validator
}

// VerifyOptions tunes a single GetSession call.
type VerifyOptions struct {
	AntiCSRFToken *string
	AntiCSRFCheck bool
	CheckDatabase bool

	// OverrideGlobalClaimValidators replaces the global validators for this
	// call. It receives the configured globals and the verified session.
	OverrideGlobalClaimValidators func(globals []claims.Validator, s *Session) []claims.Validator
}

// Recipe is the session entry point handed to request handlers. It is built
// once at startup; nothing about it is global.
type Recipe struct {
	cfg  Config
	impl RecipeInterface
}

// NewRecipe creates a Recipe over impl with overrides layered in order.
func NewRecipe(cfg Config, impl RecipeInterface, overrides ...Override) *Recipe {
	return &Recipe{
		cfg:  cfg,
		impl: Apply(impl, overrides...),
	}
}

// Implementation returns the RecipeInterface after overrides were applied.
func (r *Recipe) Implementation() RecipeInterface {
	return r.impl
}

// GlobalClaimValidators returns the configured global validators.
func (r *Recipe) GlobalClaimValidators() []claims.Validator {
	return r.cfg.GlobalClaimValidators
}

// CreateNewSession fetches the global claims into the initial payload and
// creates a session.
func (r *Recipe) CreateNewSession(ctx context.Context, in CreateSessionInput) (*Session, error) {
	initial := payload.StripProtected(in.AccessTokenPayload)
	seen := make(map[string]struct{})
	for _, v := range r.cfg.GlobalClaimValidators {
		c := v.Claim()
		if c == nil {
			continue
		}
		if _, ok := seen[c.Key()]; ok {
			continue
		}
		seen[c.Key()] = struct{}{}

		update, err := c.Build(ctx, in.UserID, in.TenantID, initial)
		if err != nil {
			return nil, err
		}
		initial = payload.Merge(initial, update)
	}
	in.AccessTokenPayload = initial

	st, err := r.impl.CreateNewSession(ctx, in)
	if err != nil {
		return nil, err
	}
	return fromState(r.impl, st), nil
}

// GetSession verifies accessToken and asserts the claim validators for the
// call on the resulting session.
func (r *Recipe) GetSession(ctx context.Context, accessToken string, opts VerifyOptions) (*Session, error) {
	st, err := r.impl.GetSession(ctx, accessToken, GetSessionOptions{
		AntiCSRFToken:   opts.AntiCSRFToken,
		DoAntiCSRFCheck: opts.AntiCSRFCheck,
		CheckDatabase:   opts.CheckDatabase,
	})
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, &UnauthorisedError{Message: "session does not exist", ClearTokens: true}
	}

	s := fromState(r.impl, st)
	validators := r.cfg.GlobalClaimValidators
	if opts.OverrideGlobalClaimValidators != nil {
		validators = opts.OverrideGlobalClaimValidators(validators, s)
	}
	if err := s.AssertClaims(ctx, validators); err != nil {
		return nil, err
	}
	return s, nil
}

// RefreshSession exchanges a refresh token for a new token set.
func (r *Recipe) RefreshSession(ctx context.Context, refreshToken string, antiCSRFToken *string) (*Session, error) {
	st, err := r.impl.RefreshSession(ctx, refreshToken, antiCSRFToken)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, &UnauthorisedError{Message: "session does not exist", ClearTokens: true}
	}
	return fromState(r.impl, st), nil
}

func (r *Recipe) RevokeSession(ctx context.Context, handle string) (bool, error) {
	return r.impl.RevokeSession(ctx, handle)
}

func (r *Recipe) RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	return r.impl.RevokeAllSessionsForUser(ctx, userID, tenantID)
}

func (r *Recipe) GetAllSessionHandlesForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	return r.impl.GetAllSessionHandlesForUser(ctx, userID, tenantID)
}

func (r *Recipe) GetSessionInformation(ctx context.Context, handle string) (*SessionInformation, error) {
	return r.impl.GetSessionInformation(ctx, handle)
}

func (r *Recipe) UpdateSessionDataInDatabase(ctx context.Context, handle string, data payload.Payload) (bool, error) {
	return r.impl.UpdateSessionDataInDatabase(ctx, handle, data)
}

// MergeIntoAccessTokenPayload updates the stored payload of any session by
// handle. The change reaches the client on the session's next refresh.
func (r *Recipe) MergeIntoAccessTokenPayload(ctx context.Context, handle string, update payload.Payload) (bool, error) {
	return r.impl.MergeIntoAccessTokenPayload(ctx, handle, payload.StripProtected(update))
}

func (r *Recipe) info(ctx context.Context, handle string) (*SessionInformation, error) {
	info, err := r.impl.GetSessionInformation(ctx, handle)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrUnknownSession
	}
	return info, nil
}

// FetchAndSetClaim refetches a claim for the session behind handle. It
// reports false when the session does not exist.
func (r *Recipe) FetchAndSetClaim(ctx context.Context, handle string, c claims.Claim) (bool, error) {
	info, err := r.impl.GetSessionInformation(ctx, handle)
	if err != nil || info == nil {
		return false, err
	}
	update, err := c.Build(ctx, info.UserID, info.TenantID, info.AccessTokenPayload)
	if err != nil {
		return false, err
	}
	return r.impl.MergeIntoAccessTokenPayload(ctx, handle, update)
}

// SetClaimValue stores value for a claim of the session behind handle.
func (r *Recipe) SetClaimValue(ctx context.Context, handle string, c claims.Claim, value any) (bool, error) {
	return r.impl.MergeIntoAccessTokenPayload(ctx, handle, c.AddToPayload(ctx, payload.Payload{}, value))
}

// GetClaimValue reads a claim from the stored payload of the session behind
// handle. It returns ErrUnknownSession when there is no such session.
func (r *Recipe) GetClaimValue(ctx context.Context, handle string, c claims.Claim) (any, bool, error) {
	info, err := r.info(ctx, handle)
	if err != nil {
		return nil, false, err
	}
	v, ok := c.GetValueFromPayload(ctx, info.AccessTokenPayload)
	return v, ok, nil
}

// RemoveClaim deletes a claim from the session behind handle.
func (r *Recipe) RemoveClaim(ctx context.Context, handle string, c claims.Claim) (bool, error) {
	return r.impl.MergeIntoAccessTokenPayload(ctx, handle, c.RemoveFromPayloadByMerge(ctx, payload.Payload{}))
}

// ValidateClaimsForSessionHandle checks a stored session against the global
// validators, or against the result of override when it is set. Unlike
// AssertClaims it evaluates every validator and returns all failures.
// Refetched values are written back to the session in one merge.
func (r *Recipe) ValidateClaimsForSessionHandle(
	ctx context.Context,
	handle string,
	override func(globals []claims.Validator, info *SessionInformation) []claims.Validator,
) ([]claims.InvalidClaim, error) {
	info, err := r.info(ctx, handle)
	if err != nil {
		return nil, err
	}

	validators := r.cfg.GlobalClaimValidators
	if override != nil {
		validators = override(validators, info)
	}

	current := info.AccessTokenPayload
	changes := payload.Payload{}
	refetched := make(map[string]struct{})
	var invalid []claims.InvalidClaim

	for _, v := range validators {
		if v.ShouldRefetch(ctx, current) {
			c := v.Claim()
			if c == nil {
				return nil, &InputError{Message: "validator " + v.ID() + " asked for a refetch but has no claim"}
			}
			if _, done := refetched[c.Key()]; !done {
				refetched[c.Key()] = struct{}{}
				update, err := c.Build(ctx, info.UserID, info.TenantID, current)
				if err != nil {
					return nil, err
				}
				current = payload.Merge(current, update)
				maps.Copy(changes, update)
			}
		}

		res, err := v.Validate(ctx, current)
		if err != nil {
			return nil, err
		}
		if !res.IsValid {
			invalid = append(invalid, claims.InvalidClaim{ID: v.ID(), Reason: res.Reason})
		}
	}

	if len(changes) > 0 {
		ok, err := r.impl.MergeIntoAccessTokenPayload(ctx, handle, changes)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrUnknownSession
		}
	}
	return invalid, nil
}
