package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/jrsteele09/go-session-claims/session/recipefake"
	"github.com/stretchr/testify/require"
)

const testHandle = "test-session-handle"

func newSession(f *recipefake.FakeRecipe, p payload.Payload) *session.Session {
	f.AddSession(testHandle, "test-user", "public", p)
	st := f.State(testHandle)
	return session.New(f, session.Params{
		Handle:             st.Handle,
		UserID:             st.UserID,
		TenantID:           st.TenantID,
		AccessTokenPayload: st.AccessTokenPayload,
		Tokens:             st.Tokens,
	})
}

// countingBoolClaim returns a boolean claim that always fetches value and a
// pointer to its fetch counter.
func countingBoolClaim(key string, value bool) (*claims.BooleanClaim, *int) {
	calls := 0
	claim := claims.NewBooleanClaim(key, func(context.Context, string, string, payload.Payload) (*bool, error) {
		calls++
		v := value
		return &v, nil
	}, 0)
	return claim, &calls
}

func staticValidator(id string, valid bool, calls *int) claims.Validator {
	return claims.NewValidator(id, nil, nil, func(context.Context, payload.Payload) (claims.ValidationResult, error) {
		if calls != nil {
			*calls++
		}
		if valid {
			return claims.Valid(), nil
		}
		return claims.Invalid(&claims.Reason{Message: "always invalid"}), nil
	})
}

func TestAssertClaims_EmptyListDoesNotMerge(t *testing.T) {
	fake := recipefake.NewFakeRecipe()
	s := newSession(fake, payload.Payload{})

	require.NoError(t, s.AssertClaims(context.Background(), nil))
	require.NoError(t, s.AssertClaims(context.Background(), []claims.Validator{}))
	require.Equal(t, 0, fake.Calls(recipefake.OpRegenerateAccessToken))
	require.False(t, s.AccessTokenUpdated())
}

func TestAssertClaims_ValidatesTheSessionPayloadObject(t *testing.T) {
	fake := recipefake.NewFakeRecipe()
	s := newSession(fake, payload.Payload{"custom-key": "custom-value"})
	expected := s.AccessTokenPayload()

	dummy := claims.NewPrimitiveClaim("st-claim", func(context.Context, string, string, payload.Payload) (*string, error) {
		v := "Hello world"
		return &v, nil
	}, 0)

	var refetchPtr, validatePtr uintptr
	validateCalls := map[string]int{}
	validator := claims.NewValidator("claim_validator_id", dummy,
		func(_ context.Context, p payload.Payload) bool {
			refetchPtr = reflect.ValueOf(p).Pointer()
			return false
		},
		func(_ context.Context, p payload.Payload) (claims.ValidationResult, error) {
			validatePtr = reflect.ValueOf(p).Pointer()
			b, err := json.Marshal(p)
			require.NoError(t, err)
			validateCalls[string(b)]++
			return claims.Valid(), nil
		},
	)
	dummy.Validators().Register("dummy", validator)
	registered, ok := dummy.Validators().Get("dummy")
	require.True(t, ok)

	require.NoError(t, s.AssertClaims(context.Background(), []claims.Validator{registered}))

	b, err := json.Marshal(expected)
	require.NoError(t, err)
	require.Equal(t, map[string]int{string(b): 1}, validateCalls)
	require.Equal(t, refetchPtr, validatePtr)
	require.Equal(t, 0, fake.Calls(recipefake.OpRegenerateAccessToken))
}

func TestAssertClaims_SharedClaimFetchedOnce(t *testing.T) {
	fake := recipefake.NewFakeRecipe()
	s := newSession(fake, payload.Payload{})
	claim, fetches := countingBoolClaim("st-ev", true)

	alwaysRefetch := claims.NewValidator("force", claim,
		func(context.Context, payload.Payload) bool { return true },
		func(context.Context, payload.Payload) (claims.ValidationResult, error) { return claims.Valid(), nil },
	)

	err := s.AssertClaims(context.Background(), []claims.Validator{
		claim.Validators().IsTrue(),
		alwaysRefetch,
		claim.Validators().Exists(),
		alwaysRefetch,
	})
	require.NoError(t, err)
	require.Equal(t, 1, *fetches)
	require.Equal(t, 1, fake.Calls(recipefake.OpRegenerateAccessToken))
}

func TestAssertClaims_FailFast(t *testing.T) {
	fake := recipefake.NewFakeRecipe()
	s := newSession(fake, payload.Payload{})

	var v1Calls, v2Calls, v3Calls int
	err := s.AssertClaims(context.Background(), []claims.Validator{
		staticValidator("v1", true, &v1Calls),
		staticValidator("v2", false, &v2Calls),
		staticValidator("v3", true, &v3Calls),
	})

	var cve *session.ClaimValidationError
	require.ErrorAs(t, err, &cve)
	require.ErrorIs(t, err, session.ErrInvalidClaims)
	require.Len(t, cve.InvalidClaims, 1)
	require.Equal(t, "v2", cve.InvalidClaims[0].ID)
	require.Equal(t, "always invalid", cve.InvalidClaims[0].Reason.Message)
	require.Equal(t, 1, v1Calls)
	require.Equal(t, 1, v2Calls)
	require.Equal(t, 0, v3Calls)
}

func TestAssertClaims_EmailVerified(t *testing.T) {
	ctx := context.Background()

	t.Run("fetched true passes after one fetch and merge", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{})
		before := s.AccessToken()
		claim, fetches := countingBoolClaim("email-verified", true)

		require.NoError(t, s.AssertClaims(ctx, []claims.Validator{claim.Validators().IsTrue()}))
		require.Equal(t, 1, *fetches)
		require.Equal(t, 1, fake.Calls(recipefake.OpRegenerateAccessToken))
		require.True(t, s.AccessTokenUpdated())
		require.NotEqual(t, before, s.AccessToken())

		v, ok := s.GetClaimValue(ctx, claim)
		require.True(t, ok)
		require.Equal(t, true, v)
	})

	t.Run("fetched false fails with expected and actual", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{})
		claim, fetches := countingBoolClaim("email-verified", false)

		err := s.AssertClaims(ctx, []claims.Validator{claim.Validators().IsTrue()})
		var cve *session.ClaimValidationError
		require.ErrorAs(t, err, &cve)
		require.Len(t, cve.InvalidClaims, 1)
		reason := cve.InvalidClaims[0].Reason
		require.Equal(t, claims.MessageWrongValue, reason.Message)
		require.Equal(t, true, reason.ExpectedValue)
		require.Equal(t, false, reason.ActualValue)
		require.Equal(t, 1, *fetches)
	})
}

func TestAssertClaims_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("refetch without a claim is an input error", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{})
		v := claims.NewValidator("orphan", nil,
			func(context.Context, payload.Payload) bool { return true },
			func(context.Context, payload.Payload) (claims.ValidationResult, error) { return claims.Valid(), nil },
		)

		err := s.AssertClaims(ctx, []claims.Validator{v})
		var inputErr *session.InputError
		require.ErrorAs(t, err, &inputErr)
		require.ErrorIs(t, err, session.ErrInput)
		require.Contains(t, err.Error(), "orphan")
	})

	t.Run("misconfigured validator is an input error", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{})
		v := claims.NewValidator("broken", nil, nil,
			func(context.Context, payload.Payload) (claims.ValidationResult, error) {
				return claims.ValidationResult{}, fmt.Errorf("includes on a scalar claim: %w", claims.ErrMisconfigured)
			},
		)

		err := s.AssertClaims(ctx, []claims.Validator{v})
		var inputErr *session.InputError
		require.ErrorAs(t, err, &inputErr)
		require.ErrorIs(t, err, session.ErrInput)
		require.Contains(t, err.Error(), "broken")
	})

	t.Run("fetch errors propagate unchanged", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{})
		boom := errors.New("core unavailable")
		claim := claims.NewBooleanClaim("st-ev", func(context.Context, string, string, payload.Payload) (*bool, error) {
			return nil, boom
		}, 0)

		err := s.AssertClaims(ctx, []claims.Validator{claim.Validators().IsTrue()})
		require.Equal(t, boom, err)
		require.Equal(t, 0, fake.Calls(recipefake.OpRegenerateAccessToken))
	})

	t.Run("unauthorised merge aborts the assertion", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{})
		fake.Forget(testHandle)
		claim, _ := countingBoolClaim("st-ev", true)
		var laterCalls int

		err := s.AssertClaims(ctx, []claims.Validator{claim.Validators().IsTrue(), staticValidator("later", true, &laterCalls)})
		require.ErrorIs(t, err, session.ErrUnauthorised)
		require.Equal(t, 0, laterCalls)
	})

	t.Run("nil fetched value removes the claim", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		claim := claims.NewPrimitiveClaim("plan", func(context.Context, string, string, payload.Payload) (*string, error) {
			return nil, nil
		}, 0)
		s := newSession(fake, claim.AddToPayload(ctx, payload.Payload{}, "pro"))

		force := claims.NewValidator("force", claim,
			func(context.Context, payload.Payload) bool { return true },
			func(context.Context, payload.Payload) (claims.ValidationResult, error) { return claims.Valid(), nil },
		)
		require.NoError(t, s.AssertClaims(ctx, []claims.Validator{force}))
		require.NotContains(t, s.AccessTokenPayload(), "plan")
	})
}

func TestMergeIntoAccessTokenPayload(t *testing.T) {
	ctx := context.Background()

	t.Run("overlays and deletes keys", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{"keep": 1, "drop": 2, "nested": map[string]any{"a": 1}})

		err := s.MergeIntoAccessTokenPayload(ctx, payload.Payload{
			"drop":   payload.Delete,
			"added":  "x",
			"nested": map[string]any{"b": 2},
		})
		require.NoError(t, err)

		p := s.AccessTokenPayload()
		require.Equal(t, 1, p["keep"])
		require.Equal(t, "x", p["added"])
		require.NotContains(t, p, "drop")
		require.Equal(t, map[string]any{"b": 2}, p["nested"])
		require.True(t, s.AccessTokenUpdated())
	})

	t.Run("protected keys are not sent", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{})

		require.NoError(t, s.MergeIntoAccessTokenPayload(ctx, payload.Payload{payload.KeySubject: "someone-else", "k": "v"}))
		sent := fake.RegeneratedPayloads()
		require.Len(t, sent, 1)
		require.NotContains(t, sent[0], payload.KeySubject)
		require.NotContains(t, sent[0], payload.KeySessionHandle)
		require.Equal(t, "test-user", s.AccessTokenPayload()[payload.KeySubject])
	})

	t.Run("unauthorised error propagates and payload is unchanged", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{"k": "v"})
		before := s.AccessTokenPayload()
		token := s.AccessToken()
		unauthorised := &session.UnauthorisedError{Message: "session revoked", ClearTokens: true}
		fake.FailWith(recipefake.OpRegenerateAccessToken, unauthorised)

		err := s.MergeIntoAccessTokenPayload(ctx, payload.Payload{"k": "changed"})
		require.Equal(t, unauthorised, err)
		require.ErrorIs(t, err, session.ErrUnauthorised)
		require.Equal(t, before, s.AccessTokenPayload())
		require.Equal(t, token, s.AccessToken())
		require.False(t, s.AccessTokenUpdated())
	})

	t.Run("unknown session becomes unauthorised", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{"k": "v"})
		before := s.AccessTokenPayload()
		fake.Forget(testHandle)

		err := s.MergeIntoAccessTokenPayload(ctx, payload.Payload{"k": "changed"})
		var unauthorised *session.UnauthorisedError
		require.ErrorAs(t, err, &unauthorised)
		require.True(t, unauthorised.ClearTokens)
		require.Equal(t, before, s.AccessTokenPayload())
	})

	t.Run("returned payload is a copy", func(t *testing.T) {
		fake := recipefake.NewFakeRecipe()
		s := newSession(fake, payload.Payload{"k": "v"})
		p := s.AccessTokenPayload()
		p["k"] = "mutated"
		require.Equal(t, "v", s.AccessTokenPayload()["k"])
	})
}

func TestSession_ClaimHelpers(t *testing.T) {
	ctx := context.Background()
	fake := recipefake.NewFakeRecipe()
	s := newSession(fake, payload.Payload{})
	claim, fetches := countingBoolClaim("st-ev", true)

	require.NoError(t, s.FetchAndSetClaim(ctx, claim))
	require.Equal(t, 1, *fetches)
	v, ok := s.GetClaimValue(ctx, claim)
	require.True(t, ok)
	require.Equal(t, true, v)

	require.NoError(t, s.SetClaimValue(ctx, claim, false))
	v, ok = s.GetClaimValue(ctx, claim)
	require.True(t, ok)
	require.Equal(t, false, v)

	require.NoError(t, s.RemoveClaim(ctx, claim))
	_, ok = s.GetClaimValue(ctx, claim)
	require.False(t, ok)
	require.Equal(t, 3, fake.Calls(recipefake.OpRegenerateAccessToken))
}

func TestSession_DatabaseOperations(t *testing.T) {
	ctx := context.Background()
	fake := recipefake.NewFakeRecipe()
	s := newSession(fake, payload.Payload{})

	require.NoError(t, s.UpdateSessionDataInDatabase(ctx, payload.Payload{"cart": 3}))
	data, err := s.GetSessionDataFromDatabase(ctx)
	require.NoError(t, err)
	require.Equal(t, payload.Payload{"cart": 3}, data)

	created, err := s.GetTimeCreated(ctx)
	require.NoError(t, err)
	expiry, err := s.GetExpiry(ctx)
	require.NoError(t, err)
	require.True(t, expiry.After(created))

	tokens := s.AllSessionTokensDangerously()
	require.Equal(t, s.AccessToken(), tokens.AccessToken)
	require.False(t, tokens.AccessAndFrontTokenUpdated)

	require.NoError(t, s.RevokeSession(ctx))
	require.NoError(t, s.RevokeSession(ctx))

	_, err = s.GetSessionDataFromDatabase(ctx)
	require.ErrorIs(t, err, session.ErrUnauthorised)
	err = s.UpdateSessionDataInDatabase(ctx, payload.Payload{})
	require.ErrorIs(t, err, session.ErrUnauthorised)
}
