package claims_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newClock() *clock {
	return &clock{now: time.UnixMilli(1_700_000_000_000)}
}

func constFetch[T any](v T) claims.FetchValueFunc[T] {
	return func(context.Context, string, string, payload.Payload) (*T, error) {
		return &v, nil
	}
}

func nilFetch[T any]() claims.FetchValueFunc[T] {
	return func(context.Context, string, string, payload.Payload) (*T, error) {
		return nil, nil
	}
}

// roundTrip simulates a payload that has been through a token.
func roundTrip(t *testing.T, p payload.Payload) payload.Payload {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	var out payload.Payload
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestPrimitiveClaim_Payload(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	claim := claims.NewPrimitiveClaim("plan", constFetch("pro"), time.Minute, claims.WithNowFunc(clk.Now))

	t.Run("build writes a single fragment", func(t *testing.T) {
		update, err := claim.Build(ctx, "user-1", "public", payload.Payload{})
		require.NoError(t, err)
		require.Len(t, update, 1)

		v, ok := claim.GetValue(update)
		require.True(t, ok)
		require.Equal(t, "pro", v)

		fetchedAt, ok := claim.GetLastRefetchTime(ctx, update)
		require.True(t, ok)
		require.Equal(t, clk.now.UnixMilli(), fetchedAt)
	})

	t.Run("build with nil value removes by merge", func(t *testing.T) {
		empty := claims.NewPrimitiveClaim("plan", nilFetch[string](), time.Minute)
		update, err := empty.Build(ctx, "user-1", "public", payload.Payload{})
		require.NoError(t, err)
		v, present := update["plan"]
		require.True(t, present)
		require.Nil(t, v)
	})

	t.Run("fetch errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		failing := claims.NewPrimitiveClaim[string]("plan", func(context.Context, string, string, payload.Payload) (*string, error) {
			return nil, boom
		}, time.Minute)
		_, err := failing.Build(ctx, "user-1", "public", payload.Payload{})
		require.ErrorIs(t, err, boom)
	})

	t.Run("operations do not mutate their input", func(t *testing.T) {
		in := payload.Payload{"other": 1}
		added := claim.AddToPayload(ctx, in, "pro")
		require.NotContains(t, in, "plan")
		require.Contains(t, added, "plan")
		require.Equal(t, 1, added["other"])

		removed := claim.RemoveFromPayload(ctx, added)
		require.Contains(t, added, "plan")
		require.NotContains(t, removed, "plan")

		byMerge := claim.RemoveFromPayloadByMerge(ctx, added)
		require.Contains(t, byMerge, "plan")
		require.Nil(t, byMerge["plan"])
		require.NotNil(t, added["plan"])
	})

	t.Run("value survives a json round trip", func(t *testing.T) {
		counter := claims.NewPrimitiveClaim("count", constFetch(42), time.Minute, claims.WithNowFunc(clk.Now))
		p := roundTrip(t, counter.AddToPayload(ctx, payload.Payload{}, 42))

		v, ok := counter.GetValue(p)
		require.True(t, ok)
		require.Equal(t, 42, v)

		fetchedAt, ok := counter.GetLastRefetchTime(ctx, p)
		require.True(t, ok)
		require.Equal(t, clk.now.UnixMilli(), fetchedAt)
	})

	t.Run("missing value", func(t *testing.T) {
		_, ok := claim.GetValueFromPayload(ctx, payload.Payload{})
		require.False(t, ok)
		_, ok = claim.GetLastRefetchTime(ctx, payload.Payload{})
		require.False(t, ok)
	})
}

func TestPrimitiveValidators(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	claim := claims.NewPrimitiveClaim("plan", constFetch("pro"), time.Minute, claims.WithNowFunc(clk.Now))
	fresh := claim.AddToPayload(ctx, payload.Payload{}, "pro")

	t.Run("id defaults to the claim key", func(t *testing.T) {
		require.Equal(t, "plan", claim.Validators().HasValue("pro").ID())
		require.Equal(t, "plan-check", claim.Validators().HasValue("pro", claims.WithValidatorID("plan-check")).ID())
	})

	t.Run("has value passes", func(t *testing.T) {
		v := claim.Validators().HasValue("pro")
		require.False(t, v.ShouldRefetch(ctx, fresh))
		res, err := v.Validate(ctx, fresh)
		require.NoError(t, err)
		require.True(t, res.IsValid)
		require.Nil(t, res.Reason)
	})

	t.Run("has value reports wrong value", func(t *testing.T) {
		res, err := claim.Validators().HasValue("free").Validate(ctx, fresh)
		require.NoError(t, err)
		require.False(t, res.IsValid)
		require.Equal(t, claims.MessageWrongValue, res.Reason.Message)
		require.Equal(t, "free", res.Reason.ExpectedValue)
		require.Equal(t, "pro", res.Reason.ActualValue)
	})

	t.Run("missing value refetches and fails", func(t *testing.T) {
		v := claim.Validators().HasValue("pro")
		require.True(t, v.ShouldRefetch(ctx, payload.Payload{}))
		res, err := v.Validate(ctx, payload.Payload{})
		require.NoError(t, err)
		require.False(t, res.IsValid)
		require.Equal(t, claims.MessageValueMissing, res.Reason.Message)
		require.Equal(t, "pro", res.Reason.ExpectedValue)
	})

	t.Run("stale value refetches and reports expiry", func(t *testing.T) {
		old := claim.AddToPayload(ctx, payload.Payload{}, "pro")
		clk.now = clk.now.Add(2 * time.Minute)
		t.Cleanup(func() { clk.now = clk.now.Add(-2 * time.Minute) })

		v := claim.Validators().HasValue("pro")
		require.True(t, v.ShouldRefetch(ctx, old))
		res, err := v.Validate(ctx, old)
		require.NoError(t, err)
		require.False(t, res.IsValid)
		require.Equal(t, claims.MessageExpired, res.Reason.Message)
		require.Equal(t, int64(120), *res.Reason.AgeInSeconds)
		require.Equal(t, int64(60), *res.Reason.MaxAgeInSeconds)

		lenient := claim.Validators().HasValue("pro", claims.WithMaxAge(0))
		require.False(t, lenient.ShouldRefetch(ctx, old))
		res, err = lenient.Validate(ctx, old)
		require.NoError(t, err)
		require.True(t, res.IsValid)
	})

	t.Run("exists", func(t *testing.T) {
		v := claim.Validators().Exists()
		res, err := v.Validate(ctx, fresh)
		require.NoError(t, err)
		require.True(t, res.IsValid)

		res, err = v.Validate(ctx, payload.Payload{})
		require.NoError(t, err)
		require.False(t, res.IsValid)
		require.Equal(t, claims.MessageValueMissing, res.Reason.Message)
	})

	t.Run("registry", func(t *testing.T) {
		custom := claims.NewValidator("is-pro", claim, nil, func(ctx context.Context, p payload.Payload) (claims.ValidationResult, error) {
			return claims.Valid(), nil
		})
		claim.Validators().Register("isPro", custom)

		got, ok := claim.Validators().Get("isPro")
		require.True(t, ok)
		require.Same(t, custom, got)

		_, ok = claim.Validators().Get("missing")
		require.False(t, ok)
	})
}

func TestBooleanClaim(t *testing.T) {
	ctx := context.Background()
	claim := claims.NewBooleanClaim("st-ev", constFetch(false), 0)

	update, err := claim.Build(ctx, "user-1", "public", payload.Payload{})
	require.NoError(t, err)

	res, err := claim.Validators().IsTrue().Validate(ctx, update)
	require.NoError(t, err)
	require.False(t, res.IsValid)
	require.Equal(t, claims.MessageWrongValue, res.Reason.Message)
	require.Equal(t, true, res.Reason.ExpectedValue)
	require.Equal(t, false, res.Reason.ActualValue)

	res, err = claim.Validators().IsFalse().Validate(ctx, roundTrip(t, update))
	require.NoError(t, err)
	require.True(t, res.IsValid)
}

func TestPrimitiveArrayClaim(t *testing.T) {
	ctx := context.Background()
	claim := claims.NewPrimitiveArrayClaim("st-role", constFetch([]string{"admin", "user"}), 0)

	update, err := claim.Build(ctx, "user-1", "public", payload.Payload{})
	require.NoError(t, err)
	decoded := roundTrip(t, update)

	v := claim.Validators()
	tests := []struct {
		name      string
		validator claims.Validator
		valid     bool
		check     func(t *testing.T, r *claims.Reason)
	}{
		{name: "includes", validator: v.Includes("admin"), valid: true},
		{name: "includes missing", validator: v.Includes("root"), check: func(t *testing.T, r *claims.Reason) {
			require.Equal(t, "root", r.ExpectedToInclude)
		}},
		{name: "excludes", validator: v.Excludes("root"), valid: true},
		{name: "excludes present", validator: v.Excludes("user"), check: func(t *testing.T, r *claims.Reason) {
			require.Equal(t, "user", r.ExpectedToNotInclude)
		}},
		{name: "includes all", validator: v.IncludesAll([]string{"admin", "user"}), valid: true},
		{name: "includes all partial", validator: v.IncludesAll([]string{"admin", "root"}), check: func(t *testing.T, r *claims.Reason) {
			require.Equal(t, "root", r.ExpectedToInclude)
		}},
		{name: "includes any", validator: v.IncludesAny([]string{"root", "user"}), valid: true},
		{name: "includes any none", validator: v.IncludesAny([]string{"root", "guest"}), check: func(t *testing.T, r *claims.Reason) {
			require.Equal(t, []string{"root", "guest"}, r.IncludeAny)
		}},
		{name: "excludes all", validator: v.ExcludesAll([]string{"root", "guest"}), valid: true},
		{name: "excludes all overlap", validator: v.ExcludesAll([]string{"guest", "admin"}), check: func(t *testing.T, r *claims.Reason) {
			require.Equal(t, "admin", r.ExpectedToNotInclude)
		}},
		{name: "exists", validator: v.Exists(), valid: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, p := range []payload.Payload{update, decoded} {
				res, err := tc.validator.Validate(ctx, p)
				require.NoError(t, err)
				require.Equal(t, tc.valid, res.IsValid)
				if !tc.valid {
					require.Equal(t, claims.MessageWrongValue, res.Reason.Message)
					tc.check(t, res.Reason)
				}
			}
		})
	}

	t.Run("missing array", func(t *testing.T) {
		res, err := v.Includes("admin").Validate(ctx, payload.Payload{})
		require.NoError(t, err)
		require.False(t, res.IsValid)
		require.Equal(t, claims.MessageValueMissing, res.Reason.Message)
		require.Equal(t, "admin", res.Reason.ExpectedToInclude)
		require.True(t, v.Includes("admin").ShouldRefetch(ctx, payload.Payload{}))
	})
}
