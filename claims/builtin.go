package claims

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/pkg/errors"
)

// ErrMisconfigured is returned by Validate when a validator was built with a
// family its claim does not support.
var ErrMisconfigured = errors.New("misconfigured validator")

// kind tags the built-in validator families.
type kind uint8

const (
	kindHasValue kind = iota + 1
	kindExists
	kindIncludes
	kindExcludes
	kindIncludesAll
	kindIncludesAny
	kindExcludesAll
)

func (k kind) String() string {
	switch k {
	case kindHasValue:
		return "hasValue"
	case kindExists:
		return "exists"
	case kindIncludes:
		return "includes"
	case kindExcludes:
		return "excludes"
	case kindIncludesAll:
		return "includesAll"
	case kindIncludesAny:
		return "includesAny"
	case kindExcludesAll:
		return "excludesAll"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (c *base[T]) isStale(p payload.Payload, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	age, ok := c.Age(p)
	return !ok || age > maxAge
}

func (c *base[T]) expiredReason(p payload.Payload, maxAge time.Duration) *Reason {
	if maxAge <= 0 {
		return nil
	}
	age, ok := c.Age(p)
	if ok && age <= maxAge {
		return nil
	}
	reason := &Reason{Message: MessageExpired, MaxAgeInSeconds: seconds(maxAge)}
	if ok {
		reason.AgeInSeconds = seconds(age)
	}
	return reason
}

// primitiveValidator covers the equality and existence families for scalar
// claims.
type primitiveValidator[T comparable] struct {
	kind     kind
	id       string
	claim    *PrimitiveClaim[T]
	expected T
	maxAge   time.Duration
}

func (v *primitiveValidator[T]) ID() string   { return v.id }
func (v *primitiveValidator[T]) Claim() Claim { return v.claim }

func (v *primitiveValidator[T]) ShouldRefetch(_ context.Context, p payload.Payload) bool {
	if _, ok := v.claim.GetValue(p); !ok {
		return true
	}
	return v.claim.isStale(p, v.maxAge)
}

func (v *primitiveValidator[T]) Validate(_ context.Context, p payload.Payload) (ValidationResult, error) {
	actual, ok := v.claim.GetValue(p)
	if !ok {
		reason := &Reason{Message: MessageValueMissing}
		if v.kind == kindHasValue {
			reason.ExpectedValue = v.expected
		}
		return Invalid(reason), nil
	}
	if reason := v.claim.expiredReason(p, v.maxAge); reason != nil {
		return Invalid(reason), nil
	}

	switch v.kind {
	case kindHasValue:
		if actual != v.expected {
			return Invalid(&Reason{
				Message:       MessageWrongValue,
				ExpectedValue: v.expected,
				ActualValue:   actual,
			}), nil
		}
		return Valid(), nil
	case kindExists:
		return Valid(), nil
	default:
		return ValidationResult{}, errors.Wrapf(ErrMisconfigured, "claim %q: %s is not a scalar validator", v.claim.Key(), v.kind)
	}
}

// arrayValidator covers the membership families for array claims.
type arrayValidator[T comparable] struct {
	kind   kind
	id     string
	claim  *PrimitiveArrayClaim[T]
	values []T
	maxAge time.Duration
}

func (v *arrayValidator[T]) ID() string   { return v.id }
func (v *arrayValidator[T]) Claim() Claim { return v.claim }

func (v *arrayValidator[T]) ShouldRefetch(_ context.Context, p payload.Payload) bool {
	if _, ok := v.claim.GetValue(p); !ok {
		return true
	}
	return v.claim.isStale(p, v.maxAge)
}

func (v *arrayValidator[T]) Validate(_ context.Context, p payload.Payload) (ValidationResult, error) {
	actual, ok := v.claim.GetValue(p)
	if !ok {
		return Invalid(v.missingReason()), nil
	}
	if reason := v.claim.expiredReason(p, v.maxAge); reason != nil {
		return Invalid(reason), nil
	}

	switch v.kind {
	case kindExists:
		return Valid(), nil
	case kindIncludes, kindIncludesAll:
		for _, want := range v.values {
			if !slices.Contains(actual, want) {
				return Invalid(&Reason{Message: MessageWrongValue, ExpectedToInclude: want, ActualValue: actual}), nil
			}
		}
		return Valid(), nil
	case kindExcludes, kindExcludesAll:
		for _, unwanted := range v.values {
			if slices.Contains(actual, unwanted) {
				return Invalid(&Reason{Message: MessageWrongValue, ExpectedToNotInclude: unwanted, ActualValue: actual}), nil
			}
		}
		return Valid(), nil
	case kindIncludesAny:
		for _, want := range v.values {
			if slices.Contains(actual, want) {
				return Valid(), nil
			}
		}
		return Invalid(&Reason{Message: MessageWrongValue, IncludeAny: v.values, ActualValue: actual}), nil
	default:
		return ValidationResult{}, errors.Wrapf(ErrMisconfigured, "claim %q: %s is not an array validator", v.claim.Key(), v.kind)
	}
}

func (v *arrayValidator[T]) missingReason() *Reason {
	r := &Reason{Message: MessageValueMissing}
	switch v.kind {
	case kindIncludes:
		r.ExpectedToInclude = v.values[0]
	case kindIncludesAll:
		r.ExpectedToInclude = v.values
	case kindExcludes:
		r.ExpectedToNotInclude = v.values[0]
	case kindExcludesAll:
		r.ExpectedToNotInclude = v.values
	case kindIncludesAny:
		r.IncludeAny = v.values
	}
	return r
}
