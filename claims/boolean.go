package claims

import "time"

// BooleanClaim is a PrimitiveClaim of bool with truthiness validators.
type BooleanClaim struct {
	*PrimitiveClaim[bool]
	validators *BooleanValidators
}

var _ Claim = (*BooleanClaim)(nil)

// NewBooleanClaim creates a bool claim.
func NewBooleanClaim(key string, fetch FetchValueFunc[bool], defaultMaxAge time.Duration, opts ...Option) *BooleanClaim {
	primitive := NewPrimitiveClaim(key, fetch, defaultMaxAge, opts...)
	return &BooleanClaim{
		PrimitiveClaim: primitive,
		validators:     &BooleanValidators{PrimitiveValidators: primitive.Validators()},
	}
}

// Validators returns the validator factories bound to this claim.
func (c *BooleanClaim) Validators() *BooleanValidators {
	return c.validators
}

// BooleanValidators adds IsTrue and IsFalse to the primitive validators.
type BooleanValidators struct {
	*PrimitiveValidators[bool]
}

func (v *BooleanValidators) IsTrue(opts ...ValidatorOption) Validator {
	return v.HasValue(true, opts...)
}

func (v *BooleanValidators) IsFalse(opts ...ValidatorOption) Validator {
	return v.HasValue(false, opts...)
}
