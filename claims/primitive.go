package claims

import "time"

// PrimitiveClaim holds a single comparable value such as a string, number or
// bool.
type PrimitiveClaim[T comparable] struct {
	base[T]
	validators *PrimitiveValidators[T]
}

var _ Claim = (*PrimitiveClaim[string])(nil)

// NewPrimitiveClaim creates a claim stored under key whose value is produced by
// fetch. Validators refetch the value once it is older than defaultMaxAge,
// unless they set their own max age.
func NewPrimitiveClaim[T comparable](key string, fetch FetchValueFunc[T], defaultMaxAge time.Duration, opts ...Option) *PrimitiveClaim[T] {
	c := &PrimitiveClaim[T]{base: newBase(key, fetch, defaultMaxAge, opts)}
	c.validators = &PrimitiveValidators[T]{claim: c}
	return c
}

// Validators returns the validator factories bound to this claim.
func (c *PrimitiveClaim[T]) Validators() *PrimitiveValidators[T] {
	return c.validators
}

// PrimitiveValidators builds validators for a PrimitiveClaim. Host-defined
// validators can be attached by name with Register.
type PrimitiveValidators[T comparable] struct {
	registry
	claim *PrimitiveClaim[T]
}

// HasValue passes when the claim's value equals expected.
func (v *PrimitiveValidators[T]) HasValue(expected T, opts ...ValidatorOption) Validator {
	id, maxAge := buildValidatorOptions(v.claim.key, v.claim.defaultMaxAge, opts)
	return &primitiveValidator[T]{
		kind:     kindHasValue,
		id:       id,
		claim:    v.claim,
		expected: expected,
		maxAge:   maxAge,
	}
}

// Exists passes when the claim holds any value.
func (v *PrimitiveValidators[T]) Exists(opts ...ValidatorOption) Validator {
	id, maxAge := buildValidatorOptions(v.claim.key, v.claim.defaultMaxAge, opts)
	return &primitiveValidator[T]{
		kind:   kindExists,
		id:     id,
		claim:  v.claim,
		maxAge: maxAge,
	}
}
