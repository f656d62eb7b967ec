package claims

import "time"

// PrimitiveArrayClaim holds a list of comparable values, such as roles or
// permissions.
type PrimitiveArrayClaim[T comparable] struct {
	base[[]T]
	validators *ArrayValidators[T]
}

var _ Claim = (*PrimitiveArrayClaim[string])(nil)

// NewPrimitiveArrayClaim creates an array claim stored under key.
func NewPrimitiveArrayClaim[T comparable](key string, fetch FetchValueFunc[[]T], defaultMaxAge time.Duration, opts ...Option) *PrimitiveArrayClaim[T] {
	c := &PrimitiveArrayClaim[T]{base: newBase(key, fetch, defaultMaxAge, opts)}
	c.validators = &ArrayValidators[T]{claim: c}
	return c
}

// Validators returns the validator factories bound to this claim.
func (c *PrimitiveArrayClaim[T]) Validators() *ArrayValidators[T] {
	return c.validators
}

// ArrayValidators builds membership validators for a PrimitiveArrayClaim.
type ArrayValidators[T comparable] struct {
	registry
	claim *PrimitiveArrayClaim[T]
}

func (v *ArrayValidators[T]) build(k kind, values []T, opts []ValidatorOption) Validator {
	id, maxAge := buildValidatorOptions(v.claim.key, v.claim.defaultMaxAge, opts)
	return &arrayValidator[T]{
		kind:   k,
		id:     id,
		claim:  v.claim,
		values: values,
		maxAge: maxAge,
	}
}

// Includes passes when the array contains value.
func (v *ArrayValidators[T]) Includes(value T, opts ...ValidatorOption) Validator {
	return v.build(kindIncludes, []T{value}, opts)
}

// Excludes passes when the array does not contain value.
func (v *ArrayValidators[T]) Excludes(value T, opts ...ValidatorOption) Validator {
	return v.build(kindExcludes, []T{value}, opts)
}

// IncludesAll passes when the array contains every one of values.
func (v *ArrayValidators[T]) IncludesAll(values []T, opts ...ValidatorOption) Validator {
	return v.build(kindIncludesAll, values, opts)
}

// IncludesAny passes when the array contains at least one of values.
func (v *ArrayValidators[T]) IncludesAny(values []T, opts ...ValidatorOption) Validator {
	return v.build(kindIncludesAny, values, opts)
}

// ExcludesAll passes when the array contains none of values.
func (v *ArrayValidators[T]) ExcludesAll(values []T, opts ...ValidatorOption) Validator {
	return v.build(kindExcludesAll, values, opts)
}

// Exists passes when the claim holds any array, including an empty one.
func (v *ArrayValidators[T]) Exists(opts ...ValidatorOption) Validator {
	return v.build(kindExists, nil, opts)
}
