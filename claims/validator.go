package claims

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
)

// Validator checks that a claim's current value satisfies a condition.
//
// ShouldRefetch and Validate only look at the payload they are given; neither
// may fetch, mutate the payload or read global mutable state.
type Validator interface {
	// ID identifies the validator within one assertion.
	ID() string

	// Claim is the claim this validator inspects. It may be nil for validators
	// that are not backed by a fetchable claim.
	Claim() Claim

	// ShouldRefetch reports whether the claim's value in p is missing or stale.
	ShouldRefetch(ctx context.Context, p payload.Payload) bool

	// Validate evaluates the condition against p.
	Validate(ctx context.Context, p payload.Payload) (ValidationResult, error)
}

// ValidationResult is the verdict of one validator.
type ValidationResult struct {
	IsValid bool
	Reason  *Reason
}

// Reason explains why a validator failed. Only the fields relevant to the
// failing check are set.
type Reason struct {
	Message              string `json:"message"`
	ExpectedValue        any    `json:"expectedValue,omitempty"`
	ActualValue          any    `json:"actualValue,omitempty"`
	ExpectedToInclude    any    `json:"expectedToInclude,omitempty"`
	ExpectedToNotInclude any    `json:"expectedToNotInclude,omitempty"`
	IncludeAny           any    `json:"includeAny,omitempty"`
	AgeInSeconds         *int64 `json:"ageInSeconds,omitempty"`
	MaxAgeInSeconds      *int64 `json:"maxAgeInSeconds,omitempty"`
}

// InvalidClaim pairs a failing validator's ID with its reason.
type InvalidClaim struct {
	ID     string  `json:"id"`
	Reason *Reason `json:"reason,omitempty"`
}

// Reason messages used by the built-in validators.
const (
	MessageValueMissing = "value does not exist"
	MessageWrongValue   = "wrong value"
	MessageExpired      = "expired"
)

// Valid is the passing result.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true}
}

// Invalid builds a failing result.
func Invalid(reason *Reason) ValidationResult {
	return ValidationResult{IsValid: false, Reason: reason}
}

// ShouldRefetchFunc decides whether a custom validator needs a fresh value.
type ShouldRefetchFunc func(ctx context.Context, p payload.Payload) bool

// ValidateFunc is the check performed by a custom validator.
type ValidateFunc func(ctx context.Context, p payload.Payload) (ValidationResult, error)

type funcValidator struct {
	id            string
	claim         Claim
	shouldRefetch ShouldRefetchFunc
	validate      ValidateFunc
}

// NewValidator builds a validator from closures. A nil shouldRefetch never
// asks for a refetch.
func NewValidator(id string, claim Claim, shouldRefetch ShouldRefetchFunc, validate ValidateFunc) Validator {
	return &funcValidator{
		id:            id,
		claim:         claim,
		shouldRefetch: shouldRefetch,
		validate:      validate,
	}
}

func (v *funcValidator) ID() string   { return v.id }
func (v *funcValidator) Claim() Claim { return v.claim }

func (v *funcValidator) ShouldRefetch(ctx context.Context, p payload.Payload) bool {
	if v.shouldRefetch == nil {
		return false
	}
	return v.shouldRefetch(ctx, p)
}

func (v *funcValidator) Validate(ctx context.Context, p payload.Payload) (ValidationResult, error) {
	return v.validate(ctx, p)
}

// ValidatorOption configures a built-in validator.
type ValidatorOption func(*validatorOptions)

type validatorOptions struct {
	id     string
	maxAge *time.Duration
}

// WithValidatorID overrides the validator ID, which defaults to the claim key.
func WithValidatorID(id string) ValidatorOption {
	return func(o *validatorOptions) {
		o.id = id
	}
}

// WithMaxAge overrides the claim's default max age for one validator. Zero
// disables the age check.
func WithMaxAge(maxAge time.Duration) ValidatorOption {
	return func(o *validatorOptions) {
		o.maxAge = &maxAge
	}
}

func buildValidatorOptions(key string, defaultMaxAge time.Duration, opts []ValidatorOption) (string, time.Duration) {
	o := validatorOptions{id: key}
	for _, opt := range opts {
		opt(&o)
	}
	maxAge := defaultMaxAge
	if o.maxAge != nil {
		maxAge = *o.maxAge
	}
	return o.id, maxAge
}

// registry holds host-defined validators for a claim, keyed by name.
type registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// Register stores v under name, replacing any previous validator.
func (r *registry) Register(name string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.validators == nil {
		r.validators = make(map[string]Validator)
	}
	r.validators[name] = v
}

// Get returns the validator registered under name.
func (r *registry) Get(name string) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[name]
	return v, ok
}

func seconds(d time.Duration) *int64 {
	s := int64(d / time.Second)
	return &s
}
