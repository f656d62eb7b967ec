// Package claims defines session claims and the validators that check them.
//
// A claim owns one top-level key of the access-token payload. Its value is
// stored as a fragment {"v": value, "t": fetchedAtMs}; the "t" field drives
// the default time-based refetch policy.
package claims

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
)

// Payload fragment field names.
const (
	fieldValue     = "v"
	fieldFetchedAt = "t"
)

// Claim is a named, independently fetchable fact about a session.
//
// Every payload operation returns a new map and leaves its input untouched.
type Claim interface {
	// Key is the payload key this claim owns.
	Key() string

	// FetchValue returns the latest value for the user, or nil when the user
	// has no value for this claim.
	FetchValue(ctx context.Context, userID, tenantID string, current payload.Payload) (any, error)

	// AddToPayload returns a copy of p with this claim's fragment set to value.
	AddToPayload(ctx context.Context, p payload.Payload, value any) payload.Payload

	// RemoveFromPayloadByMerge returns a copy of p with this claim's key mapped
	// to the delete sentinel, ready to be merged into a session payload.
	RemoveFromPayloadByMerge(ctx context.Context, p payload.Payload) payload.Payload

	// RemoveFromPayload returns a copy of p without this claim's key.
	RemoveFromPayload(ctx context.Context, p payload.Payload) payload.Payload

	// GetValueFromPayload reads this claim's value, reporting false when unset.
	GetValueFromPayload(ctx context.Context, p payload.Payload) (any, bool)

	// GetLastRefetchTime returns the fetch timestamp (unix ms) of the value in p.
	GetLastRefetchTime(ctx context.Context, p payload.Payload) (int64, bool)

	// Build fetches the value and returns an update map holding only this
	// claim's fragment, or a removal when the fetched value is nil.
	Build(ctx context.Context, userID, tenantID string, current payload.Payload) (payload.Payload, error)
}

// FetchValueFunc is the fetch strategy supplied when a claim is constructed.
// A nil result means the claim has no value for the user.
type FetchValueFunc[T any] func(ctx context.Context, userID, tenantID string, current payload.Payload) (*T, error)

// Option configures a claim.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNowFunc sets the clock used for fetch timestamps and age checks
// (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base implements Claim for a value of type T.
type base[T any] struct {
	key           string
	fetch         FetchValueFunc[T]
	defaultMaxAge time.Duration
	now           func() time.Time
}

func newBase[T any](key string, fetch FetchValueFunc[T], defaultMaxAge time.Duration, opts []Option) base[T] {
	o := buildOptions(opts)
	return base[T]{
		key:           key,
		fetch:         fetch,
		defaultMaxAge: defaultMaxAge,
		now:           o.now,
	}
}

func (c *base[T]) Key() string {
	return c.key
}

// DefaultMaxAge is the age after which validators built from this claim
// refetch it, unless they override it. Zero disables time-based refetching.
func (c *base[T]) DefaultMaxAge() time.Duration {
	return c.defaultMaxAge
}

func (c *base[T]) FetchValue(ctx context.Context, userID, tenantID string, current payload.Payload) (any, error) {
	v, err := c.fetch(ctx, userID, tenantID, current)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return *v, nil
}

func (c *base[T]) AddToPayload(_ context.Context, p payload.Payload, value any) payload.Payload {
	out := payload.Clone(p)
	out[c.key] = map[string]any{
		fieldValue:     value,
		fieldFetchedAt: c.now().UnixMilli(),
	}
	return out
}

func (c *base[T]) RemoveFromPayloadByMerge(_ context.Context, p payload.Payload) payload.Payload {
	out := payload.Clone(p)
	out[c.key] = payload.Delete
	return out
}

func (c *base[T]) RemoveFromPayload(_ context.Context, p payload.Payload) payload.Payload {
	return payload.WithoutKeys(p, c.key)
}

// GetValue is the typed form of GetValueFromPayload.
func (c *base[T]) GetValue(p payload.Payload) (T, bool) {
	frag, ok := fragment(p, c.key)
	if !ok {
		var zero T
		return zero, false
	}
	return decode[T](frag[fieldValue])
}

func (c *base[T]) GetValueFromPayload(_ context.Context, p payload.Payload) (any, bool) {
	v, ok := c.GetValue(p)
	if !ok {
		return nil, false
	}
	return v, true
}

func (c *base[T]) GetLastRefetchTime(_ context.Context, p payload.Payload) (int64, bool) {
	frag, ok := fragment(p, c.key)
	if !ok {
		return 0, false
	}
	return toInt64(frag[fieldFetchedAt])
}

func (c *base[T]) Build(ctx context.Context, userID, tenantID string, current payload.Payload) (payload.Payload, error) {
	v, err := c.FetchValue(ctx, userID, tenantID, current)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return c.RemoveFromPayloadByMerge(ctx, payload.Payload{}), nil
	}
	return c.AddToPayload(ctx, payload.Payload{}, v), nil
}

// Age returns how old the value in p is, and false when p holds no timestamp.
func (c *base[T]) Age(p payload.Payload) (time.Duration, bool) {
	t, ok := c.GetLastRefetchTime(context.Background(), p)
	if !ok {
		return 0, false
	}
	return time.Duration(c.now().UnixMilli()-t) * time.Millisecond, true
}

func fragment(p payload.Payload, key string) (map[string]any, bool) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil, false
	}
	switch f := raw.(type) {
	case map[string]any:
		return f, true
	case payload.Payload:
		return f, true
	default:
		return nil, false
	}
}

// decode converts a payload value into T. Values decoded from a token arrive
// as float64, []any or map[string]any, so anything that is not already a T
// goes through a JSON round trip.
func decode[T any](raw any) (T, bool) {
	var zero T
	if raw == nil {
		return zero, false
	}
	if v, ok := raw.(T); ok {
		return v, true
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, false
	}
	return out, true
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
