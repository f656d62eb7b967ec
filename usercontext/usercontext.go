// Package usercontext carries the host application's opaque per-request bag
// through every session and claim operation.
package usercontext

import "context"

// Bag is an opaque set of values supplied by the host application. The session
// core never interprets it; it is only handed on to claims, validators and
// recipe overrides.
type Bag map[string]any

type ctxKey struct{}

// With returns a copy of ctx carrying bag.
func With(ctx context.Context, bag Bag) context.Context {
	return context.WithValue(ctx, ctxKey{}, bag)
}

// From returns the bag carried by ctx. A context without a bag yields an empty,
// non-nil Bag so callers can write to it freely.
func From(ctx context.Context) Bag {
	if ctx == nil {
		return Bag{}
	}
	if bag, ok := ctx.Value(ctxKey{}).(Bag); ok && bag != nil {
		return bag
	}
	return Bag{}
}
