// Package payload holds the JSON-like access-token payload map and its
// copy-on-write merge rules.
//
// A Payload is never modified in place by this package: every operation
// returns a fresh map, so a Session can swap its payload atomically once the
// backing service has accepted the change.
package payload

import (
	"encoding/json"
	"maps"
	"reflect"
)

// Payload is the map embedded in an access token: claim fragments keyed by
// claim key plus any custom fields the host application stores.
type Payload map[string]any

// Delete is the sentinel an update map uses to remove a key. A nil value in an
// update always means "delete", never "set to null".
var Delete any = nil

// Protected keys are owned by the backing service and cannot be changed
// through a payload merge.
const (
	KeySubject                = "sub"
	KeyExpiry                 = "exp"
	KeyIssuedAt               = "iat"
	KeyIssuer                 = "iss"
	KeyAudience               = "aud"
	KeyNotBefore              = "nbf"
	KeyTokenID                = "jti"
	KeySessionHandle          = "sessionHandle"
	KeyRefreshTokenHash       = "refreshTokenHash1"
	KeyParentRefreshTokenHash = "parentRefreshTokenHash1"
	KeyAntiCSRFToken          = "antiCsrfToken"
	KeyTenantID               = "tId"
)

// ProtectedKeys lists every key reserved by the backing service.
var ProtectedKeys = []string{
	KeySubject,
	KeyExpiry,
	KeyIssuedAt,
	KeyIssuer,
	KeyAudience,
	KeyNotBefore,
	KeyTokenID,
	KeySessionHandle,
	KeyRefreshTokenHash,
	KeyParentRefreshTokenHash,
	KeyAntiCSRFToken,
	KeyTenantID,
}

// IsProtected reports whether key is reserved by the backing service.
func IsProtected(key string) bool {
	for _, k := range ProtectedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy of p. A nil payload clones to an empty one.
func Clone(p Payload) Payload {
	out := make(Payload, len(p))
	maps.Copy(out, p)
	return out
}

// Merge overlays update onto base one level deep and returns the result as a
// new map. Keys whose update value is nil are removed. Nested maps are
// replaced wholesale, not merged recursively.
func Merge(base, update Payload) Payload {
	out := Clone(base)
	for k, v := range update {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// WithoutKeys returns a copy of p with keys removed.
func WithoutKeys(p Payload, keys ...string) Payload {
	out := Clone(p)
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// StripProtected returns a copy of p with every protected key removed.
func StripProtected(p Payload) Payload {
	return WithoutKeys(p, ProtectedKeys...)
}

// Equal compares two payloads after normalising both through JSON, so a value
// freshly set by Go code compares equal to the same value decoded from a token.
func Equal(a, b Payload) bool {
	na, errA := normalise(a)
	nb, errB := normalise(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return reflect.DeepEqual(na, nb)
}

func normalise(p Payload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
