package token

import (
	"encoding/json"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/pkg/errors"
)

// NewJWKSKeyfunc builds a verifier from a JSON Web Key Set, such as the one
// published by KeyPairSigner.JWKS. Its Keyfunc method can be passed to
// ParseAccessToken.
func NewJWKSKeyfunc(raw json.RawMessage) (keyfunc.Keyfunc, error) {
	kf, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load JWKS")
	}
	return kf, nil
}
