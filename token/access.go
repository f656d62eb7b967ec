package token

import (
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/pkg/errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AccessTokenInput is everything embedded in an access token.
type AccessTokenInput struct {
	SessionHandle    string
	UserID           string
	TenantID         string
	Issuer           string
	RefreshTokenHash string
	AntiCSRFToken    *string
	Payload          payload.Payload // Custom claims, protected keys are ignored
	IssuedAt         time.Time
	Expiry           time.Time
}

// AccessToken is a verified access token.
type AccessToken struct {
	SessionHandle    string
	UserID           string
	TenantID         string
	RefreshTokenHash string
	AntiCSRFToken    *string
	IssuedAt         time.Time
	Expiry           time.Time

	// Payload is the complete payload, protected keys included.
	Payload payload.Payload
}

// CreateAccessToken signs a token carrying the custom payload flattened next
// to the protected session claims.
func CreateAccessToken(signer Signer, in AccessTokenInput) (string, error) {
	claims := jwt.MapClaims{}
	maps.Copy(claims, payload.StripProtected(in.Payload))

	claims[payload.KeySubject] = in.UserID
	claims[payload.KeySessionHandle] = in.SessionHandle
	claims[payload.KeyTenantID] = in.TenantID
	claims[payload.KeyRefreshTokenHash] = in.RefreshTokenHash
	claims[payload.KeyIssuedAt] = in.IssuedAt.Unix()
	claims[payload.KeyExpiry] = in.Expiry.Unix()
	claims[payload.KeyTokenID] = uuid.New().String()
	if in.Issuer != "" {
		claims[payload.KeyIssuer] = in.Issuer
	}
	if in.AntiCSRFToken != nil {
		claims[payload.KeyAntiCSRFToken] = *in.AntiCSRFToken
	}

	signed, err := signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[CreateAccessToken] Sign")
	}
	return signed, nil
}

// ParseAccessToken verifies raw with keyFunc at the time returned by now.
// Expired tokens return ErrTokenExpired, anything else that fails
// verification returns ErrInvalidToken.
func ParseAccessToken(raw string, keyFunc jwt.Keyfunc, now func() time.Time) (*AccessToken, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, keyFunc,
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	at := &AccessToken{
		SessionHandle:    stringClaim(claims, payload.KeySessionHandle),
		UserID:           stringClaim(claims, payload.KeySubject),
		TenantID:         stringClaim(claims, payload.KeyTenantID),
		RefreshTokenHash: stringClaim(claims, payload.KeyRefreshTokenHash),
		Payload:          payload.Payload{},
	}
	if at.SessionHandle == "" || at.UserID == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing session claims")
	}
	if v, ok := claims[payload.KeyAntiCSRFToken].(string); ok {
		at.AntiCSRFToken = &v
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		at.Expiry = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		at.IssuedAt = iat.Time
	}

	for k, v := range claims {
		if k == payload.KeyTokenID {
			continue
		}
		at.Payload[k] = v
	}
	return at, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return value
}
