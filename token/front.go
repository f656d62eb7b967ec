package token

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/pkg/errors"
)

// FrontToken is the non-sensitive session summary given to the client.
type FrontToken struct {
	UserID             string          `json:"uid"`
	AccessTokenExpiry  int64           `json:"ate"` // unix ms
	AccessTokenPayload payload.Payload `json:"up"`
}

// BuildFrontToken encodes the front token for an access token.
func BuildFrontToken(userID string, expiry time.Time, p payload.Payload) (string, error) {
	b, err := json.Marshal(FrontToken{
		UserID:             userID,
		AccessTokenExpiry:  expiry.UnixMilli(),
		AccessTokenPayload: p,
	})
	if err != nil {
		return "", errors.Wrap(err, "[BuildFrontToken] marshal")
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// ParseFrontToken decodes a front token.
func ParseFrontToken(raw string) (*FrontToken, error) {
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(err, "[ParseFrontToken] decode")
	}
	var ft FrontToken
	if err := json.Unmarshal(b, &ft); err != nil {
		return nil, errors.Wrap(err, "[ParseFrontToken] unmarshal")
	}
	return &ft, nil
}
