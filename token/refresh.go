package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const refreshTokenBytes = 32

// NewRefreshToken returns a random opaque refresh token.
func NewRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "failed to generate random bytes")
	}
	return hex.EncodeToString(tokenBytes), nil
}

// NewAntiCSRFToken returns a random anti-CSRF token.
func NewAntiCSRFToken() string {
	return uuid.New().String()
}

// RefreshTokenHasher hashes refresh tokens for storage. Only hashes are
// persisted, so a leaked session table cannot be replayed.
type RefreshTokenHasher struct {
	key []byte
}

// NewRefreshTokenHasher derives the hashing key from the master secret.
func NewRefreshTokenHasher(masterSecret []byte) (*RefreshTokenHasher, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("master secret is empty")
	}
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, masterSecret, nil, []byte("session refresh token hash"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive refresh token key")
	}
	return &RefreshTokenHasher{key: key}, nil
}

// Hash returns the hex HMAC-SHA256 of token.
func (h *RefreshTokenHasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
