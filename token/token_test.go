package token_test

import (
	"crypto/ecdsa"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/jrsteele09/go-session-claims/token"
	"github.com/stretchr/testify/require"
)

func accessInput(now time.Time) token.AccessTokenInput {
	csrf := "csrf-token"
	return token.AccessTokenInput{
		SessionHandle:    "handle-1",
		UserID:           "user-1",
		TenantID:         "public",
		Issuer:           "https://sessions.example.com",
		RefreshTokenHash: "hash-1",
		AntiCSRFToken:    &csrf,
		Payload:          payload.Payload{"role": "admin", payload.KeySubject: "forged"},
		IssuedAt:         now,
		Expiry:           now.Add(time.Hour),
	}
}

func TestAccessToken_HMAC(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	signer := token.NewHMACSigner("test-secret")

	raw, err := token.CreateAccessToken(signer, accessInput(now))
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		at, err := token.ParseAccessToken(raw, signer.GetVerificationKey, clock)
		require.NoError(t, err)
		require.Equal(t, "handle-1", at.SessionHandle)
		require.Equal(t, "user-1", at.UserID)
		require.Equal(t, "public", at.TenantID)
		require.Equal(t, "hash-1", at.RefreshTokenHash)
		require.Equal(t, "csrf-token", *at.AntiCSRFToken)
		require.Equal(t, now.Add(time.Hour).Unix(), at.Expiry.Unix())
		require.Equal(t, "admin", at.Payload["role"])
		require.Equal(t, "user-1", at.Payload[payload.KeySubject])
		require.NotContains(t, at.Payload, "jti")
	})

	t.Run("expired", func(t *testing.T) {
		later := func() time.Time { return now.Add(2 * time.Hour) }
		_, err := token.ParseAccessToken(raw, signer.GetVerificationKey, later)
		require.ErrorIs(t, err, token.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := token.NewHMACSigner("other-secret")
		_, err := token.ParseAccessToken(raw, other.GetVerificationKey, clock)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := token.ParseAccessToken("not-a-token", signer.GetVerificationKey, clock)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})
}

func TestAccessToken_KeyPairAndJWKS(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	keyPair, err := token.GenerateECDSAKeyPair("key-1")
	require.NoError(t, err)
	signer, err := token.NewKeyPairSigner(keyPair)
	require.NoError(t, err)

	raw, err := token.CreateAccessToken(signer, accessInput(now))
	require.NoError(t, err)

	at, err := token.ParseAccessToken(raw, signer.GetVerificationKey, time.Now)
	require.NoError(t, err)
	require.Equal(t, "handle-1", at.SessionHandle)

	jwks, err := signer.JWKS(t.Context())
	require.NoError(t, err)
	require.Contains(t, string(jwks), `"kid":"key-1"`)
	require.NotContains(t, string(jwks), `"d":`)

	kf, err := token.NewJWKSKeyfunc(jwks)
	require.NoError(t, err)
	at, err = token.ParseAccessToken(raw, kf.Keyfunc, time.Now)
	require.NoError(t, err)
	require.Equal(t, "user-1", at.UserID)

	t.Run("HMAC token is rejected", func(t *testing.T) {
		hmacRaw, err := token.CreateAccessToken(token.NewHMACSigner("s"), accessInput(now))
		require.NoError(t, err)
		_, err = token.ParseAccessToken(hmacRaw, signer.GetVerificationKey, time.Now)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})
}

func TestKeyPair_PEMRoundTrip(t *testing.T) {
	keyPair, err := token.GenerateECDSAKeyPair("key-1")
	require.NoError(t, err)

	pem, err := keyPair.ExportPrivateKeyPEM()
	require.NoError(t, err)

	loaded, err := token.LoadKeyPairFromPEM("key-1", pem)
	require.NoError(t, err)
	require.Equal(t, "ES256", loaded.Algorithm)
	require.True(t, keyPair.PublicKey.(*ecdsa.PublicKey).Equal(loaded.PublicKey))

	_, err = token.LoadKeyPairFromPEM("key-1", "not pem")
	require.Error(t, err)
}

func TestLoadOrCreateKeyPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.pem")

	created, err := token.LoadOrCreateKeyPair(path, "key-1")
	require.NoError(t, err)
	require.Equal(t, token.AlgES256, created.Algorithm)
	require.FileExists(t, path)

	loaded, err := token.LoadOrCreateKeyPair(path, "key-1")
	require.NoError(t, err)
	require.True(t, created.PublicKey.(*ecdsa.PublicKey).Equal(loaded.PublicKey))
}

func TestFrontToken(t *testing.T) {
	expiry := time.UnixMilli(1_700_000_000_123)
	raw, err := token.BuildFrontToken("user-1", expiry, payload.Payload{"st-ev": map[string]any{"v": true}})
	require.NoError(t, err)

	ft, err := token.ParseFrontToken(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", ft.UserID)
	require.Equal(t, expiry.UnixMilli(), ft.AccessTokenExpiry)
	require.Equal(t, map[string]any{"v": true}, ft.AccessTokenPayload["st-ev"])

	_, err = token.ParseFrontToken("%%%")
	require.Error(t, err)
}

func TestRefreshTokenHasher(t *testing.T) {
	h1, err := token.NewRefreshTokenHasher([]byte("secret-1"))
	require.NoError(t, err)
	h2, err := token.NewRefreshTokenHasher([]byte("secret-2"))
	require.NoError(t, err)

	rt, err := token.NewRefreshToken()
	require.NoError(t, err)
	require.Len(t, rt, 64)

	require.Equal(t, h1.Hash(rt), h1.Hash(rt))
	require.NotEqual(t, h1.Hash(rt), h2.Hash(rt))
	require.NotEqual(t, rt, h1.Hash(rt))

	_, err = token.NewRefreshTokenHasher(nil)
	require.Error(t, err)

	require.NotEqual(t, token.NewAntiCSRFToken(), token.NewAntiCSRFToken())
}

func TestRevokedSessionCache(t *testing.T) {
	now := time.Now()
	cache := token.NewInMemoryRevokedSessionCache()
	cache.Add("handle-1", now.Add(time.Minute))
	cache.Add("handle-2", now.Add(-time.Minute))

	require.True(t, cache.IsRevoked("handle-1", now))
	require.False(t, cache.IsRevoked("handle-2", now))
	require.False(t, cache.IsRevoked("handle-3", now))
	require.True(t, cache.IsRevoked("handle-2", now.Add(-2*time.Minute)))

	require.False(t, cache.IsRevoked("handle-1", now.Add(2*time.Minute)))

	cache.Cleanup(now)
	require.True(t, cache.IsRevoked("handle-1", now))
	require.False(t, cache.IsRevoked("handle-2", now.Add(-2*time.Minute)))
}
