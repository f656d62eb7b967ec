package config

import (
	"strconv"
	"time"
)

const (
	sessionSecretEnvVar        = "SESSION_SECRET"
	signingKeyFileEnvVar       = "SIGNING_KEY_FILE"
	sessionIssuerEnvVar        = "SESSION_ISSUER"
	accessTokenValidityEnvVar  = "ACCESS_TOKEN_VALIDITY"
	refreshTokenValidityEnvVar = "REFRESH_TOKEN_VALIDITY"
	antiCSRFEnvVar             = "ANTI_CSRF"
)

type SessionConfig interface {
	GetSessionSecret() string
	GetSigningKeyFile() string
	GetSessionIssuer() string
	GetAccessTokenValidity() time.Duration
	GetRefreshTokenValidity() time.Duration
	GetAntiCSRF() bool
}

type Session struct {
	file fileValues
}

var _ SessionConfig = Session{}

// GetSessionSecret is the master secret for HMAC signing and refresh token
// hashing.
func (s Session) GetSessionSecret() string {
	return s.file.get(sessionSecretEnvVar, "")
}

// GetSigningKeyFile names a PEM private key. When set, access tokens are
// signed with it instead of the session secret. A missing file is created
// with a fresh ES256 key.
func (s Session) GetSigningKeyFile() string {
	return s.file.get(signingKeyFileEnvVar, "")
}

func (s Session) GetSessionIssuer() string {
	return s.file.get(sessionIssuerEnvVar, "")
}

func (s Session) GetAccessTokenValidity() time.Duration {
	return s.duration(accessTokenValidityEnvVar, time.Hour)
}

func (s Session) GetRefreshTokenValidity() time.Duration {
	return s.duration(refreshTokenValidityEnvVar, 100*24*time.Hour)
}

func (s Session) GetAntiCSRF() bool {
	v, err := strconv.ParseBool(s.file.get(antiCSRFEnvVar, "false"))
	return err == nil && v
}

func (s Session) duration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s.file.get(envVar, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
