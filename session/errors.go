package session

import (
	"fmt"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/pkg/errors"
)

var (
	ErrUnauthorised       = errors.New("unauthorised")
	ErrInvalidClaims      = errors.New("invalid claims")
	ErrInput              = errors.New("invalid input")
	ErrTryRefreshToken    = errors.New("try refresh token")
	ErrTokenTheftDetected = errors.New("token theft detected")
)

// UnauthorisedError means the session is gone. The caller should end the
// authenticated context and, when ClearTokens is set, clear client tokens.
type UnauthorisedError struct {
	Message     string
	ClearTokens bool
}

func (e *UnauthorisedError) Error() string {
	if e.Message == "" {
		return ErrUnauthorised.Error()
	}
	return fmt.Sprintf("%s: %s", ErrUnauthorised, e.Message)
}

func (e *UnauthorisedError) Unwrap() error { return ErrUnauthorised }

// ClaimValidationError carries the reasons a claim assertion failed, in the
// order the validators were evaluated.
type ClaimValidationError struct {
	InvalidClaims []claims.InvalidClaim
}

func (e *ClaimValidationError) Error() string {
	if len(e.InvalidClaims) == 0 {
		return ErrInvalidClaims.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidClaims, e.InvalidClaims[0].ID)
}

func (e *ClaimValidationError) Unwrap() error { return ErrInvalidClaims }

// InputError reports a misconfigured validator or claim.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInput, e.Message)
}

func (e *InputError) Unwrap() error { return ErrInput }

// TokenTheftError is returned when a refresh token that has already been
// rotated is presented again. The session has been revoked.
type TokenTheftError struct {
	SessionHandle string
	UserID        string
}

func (e *TokenTheftError) Error() string {
	return fmt.Sprintf("%s: session %s", ErrTokenTheftDetected, e.SessionHandle)
}

func (e *TokenTheftError) Unwrap() error { return ErrTokenTheftDetected }

// ErrUnknownSession is returned by offline operations addressed to a session
// handle that does not exist.
var ErrUnknownSession = errors.New("session does not exist")
