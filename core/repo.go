package core

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRotationConflict = errors.New("refresh token already rotated")
)

// SessionRow is the stored state of one session.
type SessionRow struct {
	Handle                 string
	UserID                 string
	TenantID               string
	SessionData            payload.Payload
	AccessTokenPayload     payload.Payload // Custom payload only, no protected keys
	RefreshTokenHash       string
	ParentRefreshTokenHash string // Hash of the previous refresh token, "" before the first refresh
	AntiCSRF               bool   // Issue anti-CSRF tokens with this session's access tokens
	CreatedAt              time.Time
	ExpiresAt              time.Time
}

// SessionRepo stores sessions. Methods that address a missing handle return
// ErrSessionNotFound.
type SessionRepo interface {
	Create(ctx context.Context, row *SessionRow) error
	Get(ctx context.Context, handle string) (*SessionRow, error)

	// GetByRefreshTokenHash finds the session whose current or parent refresh
	// token hash is hash.
	GetByRefreshTokenHash(ctx context.Context, hash string) (*SessionRow, error)

	UpdateAccessTokenPayload(ctx context.Context, handle string, p payload.Payload) error
	UpdateSessionData(ctx context.Context, handle string, data payload.Payload) error

	// RotateRefreshToken replaces oldHash with newHash, keeping oldHash as the
	// parent. It returns ErrRotationConflict when the current hash is no
	// longer oldHash.
	RotateRefreshToken(ctx context.Context, handle, oldHash, newHash string, expiresAt time.Time) error

	// Delete reports whether a session was removed.
	Delete(ctx context.Context, handle string) (bool, error)

	// ListHandlesForUser lists the user's sessions. An empty tenantID matches
	// every tenant.
	ListHandlesForUser(ctx context.Context, userID, tenantID string) ([]string, error)

	// DeleteExpired removes sessions that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
