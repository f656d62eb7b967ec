package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
)

// Tokens is the token material held by a session.
type Tokens struct {
	AccessToken   string
	FrontToken    string
	RefreshToken  *string
	AntiCSRFToken *string
}

// SessionState describes a verified, created or refreshed session.
type SessionState struct {
	Handle             string
	UserID             string
	TenantID           string
	AccessTokenPayload payload.Payload
	AccessTokenUpdated bool
	Tokens             Tokens
}

// IssuedAccessToken is a newly signed access token and its front token.
type IssuedAccessToken struct {
	Token      string
	FrontToken string
	Expiry     time.Time
}

// RegenerateResult is returned by RegenerateAccessToken. AccessToken is nil
// when the payload was stored without issuing a new token.
type RegenerateResult struct {
	AccessTokenPayload payload.Payload
	AccessToken        *IssuedAccessToken
}

// SessionInformation is the database view of a session.
type SessionInformation struct {
	Handle             string
	UserID             string
	TenantID           string
	SessionData        payload.Payload
	AccessTokenPayload payload.Payload
	TimeCreated        time.Time
	Expiry             time.Time
}

// CreateSessionInput holds the parameters for CreateNewSession.
type CreateSessionInput struct {
	UserID             string
	TenantID           string
	AccessTokenPayload payload.Payload
	SessionData        payload.Payload
	DisableAntiCSRF    bool
}

// GetSessionOptions controls token verification in GetSession.
type GetSessionOptions struct {
	AntiCSRFToken   *string
	DoAntiCSRFCheck bool
	CheckDatabase   bool
}

// RecipeInterface is the backing service that verifies and issues tokens and
// stores session state.
//
// Lookups by handle report an unknown session with a nil result or false,
// not an error.
type RecipeInterface interface {
	CreateNewSession(ctx context.Context, in CreateSessionInput) (*SessionState, error)
	GetSession(ctx context.Context, accessToken string, opts GetSessionOptions) (*SessionState, error)
	RefreshSession(ctx context.Context, refreshToken string, antiCSRFToken *string) (*SessionState, error)

	// RegenerateAccessToken issues a token for the session behind accessToken
	// carrying newPayload. A nil result means the session no longer exists.
	RegenerateAccessToken(ctx context.Context, accessToken string, newPayload payload.Payload) (*RegenerateResult, error)

	// MergeIntoAccessTokenPayload merges update into the stored payload of a
	// session without issuing a token. It is picked up on the next refresh.
	MergeIntoAccessTokenPayload(ctx context.Context, handle string, update payload.Payload) (bool, error)

	GetSessionInformation(ctx context.Context, handle string) (*SessionInformation, error)
	RevokeSession(ctx context.Context, handle string) (bool, error)
	RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string) ([]string, error)
	GetAllSessionHandlesForUser(ctx context.Context, userID, tenantID string) ([]string, error)
	UpdateSessionDataInDatabase(ctx context.Context, handle string, data payload.Payload) (bool, error)
}

// Override wraps a RecipeInterface to change or observe its behaviour.
type Override func(RecipeInterface) RecipeInterface

// Apply layers the overrides over impl. The last override is the outermost.
func Apply(impl RecipeInterface, overrides ...Override) RecipeInterface {
	for _, o := range overrides {
		impl = o(impl)
	}
	return impl
}
