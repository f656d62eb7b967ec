// Package session holds the per-request Session, its claim assertion engine
// and the Recipe that creates sessions through a backing RecipeInterface.
package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/payload"
)

// Session is the verified session of one request. It is not safe for
// concurrent use; callers that retain a Session across goroutines must
// serialise calls themselves.
type Session struct {
	recipe RecipeInterface

	handle   string
	userID   string
	tenantID string

	accessToken   string
	frontToken    string
	refreshToken  *string
	antiCSRFToken *string

	payload            payload.Payload
	accessTokenUpdated bool
}

// Params is the state a Session starts from.
type Params struct {
	Handle             string
	UserID             string
	TenantID           string
	AccessTokenPayload payload.Payload
	AccessTokenUpdated bool
	Tokens             Tokens
}

// New creates a Session backed by recipe.
func New(recipe RecipeInterface, p Params) *Session {
	data := p.AccessTokenPayload
	if data == nil {
		data = payload.Payload{}
	}
	return &Session{
		recipe:             recipe,
		handle:             p.Handle,
		userID:             p.UserID,
		tenantID:           p.TenantID,
		accessToken:        p.Tokens.AccessToken,
		frontToken:         p.Tokens.FrontToken,
		refreshToken:       p.Tokens.RefreshToken,
		antiCSRFToken:      p.Tokens.AntiCSRFToken,
		payload:            data,
		accessTokenUpdated: p.AccessTokenUpdated,
	}
}

func fromState(recipe RecipeInterface, st *SessionState) *Session {
	return New(recipe, Params{
		Handle:             st.Handle,
		UserID:             st.UserID,
		TenantID:           st.TenantID,
		AccessTokenPayload: st.AccessTokenPayload,
		AccessTokenUpdated: st.AccessTokenUpdated,
		Tokens:             st.Tokens,
	})
}

func (s *Session) Handle() string      { return s.handle }
func (s *Session) UserID() string      { return s.userID }
func (s *Session) TenantID() string    { return s.tenantID }
func (s *Session) AccessToken() string { return s.accessToken }
func (s *Session) FrontToken() string  { return s.frontToken }

// RefreshToken is only set on sessions that were just created or refreshed.
func (s *Session) RefreshToken() *string  { return s.refreshToken }
func (s *Session) AntiCSRFToken() *string { return s.antiCSRFToken }

// AccessTokenPayload returns a copy of the current payload.
func (s *Session) AccessTokenPayload() payload.Payload {
	return payload.Clone(s.payload)
}

// AccessTokenUpdated reports whether the access token changed since the
// session was loaded, meaning the new tokens must be sent to the client.
func (s *Session) AccessTokenUpdated() bool {
	return s.accessTokenUpdated
}

// SessionTokens is the full token set of a session.
type SessionTokens struct {
	Tokens
	AccessAndFrontTokenUpdated bool
}

// AllSessionTokensDangerously exposes every token held by the session,
// including the refresh token. Only transports should call it.
func (s *Session) AllSessionTokensDangerously() SessionTokens {
	return SessionTokens{
		Tokens: Tokens{
			AccessToken:   s.accessToken,
			FrontToken:    s.frontToken,
			RefreshToken:  s.refreshToken,
			AntiCSRFToken: s.antiCSRFToken,
		},
		AccessAndFrontTokenUpdated: s.accessTokenUpdated,
	}
}

// MergeIntoAccessTokenPayload overlays update onto the payload and has the
// backing recipe issue a token carrying the result. Keys mapped to
// payload.Delete are removed and protected keys in update are ignored.
//
// The session is only changed once the recipe has succeeded. If the session
// no longer exists an *UnauthorisedError is returned and the payload is left
// as it was.
func (s *Session) MergeIntoAccessTokenPayload(ctx context.Context, update payload.Payload) error {
	custom := payload.Merge(payload.StripProtected(s.payload), payload.StripProtected(update))

	res, err := s.recipe.RegenerateAccessToken(ctx, s.accessToken, custom)
	if err != nil {
		return err
	}
	if res == nil {
		return &UnauthorisedError{Message: "session does not exist anymore", ClearTokens: true}
	}

	next := res.AccessTokenPayload
	if next == nil {
		next = payload.Merge(s.payload, payload.StripProtected(update))
	}
	if res.AccessToken != nil {
		s.accessToken = res.AccessToken.Token
		s.frontToken = res.AccessToken.FrontToken
		s.accessTokenUpdated = true
	}
	s.payload = next
	return nil
}

// FetchAndSetClaim fetches the claim's latest value and stores it in the
// payload.
func (s *Session) FetchAndSetClaim(ctx context.Context, c claims.Claim) error {
	update, err := c.Build(ctx, s.userID, s.tenantID, s.payload)
	if err != nil {
		return err
	}
	return s.MergeIntoAccessTokenPayload(ctx, update)
}

// SetClaimValue stores value for the claim without fetching it.
func (s *Session) SetClaimValue(ctx context.Context, c claims.Claim, value any) error {
	return s.MergeIntoAccessTokenPayload(ctx, c.AddToPayload(ctx, payload.Payload{}, value))
}

// GetClaimValue reads the claim's value from the current payload.
func (s *Session) GetClaimValue(ctx context.Context, c claims.Claim) (any, bool) {
	return c.GetValueFromPayload(ctx, s.payload)
}

// RemoveClaim deletes the claim's key from the payload.
func (s *Session) RemoveClaim(ctx context.Context, c claims.Claim) error {
	return s.MergeIntoAccessTokenPayload(ctx, c.RemoveFromPayloadByMerge(ctx, payload.Payload{}))
}

// RevokeSession revokes the session in the backing service. Revoking a
// session that is already gone is not an error.
func (s *Session) RevokeSession(ctx context.Context) error {
	_, err := s.recipe.RevokeSession(ctx, s.handle)
	return err
}

func (s *Session) information(ctx context.Context) (*SessionInformation, error) {
	info, err := s.recipe.GetSessionInformation(ctx, s.handle)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &UnauthorisedError{Message: "session does not exist anymore", ClearTokens: true}
	}
	return info, nil
}

// GetSessionDataFromDatabase returns the server-side session data.
func (s *Session) GetSessionDataFromDatabase(ctx context.Context) (payload.Payload, error) {
	info, err := s.information(ctx)
	if err != nil {
		return nil, err
	}
	return info.SessionData, nil
}

// UpdateSessionDataInDatabase replaces the server-side session data.
func (s *Session) UpdateSessionDataInDatabase(ctx context.Context, data payload.Payload) error {
	ok, err := s.recipe.UpdateSessionDataInDatabase(ctx, s.handle, data)
	if err != nil {
		return err
	}
	if !ok {
		return &UnauthorisedError{Message: "session does not exist anymore", ClearTokens: true}
	}
	return nil
}

func (s *Session) GetTimeCreated(ctx context.Context) (time.Time, error) {
	info, err := s.information(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return info.TimeCreated, nil
}

func (s *Session) GetExpiry(ctx context.Context) (time.Time, error) {
	info, err := s.information(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return info.Expiry, nil
}
