// Package core is the token-issuing session service behind session.Recipe.
// Access tokens are self-contained JWTs. Refresh tokens are opaque, rotated
// on every use and stored only as hashes.
package core

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-claims/internal/utils"
	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/jrsteele09/go-session-claims/tenants"
	"github.com/jrsteele09/go-session-claims/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrUnknownTenant is returned when a session targets a missing or disabled
// tenant.
var ErrUnknownTenant = tenants.ErrUnavailable

var _ session.RecipeInterface = (*Core)(nil)

// Config holds the token lifetimes and issuer.
type Config struct {
	AccessTokenValidity  time.Duration
	RefreshTokenValidity time.Duration
	Issuer               string // Used when the tenant has no issuer of its own
	AntiCSRF             bool
}

type Option func(*Core)

// WithNowFunc sets the clock.
func WithNowFunc(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

// WithVerifier replaces the signer's key as the access token verification key,
// e.g. with a keyfunc over a published JWKS.
func WithVerifier(kf jwt.Keyfunc) Option {
	return func(c *Core) {
		c.verifier = kf
	}
}

func WithRevokedSessionCache(cache token.RevokedSessionCache) Option {
	return func(c *Core) {
		c.revoked = cache
	}
}

// Core implements session.RecipeInterface over a SessionRepo.
type Core struct {
	cfg      Config
	repo     SessionRepo
	tenants  tenants.Repo
	signer   token.Signer
	verifier jwt.Keyfunc
	hasher   *token.RefreshTokenHasher
	revoked  token.RevokedSessionCache
	now      func() time.Time
}

func New(cfg Config, repo SessionRepo, tenantRepo tenants.Repo, signer token.Signer, hasher *token.RefreshTokenHasher, opts ...Option) *Core {
	c := &Core{
		cfg:      cfg,
		repo:     repo,
		tenants:  tenantRepo,
		signer:   signer,
		verifier: signer.GetVerificationKey,
		hasher:   hasher,
		revoked:  token.NewInMemoryRevokedSessionCache(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Core) tenant(tenantID string) (*tenants.Tenant, error) {
	return tenants.Resolve(c.tenants, tenantID)
}

func (c *Core) issuer(t *tenants.Tenant) string {
	return t.IssuerOr(c.cfg.Issuer)
}

type issueInput struct {
	row              *SessionRow
	refreshTokenHash string
	antiCSRF         *string
	expiry           time.Time
}

// issue signs an access token for row and returns it with its front token and
// the full payload it carries.
func (c *Core) issue(in issueInput) (*session.IssuedAccessToken, payload.Payload, error) {
	t, err := c.tenant(in.row.TenantID)
	if err != nil {
		return nil, nil, err
	}
	raw, err := token.CreateAccessToken(c.signer, token.AccessTokenInput{
		SessionHandle:    in.row.Handle,
		UserID:           in.row.UserID,
		TenantID:         t.ID,
		Issuer:           c.issuer(t),
		RefreshTokenHash: in.refreshTokenHash,
		AntiCSRFToken:    in.antiCSRF,
		Payload:          in.row.AccessTokenPayload,
		IssuedAt:         c.now(),
		Expiry:           in.expiry,
	})
	if err != nil {
		return nil, nil, err
	}
	at, err := token.ParseAccessToken(raw, c.verifier, c.now)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Core.issue] ParseAccessToken")
	}
	front, err := token.BuildFrontToken(at.UserID, at.Expiry, at.Payload)
	if err != nil {
		return nil, nil, err
	}
	return &session.IssuedAccessToken{Token: raw, FrontToken: front, Expiry: at.Expiry}, at.Payload, nil
}

func (c *Core) newAntiCSRF(enabled bool) *string {
	if !c.cfg.AntiCSRF || !enabled {
		return nil
	}
	return utils.Ptr(token.NewAntiCSRFToken())
}

func (c *Core) CreateNewSession(ctx context.Context, in session.CreateSessionInput) (*session.SessionState, error) {
	t, err := c.tenant(in.TenantID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := token.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := c.now()
	row := &SessionRow{
		Handle:             uuid.New().String(),
		UserID:             in.UserID,
		TenantID:           t.ID,
		SessionData:        payload.Clone(in.SessionData),
		AccessTokenPayload: payload.Merge(payload.Payload{}, payload.StripProtected(in.AccessTokenPayload)),
		RefreshTokenHash:   c.hasher.Hash(refreshToken),
		AntiCSRF:           !in.DisableAntiCSRF,
		CreatedAt:          now,
		ExpiresAt:          now.Add(c.cfg.RefreshTokenValidity),
	}
	antiCSRF := c.newAntiCSRF(row.AntiCSRF)
	issued, full, err := c.issue(issueInput{
		row:              row,
		refreshTokenHash: row.RefreshTokenHash,
		antiCSRF:         antiCSRF,
		expiry:           now.Add(c.cfg.AccessTokenValidity),
	})
	if err != nil {
		return nil, err
	}
	if err := c.repo.Create(ctx, row); err != nil {
		return nil, errors.Wrap(err, "[Core.CreateNewSession] Create")
	}

	log.Debug().Str("handle", row.Handle).Str("user_id", row.UserID).Str("tenant_id", row.TenantID).Msg("session created")
	return &session.SessionState{
		Handle:             row.Handle,
		UserID:             row.UserID,
		TenantID:           row.TenantID,
		AccessTokenPayload: full,
		AccessTokenUpdated: true,
		Tokens: session.Tokens{
			AccessToken:   issued.Token,
			FrontToken:    issued.FrontToken,
			RefreshToken:  &refreshToken,
			AntiCSRFToken: antiCSRF,
		},
	}, nil
}

// verify parses an access token and maps failures to session errors.
func (c *Core) verify(accessToken string) (*token.AccessToken, error) {
	at, err := token.ParseAccessToken(accessToken, c.verifier, c.now)
	if errors.Is(err, token.ErrTokenExpired) {
		return nil, errors.Wrap(session.ErrTryRefreshToken, "access token expired")
	}
	if err != nil {
		return nil, &session.UnauthorisedError{Message: err.Error(), ClearTokens: true}
	}
	if c.revoked.IsRevoked(at.SessionHandle, c.now()) {
		return nil, &session.UnauthorisedError{Message: "session revoked", ClearTokens: true}
	}
	return at, nil
}

func (c *Core) GetSession(ctx context.Context, accessToken string, opts session.GetSessionOptions) (*session.SessionState, error) {
	at, err := c.verify(accessToken)
	if err != nil {
		return nil, err
	}

	if opts.DoAntiCSRFCheck && at.AntiCSRFToken != nil {
		if !utils.Equal(opts.AntiCSRFToken, at.AntiCSRFToken) {
			return nil, errors.Wrap(session.ErrTryRefreshToken, "anti-csrf check failed")
		}
	}

	if opts.CheckDatabase {
		row, err := c.repo.Get(ctx, at.SessionHandle)
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "[Core.GetSession] Get")
		}
		if !row.ExpiresAt.After(c.now()) {
			return nil, nil
		}
	}

	return &session.SessionState{
		Handle:             at.SessionHandle,
		UserID:             at.UserID,
		TenantID:           at.TenantID,
		AccessTokenPayload: at.Payload,
		Tokens: session.Tokens{
			AccessToken:   accessToken,
			AntiCSRFToken: at.AntiCSRFToken,
		},
	}, nil
}

// RefreshSession rotates the refresh token. Presenting a refresh token that
// was already rotated away revokes the session and reports token theft.
func (c *Core) RefreshSession(ctx context.Context, refreshToken string, antiCSRFToken *string) (*session.SessionState, error) {
	hash := c.hasher.Hash(refreshToken)
	row, err := c.repo.GetByRefreshTokenHash(ctx, hash)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, &session.UnauthorisedError{Message: "refresh token not recognised", ClearTokens: true}
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Core.RefreshSession] GetByRefreshTokenHash")
	}

	now := c.now()
	if !row.ExpiresAt.After(now) {
		if _, err := c.repo.Delete(ctx, row.Handle); err != nil {
			return nil, errors.Wrap(err, "[Core.RefreshSession] Delete")
		}
		return nil, &session.UnauthorisedError{Message: "session expired", ClearTokens: true}
	}

	if row.RefreshTokenHash != hash {
		log.Warn().Str("handle", row.Handle).Str("user_id", row.UserID).Msg("refresh token reuse detected, revoking session")
		if _, err := c.RevokeSession(ctx, row.Handle); err != nil {
			return nil, err
		}
		return nil, &session.TokenTheftError{SessionHandle: row.Handle, UserID: row.UserID}
	}

	next, err := token.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	nextHash := c.hasher.Hash(next)
	expiresAt := now.Add(c.cfg.RefreshTokenValidity)
	antiCSRF := c.newAntiCSRF(row.AntiCSRF)
	issued, full, err := c.issue(issueInput{
		row:              row,
		refreshTokenHash: nextHash,
		antiCSRF:         antiCSRF,
		expiry:           now.Add(c.cfg.AccessTokenValidity),
	})
	if err != nil {
		return nil, err
	}

	err = c.repo.RotateRefreshToken(ctx, row.Handle, hash, nextHash, expiresAt)
	if errors.Is(err, ErrRotationConflict) {
		return nil, &session.UnauthorisedError{Message: "refresh token already used", ClearTokens: true}
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Core.RefreshSession] RotateRefreshToken")
	}

	return &session.SessionState{
		Handle:             row.Handle,
		UserID:             row.UserID,
		TenantID:           row.TenantID,
		AccessTokenPayload: full,
		AccessTokenUpdated: true,
		Tokens: session.Tokens{
			AccessToken:   issued.Token,
			FrontToken:    issued.FrontToken,
			RefreshToken:  &next,
			AntiCSRFToken: antiCSRF,
		},
	}, nil
}

// RegenerateAccessToken stores newPayload as the session's custom payload and
// issues a token with the same expiry as accessToken.
func (c *Core) RegenerateAccessToken(ctx context.Context, accessToken string, newPayload payload.Payload) (*session.RegenerateResult, error) {
	at, err := c.verify(accessToken)
	if err != nil {
		return nil, err
	}

	row, err := c.repo.Get(ctx, at.SessionHandle)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Core.RegenerateAccessToken] Get")
	}

	// The token is signed and verified before the payload is stored, so a
	// payload that cannot be issued never reaches the repo.
	row.AccessTokenPayload = payload.Merge(payload.Payload{}, payload.StripProtected(newPayload))
	issued, full, err := c.issue(issueInput{
		row:              row,
		refreshTokenHash: at.RefreshTokenHash,
		antiCSRF:         at.AntiCSRFToken,
		expiry:           at.Expiry,
	})
	if err != nil {
		return nil, err
	}

	if err := c.repo.UpdateAccessTokenPayload(ctx, row.Handle, row.AccessTokenPayload); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Core.RegenerateAccessToken] UpdateAccessTokenPayload")
	}
	return &session.RegenerateResult{AccessTokenPayload: full, AccessToken: issued}, nil
}

func (c *Core) MergeIntoAccessTokenPayload(ctx context.Context, handle string, update payload.Payload) (bool, error) {
	row, err := c.repo.Get(ctx, handle)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Core.MergeIntoAccessTokenPayload] Get")
	}
	merged := payload.Merge(row.AccessTokenPayload, payload.StripProtected(update))
	if err := c.repo.UpdateAccessTokenPayload(ctx, handle, merged); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Core.MergeIntoAccessTokenPayload] UpdateAccessTokenPayload")
	}
	return true, nil
}

func (c *Core) GetSessionInformation(ctx context.Context, handle string) (*session.SessionInformation, error) {
	row, err := c.repo.Get(ctx, handle)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Core.GetSessionInformation] Get")
	}
	if !row.ExpiresAt.After(c.now()) {
		return nil, nil
	}
	return &session.SessionInformation{
		Handle:             row.Handle,
		UserID:             row.UserID,
		TenantID:           row.TenantID,
		SessionData:        row.SessionData,
		AccessTokenPayload: row.AccessTokenPayload,
		TimeCreated:        row.CreatedAt,
		Expiry:             row.ExpiresAt,
	}, nil
}

// RevokeSession deletes the session and rejects its outstanding access tokens
// until they expire.
func (c *Core) RevokeSession(ctx context.Context, handle string) (bool, error) {
	ok, err := c.repo.Delete(ctx, handle)
	if err != nil {
		return false, errors.Wrap(err, "[Core.RevokeSession] Delete")
	}
	c.revoked.Add(handle, c.now().Add(c.cfg.AccessTokenValidity))
	return ok, nil
}

func (c *Core) RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	handles, err := c.repo.ListHandlesForUser(ctx, userID, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Core.RevokeAllSessionsForUser] ListHandlesForUser")
	}
	revoked := make([]string, 0, len(handles))
	for _, h := range handles {
		ok, err := c.RevokeSession(ctx, h)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked = append(revoked, h)
		}
	}
	return revoked, nil
}

func (c *Core) GetAllSessionHandlesForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	handles, err := c.repo.ListHandlesForUser(ctx, userID, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Core.GetAllSessionHandlesForUser] ListHandlesForUser")
	}
	return handles, nil
}

func (c *Core) UpdateSessionDataInDatabase(ctx context.Context, handle string, data payload.Payload) (bool, error) {
	err := c.repo.UpdateSessionData(ctx, handle, data)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Core.UpdateSessionDataInDatabase] UpdateSessionData")
	}
	return true, nil
}

// Cleanup removes expired sessions and stale revocation entries.
func (c *Core) Cleanup(ctx context.Context) (int, error) {
	now := c.now()
	n, err := c.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "[Core.Cleanup] DeleteExpired")
	}
	c.revoked.Cleanup(now)
	return n, nil
}
