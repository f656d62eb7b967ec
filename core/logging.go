package core

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/rs/zerolog"
)

// LoggingOverride logs every call that changes session state.
func LoggingOverride(logger zerolog.Logger) session.Override {
	return func(next session.RecipeInterface) session.RecipeInterface {
		return &loggingRecipe{RecipeInterface: next, logger: logger}
	}
}

type loggingRecipe struct {
	session.RecipeInterface
	logger zerolog.Logger
}

func (l *loggingRecipe) event(op string, start time.Time, err error) *zerolog.Event {
	ev := l.logger.Debug()
	if err != nil {
		ev = l.logger.Warn().Err(err)
	}
	return ev.Str("op", op).Dur("took", time.Since(start))
}

func (l *loggingRecipe) CreateNewSession(ctx context.Context, in session.CreateSessionInput) (*session.SessionState, error) {
	start := time.Now()
	st, err := l.RecipeInterface.CreateNewSession(ctx, in)
	ev := l.event("CreateNewSession", start, err).Str("user_id", in.UserID).Str("tenant_id", in.TenantID)
	if st != nil {
		ev = ev.Str("handle", st.Handle)
	}
	ev.Msg("session")
	return st, err
}

func (l *loggingRecipe) RefreshSession(ctx context.Context, refreshToken string, antiCSRFToken *string) (*session.SessionState, error) {
	start := time.Now()
	st, err := l.RecipeInterface.RefreshSession(ctx, refreshToken, antiCSRFToken)
	ev := l.event("RefreshSession", start, err)
	if st != nil {
		ev = ev.Str("handle", st.Handle)
	}
	ev.Msg("session")
	return st, err
}

func (l *loggingRecipe) RegenerateAccessToken(ctx context.Context, accessToken string, newPayload payload.Payload) (*session.RegenerateResult, error) {
	start := time.Now()
	res, err := l.RecipeInterface.RegenerateAccessToken(ctx, accessToken, newPayload)
	l.event("RegenerateAccessToken", start, err).Bool("found", res != nil).Int("keys", len(newPayload)).Msg("session")
	return res, err
}

func (l *loggingRecipe) MergeIntoAccessTokenPayload(ctx context.Context, handle string, update payload.Payload) (bool, error) {
	start := time.Now()
	ok, err := l.RecipeInterface.MergeIntoAccessTokenPayload(ctx, handle, update)
	l.event("MergeIntoAccessTokenPayload", start, err).Str("handle", handle).Bool("found", ok).Msg("session")
	return ok, err
}

func (l *loggingRecipe) RevokeSession(ctx context.Context, handle string) (bool, error) {
	start := time.Now()
	ok, err := l.RecipeInterface.RevokeSession(ctx, handle)
	l.event("RevokeSession", start, err).Str("handle", handle).Bool("found", ok).Msg("session")
	return ok, err
}

func (l *loggingRecipe) RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	start := time.Now()
	handles, err := l.RecipeInterface.RevokeAllSessionsForUser(ctx, userID, tenantID)
	l.event("RevokeAllSessionsForUser", start, err).Str("user_id", userID).Int("revoked", len(handles)).Msg("session")
	return handles, err
}

func (l *loggingRecipe) UpdateSessionDataInDatabase(ctx context.Context, handle string, data payload.Payload) (bool, error) {
	start := time.Now()
	ok, err := l.RecipeInterface.UpdateSessionDataInDatabase(ctx, handle, data)
	l.event("UpdateSessionDataInDatabase", start, err).Str("handle", handle).Bool("found", ok).Msg("session")
	return ok, err
}
