package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/internal/utils"
	"github.com/jrsteele09/go-session-claims/session"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the verified *session.Session
const ContextKeySession ContextKey = "session"

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ContextKeySession).(*session.Session)
	return s
}

// bearerToken reads the access token from the Authorization header, falling
// back to the st-access-token header.
func bearerToken(r *http.Request, fallbackHeader string) string {
	authHeader := r.Header.Get(HeaderAuthorization)
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return r.Header.Get(fallbackHeader)
}

func antiCSRFHeader(r *http.Request) *string {
	return utils.NonZeroPtr(r.Header.Get(HeaderAntiCSRF))
}

// RequireSession verifies the access token and asserts the global claim
// validators plus those returned by extra.
func (s *Server) RequireSession(extra func(*session.Session) []claims.Validator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			accessToken := bearerToken(r, HeaderAccessToken)
			if accessToken == "" {
				writeJSONMessage(w, http.StatusUnauthorized, "unauthorised")
				return
			}

			sess, err := s.deps.Recipe.GetSession(r.Context(), accessToken, session.VerifyOptions{
				AntiCSRFToken: antiCSRFHeader(r),
				AntiCSRFCheck: r.Method != http.MethodGet,
				OverrideGlobalClaimValidators: func(globals []claims.Validator, sess *session.Session) []claims.Validator {
					if extra == nil {
						return globals
					}
					return append(append([]claims.Validator{}, globals...), extra(sess)...)
				},
			})
			if err != nil {
				s.writeSessionError(w, err)
				return
			}

			writeSessionTokens(w, sess)
			ctx := context.WithValue(r.Context(), ContextKeySession, sess)
			next(w, r.WithContext(ctx))
		}
	}
}

func (s *Server) verifiedValidators(*session.Session) []claims.Validator {
	return []claims.Validator{s.deps.EmailVerification.IsVerifiedDefault()}
}

func (s *Server) adminValidators(*session.Session) []claims.Validator {
	return []claims.Validator{s.deps.Roles.Validators().Includes("admin")}
}

// writeSessionTokens sends tokens that changed while the request was handled.
func writeSessionTokens(w http.ResponseWriter, sess *session.Session) {
	tokens := sess.AllSessionTokensDangerously()
	if !tokens.AccessAndFrontTokenUpdated {
		return
	}
	w.Header().Set(HeaderAccessToken, tokens.AccessToken)
	w.Header().Set(HeaderFrontToken, tokens.FrontToken)
	if refresh := utils.Value(tokens.RefreshToken); refresh != "" {
		w.Header().Set(HeaderRefreshToken, refresh)
	}
	if antiCSRF := utils.Value(tokens.AntiCSRFToken); antiCSRF != "" {
		w.Header().Set(HeaderAntiCSRF, antiCSRF)
	}
}

func clearSessionTokens(w http.ResponseWriter) {
	w.Header().Set(HeaderAccessToken, "")
	w.Header().Set(HeaderRefreshToken, "")
	w.Header().Set(HeaderFrontToken, frontTokenRemoved)
}

type claimErrorResponse struct {
	Message               string                `json:"message"`
	ClaimValidationErrors []claims.InvalidClaim `json:"claimValidationErrors"`
}

// writeSessionError maps session errors to HTTP responses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	var (
		theft   *session.TokenTheftError
		unauth  *session.UnauthorisedError
		invalid *session.ClaimValidationError
	)
	switch {
	case errors.As(err, &theft):
		s.logger.Warn().Str("handle", theft.SessionHandle).Str("user_id", theft.UserID).Msg("token theft detected")
		clearSessionTokens(w)
		writeJSONMessage(w, http.StatusUnauthorized, "token theft detected")
	case errors.Is(err, session.ErrTryRefreshToken):
		writeJSONMessage(w, http.StatusUnauthorized, "try refresh token")
	case errors.As(err, &unauth):
		if unauth.ClearTokens {
			clearSessionTokens(w)
		}
		writeJSONMessage(w, http.StatusUnauthorized, "unauthorised")
	case errors.As(err, &invalid):
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(claimErrorResponse{
			Message:               "invalid claim",
			ClaimValidationErrors: invalid.InvalidClaims,
		})
	default:
		s.logger.Err(err).Msg("session request failed")
		writeJSONMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSONMessage(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
