package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/jrsteele09/go-session-claims/tenants"
	"github.com/jrsteele09/go-session-claims/users"
)

type createSessionRequest struct {
	Email    string `json:"email"`
	TenantID string `json:"tenantId"`
}

type sessionResponse struct {
	Handle             string          `json:"sessionHandle"`
	UserID             string          `json:"userId"`
	TenantID           string          `json:"tenantId"`
	AccessTokenPayload payload.Payload `json:"accessTokenPayload"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		Handle:             sess.Handle(),
		UserID:             sess.UserID(),
		TenantID:           sess.TenantID(),
		AccessTokenPayload: sess.AccessTokenPayload(),
	}
}

// CreateSessionHandler starts a session for a known user. Credential checks
// belong to the login flow in front of this service.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			writeJSONMessage(w, http.StatusBadRequest, "email is required")
			return
		}
		if req.TenantID == "" {
			req.TenantID = tenants.DefaultTenantID
		}

		user, err := s.deps.Users.GetByEmail(req.Email)
		if errors.Is(err, users.ErrNotFound) {
			writeJSONMessage(w, http.StatusNotFound, "unknown user")
			return
		}
		if err != nil {
			s.logger.Err(err).Msg("user lookup failed")
			writeJSONMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		if user.Blocked || !user.HasTenant(req.TenantID) {
			writeJSONMessage(w, http.StatusForbidden, "user cannot sign in to this tenant")
			return
		}

		sess, err := s.deps.Recipe.CreateNewSession(r.Context(), session.CreateSessionInput{
			UserID:      user.ID,
			TenantID:    req.TenantID,
			SessionData: payload.Payload{"email": user.Email},
		})
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeSessionTokens(w, sess)
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

func (s *Server) SessionInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newSessionResponse(SessionFromContext(r.Context())))
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := bearerToken(r, HeaderRefreshToken)
		if refreshToken == "" {
			clearSessionTokens(w)
			writeJSONMessage(w, http.StatusUnauthorized, "unauthorised")
			return
		}
		sess, err := s.deps.Recipe.RefreshSession(r.Context(), refreshToken, antiCSRFHeader(r))
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeSessionTokens(w, sess)
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := SessionFromContext(r.Context()).RevokeSession(r.Context()); err != nil {
			s.writeSessionError(w, err)
			return
		}
		clearSessionTokens(w)
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}
}

func (s *Server) GetSessionDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := SessionFromContext(r.Context()).GetSessionDataFromDatabase(r.Context())
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func (s *Server) PutSessionDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data payload.Payload
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeJSONMessage(w, http.StatusBadRequest, "invalid session data")
			return
		}
		if err := SessionFromContext(r.Context()).UpdateSessionDataInDatabase(r.Context(), data); err != nil {
			s.writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) VerifiedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"userId": sess.UserID(), "verified": true})
	}
}

// AdminHandler refreshes the permission claim so the response reflects the
// current role table.
func (s *Server) AdminHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if err := sess.FetchAndSetClaim(r.Context(), s.deps.Permissions); err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeSessionTokens(w, sess)
		perms, _ := s.deps.Permissions.GetValue(sess.AccessTokenPayload())
		writeJSON(w, http.StatusOK, map[string]any{"userId": sess.UserID(), "permissions": perms})
	}
}

// adminTenant returns the tenant an admin request acts on. Admin roles are
// granted per tenant, so the caller's session tenant is the only one allowed.
func adminTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := SessionFromContext(r.Context()).TenantID()
	if requested := r.URL.Query().Get("tenantId"); requested != "" && requested != tenantID {
		writeJSONMessage(w, http.StatusForbidden, "admin access is limited to your own tenant")
		return "", false
	}
	return tenantID, true
}

func (s *Server) ListUserSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := adminTenant(w, r)
		if !ok {
			return
		}
		handles, err := s.deps.Recipe.GetAllSessionHandlesForUser(r.Context(), r.PathValue("userID"), tenantID)
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessionHandles": nonNilHandles(handles)})
	}
}

func (s *Server) RevokeUserSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := adminTenant(w, r)
		if !ok {
			return
		}
		handles, err := s.deps.Recipe.RevokeAllSessionsForUser(r.Context(), r.PathValue("userID"), tenantID)
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revokedSessionHandles": nonNilHandles(handles)})
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.deps.JWKS(r.Context())
		if err != nil {
			s.logger.Err(err).Msg("failed to build JWKS")
			writeJSONMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(jwks)
	}
}

func nonNilHandles(handles []string) []string {
	if handles == nil {
		return []string{}
	}
	return handles
}
