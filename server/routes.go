package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("POST "+RouteSession, ChainMiddleware(s.CreateSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionInfoHandler(), s.APIMiddleware(s.RequireSession(nil))...))
	s.RegisterRouteHandler("POST "+RouteSessionRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSignOut, ChainMiddleware(s.SignOutHandler(), s.APIMiddleware(s.RequireSession(nil))...))

	s.RegisterRouteHandler("GET "+RouteSessionData, ChainMiddleware(s.GetSessionDataHandler(), s.APIMiddleware(s.RequireSession(nil))...))
	s.RegisterRouteHandler("PUT "+RouteSessionData, ChainMiddleware(s.PutSessionDataHandler(), s.APIMiddleware(s.RequireSession(nil))...))

	s.RegisterRouteHandler("GET "+RouteVerified, ChainMiddleware(s.VerifiedHandler(), s.APIMiddleware(s.RequireSession(s.verifiedValidators))...))
	s.RegisterRouteHandler("GET "+RouteAdmin, ChainMiddleware(s.AdminHandler(), s.APIMiddleware(s.RequireSession(s.adminValidators))...))
	s.RegisterRouteHandler("GET "+RouteAdminSessions, ChainMiddleware(s.ListUserSessionsHandler(), s.APIMiddleware(s.RequireSession(s.adminValidators))...))
	s.RegisterRouteHandler("DELETE "+RouteAdminSessions, ChainMiddleware(s.RevokeUserSessionsHandler(), s.APIMiddleware(s.RequireSession(s.adminValidators))...))

	if s.deps.JWKS != nil {
		s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
	}
	if s.deps.Metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.deps.Metrics.Handler())
	}
	s.RegisterRouteFunc("GET "+RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
