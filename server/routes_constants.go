package server

// Route path constants
const (
	// Session lifecycle
	RouteSession        = "/auth/session"
	RouteSessionRefresh = "/auth/session/refresh"
	RouteSignOut        = "/auth/signout"

	// Protected API routes
	RouteSessionData   = "/api/session/data"
	RouteVerified      = "/api/verified"
	RouteAdmin         = "/api/admin"
	RouteAdminSessions = "/api/admin/users/{userID}/sessions"

	// Operational
	RouteWellKnownJWKS = "/.well-known/jwks.json"
	RouteMetrics       = "/metrics"
	RouteHealth        = "/healthz"
)

// Header transport
const (
	HeaderAuthorization       = "Authorization"
	HeaderAccessToken         = "st-access-token"
	HeaderRefreshToken        = "st-refresh-token"
	HeaderFrontToken          = "front-token"
	HeaderAntiCSRF            = "anti-csrf"
	HeaderExposeHeaders       = "Access-Control-Expose-Headers"
	frontTokenRemoved         = "remove"
	contentTypeJSON           = "application/json"
	exposedSessionHeaderNames = HeaderAccessToken + ", " + HeaderRefreshToken + ", " + HeaderFrontToken + ", " + HeaderAntiCSRF
)
