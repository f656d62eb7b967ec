package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/emailverification"
	"github.com/jrsteele09/go-session-claims/internal/config"
	"github.com/jrsteele09/go-session-claims/metrics"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/jrsteele09/go-session-claims/users"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Recipe            *session.Recipe
	Users             users.UserRepo
	EmailVerification *emailverification.Claim
	Roles             *claims.PrimitiveArrayClaim[string]
	Permissions       *claims.PrimitiveArrayClaim[string]
	Metrics           *metrics.Metrics                                   // Optional, serves /metrics when set
	JWKS              func(ctx context.Context) (json.RawMessage, error) // Optional, serves the JWKS when set
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	deps   Deps
	logger zerolog.Logger
}

func New(cfg config.EnvConfig, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		deps:   deps,
		logger: logger,
	}
	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Info().Msgf("[%s] %s", colourMethod(parts[0]), parts[1])
		} else {
			s.logger.Info().Msgf("[%s] %s", colourMethod(""), parts[0])
		}
	}
}
