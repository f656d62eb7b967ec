package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-session-claims/claims"
	"github.com/jrsteele09/go-session-claims/core"
	"github.com/jrsteele09/go-session-claims/core/pgrepo"
	fakesessionrepo "github.com/jrsteele09/go-session-claims/core/repofake"
	"github.com/jrsteele09/go-session-claims/emailverification"
	"github.com/jrsteele09/go-session-claims/internal/config"
	"github.com/jrsteele09/go-session-claims/internal/logging"
	"github.com/jrsteele09/go-session-claims/metrics"
	"github.com/jrsteele09/go-session-claims/server"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/jrsteele09/go-session-claims/tenants"
	tenantrepofakes "github.com/jrsteele09/go-session-claims/tenants/repofakes"
	"github.com/jrsteele09/go-session-claims/token"
	"github.com/jrsteele09/go-session-claims/userroles"
	usermodel "github.com/jrsteele09/go-session-claims/users"
	fakeuserrepo "github.com/jrsteele09/go-session-claims/users/repofake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const cleanupInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := sessionRepo(ctx, c)
	if err != nil {
		return err
	}
	defer closeRepo()

	secret := c.GetSessionSecret()
	if secret == "" {
		return errors.New("SESSION_SECRET must be set")
	}
	hasher, err := token.NewRefreshTokenHasher([]byte(secret))
	if err != nil {
		return err
	}
	signer, jwks, err := signerFromConfig(c)
	if err != nil {
		return err
	}

	backend := core.New(core.Config{
		AccessTokenValidity:  c.GetAccessTokenValidity(),
		RefreshTokenValidity: c.GetRefreshTokenValidity(),
		Issuer:               c.GetSessionIssuer(),
		AntiCSRF:             c.GetAntiCSRF(),
	}, repo, tenantrepofakes.NewFakeTenantRepo(), signer, hasher)

	m, err := metrics.New("sessiond")
	if err != nil {
		return err
	}

	users, err := bootstrapUsers()
	if err != nil {
		return err
	}
	lookup := userroles.UserRepoLookup{Users: users}
	roles := userroles.NewRoleClaim(lookup)
	recipe := session.NewRecipe(session.Config{
		GlobalClaimValidators: []claims.Validator{roles.Validators().Exists()},
	}, backend, core.LoggingOverride(logger), m.Override())

	handler := server.New(c, server.Deps{
		Recipe:            recipe,
		Users:             users,
		EmailVerification: emailverification.NewClaim(emailverification.UserRepoLookup{Users: users}),
		Roles:             roles,
		Permissions:       userroles.NewPermissionClaim(lookup),
		Metrics:           m,
		JWKS:              jwks,
	}, logger)

	go cleanupLoop(ctx, backend, logger)

	srv := &http.Server{Addr: c.GetPort(), Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return shutdown(srv)
}

// sessionRepo selects Postgres when DATABASE_URL is set and memory otherwise.
func sessionRepo(ctx context.Context, c config.Config) (core.SessionRepo, func(), error) {
	dsn := c.GetDatabaseURL()
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, sessions are kept in memory")
		return fakesessionrepo.NewFakeSessionRepo(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	repo, err := pgrepo.New(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool.Close, nil
}

// bootstrapUsers seeds the in-memory user store with a verified super admin.
func bootstrapUsers() (*fakeuserrepo.FakeUserRepo, error) {
	repo := fakeuserrepo.NewFakeUserRepo()
	email := config.GetEnv("ADMIN_EMAIL", "admin@localhost")
	err := repo.Upsert(&usermodel.User{
		Email:       email,
		SystemRoles: []string{usermodel.RoleSuperAdmin, usermodel.RoleAdmin},
		Tenants:     []usermodel.TenantMembership{{TenantID: tenants.DefaultTenantID, Roles: []string{usermodel.RoleAdmin}, JoinedAt: time.Now()}},
		Verified:    true,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("email", email).Msg("Bootstrap admin user created")
	return repo, nil
}

func signerFromConfig(c config.Config) (token.Signer, func(context.Context) (json.RawMessage, error), error) {
	keyFile := c.GetSigningKeyFile()
	if keyFile == "" {
		return token.NewHMACSigner(c.GetSessionSecret()), nil, nil
	}
	kp, err := token.LoadOrCreateKeyPair(keyFile, "sessiond-1")
	if err != nil {
		return nil, nil, fmt.Errorf("signing key %s: %w", keyFile, err)
	}
	signer, err := token.NewKeyPairSigner(kp)
	if err != nil {
		return nil, nil, err
	}
	return signer, signer.JWKS, nil
}

func cleanupLoop(ctx context.Context, backend *core.Core, logger zerolog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := backend.Cleanup(ctx)
			if err != nil {
				logger.Err(err).Msg("session cleanup failed")
				continue
			}
			logger.Debug().Int("deleted", n).Msg("expired sessions removed")
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
