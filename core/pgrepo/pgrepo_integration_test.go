//go:build integration

package pgrepo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-session-claims/core"
	"github.com/jrsteele09/go-session-claims/core/pgrepo"
	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresPort   = "5432/tcp"
	containerReady = 2 * time.Minute
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_DB":       "sessions",
			"POSTGRES_USER":     "sessions",
			"POSTGRES_PASSWORD": "sessions",
		},
		WaitingFor: wait.ForListeningPort(postgresPort).WithStartupTimeout(containerReady),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, postgresPort)
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://sessions:sessions@%s:%s/sessions?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.Eventually(t, func() bool {
		return pool.Ping(ctx) == nil
	}, 30*time.Second, 250*time.Millisecond)
	return pool
}

func newRow(handle, userID, hash string, now time.Time) *core.SessionRow {
	return &core.SessionRow{
		Handle:             handle,
		UserID:             userID,
		TenantID:           "public",
		SessionData:        payload.Payload{"device": "laptop"},
		AccessTokenPayload: payload.Payload{"st-ev": map[string]any{"v": true, "t": float64(1000)}},
		RefreshTokenHash:   hash,
		AntiCSRF:           true,
		CreatedAt:          now,
		ExpiresAt:          now.Add(time.Hour),
	}
}

func TestSessionRepo(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	repo, err := pgrepo.New(pool)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Create(ctx, newRow("h1", "u1", "hash-1", now)))
	require.NoError(t, repo.Create(ctx, newRow("h2", "u1", "hash-2", now.Add(-2*time.Hour))))

	t.Run("Get", func(t *testing.T) {
		row, err := repo.Get(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, "u1", row.UserID)
		assert.True(t, row.AntiCSRF)
		assert.Equal(t, "laptop", row.SessionData["device"])
		assert.True(t, payload.Equal(payload.Payload{"st-ev": map[string]any{"v": true, "t": 1000}}, row.AccessTokenPayload))
		assert.True(t, now.Equal(row.CreatedAt))

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		require.NoError(t, repo.UpdateAccessTokenPayload(ctx, "h1", payload.Payload{"role": "admin"}))
		require.NoError(t, repo.UpdateSessionData(ctx, "h1", payload.Payload{"device": "phone"}))
		row, err := repo.Get(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, payload.Payload{"role": "admin"}, row.AccessTokenPayload)
		assert.Equal(t, "phone", row.SessionData["device"])

		assert.ErrorIs(t, repo.UpdateSessionData(ctx, "missing", nil), core.ErrSessionNotFound)
	})

	t.Run("Rotate", func(t *testing.T) {
		require.NoError(t, repo.RotateRefreshToken(ctx, "h1", "hash-1", "hash-1b", now.Add(2*time.Hour)))
		assert.ErrorIs(t, repo.RotateRefreshToken(ctx, "h1", "hash-1", "hash-1c", now), core.ErrRotationConflict)

		byParent, err := repo.GetByRefreshTokenHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, "h1", byParent.Handle)
		assert.Equal(t, "hash-1b", byParent.RefreshTokenHash)
		assert.Equal(t, "hash-1", byParent.ParentRefreshTokenHash)

		_, err = repo.GetByRefreshTokenHash(ctx, "unknown")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("ListAndDelete", func(t *testing.T) {
		handles, err := repo.ListHandlesForUser(ctx, "u1", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"h1", "h2"}, handles)

		n, err := repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ok, err := repo.Delete(ctx, "h1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.Delete(ctx, "h1")
		require.NoError(t, err)
		assert.False(t, ok)

		handles, err = repo.ListHandlesForUser(ctx, "u1", "public")
		require.NoError(t, err)
		assert.Empty(t, handles)
	})
}
