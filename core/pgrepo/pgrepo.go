// Package pgrepo stores sessions in PostgreSQL.
package pgrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-session-claims/core"
	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/pkg/errors"
)

var _ core.SessionRepo = (*SessionRepo)(nil)

const defaultTable = "sessions"

// SessionRepo implements core.SessionRepo. The pool is owned by the caller.
type SessionRepo struct {
	pool  *pgxpool.Pool
	table string
}

type Option func(*SessionRepo)

// WithTable sets the table name, "sessions" by default.
func WithTable(name string) Option {
	return func(r *SessionRepo) {
		r.table = name
	}
}

func New(pool *pgxpool.Pool, opts ...Option) (*SessionRepo, error) {
	if pool == nil {
		return nil, errors.New("[pgrepo.New] nil pool")
	}
	r := &SessionRepo{pool: pool, table: defaultTable}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *SessionRepo) ident() string {
	return pgx.Identifier{r.table}.Sanitize()
}

// EnsureSchema creates the sessions table and its indexes if missing.
func (r *SessionRepo) EnsureSchema(ctx context.Context) error {
	t := r.ident()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
		     handle                    TEXT PRIMARY KEY,
		     user_id                   TEXT NOT NULL,
		     tenant_id                 TEXT NOT NULL,
		     session_data              JSONB NOT NULL DEFAULT '{}'::jsonb,
		     access_token_payload      JSONB NOT NULL DEFAULT '{}'::jsonb,
		     refresh_token_hash        TEXT NOT NULL,
		     parent_refresh_token_hash TEXT NOT NULL DEFAULT '',
		     anti_csrf                 BOOLEAN NOT NULL DEFAULT FALSE,
		     created_at                TIMESTAMPTZ NOT NULL,
		     expires_at                TIMESTAMPTZ NOT NULL
		   )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + pgx.Identifier{r.table + "_refresh_token_hash_idx"}.Sanitize() +
			` ON ` + t + ` (refresh_token_hash)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{r.table + "_parent_refresh_token_hash_idx"}.Sanitize() +
			` ON ` + t + ` (parent_refresh_token_hash)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{r.table + "_user_idx"}.Sanitize() +
			` ON ` + t + ` (user_id, tenant_id)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{r.table + "_expires_at_idx"}.Sanitize() +
			` ON ` + t + ` (expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "[SessionRepo.EnsureSchema] Exec")
		}
	}
	return nil
}

func encode(p payload.Payload) ([]byte, error) {
	if p == nil {
		p = payload.Payload{}
	}
	return json.Marshal(p)
}

func (r *SessionRepo) Create(ctx context.Context, row *core.SessionRow) error {
	data, err := encode(row.SessionData)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Create] encode session data")
	}
	p, err := encode(row.AccessTokenPayload)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Create] encode payload")
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO `+r.ident()+` (
		     handle, user_id, tenant_id, session_data, access_token_payload,
		     refresh_token_hash, parent_refresh_token_hash, anti_csrf, created_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row.Handle, row.UserID, row.TenantID, data, p,
		row.RefreshTokenHash, row.ParentRefreshTokenHash, row.AntiCSRF, row.CreatedAt, row.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Create] Exec")
	}
	return nil
}

const selectColumns = `handle, user_id, tenant_id, session_data, access_token_payload,
	refresh_token_hash, parent_refresh_token_hash, anti_csrf, created_at, expires_at`

func scanRow(row pgx.Row) (*core.SessionRow, error) {
	var (
		out     core.SessionRow
		data, p []byte
	)
	err := row.Scan(&out.Handle, &out.UserID, &out.TenantID, &data, &p,
		&out.RefreshTokenHash, &out.ParentRefreshTokenHash, &out.AntiCSRF, &out.CreatedAt, &out.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out.SessionData); err != nil {
		return nil, errors.Wrap(err, "decode session data")
	}
	if err := json.Unmarshal(p, &out.AccessTokenPayload); err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	return &out, nil
}

func (r *SessionRepo) Get(ctx context.Context, handle string) (*core.SessionRow, error) {
	row, err := scanRow(r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM `+r.ident()+` WHERE handle = $1`, handle))
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return nil, errors.Wrap(err, "[SessionRepo.Get] QueryRow")
	}
	return row, err
}

func (r *SessionRepo) GetByRefreshTokenHash(ctx context.Context, hash string) (*core.SessionRow, error) {
	row, err := scanRow(r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM `+r.ident()+`
		  WHERE refresh_token_hash = $1
		     OR (parent_refresh_token_hash <> '' AND parent_refresh_token_hash = $1)
		  LIMIT 1`, hash))
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return nil, errors.Wrap(err, "[SessionRepo.GetByRefreshTokenHash] QueryRow")
	}
	return row, err
}

func (r *SessionRepo) updateJSON(ctx context.Context, column, handle string, p payload.Payload) error {
	b, err := encode(p)
	if err != nil {
		return err
	}
	ct, err := r.pool.Exec(ctx,
		`UPDATE `+r.ident()+` SET `+pgx.Identifier{column}.Sanitize()+` = $2 WHERE handle = $1`,
		handle, b)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepo) UpdateAccessTokenPayload(ctx context.Context, handle string, p payload.Payload) error {
	err := r.updateJSON(ctx, "access_token_payload", handle, p)
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return errors.Wrap(err, "[SessionRepo.UpdateAccessTokenPayload]")
	}
	return err
}

func (r *SessionRepo) UpdateSessionData(ctx context.Context, handle string, data payload.Payload) error {
	err := r.updateJSON(ctx, "session_data", handle, data)
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return errors.Wrap(err, "[SessionRepo.UpdateSessionData]")
	}
	return err
}

// RotateRefreshToken locks the session row so concurrent refreshes of the
// same token are serialised and only one of them wins.
func (r *SessionRepo) RotateRefreshToken(ctx context.Context, handle, oldHash, newHash string, expiresAt time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.RotateRefreshToken] BeginTx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx,
		`SELECT refresh_token_hash FROM `+r.ident()+` WHERE handle = $1 FOR UPDATE`,
		handle,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrSessionNotFound
	}
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.RotateRefreshToken] select")
	}
	if current != oldHash {
		return core.ErrRotationConflict
	}

	_, err = tx.Exec(ctx,
		`UPDATE `+r.ident()+`
		    SET parent_refresh_token_hash = refresh_token_hash,
		        refresh_token_hash = $2,
		        expires_at = $3
		  WHERE handle = $1`,
		handle, newHash, expiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.RotateRefreshToken] update")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "[SessionRepo.RotateRefreshToken] Commit")
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, handle string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM `+r.ident()+` WHERE handle = $1`, handle)
	if err != nil {
		return false, errors.Wrap(err, "[SessionRepo.Delete] Exec")
	}
	return ct.RowsAffected() > 0, nil
}

func (r *SessionRepo) ListHandlesForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT handle FROM `+r.ident()+`
		  WHERE user_id = $1 AND ($2 = '' OR tenant_id = $2)
		  ORDER BY handle`,
		userID, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.ListHandlesForUser] Query")
	}
	handles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.ListHandlesForUser] CollectRows")
	}
	if handles == nil {
		handles = []string{}
	}
	return handles, nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM `+r.ident()+` WHERE expires_at < $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "[SessionRepo.DeleteExpired] Exec")
	}
	return int(ct.RowsAffected()), nil
}
