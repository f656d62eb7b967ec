package fakesessionrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-claims/core"
	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/pkg/errors"
)

var _ core.SessionRepo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*core.SessionRow
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*core.SessionRow),
	}
}

func clone(row *core.SessionRow) *core.SessionRow {
	out := *row
	out.SessionData = payload.Clone(row.SessionData)
	out.AccessTokenPayload = payload.Clone(row.AccessTokenPayload)
	return &out
}

func (sr *FakeSessionRepo) Create(_ context.Context, row *core.SessionRow) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if _, ok := sr.sessions[row.Handle]; ok {
		return errors.Errorf("session %s already exists", row.Handle)
	}
	sr.sessions[row.Handle] = clone(row)
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, handle string) (*core.SessionRow, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	row, ok := sr.sessions[handle]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return clone(row), nil
}

func (sr *FakeSessionRepo) GetByRefreshTokenHash(_ context.Context, hash string) (*core.SessionRow, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	for _, row := range sr.sessions {
		if row.RefreshTokenHash == hash || (row.ParentRefreshTokenHash != "" && row.ParentRefreshTokenHash == hash) {
			return clone(row), nil
		}
	}
	return nil, core.ErrSessionNotFound
}

func (sr *FakeSessionRepo) update(handle string, fn func(*core.SessionRow) error) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	row, ok := sr.sessions[handle]
	if !ok {
		return core.ErrSessionNotFound
	}
	return fn(row)
}

func (sr *FakeSessionRepo) UpdateAccessTokenPayload(_ context.Context, handle string, p payload.Payload) error {
	return sr.update(handle, func(row *core.SessionRow) error {
		row.AccessTokenPayload = payload.Clone(p)
		return nil
	})
}

func (sr *FakeSessionRepo) UpdateSessionData(_ context.Context, handle string, data payload.Payload) error {
	return sr.update(handle, func(row *core.SessionRow) error {
		row.SessionData = payload.Clone(data)
		return nil
	})
}

func (sr *FakeSessionRepo) RotateRefreshToken(_ context.Context, handle, oldHash, newHash string, expiresAt time.Time) error {
	return sr.update(handle, func(row *core.SessionRow) error {
		if row.RefreshTokenHash != oldHash {
			return core.ErrRotationConflict
		}
		row.ParentRefreshTokenHash = oldHash
		row.RefreshTokenHash = newHash
		row.ExpiresAt = expiresAt
		return nil
	})
}

func (sr *FakeSessionRepo) Delete(_ context.Context, handle string) (bool, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if _, ok := sr.sessions[handle]; !ok {
		return false, nil
	}
	delete(sr.sessions, handle)
	return true, nil
}

func (sr *FakeSessionRepo) ListHandlesForUser(_ context.Context, userID, tenantID string) ([]string, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	handles := make([]string, 0)
	for h, row := range sr.sessions {
		if row.UserID == userID && (tenantID == "" || row.TenantID == tenantID) {
			handles = append(handles, h)
		}
	}
	sort.Strings(handles)
	return handles, nil
}

func (sr *FakeSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	n := 0
	for h, row := range sr.sessions {
		if row.ExpiresAt.Before(now) {
			delete(sr.sessions, h)
			n++
		}
	}
	return n, nil
}
