// Package recipefake is an in-memory session.RecipeInterface for tests.
package recipefake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/pkg/errors"
)

var _ session.RecipeInterface = (*FakeRecipe)(nil)

// Operation names used by Calls.
const (
	OpCreateNewSession            = "CreateNewSession"
	OpGetSession                  = "GetSession"
	OpRefreshSession              = "RefreshSession"
	OpRegenerateAccessToken       = "RegenerateAccessToken"
	OpMergeIntoAccessTokenPayload = "MergeIntoAccessTokenPayload"
	OpGetSessionInformation       = "GetSessionInformation"
	OpRevokeSession               = "RevokeSession"
	OpRevokeAllSessionsForUser    = "RevokeAllSessionsForUser"
	OpGetAllSessionHandles        = "GetAllSessionHandlesForUser"
	OpUpdateSessionData           = "UpdateSessionDataInDatabase"
)

type storedSession struct {
	info         session.SessionInformation
	accessToken  string
	refreshToken string
}

// FakeRecipe keeps sessions in memory and counts every call.
type FakeRecipe struct {
	lock     sync.Mutex
	sessions map[string]*storedSession
	byToken  map[string]string
	seq      int
	calls    map[string]int
	errs     map[string]error
	payloads []payload.Payload
	now      func() time.Time
}

func NewFakeRecipe() *FakeRecipe {
	return &FakeRecipe{
		sessions: make(map[string]*storedSession),
		byToken:  make(map[string]string),
		calls:    make(map[string]int),
		errs:     make(map[string]error),
		now:      time.Now,
	}
}

// AddSession stores a session and returns its access token.
func (f *FakeRecipe) AddSession(handle, userID, tenantID string, p payload.Payload) string {
	f.lock.Lock()
	defer f.lock.Unlock()
	now := f.now()
	s := &storedSession{
		info: session.SessionInformation{
			Handle:             handle,
			UserID:             userID,
			TenantID:           tenantID,
			SessionData:        payload.Payload{},
			AccessTokenPayload: f.protect(handle, userID, tenantID, p),
			TimeCreated:        now,
			Expiry:             now.Add(time.Hour),
		},
	}
	f.sessions[handle] = s
	f.issue(s)
	return s.accessToken
}

// State returns the session behind handle as it would be loaded by GetSession.
func (f *FakeRecipe) State(handle string) session.SessionState {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.state(f.sessions[handle])
}

// Forget drops a session so later calls treat it as revoked elsewhere.
func (f *FakeRecipe) Forget(handle string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if s, ok := f.sessions[handle]; ok {
		delete(f.byToken, s.accessToken)
		delete(f.byToken, s.refreshToken)
		delete(f.sessions, handle)
	}
}

// FailWith makes op return err until cleared with a nil err.
func (f *FakeRecipe) FailWith(op string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls returns how many times op was invoked.
func (f *FakeRecipe) Calls(op string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[op]
}

// RegeneratedPayloads returns the payloads passed to RegenerateAccessToken.
func (f *FakeRecipe) RegeneratedPayloads() []payload.Payload {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]payload.Payload(nil), f.payloads...)
}

func (f *FakeRecipe) enter(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func (f *FakeRecipe) protect(handle, userID, tenantID string, p payload.Payload) payload.Payload {
	out := payload.StripProtected(p)
	out[payload.KeySubject] = userID
	out[payload.KeySessionHandle] = handle
	out[payload.KeyTenantID] = tenantID
	return out
}

func (f *FakeRecipe) issue(s *storedSession) {
	f.seq++
	delete(f.byToken, s.accessToken)
	s.accessToken = fmt.Sprintf("access-%s-%d", s.info.Handle, f.seq)
	f.byToken[s.accessToken] = s.info.Handle
}

func (f *FakeRecipe) issueRefresh(s *storedSession) {
	f.seq++
	delete(f.byToken, s.refreshToken)
	s.refreshToken = fmt.Sprintf("refresh-%s-%d", s.info.Handle, f.seq)
	f.byToken[s.refreshToken] = s.info.Handle
}

func (f *FakeRecipe) state(s *storedSession) session.SessionState {
	return session.SessionState{
		Handle:             s.info.Handle,
		UserID:             s.info.UserID,
		TenantID:           s.info.TenantID,
		AccessTokenPayload: payload.Clone(s.info.AccessTokenPayload),
		Tokens: session.Tokens{
			AccessToken: s.accessToken,
			FrontToken:  "front-" + s.accessToken,
		},
	}
}

func (f *FakeRecipe) lookup(token string) *storedSession {
	handle, ok := f.byToken[token]
	if !ok {
		return nil
	}
	return f.sessions[handle]
}

func (f *FakeRecipe) CreateNewSession(_ context.Context, in session.CreateSessionInput) (*session.SessionState, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpCreateNewSession); err != nil {
		return nil, err
	}
	f.seq++
	handle := fmt.Sprintf("handle-%d", f.seq)
	now := f.now()
	data := in.SessionData
	if data == nil {
		data = payload.Payload{}
	}
	s := &storedSession{
		info: session.SessionInformation{
			Handle:             handle,
			UserID:             in.UserID,
			TenantID:           in.TenantID,
			SessionData:        data,
			AccessTokenPayload: f.protect(handle, in.UserID, in.TenantID, in.AccessTokenPayload),
			TimeCreated:        now,
			Expiry:             now.Add(time.Hour),
		},
	}
	f.sessions[handle] = s
	f.issue(s)
	f.issueRefresh(s)

	st := f.state(s)
	st.AccessTokenUpdated = true
	st.Tokens.RefreshToken = &s.refreshToken
	return &st, nil
}

func (f *FakeRecipe) GetSession(_ context.Context, accessToken string, _ session.GetSessionOptions) (*session.SessionState, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpGetSession); err != nil {
		return nil, err
	}
	s := f.lookup(accessToken)
	if s == nil || s.accessToken != accessToken {
		return nil, errors.Wrap(session.ErrTryRefreshToken, "unknown access token")
	}
	st := f.state(s)
	return &st, nil
}

func (f *FakeRecipe) RefreshSession(_ context.Context, refreshToken string, _ *string) (*session.SessionState, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpRefreshSession); err != nil {
		return nil, err
	}
	s := f.lookup(refreshToken)
	if s == nil || s.refreshToken != refreshToken {
		return nil, &session.UnauthorisedError{Message: "unknown refresh token", ClearTokens: true}
	}
	f.issue(s)
	f.issueRefresh(s)
	st := f.state(s)
	st.AccessTokenUpdated = true
	st.Tokens.RefreshToken = &s.refreshToken
	return &st, nil
}

func (f *FakeRecipe) RegenerateAccessToken(_ context.Context, accessToken string, newPayload payload.Payload) (*session.RegenerateResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.payloads = append(f.payloads, payload.Clone(newPayload))
	if err := f.enter(OpRegenerateAccessToken); err != nil {
		return nil, err
	}
	s := f.lookup(accessToken)
	if s == nil {
		return nil, nil
	}
	s.info.AccessTokenPayload = f.protect(s.info.Handle, s.info.UserID, s.info.TenantID, newPayload)
	f.issue(s)
	return &session.RegenerateResult{
		AccessTokenPayload: payload.Clone(s.info.AccessTokenPayload),
		AccessToken: &session.IssuedAccessToken{
			Token:      s.accessToken,
			FrontToken: "front-" + s.accessToken,
			Expiry:     s.info.Expiry,
		},
	}, nil
}

func (f *FakeRecipe) MergeIntoAccessTokenPayload(_ context.Context, handle string, update payload.Payload) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpMergeIntoAccessTokenPayload); err != nil {
		return false, err
	}
	s, ok := f.sessions[handle]
	if !ok {
		return false, nil
	}
	s.info.AccessTokenPayload = payload.Merge(s.info.AccessTokenPayload, payload.StripProtected(update))
	return true, nil
}

func (f *FakeRecipe) GetSessionInformation(_ context.Context, handle string) (*session.SessionInformation, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpGetSessionInformation); err != nil {
		return nil, err
	}
	s, ok := f.sessions[handle]
	if !ok {
		return nil, nil
	}
	info := s.info
	info.AccessTokenPayload = payload.Clone(s.info.AccessTokenPayload)
	info.SessionData = payload.Clone(s.info.SessionData)
	return &info, nil
}

func (f *FakeRecipe) RevokeSession(_ context.Context, handle string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpRevokeSession); err != nil {
		return false, err
	}
	s, ok := f.sessions[handle]
	if !ok {
		return false, nil
	}
	delete(f.byToken, s.accessToken)
	delete(f.byToken, s.refreshToken)
	delete(f.sessions, handle)
	return true, nil
}

func (f *FakeRecipe) RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	handles, err := f.GetAllSessionHandlesForUser(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	f.lock.Lock()
	f.calls[OpRevokeAllSessionsForUser]++
	f.lock.Unlock()
	for _, h := range handles {
		if _, err := f.RevokeSession(ctx, h); err != nil {
			return nil, err
		}
	}
	return handles, nil
}

func (f *FakeRecipe) GetAllSessionHandlesForUser(_ context.Context, userID, tenantID string) ([]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpGetAllSessionHandles); err != nil {
		return nil, err
	}
	var handles []string
	for h, s := range f.sessions {
		if s.info.UserID == userID && (tenantID == "" || s.info.TenantID == tenantID) {
			handles = append(handles, h)
		}
	}
	return handles, nil
}

func (f *FakeRecipe) UpdateSessionDataInDatabase(_ context.Context, handle string, data payload.Payload) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.enter(OpUpdateSessionData); err != nil {
		return false, err
	}
	s, ok := f.sessions[handle]
	if !ok {
		return false, nil
	}
	s.info.SessionData = payload.Clone(data)
	return true, nil
}
