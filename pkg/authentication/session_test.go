// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tenancy"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
)

type fakeSessionStore struct {
	sessions      map[string]*types.Session
	identities    map[string]*types.Identity
	identityCount int64
}

func (f *fakeSessionStore) GetSessionByID(ctx context.Context, id string) (*types.Session, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSessionStore) GetIdentityByID(ctx context.Context, id string) (*types.Identity, error) {
	if i, ok := f.identities[id]; ok {
		return i, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSessionStore) CountIdentities(ctx context.Context) (int64, error) {
	return f.identityCount, nil
}

func newTestSessionMiddleware(store *fakeSessionStore, codec *CookieCodec) *SessionMiddleware {
	return NewSessionMiddleware(
		store,
		codec,
		func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
			return nil, nil
		},
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)
}

func TestRestoreLoadsSessionAndIdentity(t *testing.T) {
	codec := NewCookieCodec("test-secret")
	identity := &types.Identity{ID: "i-1", Email: "dev@example.com"}
	store := &fakeSessionStore{
		sessions:   map[string]*types.Session{"s-1": {ID: "s-1", IdentityID: "i-1"}},
		identities: map[string]*types.Identity{"i-1": identity},
	}
	mw := newTestSessionMiddleware(store, codec)

	var c *current.Current
	handler := mw.Restore()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c = current.FromContext(r.Context())
	}))

	value, err := codec.Encode("s-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: value})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, c)
	assert.Same(t, identity, c.Identity())
	require.NotNil(t, c.Session())
	assert.Equal(t, "s-1", c.Session().ID)
}

func TestRestoreAnonymousPassesThrough(t *testing.T) {
	mw := newTestSessionMiddleware(&fakeSessionStore{}, NewCookieCodec("test-secret"))

	var c *current.Current
	handler := mw.Restore()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c = current.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, c)
	assert.Nil(t, c.Identity())
}

func TestRestoreClearsTamperedCookie(t *testing.T) {
	mw := newTestSessionMiddleware(&fakeSessionStore{}, NewCookieCodec("test-secret"))

	var c *current.Current
	handler := mw.Restore()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c = current.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotNil(t, c)
	assert.Nil(t, c.Identity())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestRestoreClearsStaleSessionCookie(t *testing.T) {
	codec := NewCookieCodec("test-secret")
	mw := newTestSessionMiddleware(&fakeSessionStore{}, codec)

	handler := mw.Restore()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// Validly signed cookie for a session that was deleted server-side.
	value, err := codec.Encode("gone")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: value})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestRequireIdentityPassesAuthenticated(t *testing.T) {
	mw := newTestSessionMiddleware(&fakeSessionStore{identityCount: 1}, NewCookieCodec("test-secret"))

	called := false
	handler := mw.RequireIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	c := current.New(nil)
	c.SetIdentity(&types.Identity{ID: "i-1"})

	req := httptest.NewRequest(http.MethodGet, "/insights", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(current.WithCurrent(req.Context(), c)))

	assert.True(t, called)
}

func TestRequireIdentityRedirectsToSignIn(t *testing.T) {
	mw := newTestSessionMiddleware(&fakeSessionStore{identityCount: 3}, NewCookieCodec("test-secret"))

	handler := mw.RequireIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("anonymous request reached the handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights?page=2", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/session/new?return_to=%2Finsights%3Fpage%3D2", rec.Header().Get("Location"))
}

type stubAccountFinder struct {
	account *types.Account
}

func (f *stubAccountFinder) GetAccountByExternalID(ctx context.Context, externalID string) (*types.Account, error) {
	if f.account != nil && f.account.ExternalID == externalID {
		return f.account, nil
	}
	return nil, storage.ErrNotFound
}

func TestRequireIdentityRedirectPreservesAccountToken(t *testing.T) {
	const token = "11111111-1111-1111-1111-111111111111"

	mw := newTestSessionMiddleware(&fakeSessionStore{identityCount: 3}, NewCookieCodec("test-secret"))
	resolver := tenancy.NewMiddleware(
		&stubAccountFinder{account: &types.Account{ID: "a-1", ExternalID: token}},
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	).Resolver()

	// Same chain the web server mounts: the account token is stripped
	// from the path before the session middlewares run.
	handler := resolver(mw.Restore()(mw.RequireIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("anonymous request reached the handler")
	}))))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+token+"/insights?page=2", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/session/new?return_to=%2F"+token+"%2Finsights%3Fpage%3D2", rec.Header().Get("Location"))
}

func TestRequireIdentityRedirectsToOnboardingWhenUnconfigured(t *testing.T) {
	mw := newTestSessionMiddleware(&fakeSessionStore{identityCount: 0}, NewCookieCodec("test-secret"))

	handler := mw.RequireIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("anonymous request reached the handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/onboarding", rec.Header().Get("Location"))
}
