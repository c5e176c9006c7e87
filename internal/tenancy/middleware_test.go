// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenancy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
)

type fakeFinder struct {
	accounts map[string]*types.Account
}

func (f *fakeFinder) GetAccountByExternalID(ctx context.Context, externalID string) (*types.Account, error) {
	if a, ok := f.accounts[externalID]; ok {
		return a, nil
	}
	return nil, storage.ErrNotFound
}

func newTestMiddleware(accounts map[string]*types.Account) *Middleware {
	return NewMiddleware(
		&fakeFinder{accounts: accounts},
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)
}

func TestResolverStripsAccountToken(t *testing.T) {
	token := "1e6f3c62-8f7a-4b0e-9a51-0d2b7c9e4f10"
	account := &types.Account{ID: "internal-id", ExternalID: token, Name: "acme"}
	mw := newTestMiddleware(map[string]*types.Account{token: account})

	var gotPath string
	var gotAccount *types.Account
	var gotBase string

	handler := mw.Resolver()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccount = AccountFromContext(r.Context())
		gotBase = BasePath(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/"+token+"/insights/abc", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "/insights/abc", gotPath)
	require.NotNil(t, gotAccount)
	assert.Equal(t, "internal-id", gotAccount.ID)
	assert.Equal(t, "/"+token, gotBase)
}

func TestResolverTokenOnlyPathBecomesRoot(t *testing.T) {
	token := "1e6f3c62-8f7a-4b0e-9a51-0d2b7c9e4f10"
	mw := newTestMiddleware(map[string]*types.Account{token: {ID: "id", ExternalID: token}})

	var gotPath string
	handler := mw.Resolver()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/"+token, nil))

	assert.Equal(t, "/", gotPath)
}

func TestResolverUnknownTokenLeavesRequestUnscoped(t *testing.T) {
	mw := newTestMiddleware(nil)

	var gotPath string
	var gotAccount *types.Account
	handler := mw.Resolver()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccount = AccountFromContext(r.Context())
	}))

	// Valid token syntax, no matching account.
	path := "/1e6f3c62-8f7a-4b0e-9a51-0d2b7c9e4f10/insights"
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))

	assert.Equal(t, path, gotPath)
	assert.Nil(t, gotAccount)
}

func TestResolverNonTokenSegmentLeavesRequestUnscoped(t *testing.T) {
	mw := newTestMiddleware(nil)

	var gotPath string
	handler := mw.Resolver()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/not-a-token/insights", nil))

	assert.Equal(t, "/not-a-token/insights", gotPath)
}

func TestResolverSkipsGlobalRoutes(t *testing.T) {
	// A finder that fails the test if consulted.
	mw := NewMiddleware(
		finderFunc(func(ctx context.Context, externalID string) (*types.Account, error) {
			t.Fatalf("resolver consulted the account finder for a global route")
			return nil, nil
		}),
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)

	handler := mw.Resolver()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, path := range []string{"/", "/session/new", "/onboarding", "/s/some-token", "/api/v0/status", "/waitlist"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
}

type finderFunc func(ctx context.Context, externalID string) (*types.Account, error)

func (f finderFunc) GetAccountByExternalID(ctx context.Context, externalID string) (*types.Account, error) {
	return f(ctx, externalID)
}

func TestIsGlobalRoute(t *testing.T) {
	assert.True(t, IsGlobalRoute("/"))
	assert.True(t, IsGlobalRoute("/session"))
	assert.True(t, IsGlobalRoute("/session/new"))
	assert.True(t, IsGlobalRoute("/s/abc123"))

	assert.False(t, IsGlobalRoute("/sessions"))
	assert.False(t, IsGlobalRoute("/setup2"))
	assert.False(t, IsGlobalRoute("/1e6f3c62-8f7a-4b0e-9a51-0d2b7c9e4f10"))
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("1e6f3c62-8f7a-4b0e-9a51-0d2b7c9e4f10"))
	assert.True(t, ValidToken("1E6F3C62-8F7A-4B0E-9A51-0D2B7C9E4F10"))

	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken("1e6f3c628f7a4b0e9a510d2b7c9e4f10"))
	assert.False(t, ValidToken("not-a-token"))
	assert.False(t, ValidToken("zzzzzzzz-8f7a-4b0e-9a51-0d2b7c9e4f10"))
}
