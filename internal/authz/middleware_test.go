// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/tenancy"
	"github.com/canonical/insaight-hub/internal/types"
)

func gateRequest(t *testing.T, gate *Gate, identity *types.Identity, account *types.Account) (*httptest.ResponseRecorder, *Grant) {
	t.Helper()

	var grant *Grant
	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant = GrantFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/insights", nil)
	ctx := req.Context()
	if identity != nil {
		c := current.New(gate.resolve)
		c.SetIdentity(identity)
		ctx = current.WithCurrent(ctx, c)
	}
	if account != nil {
		ctx = tenancy.ContextWithAccount(ctx, account)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	return rec, grant
}

func TestMiddlewareRequiresIdentity(t *testing.T) {
	gate := newTestGate(staticResolver(nil), Policy{AdminBypass: true})

	rec, _ := gateRequest(t, gate, nil, &types.Account{ID: "a-1"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error": "authentication required"}`, rec.Body.String())
}

func TestMiddlewareUnresolvedTenantReadsAsNotFound(t *testing.T) {
	gate := newTestGate(staticResolver(nil), Policy{AdminBypass: true})

	rec, _ := gateRequest(t, gate, &types.Identity{ID: "i-1"}, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "not found"}`, rec.Body.String())
}

func TestMiddlewareNonMemberForbidden(t *testing.T) {
	gate := newTestGate(staticResolver(nil), Policy{AdminBypass: true})

	rec, _ := gateRequest(t, gate, &types.Identity{ID: "i-1"}, &types.Account{ID: "a-1"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareAttachesGrantAndPrimesCurrent(t *testing.T) {
	m := &types.Membership{ID: "m-1", AccountID: "a-1", IdentityID: "i-1", Role: types.RoleOwner}
	gate := newTestGate(staticResolver(map[string]*types.Membership{"a-1/i-1": m}), Policy{AdminBypass: true})

	var c *current.Current
	var grant *Grant
	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c = current.FromContext(r.Context())
		grant = GrantFromContext(r.Context())
	}))

	cur := current.New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		t.Fatal("membership resolved twice for one request")
		return nil, nil
	})
	cur.SetIdentity(&types.Identity{ID: "i-1"})

	req := httptest.NewRequest(http.MethodGet, "/insights", nil)
	ctx := current.WithCurrent(req.Context(), cur)
	ctx = tenancy.ContextWithAccount(ctx, &types.Account{ID: "a-1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, grant)
	assert.Same(t, m, grant.Membership)

	require.NotNil(t, c)
	got, err := c.Membership(context.Background())
	require.NoError(t, err)
	assert.Same(t, m, got)
	assert.Equal(t, "a-1", c.Account().ID)
}
