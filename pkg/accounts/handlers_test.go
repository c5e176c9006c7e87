// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package accounts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/tenancy"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
)

// newAccountRouter mounts the tenant-scoped routes with the request state
// the gate middleware would have primed.
func newAccountRouter(svc *Service, account *types.Account, identity *types.Identity, membership *types.Membership) http.Handler {
	api := NewAPI(svc, tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := current.New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
				return nil, nil
			})
			c.SetIdentity(identity)
			c.SetAccount(account)
			c.SetMembership(membership)

			ctx := current.WithCurrent(r.Context(), c)
			ctx = tenancy.ContextWithAccount(ctx, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	api.RegisterAccountEndpoints(router)
	return router
}

func TestListMembersRequiresMembership(t *testing.T) {
	svc, store, _ := newTestService(t)
	account, _ := seedAccount(t, store, types.RoleOwner)

	outsider := &types.Identity{ID: "i-out"}
	router := newAccountRouter(svc, account, outsider, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListMembersAsMember(t *testing.T) {
	svc, store, _ := newTestService(t)
	account, members := seedAccount(t, store, types.RoleOwner, types.RoleMember)

	identity := &types.Identity{ID: members[1].IdentityID}
	router := newAccountRouter(svc, account, identity, members[1])

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), members[0].ID)
}

func TestCreateInviteRequiresOwnerRole(t *testing.T) {
	svc, store, _ := newTestService(t)
	account, members := seedAccount(t, store, types.RoleOwner, types.RoleMember)

	identity := &types.Identity{ID: members[1].IdentityID}
	router := newAccountRouter(svc, account, identity, members[1])

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invites", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error": "owner role required"}`, rec.Body.String())
}

func TestCreateInviteAsOwner(t *testing.T) {
	svc, store, _ := newTestService(t)
	account, members := seedAccount(t, store, types.RoleOwner)

	identity := &types.Identity{ID: members[0].IdentityID}
	router := newAccountRouter(svc, account, identity, members[0])

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invites", strings.NewReader(`{"email": "friend@example.com"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)
}

func TestCreateInviteByAdminWithoutMembership(t *testing.T) {
	svc, store, _ := newTestService(t)
	account, _ := seedAccount(t, store, types.RoleOwner)

	// A super-admin passes the owner check through the bypass but holds no
	// membership row to attribute the invite to.
	admin := &types.Identity{ID: "i-admin", Admin: true}
	router := newAccountRouter(svc, account, admin, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invites", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error": "join this account before inviting members"}`, rec.Body.String())
}

func TestRemoveLastOwnerOverHTTP(t *testing.T) {
	svc, store, _ := newTestService(t)
	account, members := seedAccount(t, store, types.RoleOwner, types.RoleMember)

	identity := &types.Identity{ID: members[1].IdentityID, Admin: true}
	router := newAccountRouter(svc, account, identity, members[1])

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/members/"+members[0].ID, nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
