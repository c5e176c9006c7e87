// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/tenancy"
)

type grantKey struct{}

// WithGrant attaches the resolved grant to the context.
func WithGrant(ctx context.Context, g *Grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

// GrantFromContext retrieves the grant resolved by the gate middleware.
func GrantFromContext(ctx context.Context) *Grant {
	if g, ok := ctx.Value(grantKey{}).(*Grant); ok {
		return g
	}
	return nil
}

// Middleware runs the gate against the tenancy-resolved account and the
// authenticated identity, attaches the grant and primes the request's
// Current. An unresolved tenant reads as not found, a missing membership
// as forbidden.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := g.tracer.Start(r.Context(), "authz.Gate.Middleware")
			defer span.End()

			c := current.FromContext(ctx)
			if c == nil || c.Identity() == nil {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			account := tenancy.AccountFromContext(ctx)

			grant, err := g.Resolve(ctx, c.Identity(), account)
			if err != nil {
				switch {
				case errors.Is(err, ErrTenantNotFound):
					writeJSONError(w, http.StatusNotFound, "not found")
				case errors.Is(err, ErrNotAMember):
					writeJSONError(w, http.StatusForbidden, "no access to this account")
				default:
					g.logger.Errorf("authorization failed: %v", err)
					writeJSONError(w, http.StatusInternalServerError, "internal server error")
				}
				return
			}

			c.SetAccount(grant.Account)
			c.SetMembership(grant.Membership)

			next.ServeHTTP(w, r.WithContext(WithGrant(ctx, grant)))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": message})
}
