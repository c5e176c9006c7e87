// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package tenancy resolves the account in scope for a request from the
// leading URL path segment.
package tenancy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
)

// GlobalRoutes are never tenant-resolved, matched by exact path or prefix.
var GlobalRoutes = []string{
	"/",
	"/api/v0/status",
	"/api/v0/metrics",
	"/session",
	"/passwords",
	"/setup",
	"/register",
	"/onboarding",
	"/waitlist",
	"/s",
	"/how-to",
	"/assets",
}

// AccountFinderInterface is the single lookup the resolver needs.
type AccountFinderInterface interface {
	GetAccountByExternalID(ctx context.Context, externalID string) (*types.Account, error)
}

type accountContextKey struct{}
type basePathContextKey struct{}

type Middleware struct {
	finder AccountFinderInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewMiddleware(finder AccountFinderInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Middleware {
	return &Middleware{
		finder:  finder,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}

// Resolver extracts the account token from the path. When the first
// segment is a valid token matching an account, the account is stored in
// the request context and the segment is stripped so downstream routing
// sees the path as if the app were mounted at /{token}. Unknown or
// malformed tokens leave the request untouched and unscoped; downstream
// gates fail closed. Resolution never depends on the HTTP method.
func (m *Middleware) Resolver() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "tenancy.Middleware.Resolver")
			defer span.End()

			path := r.URL.Path
			if IsGlobalRoute(path) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, remaining := splitAccountToken(path)
			if token == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			account, err := m.finder.GetAccountByExternalID(ctx, token)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					m.logger.Errorf("account lookup failed: %v", err)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx = ContextWithAccount(ctx, account)
			ctx = context.WithValue(ctx, basePathContextKey{}, "/"+token)

			r = r.WithContext(ctx)
			r.URL.Path = remaining

			next.ServeHTTP(w, r)
		})
	}
}

// IsGlobalRoute reports whether the path is on the allow-list, by exact
// match or prefix.
func IsGlobalRoute(path string) bool {
	for _, route := range GlobalRoutes {
		if path == route || strings.HasPrefix(path, route+"/") {
			return true
		}
	}
	return false
}

// splitAccountToken returns the leading path segment when it has valid
// account token syntax, plus the remaining path. The token syntax is the
// canonical hyphenated UUID form, case-insensitive.
func splitAccountToken(path string) (token, remaining string) {
	trimmed := strings.TrimPrefix(path, "/")
	seg, rest, _ := strings.Cut(trimmed, "/")

	if !ValidToken(seg) {
		return "", path
	}

	if rest == "" {
		return seg, "/"
	}
	return seg, "/" + rest
}

// ValidToken checks the account token syntax: 36 characters in the
// 8-4-4-4-12 hyphenated hex form.
func ValidToken(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// ContextWithAccount stores the resolved account in the context.
func ContextWithAccount(ctx context.Context, account *types.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// AccountFromContext retrieves the resolved account, nil when the request
// is unscoped.
func AccountFromContext(ctx context.Context) *types.Account {
	if a, ok := ctx.Value(accountContextKey{}).(*types.Account); ok {
		return a
	}
	return nil
}

// BasePath returns the stripped account prefix ("/{token}") for link
// generation, empty for unscoped requests.
func BasePath(ctx context.Context) string {
	if p, ok := ctx.Value(basePathContextKey{}).(string); ok {
		return p
	}
	return ""
}
