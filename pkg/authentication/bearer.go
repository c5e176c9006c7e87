// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
)

// Internal failure kinds for bearer authentication. Both surface as the
// same 401 response so callers cannot probe which one occurred; they are
// logged distinctly.
const (
	failureMissingCredentials = "missing_credentials"
	failureInvalidCredentials = "invalid_credentials"
)

// BearerMiddleware authenticates REST API and MCP requests by opaque API
// token. The token is looked up by a single indexed equality; it is
// itself the secret, no derivation is applied.
type BearerMiddleware struct {
	identities IdentityFinderInterface
	resolve    current.MembershipResolver

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewBearerMiddleware(identities IdentityFinderInterface, resolve current.MembershipResolver, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *BearerMiddleware {
	return &BearerMiddleware{
		identities: identities,
		resolve:    resolve,
		tracer:     tracer,
		monitor:    monitor,
		logger:     logger,
	}
}

func (m *BearerMiddleware) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "authentication.BearerMiddleware.Authenticate")
			defer span.End()

			token, found := m.getBearerToken(r.Header)
			if !found {
				m.logger.Security().AuthnFailure("", failureMissingCredentials)
				m.unauthorizedResponse(w, "missing authorization header")
				return
			}

			identity, err := m.identities.GetIdentityByAPIToken(ctx, token)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					m.logger.Errorf("api token lookup failed: %v", err)
				}
				m.logger.Security().AuthnFailure("", failureInvalidCredentials)
				m.unauthorizedResponse(w, "invalid API token")
				return
			}

			c := current.New(m.resolve)
			c.SetIdentity(identity)

			next.ServeHTTP(w, r.WithContext(current.WithCurrent(ctx, c)))
		})
	}
}

func (m *BearerMiddleware) getBearerToken(headers http.Header) (string, bool) {
	bearer := headers.Get("Authorization")
	if bearer == "" {
		return "", false
	}

	// Only support "Bearer <token>" format (RFC 6750)
	if !strings.HasPrefix(bearer, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	return token, token != ""
}

func (m *BearerMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	}); err != nil {
		m.logger.Errorf("failed to encode unauthorized response: %v", err)
	}
}
