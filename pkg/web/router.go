// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package web

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/canonical/insaight-hub/internal/authz"
	"github.com/canonical/insaight-hub/internal/config"
	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/db"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/mail"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tenancy"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/version"
	"github.com/canonical/insaight-hub/pkg/accounts"
	"github.com/canonical/insaight-hub/pkg/api"
	"github.com/canonical/insaight-hub/pkg/authentication"
	"github.com/canonical/insaight-hub/pkg/identities"
	"github.com/canonical/insaight-hub/pkg/insights"
	"github.com/canonical/insaight-hub/pkg/mcp"
	"github.com/canonical/insaight-hub/pkg/metrics"
	"github.com/canonical/insaight-hub/pkg/status"
)

// NewRouter wires the full request pipeline: request id, response time
// metrics, CORS, tenant resolution with path stripping, per-request
// transactions, session restoration, and then the global and
// tenant-scoped route groups for the three entry points.
func NewRouter(
	cfg *config.EnvSpec,
	s storage.StorageInterface,
	dbClient db.DBClientInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) http.Handler {
	resolver := current.NewStorageResolver(s)
	cookies := authentication.NewCookieCodec(cfg.SigningSecret)
	tokens := authentication.NewTokenService(cfg.SigningSecret, cfg.PasswordResetLifetime, cfg.AccountSetupLifetime)
	mailer := mail.NewLogMailer(logger)

	identityService := identities.NewService(s, dbClient, tokens, mailer, cfg.BaseURL, tracer, monitor, logger)
	accountService := accounts.NewService(s, dbClient, tokens, mailer, cfg.InviteLifetime, cfg.BaseURL, tracer, monitor, logger)
	insightService := insights.NewService(s, dbClient, tracer, monitor, logger)

	gate := authz.NewGate(resolver, authz.Policy{AdminBypass: true}, tracer, monitor, logger)
	sessions := authentication.NewSessionMiddleware(s, cookies, resolver, tracer, monitor, logger)
	bearer := authentication.NewBearerMiddleware(s, resolver, tracer, monitor, logger)

	identityAPI := identities.NewAPI(identityService, cookies, tracer, monitor, logger)
	accountAPI := accounts.NewAPI(accountService, tracer, monitor, logger)
	insightAPI := insights.NewAPI(insightService, tracer, monitor, logger)
	restAPI := api.NewAPI(insightService, tracer, monitor, logger)
	mcpServer := mcp.NewServer(insightService, version.Version, tracer, monitor, logger)

	router := chi.NewMux()

	router.Use(
		middleware.RequestID,
		monitoring.NewMiddleware(monitor, logger).ResponseTime(),
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
		}),
		tenancy.NewMiddleware(s, tracer, monitor, logger).Resolver(),
		db.TransactionMiddleware(dbClient, logger),
		sessions.Restore(),
	)

	metrics.NewAPI(logger).RegisterEndpoints(router)
	status.NewAPI(tracer, monitor, logger).RegisterEndpoints(router)

	identityAPI.RegisterEndpoints(router)
	accountAPI.RegisterEndpoints(router)
	insightAPI.RegisterEndpoints(router)

	// Tenant-scoped web surface, behind the session gate and the shared
	// authorization gate. Requests that reach these patterns without a
	// resolved account fail closed in the gate.
	router.Group(func(r chi.Router) {
		r.Use(sessions.RequireIdentity(), gate.Middleware())

		insightAPI.RegisterAccountEndpoints(r)
		accountAPI.RegisterAccountEndpoints(r)
		identityAPI.RegisterProfileEndpoints(r)
	})

	// Tenant-scoped machine surface, behind bearer authentication.
	router.Group(func(r chi.Router) {
		r.Use(bearer.Authenticate(), gate.Middleware())

		restAPI.RegisterEndpoints(r)
		mcpServer.RegisterEndpoints(r)
	})

	return tracing.NewMiddleware(monitor, logger).OpenTelemetry(router)
}
