// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tenancy"
	"github.com/canonical/insaight-hub/internal/tracing"
)

// SessionMiddleware restores the web session from the signed cookie and
// enforces authentication on the routes that require it.
type SessionMiddleware struct {
	sessions SessionStoreInterface
	codec    *CookieCodec
	resolve  current.MembershipResolver

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewSessionMiddleware(sessions SessionStoreInterface, codec *CookieCodec, resolve current.MembershipResolver, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		codec:    codec,
		resolve:  resolve,
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// Restore loads the session and identity from the cookie when present and
// attaches a Current to the context. It never rejects: anonymous requests
// pass through with an empty Current, and a stale or tampered cookie is
// cleared so the browser stops replaying it.
func (m *SessionMiddleware) Restore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "authentication.SessionMiddleware.Restore")
			defer span.End()

			c := current.New(m.resolve)

			cookie, err := r.Cookie(SessionCookieName)
			if err == nil {
				sessionID, err := m.codec.Decode(cookie.Value)
				if err != nil {
					m.logger.Security().AuthnFailure("", failureInvalidCredentials)
					m.codec.ClearSessionCookie(w)
				} else if err := m.restoreSession(ctx, c, sessionID); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						m.codec.ClearSessionCookie(w)
					} else {
						m.logger.Errorf("session restore failed: %v", err)
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(current.WithCurrent(ctx, c)))
		})
	}
}

// RequireIdentity gates routes that need a signed-in identity. Anonymous
// requests are redirected to the sign-in form with a return_to parameter,
// except when no identity exists at all, in which case the instance is
// still unconfigured and the request goes to onboarding instead.
func (m *SessionMiddleware) RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "authentication.SessionMiddleware.RequireIdentity")
			defer span.End()

			c := current.FromContext(ctx)
			if c != nil && c.Identity() != nil {
				next.ServeHTTP(w, r)
				return
			}

			count, err := m.sessions.CountIdentities(ctx)
			if err != nil {
				m.logger.Errorf("identity count failed: %v", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if count == 0 {
				http.Redirect(w, r, "/onboarding", http.StatusSeeOther)
				return
			}

			// The tenancy resolver has already stripped the account token
			// from the path; prepend it again so the redirect returns to
			// the originally requested URL.
			returnTo := url.QueryEscape(tenancy.BasePath(ctx) + r.URL.RequestURI())
			http.Redirect(w, r, "/session/new?return_to="+returnTo, http.StatusSeeOther)
		})
	}
}

func (m *SessionMiddleware) restoreSession(ctx context.Context, c *current.Current, sessionID string) error {
	session, err := m.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}

	identity, err := m.sessions.GetIdentityByID(ctx, session.IdentityID)
	if err != nil {
		return err
	}

	c.SetSession(session)
	c.SetIdentity(identity)
	return nil
}
