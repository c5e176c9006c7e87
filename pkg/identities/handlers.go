// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package identities

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/pkg/authentication"
)

type API struct {
	service  ServiceInterface
	cookies  *authentication.CookieCodec
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(
	service ServiceInterface,
	cookies *authentication.CookieCodec,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *API {
	return &API{
		service:  service,
		cookies:  cookies,
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// RegisterEndpoints mounts the global, unauthenticated identity routes.
func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Get("/", a.root)
	mux.Get("/onboarding", a.onboardingStatus)
	mux.Post("/onboarding", a.onboard)
	mux.Get("/session/new", a.loginForm)
	mux.Post("/session", a.login)
	mux.Delete("/session", a.logout)
	mux.Post("/passwords", a.requestPasswordReset)
	mux.Patch("/passwords", a.resetPassword)
	mux.Post("/setup", a.setup)
}

// RegisterProfileEndpoints mounts the session-gated profile routes onto a
// tenant-scoped router group.
func (a *API) RegisterProfileEndpoints(mux chi.Router) {
	mux.Patch("/profile", a.updateProfile)
	mux.Post("/profile/api_token", a.regenerateAPIToken)
}

type onboardRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required"`
	Password    string `json:"password" validate:"required,min=10"`
	AccountName string `json:"account_name" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type passwordUpdateRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=10"`
}

type setupRequest struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name"`
	Password string `json:"password" validate:"required,min=10"`
}

type profileUpdateRequest struct {
	Name string `json:"name" validate:"required"`
}

// root is the account picker: the accounts the signed-in identity belongs
// to, each with its tenant-prefixed entry URL.
func (a *API) root(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.root")
	defer span.End()

	c := current.FromContext(ctx)
	if c == nil || c.Identity() == nil {
		required, err := a.service.BootstrapRequired(ctx)
		if err != nil {
			a.serverError(w, err)
			return
		}
		if required {
			http.Redirect(w, r, "/onboarding", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/session/new", http.StatusSeeOther)
		return
	}

	accounts, err := a.service.ListAccounts(ctx, c.Identity().ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	payload := make([]map[string]string, 0, len(accounts))
	for _, account := range accounts {
		payload = append(payload, map[string]string{
			"name": account.Name,
			"url":  "/" + account.ExternalID,
		})
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": payload})
}

func (a *API) onboardingStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.onboardingStatus")
	defer span.End()

	required, err := a.service.BootstrapRequired(ctx)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"bootstrap_required": required})
}

func (a *API) onboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.onboard")
	defer span.End()

	var req onboardRequest
	if !a.decode(w, r, &req) {
		return
	}

	identity, account, err := a.service.Onboard(ctx, OnboardRequest{
		Email:       req.Email,
		Name:        req.Name,
		Password:    req.Password,
		AccountName: req.AccountName,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyBootstrapped) {
			a.writeError(w, http.StatusConflict, "instance already set up")
			return
		}
		a.serverError(w, err)
		return
	}

	session, _, err := a.service.Login(ctx, identity.Email, req.Password, r.UserAgent(), remoteAddr(r))
	if err != nil {
		a.serverError(w, err)
		return
	}

	if err := a.cookies.SetSessionCookie(w, session.ID); err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"account_url": "/" + account.ExternalID,
	})
}

func (a *API) loginForm(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.loginForm")
	defer span.End()

	required, err := a.service.BootstrapRequired(ctx)
	if err != nil {
		a.serverError(w, err)
		return
	}
	if required {
		http.Redirect(w, r, "/onboarding", http.StatusSeeOther)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"return_to": r.URL.Query().Get("return_to"),
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.login")
	defer span.End()

	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}

	session, _, err := a.service.Login(ctx, req.Email, req.Password, r.UserAgent(), remoteAddr(r))
	if err != nil {
		if errors.Is(err, ErrInvalidLogin) {
			a.writeError(w, http.StatusUnauthorized, ErrInvalidLogin.Error())
			return
		}
		a.serverError(w, err)
		return
	}

	if err := a.cookies.SetSessionCookie(w, session.ID); err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"return_to": r.URL.Query().Get("return_to"),
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.logout")
	defer span.End()

	c := current.FromContext(ctx)
	if c != nil && c.Session() != nil {
		if err := a.service.Logout(ctx, c.Session().ID); err != nil {
			a.serverError(w, err)
			return
		}
	}

	a.cookies.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.requestPasswordReset")
	defer span.End()

	var req passwordResetRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.service.RequestPasswordReset(ctx, req.Email); err != nil {
		a.serverError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.resetPassword")
	defer span.End()

	var req passwordUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.service.ResetPassword(ctx, req.Token, req.Password); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			a.writeError(w, http.StatusUnprocessableEntity, ErrInvalidToken.Error())
			return
		}
		a.serverError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setup(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.setup")
	defer span.End()

	var req setupRequest
	if !a.decode(w, r, &req) {
		return
	}

	identity, err := a.service.SetupIdentity(ctx, req.Token, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			a.writeError(w, http.StatusUnprocessableEntity, ErrInvalidToken.Error())
			return
		}
		a.serverError(w, err)
		return
	}

	session, _, err := a.service.Login(ctx, identity.Email, req.Password, r.UserAgent(), remoteAddr(r))
	if err != nil {
		a.serverError(w, err)
		return
	}

	if err := a.cookies.SetSessionCookie(w, session.ID); err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"redirect": "/"})
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.updateProfile")
	defer span.End()

	c := current.FromContext(ctx)
	if c == nil || c.Identity() == nil {
		a.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req profileUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.service.UpdateName(ctx, c.Identity().ID, req.Name); err != nil {
		a.serverError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) regenerateAPIToken(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "identities.API.regenerateAPIToken")
	defer span.End()

	c := current.FromContext(ctx)
	if c == nil || c.Identity() == nil {
		a.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	token, err := a.service.RegenerateAPIToken(ctx, c.Identity().ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"api_token": token})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Errorf("failed to encode response: %v", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]interface{}{"error": message})
}

func (a *API) serverError(w http.ResponseWriter, err error) {
	a.logger.Errorf("request failed: %v", err)
	a.writeError(w, http.StatusInternalServerError, "internal server error")
}

func remoteAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}
