// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tenancy"
	"github.com/canonical/insaight-hub/internal/tracing"
)

type API struct {
	service  ServiceInterface
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(
	service ServiceInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *API {
	return &API{
		service:  service,
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// RegisterEndpoints mounts the global registration and waitlist routes.
// The waitlist admin routes are session gated and super-admin only.
func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Get("/register", a.showInvite)
	mux.Post("/register", a.register)

	mux.Post("/waitlist", a.joinWaitlist)
	mux.Get("/waitlist", a.listWaitlist)
	mux.Post("/waitlist/{id}/approve", a.approveWaitlistEntry)
	mux.Delete("/waitlist/{id}", a.rejectWaitlistEntry)
}

// RegisterAccountEndpoints mounts the tenant-scoped member and invite
// administration routes onto an authenticated router group.
func (a *API) RegisterAccountEndpoints(mux chi.Router) {
	mux.Get("/members", a.listMembers)
	mux.Patch("/members/{id}", a.updateMemberRole)
	mux.Delete("/members/{id}", a.removeMember)

	mux.Get("/invites", a.listInvites)
	mux.Post("/invites", a.createInvite)
	mux.Delete("/invites/{id}", a.revokeInvite)
}

type registerRequest struct {
	Token    string `json:"token" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type roleUpdateRequest struct {
	Role string `json:"role" validate:"required,oneof=owner member"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type waitlistJoinRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
}

type waitlistApproveRequest struct {
	AccountName string `json:"account_name"`
}

func (a *API) showInvite(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.showInvite")
	defer span.End()

	invite, account, err := a.service.LookupInvite(ctx, r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, ErrInviteUnavailable) {
			a.writeError(w, http.StatusNotFound, ErrInviteUnavailable.Error())
			return
		}
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_name": account.Name,
		"email":        invite.Email,
		"expires_at":   invite.ExpiresAt.Format(time.RFC3339),
	})
}

// register consumes an invite token. A signed-in visitor is attached to
// the account directly; an anonymous one registers a new identity first.
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.register")
	defer span.End()

	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}

	c := current.FromContext(ctx)
	if c != nil && c.Identity() != nil {
		account, err := a.service.AcceptInvite(ctx, req.Token, c.Identity().ID)
		if err != nil {
			a.inviteError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]interface{}{
			"account_url": "/" + account.ExternalID,
		})
		return
	}

	if req.Name == "" || len(req.Password) < 10 {
		a.writeError(w, http.StatusBadRequest, "name and a password of at least 10 characters are required")
		return
	}

	identity, account, err := a.service.RegisterWithInvite(ctx, req.Token, RegisterRequest{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			a.writeError(w, http.StatusConflict, "an identity with this email already exists")
			return
		}
		a.inviteError(w, err)
		return
	}

	a.logger.Infof("identity %s registered via invite into account %s", identity.ID, account.ID)
	a.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"account_url": "/" + account.ExternalID,
	})
}

func (a *API) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.joinWaitlist")
	defer span.End()

	var req waitlistJoinRequest
	if !a.decode(w, r, &req) {
		return
	}

	if _, err := a.service.JoinWaitlist(ctx, req.Email, req.Name); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Repeated signups look identical to first ones.
			w.WriteHeader(http.StatusAccepted)
			return
		}
		a.serverError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (a *API) listWaitlist(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.listWaitlist")
	defer span.End()

	if !a.requireSuperAdmin(ctx, w) {
		return
	}

	entries, err := a.service.ListWaitlist(ctx)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (a *API) approveWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.approveWaitlistEntry")
	defer span.End()

	if !a.requireSuperAdmin(ctx, w) {
		return
	}

	var req waitlistApproveRequest
	if r.ContentLength > 0 {
		if !a.decode(w, r, &req) {
			return
		}
	}

	if err := a.service.ApproveWaitlistEntry(ctx, chi.URLParam(r, "id"), req.AccountName); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "waitlist entry not found")
			return
		}
		a.serverError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) rejectWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.rejectWaitlistEntry")
	defer span.End()

	if !a.requireSuperAdmin(ctx, w) {
		return
	}

	if err := a.service.RejectWaitlistEntry(ctx, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "waitlist entry not found")
			return
		}
		a.serverError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.listMembers")
	defer span.End()

	account, ok := a.requireMember(ctx, w)
	if !ok {
		return
	}

	members, err := a.service.ListMembers(ctx, account)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (a *API) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.updateMemberRole")
	defer span.End()

	account, ok := a.requireOwner(ctx, w)
	if !ok {
		return
	}

	var req roleUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}

	err := a.service.UpdateMemberRole(ctx, account, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		a.memberError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.removeMember")
	defer span.End()

	account, ok := a.requireOwner(ctx, w)
	if !ok {
		return
	}

	c := current.FromContext(ctx)
	err := a.service.RemoveMember(ctx, account, chi.URLParam(r, "id"), c.Identity().ID)
	if err != nil {
		a.memberError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listInvites(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.listInvites")
	defer span.End()

	account, ok := a.requireOwner(ctx, w)
	if !ok {
		return
	}

	invites, err := a.service.ListInvites(ctx, account)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"invites": invites})
}

func (a *API) createInvite(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.createInvite")
	defer span.End()

	c := current.FromContext(ctx)
	account := tenancy.AccountFromContext(ctx)
	if c == nil || account == nil {
		a.writeError(w, http.StatusNotFound, "not found")
		return
	}

	owner, err := c.Owner(ctx)
	if err != nil {
		a.serverError(w, err)
		return
	}
	if !owner {
		a.writeError(w, http.StatusForbidden, "owner role required")
		return
	}

	// Invite attribution needs a membership row, so a super-admin who is
	// not a member of this account cannot create invites in it.
	membership, err := c.Membership(ctx)
	if err != nil {
		a.serverError(w, err)
		return
	}
	if membership == nil {
		a.writeError(w, http.StatusUnprocessableEntity, "join this account before inviting members")
		return
	}

	var req inviteRequest
	if !a.decode(w, r, &req) {
		return
	}

	invite, err := a.service.CreateInvite(ctx, account, membership, req.Email)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":      invite.Token,
		"email":      invite.Email,
		"expires_at": invite.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *API) revokeInvite(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "accounts.API.revokeInvite")
	defer span.End()

	account, ok := a.requireOwner(ctx, w)
	if !ok {
		return
	}

	if err := a.service.RevokeInvite(ctx, account, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "invite not found")
			return
		}
		a.serverError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) inviteError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInviteUnavailable) {
		a.writeError(w, http.StatusNotFound, ErrInviteUnavailable.Error())
		return
	}
	a.serverError(w, err)
}

func (a *API) memberError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.writeError(w, http.StatusNotFound, "member not found")
	case errors.Is(err, ErrLastOwnerRemoval):
		a.writeError(w, http.StatusUnprocessableEntity, ErrLastOwnerRemoval.Error())
	case errors.Is(err, ErrSelfRemoval):
		a.writeError(w, http.StatusUnprocessableEntity, ErrSelfRemoval.Error())
	case errors.Is(err, ErrInvalidRole):
		a.writeError(w, http.StatusBadRequest, ErrInvalidRole.Error())
	default:
		a.serverError(w, err)
	}
}

func (a *API) requireSuperAdmin(ctx context.Context, w http.ResponseWriter) bool {
	c := current.FromContext(ctx)
	if c == nil || c.Identity() == nil {
		a.writeError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !c.SuperAdmin() {
		a.writeError(w, http.StatusForbidden, "super-admin required")
		return false
	}
	return true
}

// requireMember returns the scoped account id when the caller holds a
// membership or the super-admin override.
func (a *API) requireMember(ctx context.Context, w http.ResponseWriter) (string, bool) {
	c := current.FromContext(ctx)
	account := tenancy.AccountFromContext(ctx)
	if c == nil || account == nil {
		a.writeError(w, http.StatusNotFound, "not found")
		return "", false
	}

	membership, err := c.Membership(ctx)
	if err != nil {
		a.serverError(w, err)
		return "", false
	}
	if membership == nil && !c.SuperAdmin() {
		a.writeError(w, http.StatusForbidden, "membership required")
		return "", false
	}

	return account.ID, true
}

func (a *API) requireOwner(ctx context.Context, w http.ResponseWriter) (string, bool) {
	c := current.FromContext(ctx)
	account := tenancy.AccountFromContext(ctx)
	if c == nil || account == nil {
		a.writeError(w, http.StatusNotFound, "not found")
		return "", false
	}

	owner, err := c.Owner(ctx)
	if err != nil {
		a.serverError(w, err)
		return "", false
	}
	if !owner {
		a.writeError(w, http.StatusForbidden, "owner role required")
		return "", false
	}

	return account.ID, true
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
