// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package api is the bearer-token REST surface, mounted tenant-scoped at
// /api/v1. It reuses the insights service and the shared authorization
// gate; resource naming follows the public API contract (insight_items).
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/canonical/insaight-hub/internal/authz"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
	"github.com/canonical/insaight-hub/pkg/insights"
)

type API struct {
	insights insights.ServiceInterface
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(
	insightService insights.ServiceInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *API {
	return &API{
		insights: insightService,
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// RegisterEndpoints mounts the v1 resources onto a tenant-scoped router
// group already behind bearer authentication and the authorization gate.
func (a *API) RegisterEndpoints(mux chi.Router) {
	mux.Get("/api/v1/me", a.me)

	mux.Get("/api/v1/insight_items", a.list)
	mux.Post("/api/v1/insight_items", a.create)
	mux.Get("/api/v1/insight_items/{id}", a.show)
	mux.Patch("/api/v1/insight_items/{id}", a.update)
	mux.Delete("/api/v1/insight_items/{id}", a.delete)
	mux.Post("/api/v1/insight_items/{id}/publish", a.publish)
	mux.Post("/api/v1/insight_items/{id}/unpublish", a.unpublish)
	mux.Delete("/api/v1/insight_items/{id}/files/{fileID}", a.deleteFile)

	mux.Get("/api/v1/tags", a.listTags)
}

type fileRequest struct {
	Filename string `json:"filename" validate:"required"`
	Content  string `json:"content"`
}

type createRequest struct {
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description"`
	Audience    string        `json:"audience" validate:"required,oneof=developer stakeholder end_user"`
	Tags        []string      `json:"tags"`
	EntryFile   string        `json:"entry_file"`
	Files       []fileRequest `json:"files" validate:"required,min=1,dive"`
}

type updateRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Audience    *string   `json:"audience" validate:"omitempty,oneof=developer stakeholder end_user"`
	Tags        *[]string `json:"tags"`
	EntryFile   *string   `json:"entry_file"`
}

// me describes the authenticated caller in the scoped account.
func (a *API) me(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.me")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	payload := map[string]interface{}{
		"identity": map[string]interface{}{
			"id":    grant.Identity.ID,
			"email": grant.Identity.Email,
			"name":  grant.Identity.Name,
			"admin": grant.Identity.Admin,
		},
		"account": map[string]interface{}{
			"id":   grant.Account.ExternalID,
			"name": grant.Account.Name,
		},
	}
	if grant.Membership != nil {
		payload["membership"] = map[string]interface{}{
			"id":   grant.Membership.ID,
			"role": grant.Membership.Role,
		}
	}

	a.writeJSON(w, http.StatusOK, payload)
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.list")
	defer span.End()

	grant := authz.GrantFromContext(ctx)
	filter := filterFromQuery(r)

	items, total, err := a.insights.List(ctx, grant.Account.ID, filter)
	if err != nil {
		a.serverError(w, err)
		return
	}

	payload := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		payload = append(payload, serializeItem(item))
	}

	page, perPage := filter.Pagination()
	totalPages := total / perPage
	if total%perPage != 0 {
		totalPages++
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"insight_items": payload,
		"meta": map[string]interface{}{
			"page":        page,
			"per_page":    perPage,
			"total":       total,
			"total_pages": totalPages,
		},
	})
}

// create attributes the new item to the caller's membership; super-admins
// without one get an actionable 422 instead of a blanket denial.
func (a *API) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.create")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	membership, err := grant.AuthorMembership()
	if err != nil {
		a.authorError(w, err)
		return
	}

	var req createRequest
	if !a.decode(w, r, &req) {
		return
	}

	files := make([]insights.FileInput, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, insights.FileInput{Filename: f.Filename, Content: f.Content})
	}

	item, err := a.insights.Create(ctx, grant.Account.ID, membership.ID, insights.CreateRequest{
		Title:       req.Title,
		Description: req.Description,
		Audience:    req.Audience,
		Tags:        req.Tags,
		EntryFile:   req.EntryFile,
		Files:       files,
	})
	if err != nil {
		a.itemError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, map[string]interface{}{"insight_item": serializeItem(item)})
}

func (a *API) show(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.show")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	item, err := a.insights.Get(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.itemError(w, err)
		return
	}

	files, err := a.insights.ListFiles(ctx, grant.Account.ID, item.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	payload := serializeItem(item)
	payload["files"] = serializeItemFiles(files)
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"insight_item": payload})
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.update")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	var req updateRequest
	if !a.decode(w, r, &req) {
		return
	}

	item, err := a.insights.Update(ctx, grant.Account.ID, chi.URLParam(r, "id"), insights.UpdateRequest{
		Title:       req.Title,
		Description: req.Description,
		Audience:    req.Audience,
		Tags:        req.Tags,
		EntryFile:   req.EntryFile,
	})
	if err != nil {
		a.itemError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"insight_item": serializeItem(item)})
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.delete")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	if err := a.insights.Delete(ctx, grant.Account.ID, chi.URLParam(r, "id")); err != nil {
		a.itemError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) publish(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.publish")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	item, err := a.insights.Publish(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.itemError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"insight_item": serializeItem(item)})
}

func (a *API) unpublish(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.unpublish")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	item, err := a.insights.Unpublish(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.itemError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"insight_item": serializeItem(item)})
}

func (a *API) deleteFile(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.deleteFile")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	err := a.insights.DeleteFile(ctx, grant.Account.ID, chi.URLParam(r, "id"), chi.URLParam(r, "fileID"))
	if err != nil {
		a.itemError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listTags(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "api.API.listTags")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	tags, err := a.insights.ListTags(ctx, grant.Account.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (a *API) itemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.writeError(w, http.StatusNotFound, "insight item not found")
	case errors.Is(err, insights.ErrInvalidAudience):
		a.writeError(w, http.StatusBadRequest, insights.ErrInvalidAudience.Error())
	case errors.Is(err, insights.ErrEmptyBundle):
		a.writeError(w, http.StatusBadRequest, insights.ErrEmptyBundle.Error())
	case errors.Is(err, insights.ErrNotShareable):
		a.writeError(w, http.StatusUnprocessableEntity, insights.ErrNotShareable.Error())
	default:
		a.serverError(w, err)
	}
}

func (a *API) authorError(w http.ResponseWriter, err error) {
	if errors.Is(err, authz.ErrAdminWithoutMembership) {
		a.writeError(w, http.StatusUnprocessableEntity, "join this account to author content in it")
		return
	}
	a.writeError(w, http.StatusForbidden, "membership required")
}

func filterFromQuery(r *http.Request) storage.InsightFilter {
	q := r.URL.Query()

	filter := storage.InsightFilter{
		Status:   q.Get("status"),
		Audience: q.Get("audience"),
		Tag:      q.Get("tag"),
		Search:   q.Get("q"),
	}
	if page, err := strconv.ParseInt(q.Get("page"), 10, 64); err == nil {
		filter.Page = page
	}
	if perPage, err := strconv.ParseInt(q.Get("per_page"), 10, 64); err == nil {
		filter.PerPage = perPage
	}
	return filter
}

func serializeItem(item *types.Insight) map[string]interface{} {
	payload := map[string]interface{}{
		"id":            item.ID,
		"title":         item.Title,
		"slug":          item.Slug,
		"description":   item.Description,
		"audience":      item.Audience,
		"status":        item.Status,
		"tags":          item.Tags,
		"entry_file":    item.EntryFile,
		"share_enabled": item.ShareEnabled,
		"created_at":    item.CreatedAt.Format(time.RFC3339),
		"updated_at":    item.UpdatedAt.Format(time.RFC3339),
	}
	if item.PublishedAt != nil {
		payload["published_at"] = item.PublishedAt.Format(time.RFC3339)
	} else {
		payload["published_at"] = nil
	}
	if item.Shareable() {
		payload["share_url"] = "/s/" + *item.ShareToken
	}
	return payload
}

func serializeItemFiles(files []*types.InsightFile) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]interface{}{
			"id":           f.ID,
			"filename":     f.Filename,
			"content":      f.Content,
			"content_type": f.ContentType,
		})
	}
	return out
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
