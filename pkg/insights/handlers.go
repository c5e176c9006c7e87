// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package insights

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

// RegisterEndpoints mounts the global, unauthenticated public share route.
func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Get("/s/{token}", a.showShared)
}

// RegisterAccountEndpoints mounts the tenant-scoped insight routes onto a
// router group already behind the authorization gate.
func (a *API) RegisterAccountEndpoints(mux chi.Router) {
	mux.Get("/insights", a.list)
	mux.Post("/insights", a.create)
	mux.Get("/insights/{id}", a.show)
	mux.Patch("/insights/{id}", a.update)
	mux.Delete("/insights/{id}", a.delete)

	mux.Post("/insights/{id}/publish", a.publish)
	mux.Post("/insights/{id}/unpublish", a.unpublish)

	mux.Post("/insights/{id}/share", a.enableSharing)
	mux.Delete("/insights/{id}/share", a.disableSharing)
	mux.Post("/insights/{id}/share/regenerate", a.regenerateShareToken)

	mux.Get("/insights/{id}/files", a.listFiles)
	mux.Post("/insights/{id}/files", a.addFile)
	mux.Delete("/insights/{id}/files/{fileID}", a.deleteFile)

	mux.Get("/insights/{id}/comments", a.listComments)
	mux.Post("/insights/{id}/comments", a.addComment)

	mux.Get("/tags", a.listTags)
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

type commentRequest struct {
	Body     string  `json:"body" validate:"required"`
	ParentID *string `json:"parent_id"`
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.list")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	insights, total, err := a.service.List(ctx, grant.Account.ID, filterFromQuery(r))
	if err != nil {
		a.serverError(w, err)
		return
	}

	payload := make([]map[string]interface{}, 0, len(insights))
	for _, insight := range insights {
		payload = append(payload, serializeInsight(insight))
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"insights": payload,
		"total":    total,
	})
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.create")
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

	files := make([]FileInput, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, FileInput{Filename: f.Filename, Content: f.Content})
	}

	insight, err := a.service.Create(ctx, grant.Account.ID, membership.ID, CreateRequest{
		Title:       req.Title,
		Description: req.Description,
		Audience:    req.Audience,
		Tags:        req.Tags,
		EntryFile:   req.EntryFile,
		Files:       files,
	})
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, serializeInsight(insight))
}

// show resolves by id first and falls back to the slug, so both the
// canonical id and the human readable URL work.
func (a *API) show(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.show")
	defer span.End()

	grant := authz.GrantFromContext(ctx)
	param := chi.URLParam(r, "id")

	insight, err := a.service.Get(ctx, grant.Account.ID, param)
	if errors.Is(err, storage.ErrNotFound) {
		insight, err = a.service.GetBySlug(ctx, grant.Account.ID, param)
	}
	if err != nil {
		a.insightError(w, err)
		return
	}

	files, err := a.service.ListFiles(ctx, grant.Account.ID, insight.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	payload := serializeInsight(insight)
	payload["files"] = serializeFiles(files)
	a.writeJSON(w, http.StatusOK, payload)
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.update")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	var req updateRequest
	if !a.decode(w, r, &req) {
		return
	}

	insight, err := a.service.Update(ctx, grant.Account.ID, chi.URLParam(r, "id"), UpdateRequest{
		Title:       req.Title,
		Description: req.Description,
		Audience:    req.Audience,
		Tags:        req.Tags,
		EntryFile:   req.EntryFile,
	})
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, serializeInsight(insight))
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.delete")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	if err := a.service.Delete(ctx, grant.Account.ID, chi.URLParam(r, "id")); err != nil {
		a.insightError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) publish(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.publish")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	insight, err := a.service.Publish(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, serializeInsight(insight))
}

func (a *API) unpublish(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.unpublish")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	insight, err := a.service.Unpublish(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, serializeInsight(insight))
}

func (a *API) enableSharing(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.enableSharing")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	insight, err := a.service.EnableSharing(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, serializeInsight(insight))
}

func (a *API) disableSharing(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.disableSharing")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	insight, err := a.service.DisableSharing(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, serializeInsight(insight))
}

func (a *API) regenerateShareToken(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.regenerateShareToken")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	insight, err := a.service.RegenerateShareToken(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, serializeInsight(insight))
}

func (a *API) listFiles(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.listFiles")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	files, err := a.service.ListFiles(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"files": serializeFiles(files)})
}

func (a *API) addFile(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.addFile")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	var req fileRequest
	if !a.decode(w, r, &req) {
		return
	}

	file, err := a.service.AddFile(ctx, grant.Account.ID, chi.URLParam(r, "id"), req.Filename, req.Content)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			a.writeError(w, http.StatusConflict, "a file with this name already exists")
			return
		}
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, serializeFile(file))
}

func (a *API) deleteFile(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.deleteFile")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	err := a.service.DeleteFile(ctx, grant.Account.ID, chi.URLParam(r, "id"), chi.URLParam(r, "fileID"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.listComments")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	comments, err := a.service.ListComments(ctx, grant.Account.ID, chi.URLParam(r, "id"))
	if err != nil {
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"comments": serializeComments(comments)})
}

func (a *API) addComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.addComment")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	membership, err := grant.AuthorMembership()
	if err != nil {
		a.authorError(w, err)
		return
	}

	var req commentRequest
	if !a.decode(w, r, &req) {
		return
	}

	comment, err := a.service.AddComment(ctx, grant.Account.ID, chi.URLParam(r, "id"), membership.ID, req.Body, req.ParentID)
	if err != nil {
		if errors.Is(err, ErrCommentTooLong) {
			a.writeError(w, http.StatusUnprocessableEntity, ErrCommentTooLong.Error())
			return
		}
		a.insightError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, serializeComment(comment))
}

func (a *API) listTags(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.listTags")
	defer span.End()

	grant := authz.GrantFromContext(ctx)

	tags, err := a.service.ListTags(ctx, grant.Account.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (a *API) showShared(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "insights.API.showShared")
	defer span.End()

	insight, files, err := a.service.GetShared(ctx, chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "not found")
			return
		}
		a.serverError(w, err)
		return
	}

	// The public payload omits authorship and share state.
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"title":        insight.Title,
		"description":  insight.Description,
		"audience":     insight.Audience,
		"tags":         insight.Tags,
		"entry_file":   insight.EntryFile,
		"published_at": formatTime(insight.PublishedAt),
		"files":        serializeFiles(files),
	})
}

func (a *API) insightError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.writeError(w, http.StatusNotFound, "insight not found")
	case errors.Is(err, ErrInvalidAudience):
		a.writeError(w, http.StatusBadRequest, ErrInvalidAudience.Error())
	case errors.Is(err, ErrEmptyBundle):
		a.writeError(w, http.StatusBadRequest, ErrEmptyBundle.Error())
	case errors.Is(err, ErrNotShareable):
		a.writeError(w, http.StatusUnprocessableEntity, ErrNotShareable.Error())
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

func serializeInsight(insight *types.Insight) map[string]interface{} {
	payload := map[string]interface{}{
		"id":            insight.ID,
		"title":         insight.Title,
		"slug":          insight.Slug,
		"description":   insight.Description,
		"audience":      insight.Audience,
		"status":        insight.Status,
		"tags":          insight.Tags,
		"entry_file":    insight.EntryFile,
		"share_enabled": insight.ShareEnabled,
		"published_at":  formatTime(insight.PublishedAt),
		"created_at":    insight.CreatedAt.Format(time.RFC3339),
		"updated_at":    insight.UpdatedAt.Format(time.RFC3339),
	}
	if insight.Shareable() {
		payload["share_url"] = "/s/" + *insight.ShareToken
	}
	return payload
}

func serializeFiles(files []*types.InsightFile) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(files))
	for _, f := range files {
		out = append(out, serializeFile(f))
	}
	return out
}

func serializeFile(f *types.InsightFile) map[string]interface{} {
	return map[string]interface{}{
		"id":           f.ID,
		"filename":     f.Filename,
		"content":      f.Content,
		"content_type": f.ContentType,
	}
}

func serializeComments(comments []*types.Engagement) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(comments))
	for _, c := range comments {
		out = append(out, serializeComment(c))
	}
	return out
}

func serializeComment(e *types.Engagement) map[string]interface{} {
	payload := map[string]interface{}{
		"id":            e.ID,
		"membership_id": e.MembershipID,
		"created_at":    e.CreatedAt.Format(time.RFC3339),
	}
	if e.Comment != nil {
		payload["body"] = e.Comment.Body
		payload["parent_id"] = e.Comment.ParentID
	}
	return payload
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
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
