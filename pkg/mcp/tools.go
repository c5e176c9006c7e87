// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/canonical/insaight-hub/internal/authz"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/types"
	"github.com/canonical/insaight-hub/pkg/insights"
)

func toolDefinitions() []map[string]interface{} {
	audienceSchema := map[string]interface{}{
		"type": "string",
		"enum": []string{types.AudienceDeveloper, types.AudienceStakeholder, types.AudienceEndUser},
	}
	fileSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{"type": "string"},
			"content":  map[string]interface{}{"type": "string"},
		},
		"required": []string{"filename"},
	}

	return []map[string]interface{}{
		{
			"name":        "list_insights",
			"description": "List the insights in this account, optionally filtered by status, audience, tag or a search term.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"status":   map[string]interface{}{"type": "string", "enum": []string{types.StatusDraft, types.StatusPublished}},
					"audience": audienceSchema,
					"tag":      map[string]interface{}{"type": "string"},
					"query":    map[string]interface{}{"type": "string"},
					"page":     map[string]interface{}{"type": "integer"},
				},
			},
		},
		{
			"name":        "get_insight",
			"description": "Fetch one insight with its files by id or slug.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		{
			"name":        "create_insight",
			"description": "Create a draft insight bundle with one or more files.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"title":       map[string]interface{}{"type": "string"},
					"description": map[string]interface{}{"type": "string"},
					"audience":    audienceSchema,
					"tags":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"entry_file":  map[string]interface{}{"type": "string"},
					"files":       map[string]interface{}{"type": "array", "items": fileSchema},
				},
				"required": []string{"title", "audience", "files"},
			},
		},
		{
			"name":        "update_insight",
			"description": "Update an insight's title, description, audience, tags or entry file.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":          map[string]interface{}{"type": "string"},
					"title":       map[string]interface{}{"type": "string"},
					"description": map[string]interface{}{"type": "string"},
					"audience":    audienceSchema,
					"tags":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"entry_file":  map[string]interface{}{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		{
			"name":        "publish_insight",
			"description": "Publish a draft insight.",
			"inputSchema": idOnlySchema(),
		},
		{
			"name":        "unpublish_insight",
			"description": "Revert a published insight to draft and disable its share link.",
			"inputSchema": idOnlySchema(),
		},
		{
			"name":        "delete_insight",
			"description": "Delete an insight and all of its files and engagements.",
			"inputSchema": idOnlySchema(),
		},
		{
			"name":        "get_tags",
			"description": "List every tag in use in this account.",
			"inputSchema": map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			"name":        "add_comment",
			"description": "Comment on an insight, optionally replying to another comment.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"insight_id": map[string]interface{}{"type": "string"},
					"body":       map[string]interface{}{"type": "string"},
					"parent_id":  map[string]interface{}{"type": "string"},
				},
				"required": []string{"insight_id", "body"},
			},
		},
		{
			"name":        "list_comments",
			"description": "List the comments on an insight, oldest first.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"insight_id": map[string]interface{}{"type": "string"},
				},
				"required": []string{"insight_id"},
			},
		},
	}
}

func idOnlySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{"type": "string"},
		},
		"required": []string{"id"},
	}
}

// callTool dispatches a tools/call to its implementation. A nil error with
// IsError set means the tool itself failed; a non-nil error means the tool
// does not exist.
func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (*toolResult, error) {
	grant := authz.GrantFromContext(ctx)
	if grant == nil {
		return errorResult("no account in scope"), nil
	}

	switch name {
	case "list_insights":
		return s.listInsights(ctx, grant, args), nil
	case "get_insight":
		return s.getInsight(ctx, grant, args), nil
	case "create_insight":
		return s.createInsight(ctx, grant, args), nil
	case "update_insight":
		return s.updateInsight(ctx, grant, args), nil
	case "publish_insight":
		return s.publishInsight(ctx, grant, args), nil
	case "unpublish_insight":
		return s.unpublishInsight(ctx, grant, args), nil
	case "delete_insight":
		return s.deleteInsight(ctx, grant, args), nil
	case "get_tags":
		return s.getTags(ctx, grant), nil
	case "add_comment":
		return s.addComment(ctx, grant, args), nil
	case "list_comments":
		return s.listComments(ctx, grant, args), nil
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

func (s *Server) listInsights(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	var params struct {
		Status   string `json:"status"`
		Audience string `json:"audience"`
		Tag      string `json:"tag"`
		Query    string `json:"query"`
		Page     int64  `json:"page"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return errorResult("invalid arguments")
		}
	}

	items, total, err := s.insights.List(ctx, grant.Account.ID, storage.InsightFilter{
		Status:   params.Status,
		Audience: params.Audience,
		Tag:      params.Tag,
		Search:   params.Query,
		Page:     params.Page,
	})
	if err != nil {
		return s.toolError(err)
	}

	summaries := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, map[string]interface{}{
			"id":       item.ID,
			"title":    item.Title,
			"slug":     item.Slug,
			"audience": item.Audience,
			"status":   item.Status,
			"tags":     item.Tags,
		})
	}

	return jsonResult(map[string]interface{}{"insights": summaries, "total": total})
}

func (s *Server) getInsight(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.ID == "" {
		return errorResult("id is required")
	}

	item, err := s.insights.Get(ctx, grant.Account.ID, params.ID)
	if errors.Is(err, storage.ErrNotFound) {
		item, err = s.insights.GetBySlug(ctx, grant.Account.ID, params.ID)
	}
	if err != nil {
		return s.toolError(err)
	}

	files, err := s.insights.ListFiles(ctx, grant.Account.ID, item.ID)
	if err != nil {
		return s.toolError(err)
	}

	fileout := make([]map[string]interface{}, 0, len(files))
	for _, f := range files {
		fileout = append(fileout, map[string]interface{}{
			"filename":     f.Filename,
			"content":      f.Content,
			"content_type": f.ContentType,
		})
	}

	return jsonResult(map[string]interface{}{
		"id":          item.ID,
		"title":       item.Title,
		"slug":        item.Slug,
		"description": item.Description,
		"audience":    item.Audience,
		"status":      item.Status,
		"tags":        item.Tags,
		"entry_file":  item.EntryFile,
		"files":       fileout,
	})
}

func (s *Server) createInsight(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	membership, err := grant.AuthorMembership()
	if err != nil {
		return s.toolError(err)
	}

	var params struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Audience    string   `json:"audience"`
		Tags        []string `json:"tags"`
		EntryFile   string   `json:"entry_file"`
		Files       []struct {
			Filename string `json:"filename"`
			Content  string `json:"content"`
		} `json:"files"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Title == "" {
		return errorResult("title, audience and files are required")
	}

	files := make([]insights.FileInput, 0, len(params.Files))
	for _, f := range params.Files {
		files = append(files, insights.FileInput{Filename: f.Filename, Content: f.Content})
	}

	item, err := s.insights.Create(ctx, grant.Account.ID, membership.ID, insights.CreateRequest{
		Title:       params.Title,
		Description: params.Description,
		Audience:    params.Audience,
		Tags:        params.Tags,
		EntryFile:   params.EntryFile,
		Files:       files,
	})
	if err != nil {
		return s.toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"id":     item.ID,
		"slug":   item.Slug,
		"status": item.Status,
	})
}

func (s *Server) updateInsight(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	var params struct {
		ID          string    `json:"id"`
		Title       *string   `json:"title"`
		Description *string   `json:"description"`
		Audience    *string   `json:"audience"`
		Tags        *[]string `json:"tags"`
		EntryFile   *string   `json:"entry_file"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.ID == "" {
		return errorResult("id is required")
	}

	item, err := s.insights.Update(ctx, grant.Account.ID, params.ID, insights.UpdateRequest{
		Title:       params.Title,
		Description: params.Description,
		Audience:    params.Audience,
		Tags:        params.Tags,
		EntryFile:   params.EntryFile,
	})
	if err != nil {
		return s.toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"id":     item.ID,
		"slug":   item.Slug,
		"status": item.Status,
	})
}

func (s *Server) publishInsight(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	id, result := idArg(args)
	if result != nil {
		return result
	}

	item, err := s.insights.Publish(ctx, grant.Account.ID, id)
	if err != nil {
		return s.toolError(err)
	}
	return textResult(fmt.Sprintf("insight %s is now published", item.Slug))
}

func (s *Server) unpublishInsight(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	id, result := idArg(args)
	if result != nil {
		return result
	}

	item, err := s.insights.Unpublish(ctx, grant.Account.ID, id)
	if err != nil {
		return s.toolError(err)
	}
	return textResult(fmt.Sprintf("insight %s is back in draft", item.Slug))
}

func (s *Server) deleteInsight(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	id, result := idArg(args)
	if result != nil {
		return result
	}

	if err := s.insights.Delete(ctx, grant.Account.ID, id); err != nil {
		return s.toolError(err)
	}
	return textResult("insight deleted")
}

func (s *Server) getTags(ctx context.Context, grant *authz.Grant) *toolResult {
	tags, err := s.insights.ListTags(ctx, grant.Account.ID)
	if err != nil {
		return s.toolError(err)
	}
	return jsonResult(map[string]interface{}{"tags": tags})
}

func (s *Server) addComment(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	membership, err := grant.AuthorMembership()
	if err != nil {
		return s.toolError(err)
	}

	var params struct {
		InsightID string  `json:"insight_id"`
		Body      string  `json:"body"`
		ParentID  *string `json:"parent_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.InsightID == "" || params.Body == "" {
		return errorResult("insight_id and body are required")
	}

	comment, err := s.insights.AddComment(ctx, grant.Account.ID, params.InsightID, membership.ID, params.Body, params.ParentID)
	if err != nil {
		return s.toolError(err)
	}

	return jsonResult(map[string]interface{}{"id": comment.ID})
}

func (s *Server) listComments(ctx context.Context, grant *authz.Grant, args json.RawMessage) *toolResult {
	var params struct {
		InsightID string `json:"insight_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.InsightID == "" {
		return errorResult("insight_id is required")
	}

	comments, err := s.insights.ListComments(ctx, grant.Account.ID, params.InsightID)
	if err != nil {
		return s.toolError(err)
	}

	out := make([]map[string]interface{}, 0, len(comments))
	for _, c := range comments {
		entry := map[string]interface{}{
			"id":            c.ID,
			"membership_id": c.MembershipID,
			"created_at":    c.CreatedAt,
		}
		if c.Comment != nil {
			entry["body"] = c.Comment.Body
			entry["parent_id"] = c.Comment.ParentID
		}
		out = append(out, entry)
	}

	return jsonResult(map[string]interface{}{"comments": out})
}

// toolError maps service failures onto tool results with user-facing
// wording; the admin-without-membership case stays actionable.
func (s *Server) toolError(err error) *toolResult {
	switch {
	case errors.Is(err, authz.ErrAdminWithoutMembership):
		return errorResult("you are a super-admin without a membership in this account; join it before authoring content")
	case errors.Is(err, authz.ErrNotAMember):
		return errorResult("no membership in this account")
	case errors.Is(err, storage.ErrNotFound):
		return errorResult("insight not found")
	case errors.Is(err, insights.ErrInvalidAudience),
		errors.Is(err, insights.ErrEmptyBundle),
		errors.Is(err, insights.ErrNotShareable),
		errors.Is(err, insights.ErrCommentTooLong):
		return errorResult(err.Error())
	default:
		s.logger.Errorf("tool call failed: %v", err)
		return errorResult("internal error")
	}
}

func idArg(args json.RawMessage) (string, *toolResult) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.ID == "" {
		return "", errorResult("id is required")
	}
	return params.ID, nil
}

func jsonResult(payload interface{}) *toolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult("failed to encode result")
	}
	return textResult(string(data))
}
