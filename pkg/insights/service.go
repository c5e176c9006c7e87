// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package insights implements the account-scoped content core: insight
// bundles with their files, publication lifecycle, tags, public share
// links and comment engagements.
package insights

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/insaight-hub/internal/db"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
)

var (
	// ErrInvalidAudience rejects an audience outside the known set.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrNotShareable rejects enabling a share link on an unpublished
	// insight.
	ErrNotShareable = errors.New("only published insights can be shared")

	// ErrCommentTooLong bounds comment bodies.
	ErrCommentTooLong = errors.New("comment exceeds maximum length")

	// ErrEmptyBundle rejects creating an insight with no files.
	ErrEmptyBundle = errors.New("an insight needs at least one file")
)

const maxCommentLength = 5000

// FileInput is one file of a bundle being created.
type FileInput struct {
	Filename string
	Content  string
}

type CreateRequest struct {
	Title       string
	Description string
	Audience    string
	Tags        []string
	EntryFile   string
	Files       []FileInput
}

// UpdateRequest carries partial updates; nil fields are untouched.
type UpdateRequest struct {
	Title       *string
	Description *string
	Audience    *string
	Tags        *[]string
	EntryFile   *string
}

type Service struct {
	storage StorageInterface
	db      db.DBClientInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

var _ ServiceInterface = (*Service)(nil)

func NewService(
	storage StorageInterface,
	dbClient db.DBClientInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	return &Service{
		storage: storage,
		db:      dbClient,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}

func (s *Service) List(ctx context.Context, accountID string, filter storage.InsightFilter) ([]*types.Insight, int64, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.List")
	defer span.End()

	return s.storage.ListInsights(ctx, accountID, filter)
}

func (s *Service) Get(ctx context.Context, accountID, id string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.Get")
	defer span.End()

	return s.storage.GetInsightByID(ctx, accountID, id)
}

func (s *Service) GetBySlug(ctx context.Context, accountID, slug string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.GetBySlug")
	defer span.End()

	return s.storage.GetInsightBySlug(ctx, accountID, slug)
}

// Create inserts the insight and its files in one transaction. The slug is
// derived from the title and suffixed until unique within the account.
func (s *Service) Create(ctx context.Context, accountID, membershipID string, req CreateRequest) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.Create")
	defer span.End()

	if !validAudience(req.Audience) {
		return nil, ErrInvalidAudience
	}
	if len(req.Files) == 0 {
		return nil, ErrEmptyBundle
	}

	entryFile := req.EntryFile
	if entryFile == "" {
		entryFile = req.Files[0].Filename
	}

	var insight *types.Insight
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		slug, err := s.uniqueSlug(ctx, accountID, req.Title)
		if err != nil {
			return err
		}

		insight, err = s.storage.CreateInsight(ctx, &types.Insight{
			AccountID:    accountID,
			MembershipID: membershipID,
			Title:        req.Title,
			Slug:         slug,
			Description:  req.Description,
			Audience:     req.Audience,
			Status:       types.StatusDraft,
			EntryFile:    entryFile,
			Tags:         normalizeTags(req.Tags),
		})
		if err != nil {
			return err
		}

		for _, f := range req.Files {
			if _, err := s.storage.AddInsightFile(ctx, &types.InsightFile{
				InsightID:   insight.ID,
				Filename:    f.Filename,
				Content:     f.Content,
				ContentType: detectContentType(f.Filename),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return insight, nil
}

func (s *Service) Update(ctx context.Context, accountID, id string, req UpdateRequest) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.Update")
	defer span.End()

	insight, err := s.storage.GetInsightByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, 5)
	if req.Title != nil {
		insight.Title = *req.Title
		paths = append(paths, "title")
	}
	if req.Description != nil {
		insight.Description = *req.Description
		paths = append(paths, "description")
	}
	if req.Audience != nil {
		if !validAudience(*req.Audience) {
			return nil, ErrInvalidAudience
		}
		insight.Audience = *req.Audience
		paths = append(paths, "audience")
	}
	if req.Tags != nil {
		insight.Tags = normalizeTags(*req.Tags)
		paths = append(paths, "tags")
	}
	if req.EntryFile != nil {
		insight.EntryFile = *req.EntryFile
		paths = append(paths, "entry_file")
	}

	if len(paths) == 0 {
		return insight, nil
	}

	if err := s.storage.UpdateInsight(ctx, insight, paths); err != nil {
		return nil, err
	}

	return s.storage.GetInsightByID(ctx, accountID, id)
}

func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	ctx, span := s.tracer.Start(ctx, "insights.Service.Delete")
	defer span.End()

	return s.storage.DeleteInsight(ctx, accountID, id)
}

func (s *Service) Publish(ctx context.Context, accountID, id string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.Publish")
	defer span.End()

	now := time.Now()
	if err := s.storage.SetInsightStatus(ctx, accountID, id, types.StatusPublished, &now); err != nil {
		return nil, err
	}
	return s.storage.GetInsightByID(ctx, accountID, id)
}

// Unpublish reverts to draft and disables the share link: a draft is never
// publicly reachable, even with a valid token.
func (s *Service) Unpublish(ctx context.Context, accountID, id string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.Unpublish")
	defer span.End()

	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		if err := s.storage.SetInsightStatus(ctx, accountID, id, types.StatusDraft, nil); err != nil {
			return err
		}

		insight, err := s.storage.GetInsightByID(ctx, accountID, id)
		if err != nil {
			return err
		}
		if insight.ShareEnabled {
			return s.storage.SetInsightSharing(ctx, accountID, id, insight.ShareToken, false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.storage.GetInsightByID(ctx, accountID, id)
}

func (s *Service) ListTags(ctx context.Context, accountID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.ListTags")
	defer span.End()

	return s.storage.ListTags(ctx, accountID)
}

func (s *Service) EnableSharing(ctx context.Context, accountID, id string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.EnableSharing")
	defer span.End()

	insight, err := s.storage.GetInsightByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if !insight.Published() {
		return nil, ErrNotShareable
	}

	token := insight.ShareToken
	if token == nil || *token == "" {
		t := uuid.NewString()
		token = &t
	}

	if err := s.storage.SetInsightSharing(ctx, accountID, id, token, true); err != nil {
		return nil, err
	}
	return s.storage.GetInsightByID(ctx, accountID, id)
}

// DisableSharing keeps the token so a later re-enable restores the same
// link.
func (s *Service) DisableSharing(ctx context.Context, accountID, id string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.DisableSharing")
	defer span.End()

	insight, err := s.storage.GetInsightByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	if err := s.storage.SetInsightSharing(ctx, accountID, id, insight.ShareToken, false); err != nil {
		return nil, err
	}
	return s.storage.GetInsightByID(ctx, accountID, id)
}

// RegenerateShareToken rotates the token, invalidating every previously
// handed out link.
func (s *Service) RegenerateShareToken(ctx context.Context, accountID, id string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.RegenerateShareToken")
	defer span.End()

	insight, err := s.storage.GetInsightByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if !insight.Published() {
		return nil, ErrNotShareable
	}

	token := uuid.NewString()
	if err := s.storage.SetInsightSharing(ctx, accountID, id, &token, true); err != nil {
		return nil, err
	}
	return s.storage.GetInsightByID(ctx, accountID, id)
}

// GetShared serves the public share link: published, share-enabled
// insights only. Everything else reads as not found.
func (s *Service) GetShared(ctx context.Context, token string) (*types.Insight, []*types.InsightFile, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.GetShared")
	defer span.End()

	insight, err := s.storage.GetInsightByShareToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if !insight.Shareable() {
		return nil, nil, storage.ErrNotFound
	}

	files, err := s.storage.ListInsightFiles(ctx, insight.ID)
	if err != nil {
		return nil, nil, err
	}

	return insight, files, nil
}

func (s *Service) ListFiles(ctx context.Context, accountID, insightID string) ([]*types.InsightFile, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.ListFiles")
	defer span.End()

	if _, err := s.storage.GetInsightByID(ctx, accountID, insightID); err != nil {
		return nil, err
	}
	return s.storage.ListInsightFiles(ctx, insightID)
}

func (s *Service) AddFile(ctx context.Context, accountID, insightID, filename, content string) (*types.InsightFile, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.AddFile")
	defer span.End()

	if _, err := s.storage.GetInsightByID(ctx, accountID, insightID); err != nil {
		return nil, err
	}

	return s.storage.AddInsightFile(ctx, &types.InsightFile{
		InsightID:   insightID,
		Filename:    filename,
		Content:     content,
		ContentType: detectContentType(filename),
	})
}

func (s *Service) DeleteFile(ctx context.Context, accountID, insightID, fileID string) error {
	ctx, span := s.tracer.Start(ctx, "insights.Service.DeleteFile")
	defer span.End()

	if _, err := s.storage.GetInsightByID(ctx, accountID, insightID); err != nil {
		return err
	}
	return s.storage.DeleteInsightFile(ctx, insightID, fileID)
}

func (s *Service) AddComment(ctx context.Context, accountID, insightID, membershipID, body string, parentID *string) (*types.Engagement, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.AddComment")
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("comment body is required")
	}
	if len(body) > maxCommentLength {
		return nil, ErrCommentTooLong
	}

	if _, err := s.storage.GetInsightByID(ctx, accountID, insightID); err != nil {
		return nil, err
	}

	return s.storage.AddComment(ctx, &types.Engagement{
		AccountID:    accountID,
		InsightID:    insightID,
		MembershipID: membershipID,
		Kind:         types.EngagementComment,
		Comment: &types.Comment{
			Body:     body,
			ParentID: parentID,
		},
	})
}

func (s *Service) ListComments(ctx context.Context, accountID, insightID string) ([]*types.Engagement, error) {
	ctx, span := s.tracer.Start(ctx, "insights.Service.ListComments")
	defer span.End()

	if _, err := s.storage.GetInsightByID(ctx, accountID, insightID); err != nil {
		return nil, err
	}
	return s.storage.ListComments(ctx, accountID, insightID)
}

// uniqueSlug slugifies the title and suffixes -2, -3, ... until the slug
// is free within the account.
func (s *Service) uniqueSlug(ctx context.Context, accountID, title string) (string, error) {
	base := slugify(title)

	slug := base
	for i := 2; ; i++ {
		exists, err := s.storage.SlugExists(ctx, accountID, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return "insight"
	}
	return slug
}

func validAudience(audience string) bool {
	switch audience {
	case types.AudienceDeveloper, types.AudienceStakeholder, types.AudienceEndUser:
		return true
	}
	return false
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// detectContentType maps a filename to its content type, with explicit
// handling for the formats insight bundles are made of.
func detectContentType(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".mmd", ".mermaid":
		return "text/vnd.mermaid"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "text/plain"
	}
}
