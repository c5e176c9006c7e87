// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/canonical/insaight-hub/internal/types"
)

// InsightFilter narrows insight listings. Zero values mean "no filter".
type InsightFilter struct {
	Status       string
	Audience     string
	Tag          string
	Search       string
	MembershipID string
	Page         int64
	PerPage      int64
}

const (
	defaultPerPage int64 = 20
	maxPerPage     int64 = 100
)

// Pagination returns the effective page and page size after defaulting
// and clamping, for response metadata.
func (f InsightFilter) Pagination() (page, perPage int64) {
	perPage = f.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	page = f.Page
	if page <= 0 {
		page = 1
	}

	return page, perPage
}

func (f InsightFilter) limits() (limit, offset uint64) {
	page, perPage := f.Pagination()
	return uint64(perPage), uint64((page - 1) * perPage)
}

func (f InsightFilter) apply(query sq.SelectBuilder, accountID string) sq.SelectBuilder {
	query = query.Where(sq.Eq{"account_id": accountID})

	if f.Status != "" {
		query = query.Where(sq.Eq{"status": f.Status})
	}
	if f.Audience != "" {
		query = query.Where(sq.Eq{"audience": f.Audience})
	}
	if f.MembershipID != "" {
		query = query.Where(sq.Eq{"membership_id": f.MembershipID})
	}
	if f.Tag != "" {
		tag, _ := tagsJSON([]string{f.Tag})
		query = query.Where(sq.Expr("tags @> ?::jsonb", string(tag)))
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query = query.Where(sq.Or{sq.ILike{"title": like}, sq.ILike{"description": like}})
	}

	return query
}

const insightColumns = "id, account_id, membership_id, title, slug, description, audience, status, entry_file, tags, share_token, share_enabled, published_at, created_at, updated_at"

func scanInsight(row sq.RowScanner) (*types.Insight, error) {
	var i types.Insight
	var rawTags []byte
	err := row.Scan(&i.ID, &i.AccountID, &i.MembershipID, &i.Title, &i.Slug, &i.Description,
		&i.Audience, &i.Status, &i.EntryFile, &rawTags, &i.ShareToken, &i.ShareEnabled,
		&i.PublishedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}

	tags, err := scanTags(rawTags)
	if err != nil {
		return nil, err
	}
	i.Tags = tags

	return &i, nil
}

func (s *Storage) CreateInsight(ctx context.Context, i *types.Insight) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateInsight")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	tags, err := tagsJSON(i.Tags)
	if err != nil {
		return nil, err
	}

	row := s.db.Statement(ctx).
		Insert("insights").
		Columns("id", "account_id", "membership_id", "title", "slug", "description", "audience", "status", "entry_file", "tags").
		Values(id, i.AccountID, i.MembershipID, i.Title, i.Slug, i.Description, i.Audience, i.Status, i.EntryFile, string(tags)).
		Suffix("RETURNING " + insightColumns).
		QueryRowContext(ctx)

	created, err := scanInsight(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert insight: %w", mapConstraintError(err))
	}

	return created, nil
}

func (s *Storage) GetInsightByID(ctx context.Context, accountID, id string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetInsightByID")
	defer span.End()

	return s.getInsight(ctx, sq.Eq{"account_id": accountID, "id": id})
}

func (s *Storage) GetInsightBySlug(ctx context.Context, accountID, slug string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetInsightBySlug")
	defer span.End()

	return s.getInsight(ctx, sq.Eq{"account_id": accountID, "slug": slug})
}

// GetInsightByShareToken serves tokenless public links; it is the only
// insight lookup not scoped by account.
func (s *Storage) GetInsightByShareToken(ctx context.Context, token string) (*types.Insight, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetInsightByShareToken")
	defer span.End()

	return s.getInsight(ctx, sq.Eq{"share_token": token})
}

func (s *Storage) getInsight(ctx context.Context, pred sq.Eq) (*types.Insight, error) {
	row := s.db.Statement(ctx).
		Select(insightColumns).
		From("insights").
		Where(pred).
		QueryRowContext(ctx)

	i, err := scanInsight(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}

	return i, nil
}

// ListInsights returns one page of matching insights plus the unpaged total.
func (s *Storage) ListInsights(ctx context.Context, accountID string, filter InsightFilter) ([]*types.Insight, int64, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListInsights")
	defer span.End()

	var total int64
	err := filter.apply(s.db.Statement(ctx).Select("COUNT(*)").From("insights"), accountID).
		QueryRowContext(ctx).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count insights: %w", err)
	}

	limit, offset := filter.limits()
	rows, err := filter.apply(s.db.Statement(ctx).Select(insightColumns).From("insights"), accountID).
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(offset).
		QueryContext(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var insights []*types.Insight
	for rows.Next() {
		i, err := scanInsight(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, i)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return insights, total, nil
}

// UpdateInsight updates the fields named in paths, PATCH style.
func (s *Storage) UpdateInsight(ctx context.Context, i *types.Insight, paths []string) error {
	ctx, span := s.tracer.Start(ctx, "storage.UpdateInsight")
	defer span.End()

	if len(paths) == 0 {
		return nil
	}

	updateMap := make(map[string]interface{})
	for _, p := range paths {
		switch p {
		case "title":
			updateMap["title"] = i.Title
		case "slug":
			updateMap["slug"] = i.Slug
		case "description":
			updateMap["description"] = i.Description
		case "audience":
			updateMap["audience"] = i.Audience
		case "entry_file":
			updateMap["entry_file"] = i.EntryFile
		case "tags":
			tags, err := tagsJSON(i.Tags)
			if err != nil {
				return err
			}
			updateMap["tags"] = string(tags)
		}
	}

	if len(updateMap) == 0 {
		return nil
	}
	updateMap["updated_at"] = time.Now().UTC()

	res, err := s.db.Statement(ctx).
		Update("insights").
		SetMap(updateMap).
		Where(sq.Eq{"account_id": i.AccountID, "id": i.ID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update insight: %w", mapConstraintError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Storage) SetInsightStatus(ctx context.Context, accountID, id, status string, publishedAt *time.Time) error {
	ctx, span := s.tracer.Start(ctx, "storage.SetInsightStatus")
	defer span.End()

	return s.setInsight(ctx, accountID, id, map[string]interface{}{
		"status":       status,
		"published_at": publishedAt,
	})
}

func (s *Storage) SetInsightSharing(ctx context.Context, accountID, id string, token *string, enabled bool) error {
	ctx, span := s.tracer.Start(ctx, "storage.SetInsightSharing")
	defer span.End()

	return s.setInsight(ctx, accountID, id, map[string]interface{}{
		"share_token":   token,
		"share_enabled": enabled,
	})
}

func (s *Storage) setInsight(ctx context.Context, accountID, id string, set map[string]interface{}) error {
	set["updated_at"] = time.Now().UTC()

	res, err := s.db.Statement(ctx).
		Update("insights").
		SetMap(set).
		Where(sq.Eq{"account_id": accountID, "id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update insight: %w", mapConstraintError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Storage) DeleteInsight(ctx context.Context, accountID, id string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteInsight")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Delete("insights").
		Where(sq.Eq{"account_id": accountID, "id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete insight: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SlugExists backs de-duplicating slug generation.
func (s *Storage) SlugExists(ctx context.Context, accountID, slug string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "storage.SlugExists")
	defer span.End()

	var count int64
	err := s.db.Statement(ctx).
		Select("COUNT(*)").
		From("insights").
		Where(sq.Eq{"account_id": accountID, "slug": slug}).
		QueryRowContext(ctx).
		Scan(&count)

	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}

	return count > 0, nil
}

// ListTags aggregates the distinct tags across an account's insights.
func (s *Storage) ListTags(ctx context.Context, accountID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListTags")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("DISTINCT jsonb_array_elements_text(tags) AS tag").
		From("insights").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("tag ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tags, nil
}

func (s *Storage) CountInsightsByMembershipID(ctx context.Context, membershipID, status string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CountInsightsByMembershipID")
	defer span.End()

	query := s.db.Statement(ctx).
		Select("COUNT(*)").
		From("insights").
		Where(sq.Eq{"membership_id": membershipID})
	if status != "" {
		query = query.Where(sq.Eq{"status": status})
	}

	var count int64
	if err := query.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count insights: %w", err)
	}

	return count, nil
}

func (s *Storage) AddInsightFile(ctx context.Context, f *types.InsightFile) (*types.InsightFile, error) {
	ctx, span := s.tracer.Start(ctx, "storage.AddInsightFile")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	var created types.InsightFile
	err = s.db.Statement(ctx).
		Insert("insight_files").
		Columns("id", "insight_id", "filename", "content", "content_type").
		Values(id, f.InsightID, f.Filename, f.Content, f.ContentType).
		Suffix("RETURNING id, insight_id, filename, content, content_type, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.InsightID, &created.Filename, &created.Content, &created.ContentType, &created.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert insight file: %w", mapConstraintError(err))
	}

	return &created, nil
}

func (s *Storage) ListInsightFiles(ctx context.Context, insightID string) ([]*types.InsightFile, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListInsightFiles")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("id", "insight_id", "filename", "content", "content_type", "created_at").
		From("insight_files").
		Where(sq.Eq{"insight_id": insightID}).
		OrderBy("filename ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list insight files: %w", err)
	}
	defer rows.Close()

	var files []*types.InsightFile
	for rows.Next() {
		var f types.InsightFile
		if err := rows.Scan(&f.ID, &f.InsightID, &f.Filename, &f.Content, &f.ContentType, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight file: %w", err)
		}
		files = append(files, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return files, nil
}

func (s *Storage) DeleteInsightFile(ctx context.Context, insightID, fileID string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteInsightFile")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Delete("insight_files").
		Where(sq.Eq{"insight_id": insightID, "id": fileID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete insight file: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
