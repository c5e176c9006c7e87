// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/canonical/insaight-hub/internal/types"
)

// AddComment inserts the engagement envelope and its comment variant.
// Callers wrap this in a request transaction so the two inserts are atomic.
func (s *Storage) AddComment(ctx context.Context, e *types.Engagement) (*types.Engagement, error) {
	ctx, span := s.tracer.Start(ctx, "storage.AddComment")
	defer span.End()

	if e.Comment == nil {
		return nil, fmt.Errorf("engagement has no comment payload")
	}

	engagementID, err := newID()
	if err != nil {
		return nil, err
	}
	commentID, err := newID()
	if err != nil {
		return nil, err
	}

	var created types.Engagement
	err = s.db.Statement(ctx).
		Insert("engagements").
		Columns("id", "account_id", "insight_id", "membership_id", "kind").
		Values(engagementID, e.AccountID, e.InsightID, e.MembershipID, string(types.EngagementComment)).
		Suffix("RETURNING id, account_id, insight_id, membership_id, kind, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.AccountID, &created.InsightID, &created.MembershipID, &created.Kind, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert engagement: %w", mapConstraintError(err))
	}

	var comment types.Comment
	err = s.db.Statement(ctx).
		Insert("comments").
		Columns("id", "engagement_id", "body", "parent_id").
		Values(commentID, created.ID, e.Comment.Body, e.Comment.ParentID).
		Suffix("RETURNING id, engagement_id, body, parent_id").
		QueryRowContext(ctx).
		Scan(&comment.ID, &comment.EngagementID, &comment.Body, &comment.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", mapConstraintError(err))
	}

	created.Comment = &comment
	return &created, nil
}

// ListComments returns the comment engagements for an insight, oldest first.
func (s *Storage) ListComments(ctx context.Context, accountID, insightID string) ([]*types.Engagement, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListComments")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("e.id", "e.account_id", "e.insight_id", "e.membership_id", "e.kind", "e.created_at",
			"c.id", "c.engagement_id", "c.body", "c.parent_id").
		From("engagements e").
		Join("comments c ON c.engagement_id = e.id").
		Where(sq.Eq{"e.account_id": accountID, "e.insight_id": insightID, "e.kind": string(types.EngagementComment)}).
		OrderBy("e.created_at ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var engagements []*types.Engagement
	for rows.Next() {
		var e types.Engagement
		var c types.Comment
		if err := rows.Scan(&e.ID, &e.AccountID, &e.InsightID, &e.MembershipID, &e.Kind, &e.CreatedAt,
			&c.ID, &c.EngagementID, &c.Body, &c.ParentID); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		e.Comment = &c
		engagements = append(engagements, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return engagements, nil
}

func (s *Storage) CountComments(ctx context.Context, insightID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CountComments")
	defer span.End()

	var count int64
	err := s.db.Statement(ctx).
		Select("COUNT(*)").
		From("engagements").
		Where(sq.Eq{"insight_id": insightID, "kind": string(types.EngagementComment)}).
		QueryRowContext(ctx).
		Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}

	return count, nil
}
