// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package insights

import (
	"context"
	"time"

	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/types"
)

type ServiceInterface interface {
	List(ctx context.Context, accountID string, filter storage.InsightFilter) ([]*types.Insight, int64, error)
	Get(ctx context.Context, accountID, id string) (*types.Insight, error)
	GetBySlug(ctx context.Context, accountID, slug string) (*types.Insight, error)
	Create(ctx context.Context, accountID, membershipID string, req CreateRequest) (*types.Insight, error)
	Update(ctx context.Context, accountID, id string, req UpdateRequest) (*types.Insight, error)
	Delete(ctx context.Context, accountID, id string) error
	Publish(ctx context.Context, accountID, id string) (*types.Insight, error)
	Unpublish(ctx context.Context, accountID, id string) (*types.Insight, error)
	ListTags(ctx context.Context, accountID string) ([]string, error)

	EnableSharing(ctx context.Context, accountID, id string) (*types.Insight, error)
	DisableSharing(ctx context.Context, accountID, id string) (*types.Insight, error)
	RegenerateShareToken(ctx context.Context, accountID, id string) (*types.Insight, error)
	GetShared(ctx context.Context, token string) (*types.Insight, []*types.InsightFile, error)

	ListFiles(ctx context.Context, accountID, insightID string) ([]*types.InsightFile, error)
	AddFile(ctx context.Context, accountID, insightID, filename, content string) (*types.InsightFile, error)
	DeleteFile(ctx context.Context, accountID, insightID, fileID string) error

	AddComment(ctx context.Context, accountID, insightID, membershipID, body string, parentID *string) (*types.Engagement, error)
	ListComments(ctx context.Context, accountID, insightID string) ([]*types.Engagement, error)
}

type StorageInterface interface {
	CreateInsight(ctx context.Context, i *types.Insight) (*types.Insight, error)
	GetInsightByID(ctx context.Context, accountID, id string) (*types.Insight, error)
	GetInsightBySlug(ctx context.Context, accountID, slug string) (*types.Insight, error)
	GetInsightByShareToken(ctx context.Context, token string) (*types.Insight, error)
	ListInsights(ctx context.Context, accountID string, filter storage.InsightFilter) ([]*types.Insight, int64, error)
	UpdateInsight(ctx context.Context, i *types.Insight, paths []string) error
	SetInsightStatus(ctx context.Context, accountID, id, status string, publishedAt *time.Time) error
	SetInsightSharing(ctx context.Context, accountID, id string, token *string, enabled bool) error
	DeleteInsight(ctx context.Context, accountID, id string) error
	SlugExists(ctx context.Context, accountID, slug string) (bool, error)
	ListTags(ctx context.Context, accountID string) ([]string, error)
	AddInsightFile(ctx context.Context, f *types.InsightFile) (*types.InsightFile, error)
	ListInsightFiles(ctx context.Context, insightID string) ([]*types.InsightFile, error)
	DeleteInsightFile(ctx context.Context, insightID, fileID string) error

	AddComment(ctx context.Context, e *types.Engagement) (*types.Engagement, error)
	ListComments(ctx context.Context, accountID, insightID string) ([]*types.Engagement, error)
}
