// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package insights

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
)

type fakeStorage struct {
	insights    map[string]*types.Insight
	files       map[string][]*types.InsightFile
	engagements []*types.Engagement

	nextID int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		insights: map[string]*types.Insight{},
		files:    map[string][]*types.InsightFile{},
	}
}

func (f *fakeStorage) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStorage) CreateInsight(ctx context.Context, i *types.Insight) (*types.Insight, error) {
	copied := *i
	copied.ID = f.id("insight")
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	f.insights[copied.ID] = &copied
	out := copied
	return &out, nil
}

func (f *fakeStorage) GetInsightByID(ctx context.Context, accountID, id string) (*types.Insight, error) {
	if i, ok := f.insights[id]; ok && i.AccountID == accountID {
		copied := *i
		return &copied, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStorage) GetInsightBySlug(ctx context.Context, accountID, slug string) (*types.Insight, error) {
	for _, i := range f.insights {
		if i.AccountID == accountID && i.Slug == slug {
			copied := *i
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStorage) GetInsightByShareToken(ctx context.Context, token string) (*types.Insight, error) {
	for _, i := range f.insights {
		if i.ShareToken != nil && *i.ShareToken == token {
			copied := *i
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStorage) ListInsights(ctx context.Context, accountID string, filter storage.InsightFilter) ([]*types.Insight, int64, error) {
	var out []*types.Insight
	for _, i := range f.insights {
		if i.AccountID != accountID {
			continue
		}
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		out = append(out, i)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStorage) UpdateInsight(ctx context.Context, i *types.Insight, paths []string) error {
	stored, ok := f.insights[i.ID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, path := range paths {
		switch path {
		case "title":
			stored.Title = i.Title
		case "description":
			stored.Description = i.Description
		case "audience":
			stored.Audience = i.Audience
		case "tags":
			stored.Tags = i.Tags
		case "entry_file":
			stored.EntryFile = i.EntryFile
		}
	}
	return nil
}

func (f *fakeStorage) SetInsightStatus(ctx context.Context, accountID, id, status string, publishedAt *time.Time) error {
	i, ok := f.insights[id]
	if !ok || i.AccountID != accountID {
		return storage.ErrNotFound
	}
	i.Status = status
	i.PublishedAt = publishedAt
	return nil
}

func (f *fakeStorage) SetInsightSharing(ctx context.Context, accountID, id string, token *string, enabled bool) error {
	i, ok := f.insights[id]
	if !ok || i.AccountID != accountID {
		return storage.ErrNotFound
	}
	i.ShareToken = token
	i.ShareEnabled = enabled
	return nil
}

func (f *fakeStorage) DeleteInsight(ctx context.Context, accountID, id string) error {
	i, ok := f.insights[id]
	if !ok || i.AccountID != accountID {
		return storage.ErrNotFound
	}
	delete(f.insights, id)
	delete(f.files, id)
	return nil
}

func (f *fakeStorage) SlugExists(ctx context.Context, accountID, slug string) (bool, error) {
	_, err := f.GetInsightBySlug(ctx, accountID, slug)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (f *fakeStorage) ListTags(ctx context.Context, accountID string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, i := range f.insights {
		if i.AccountID != accountID {
			continue
		}
		for _, tag := range i.Tags {
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				out = append(out, tag)
			}
		}
	}
	return out, nil
}

func (f *fakeStorage) AddInsightFile(ctx context.Context, file *types.InsightFile) (*types.InsightFile, error) {
	copied := *file
	copied.ID = f.id("file")
	copied.CreatedAt = time.Now()
	f.files[copied.InsightID] = append(f.files[copied.InsightID], &copied)
	return &copied, nil
}

func (f *fakeStorage) ListInsightFiles(ctx context.Context, insightID string) ([]*types.InsightFile, error) {
	return f.files[insightID], nil
}

func (f *fakeStorage) DeleteInsightFile(ctx context.Context, insightID, fileID string) error {
	files := f.files[insightID]
	for n, file := range files {
		if file.ID == fileID {
			f.files[insightID] = append(files[:n], files[n+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStorage) AddComment(ctx context.Context, e *types.Engagement) (*types.Engagement, error) {
	copied := *e
	copied.ID = f.id("engagement")
	copied.CreatedAt = time.Now()
	if e.Comment != nil {
		comment := *e.Comment
		comment.ID = f.id("comment")
		comment.EngagementID = copied.ID
		copied.Comment = &comment
	}
	f.engagements = append(f.engagements, &copied)
	return &copied, nil
}

func (f *fakeStorage) ListComments(ctx context.Context, accountID, insightID string) ([]*types.Engagement, error) {
	var out []*types.Engagement
	for _, e := range f.engagements {
		if e.AccountID == accountID && e.InsightID == insightID && e.Kind == types.EngagementComment {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeDBClient struct{}

func (fakeDBClient) Statement(ctx context.Context) sq.StatementBuilderType {
	return sq.StatementBuilder
}

func (fakeDBClient) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeDBClient) Close() {}

func newTestService(t *testing.T) (*Service, *fakeStorage) {
	t.Helper()

	store := newFakeStorage()
	svc := NewService(store, fakeDBClient{}, tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
	return svc, store
}

func mustCreate(t *testing.T, svc *Service, title string) *types.Insight {
	t.Helper()

	insight, err := svc.Create(context.Background(), "a-1", "m-1", CreateRequest{
		Title:    title,
		Audience: types.AudienceDeveloper,
		Tags:     []string{"Architecture", " architecture ", "ADR"},
		Files: []FileInput{
			{Filename: "overview.md", Content: "# Overview"},
			{Filename: "flow.mmd", Content: "graph TD"},
		},
	})
	require.NoError(t, err)
	return insight
}

func TestCreateInsight(t *testing.T) {
	svc, store := newTestService(t)

	insight := mustCreate(t, svc, "Payment Flow Deep Dive")

	assert.Equal(t, "payment-flow-deep-dive", insight.Slug)
	assert.Equal(t, types.StatusDraft, insight.Status)
	assert.Equal(t, "overview.md", insight.EntryFile)
	assert.Equal(t, []string{"architecture", "adr"}, insight.Tags)

	files := store.files[insight.ID]
	require.Len(t, files, 2)
	assert.Equal(t, "text/markdown", files[0].ContentType)
	assert.Equal(t, "text/vnd.mermaid", files[1].ContentType)
}

func TestCreateSuffixesDuplicateSlugs(t *testing.T) {
	svc, _ := newTestService(t)

	first := mustCreate(t, svc, "Payment Flow")
	second := mustCreate(t, svc, "Payment Flow")
	third := mustCreate(t, svc, "Payment Flow")

	assert.Equal(t, "payment-flow", first.Slug)
	assert.Equal(t, "payment-flow-2", second.Slug)
	assert.Equal(t, "payment-flow-3", third.Slug)
}

func TestCreateRejectsInvalidAudience(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "a-1", "m-1", CreateRequest{
		Title:    "Broken",
		Audience: "everyone",
		Files:    []FileInput{{Filename: "a.md"}},
	})
	assert.ErrorIs(t, err, ErrInvalidAudience)
}

func TestCreateRejectsEmptyBundle(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "a-1", "m-1", CreateRequest{
		Title:    "Empty",
		Audience: types.AudienceDeveloper,
	})
	assert.ErrorIs(t, err, ErrEmptyBundle)
}

func TestUpdatePartialFields(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "Original Title")

	title := "New Title"
	updated, err := svc.Update(context.Background(), "a-1", insight.ID, UpdateRequest{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "New Title", updated.Title)
	// The slug is derived at creation and untouched by updates.
	assert.Equal(t, "original-title", updated.Slug)
	assert.Equal(t, types.AudienceDeveloper, updated.Audience)
}

func TestUpdateRejectsInvalidAudience(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	bad := "everyone"
	_, err := svc.Update(context.Background(), "a-1", insight.ID, UpdateRequest{Audience: &bad})
	assert.ErrorIs(t, err, ErrInvalidAudience)
}

func TestPublishAndUnpublish(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	published, err := svc.Publish(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	assert.True(t, published.Published())
	require.NotNil(t, published.PublishedAt)

	draft, err := svc.Unpublish(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, draft.Status)
	assert.Nil(t, draft.PublishedAt)
}

func TestUnpublishDisablesSharing(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	_, err := svc.Publish(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	shared, err := svc.EnableSharing(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	require.NotNil(t, shared.ShareToken)

	draft, err := svc.Unpublish(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)

	assert.False(t, draft.ShareEnabled)
	// The token survives so re-enabling restores the same link.
	assert.Equal(t, shared.ShareToken, draft.ShareToken)

	_, _, err = svc.GetShared(context.Background(), *shared.ShareToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEnableSharingRequiresPublication(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	_, err := svc.EnableSharing(context.Background(), "a-1", insight.ID)
	assert.ErrorIs(t, err, ErrNotShareable)
}

func TestDisableAndReenableSharingKeepsLink(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	_, err := svc.Publish(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)

	shared, err := svc.EnableSharing(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)

	_, err = svc.DisableSharing(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)

	again, err := svc.EnableSharing(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	assert.Equal(t, *shared.ShareToken, *again.ShareToken)
}

func TestRegenerateShareTokenRotatesLink(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	_, err := svc.Publish(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	shared, err := svc.EnableSharing(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)

	rotated, err := svc.RegenerateShareToken(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	assert.NotEqual(t, *shared.ShareToken, *rotated.ShareToken)

	_, _, err = svc.GetShared(context.Background(), *shared.ShareToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, files, err := svc.GetShared(context.Background(), *rotated.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, insight.ID, got.ID)
	assert.Len(t, files, 2)
}

func TestAddComment(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	engagement, err := svc.AddComment(context.Background(), "a-1", insight.ID, "m-1", "  Looks right to me.  ", nil)
	require.NoError(t, err)

	assert.Equal(t, types.EngagementComment, engagement.Kind)
	require.NotNil(t, engagement.Comment)
	assert.Equal(t, "Looks right to me.", engagement.Comment.Body)

	reply, err := svc.AddComment(context.Background(), "a-1", insight.ID, "m-2", "Agreed.", &engagement.Comment.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.Comment.ParentID)
	assert.Equal(t, engagement.Comment.ID, *reply.Comment.ParentID)

	comments, err := svc.ListComments(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestAddCommentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	_, err := svc.AddComment(context.Background(), "a-1", insight.ID, "m-1", "   ", nil)
	assert.Error(t, err)

	_, err = svc.AddComment(context.Background(), "a-1", insight.ID, "m-1", strings.Repeat("x", maxCommentLength+1), nil)
	assert.ErrorIs(t, err, ErrCommentTooLong)

	_, err = svc.AddComment(context.Background(), "a-1", "nope", "m-1", "hello", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFilesLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	insight := mustCreate(t, svc, "A Title")

	file, err := svc.AddFile(context.Background(), "a-1", insight.ID, "sequence.mermaid", "sequenceDiagram")
	require.NoError(t, err)
	assert.Equal(t, "text/vnd.mermaid", file.ContentType)

	files, err := svc.ListFiles(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	require.NoError(t, svc.DeleteFile(context.Background(), "a-1", insight.ID, file.ID))

	files, err = svc.ListFiles(context.Background(), "a-1", insight.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// Account scoping applies to file operations too.
	_, err = svc.ListFiles(context.Background(), "a-2", insight.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListTags(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "First")
	mustCreate(t, svc, "Second")

	tags, err := svc.ListTags(context.Background(), "a-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"architecture", "adr"}, tags)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "payment-flow", slugify("Payment Flow"))
	assert.Equal(t, "a-b-c", slugify("  A//B__C  "))
	assert.Equal(t, "insight", slugify("???"))
	assert.Equal(t, "insight", slugify(""))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "text/markdown", detectContentType("README.md"))
	assert.Equal(t, "text/markdown", detectContentType("notes.markdown"))
	assert.Equal(t, "text/vnd.mermaid", detectContentType("flow.mmd"))
	assert.Equal(t, "text/plain", detectContentType("LICENSE"))
}
