// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/insaight-hub/internal/authz"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
	"github.com/canonical/insaight-hub/pkg/insights"
)

// fakeInsightService overrides only the methods a test exercises.
type fakeInsightService struct {
	insights.ServiceInterface

	listFn   func(ctx context.Context, accountID string, filter storage.InsightFilter) ([]*types.Insight, int64, error)
	createFn func(ctx context.Context, accountID, membershipID string, req insights.CreateRequest) (*types.Insight, error)
	tagsFn   func(ctx context.Context, accountID string) ([]string, error)
}

func (f *fakeInsightService) List(ctx context.Context, accountID string, filter storage.InsightFilter) ([]*types.Insight, int64, error) {
	return f.listFn(ctx, accountID, filter)
}

func (f *fakeInsightService) Create(ctx context.Context, accountID, membershipID string, req insights.CreateRequest) (*types.Insight, error) {
	return f.createFn(ctx, accountID, membershipID, req)
}

func (f *fakeInsightService) ListTags(ctx context.Context, accountID string) ([]string, error) {
	return f.tagsFn(ctx, accountID)
}

func newTestServer(service insights.ServiceInterface, grant *authz.Grant) http.Handler {
	server := NewServer(service, "1.2.3", tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(authz.WithGrant(r.Context(), grant)))
		})
	})
	server.RegisterEndpoints(router)
	return router
}

func memberGrant() *authz.Grant {
	return &authz.Grant{
		Identity:   &types.Identity{ID: "i-1"},
		Account:    &types.Account{ID: "a-1", Name: "Acme"},
		Membership: &types.Membership{ID: "m-1", Role: types.RoleMember},
	}
}

func adminGrant() *authz.Grant {
	return &authz.Grant{
		Identity:   &types.Identity{ID: "i-9", Admin: true},
		Account:    &types.Account{ID: "a-1", Name: "Acme"},
		SuperAdmin: true,
	}
}

func rpc(t *testing.T, handler http.Handler, body string) (*httptest.ResponseRecorder, *rpcResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))

	if rec.Body.Len() == 0 {
		return rec, nil
	}

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, &resp
}

// callResult unpacks the tools/call result envelope.
func callResult(t *testing.T, resp *rpcResponse) *toolResult {
	t.Helper()

	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)

	var result toolResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.NotEmpty(t, result.Content)
	return &result
}

func TestInitialize(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, memberGrant())

	_, resp := rpc(t, handler, `{"jsonrpc": "2.0", "id": 1, "method": "initialize"}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, protocolVersion, result["protocolVersion"])

	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "insaight-hub", info["name"])
	assert.Equal(t, "1.2.3", info["version"])
}

func TestInitializedNotification(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, memberGrant())

	rec, resp := rpc(t, handler, `{"jsonrpc": "2.0", "method": "notifications/initialized"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, resp)
}

func TestToolsList(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, memberGrant())

	_, resp := rpc(t, handler, `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`)

	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]interface{})["tools"].([]interface{})
	require.NotEmpty(t, tools)

	var names []string
	for _, tool := range tools {
		names = append(names, tool.(map[string]interface{})["name"].(string))
	}
	assert.Contains(t, names, "list_insights")
	assert.Contains(t, names, "create_insight")
	assert.Contains(t, names, "add_comment")
}

func TestUnknownMethod(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, memberGrant())

	_, resp := rpc(t, handler, `{"jsonrpc": "2.0", "id": 3, "method": "resources/list"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestParseError(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, memberGrant())

	_, resp := rpc(t, handler, `{not json`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestInvalidVersionRejected(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, memberGrant())

	_, resp := rpc(t, handler, `{"jsonrpc": "1.0", "id": 4, "method": "tools/list"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestListInsightsTool(t *testing.T) {
	service := &fakeInsightService{
		listFn: func(ctx context.Context, accountID string, filter storage.InsightFilter) ([]*types.Insight, int64, error) {
			assert.Equal(t, "a-1", accountID)
			assert.Equal(t, types.StatusPublished, filter.Status)
			return []*types.Insight{{ID: "in-1", Title: "Payment Flow", Slug: "payment-flow"}}, 1, nil
		},
	}
	handler := newTestServer(service, memberGrant())

	_, resp := rpc(t, handler, `{
		"jsonrpc": "2.0", "id": 5, "method": "tools/call",
		"params": {"name": "list_insights", "arguments": {"status": "published"}}
	}`)

	result := callResult(t, resp)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "payment-flow")
	assert.Contains(t, result.Content[0].Text, `"total": 1`)
}

func TestCreateInsightTool(t *testing.T) {
	var gotMembershipID string
	service := &fakeInsightService{
		createFn: func(ctx context.Context, accountID, membershipID string, req insights.CreateRequest) (*types.Insight, error) {
			gotMembershipID = membershipID
			return &types.Insight{ID: "in-1", Slug: "payment-flow", Status: types.StatusDraft}, nil
		},
	}
	handler := newTestServer(service, memberGrant())

	_, resp := rpc(t, handler, `{
		"jsonrpc": "2.0", "id": 6, "method": "tools/call",
		"params": {
			"name": "create_insight",
			"arguments": {
				"title": "Payment Flow",
				"audience": "developer",
				"files": [{"filename": "overview.md", "content": "# Overview"}]
			}
		}
	}`)

	result := callResult(t, resp)
	assert.False(t, result.IsError)
	assert.Equal(t, "m-1", gotMembershipID)
	assert.Contains(t, result.Content[0].Text, "payment-flow")
}

func TestCreateInsightToolByAdminWithoutMembership(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, adminGrant())

	_, resp := rpc(t, handler, `{
		"jsonrpc": "2.0", "id": 7, "method": "tools/call",
		"params": {
			"name": "create_insight",
			"arguments": {"title": "X", "audience": "developer", "files": [{"filename": "a.md"}]}
		}
	}`)

	result := callResult(t, resp)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "join it before authoring content")
}

func TestGetTagsToolWorksForBypassingAdmin(t *testing.T) {
	service := &fakeInsightService{
		tagsFn: func(ctx context.Context, accountID string) ([]string, error) {
			return []string{"architecture"}, nil
		},
	}
	handler := newTestServer(service, adminGrant())

	_, resp := rpc(t, handler, `{
		"jsonrpc": "2.0", "id": 8, "method": "tools/call",
		"params": {"name": "get_tags"}
	}`)

	result := callResult(t, resp)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "architecture")
}

func TestUnknownTool(t *testing.T) {
	handler := newTestServer(&fakeInsightService{}, memberGrant())

	_, resp := rpc(t, handler, `{
		"jsonrpc": "2.0", "id": 9, "method": "tools/call",
		"params": {"name": "drop_database"}
	}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}
