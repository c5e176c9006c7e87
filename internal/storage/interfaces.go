// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"time"

	"github.com/canonical/insaight-hub/internal/types"
)

type StorageInterface interface {
	// Identities
	CreateIdentity(ctx context.Context, i *types.Identity) (*types.Identity, error)
	GetIdentityByID(ctx context.Context, id string) (*types.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*types.Identity, error)
	GetIdentityByAPIToken(ctx context.Context, token string) (*types.Identity, error)
	CountIdentities(ctx context.Context) (int64, error)
	UpdateIdentityPassword(ctx context.Context, id, passwordHash string) error
	UpdateIdentityAPIToken(ctx context.Context, id, token string) error
	UpdateIdentityName(ctx context.Context, id, name string) error

	// Accounts
	CreateAccount(ctx context.Context, a *types.Account) (*types.Account, error)
	GetAccountByID(ctx context.Context, id string) (*types.Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*types.Account, error)
	ListAccountsByIdentityID(ctx context.Context, identityID string) ([]*types.Account, error)
	DeleteAccount(ctx context.Context, id string) error

	// Memberships
	AddMembership(ctx context.Context, accountID, identityID, role string) (*types.Membership, error)
	GetMembership(ctx context.Context, accountID, identityID string) (*types.Membership, error)
	GetMembershipByID(ctx context.Context, accountID, id string) (*types.Membership, error)
	ListMembersByAccountID(ctx context.Context, accountID string) ([]*Member, error)
	UpdateMembershipRole(ctx context.Context, accountID, id, role string) error
	DeleteMembership(ctx context.Context, accountID, id string) error
	CountOwners(ctx context.Context, accountID string) (int64, error)

	// Sessions
	CreateSession(ctx context.Context, sess *types.Session) (*types.Session, error)
	GetSessionByID(ctx context.Context, id string) (*types.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Invites
	CreateInvite(ctx context.Context, invite *types.Invite) (*types.Invite, error)
	GetInviteByToken(ctx context.Context, token string) (*types.Invite, error)
	ListInvitesByAccountID(ctx context.Context, accountID string) ([]*types.Invite, error)
	MarkInviteUsed(ctx context.Context, id, usedByID string, usedAt time.Time) error
	DeleteInvite(ctx context.Context, accountID, id string) error

	// Insights
	CreateInsight(ctx context.Context, i *types.Insight) (*types.Insight, error)
	GetInsightByID(ctx context.Context, accountID, id string) (*types.Insight, error)
	GetInsightBySlug(ctx context.Context, accountID, slug string) (*types.Insight, error)
	GetInsightByShareToken(ctx context.Context, token string) (*types.Insight, error)
	ListInsights(ctx context.Context, accountID string, filter InsightFilter) ([]*types.Insight, int64, error)
	UpdateInsight(ctx context.Context, i *types.Insight, paths []string) error
	SetInsightStatus(ctx context.Context, accountID, id, status string, publishedAt *time.Time) error
	SetInsightSharing(ctx context.Context, accountID, id string, token *string, enabled bool) error
	DeleteInsight(ctx context.Context, accountID, id string) error
	SlugExists(ctx context.Context, accountID, slug string) (bool, error)
	ListTags(ctx context.Context, accountID string) ([]string, error)
	CountInsightsByMembershipID(ctx context.Context, membershipID, status string) (int64, error)
	AddInsightFile(ctx context.Context, f *types.InsightFile) (*types.InsightFile, error)
	ListInsightFiles(ctx context.Context, insightID string) ([]*types.InsightFile, error)
	DeleteInsightFile(ctx context.Context, insightID, fileID string) error

	// Engagements
	AddComment(ctx context.Context, e *types.Engagement) (*types.Engagement, error)
	ListComments(ctx context.Context, accountID, insightID string) ([]*types.Engagement, error)
	CountComments(ctx context.Context, insightID string) (int64, error)

	// Waitlist
	CreateWaitlistEntry(ctx context.Context, e *types.WaitlistEntry) (*types.WaitlistEntry, error)
	GetWaitlistEntryByID(ctx context.Context, id string) (*types.WaitlistEntry, error)
	ListWaitlistEntries(ctx context.Context) ([]*types.WaitlistEntry, error)
	DeleteWaitlistEntry(ctx context.Context, id string) error
}
