// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package accounts

import (
	"context"
	"time"

	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/types"
)

type ServiceInterface interface {
	ListMembers(ctx context.Context, accountID string) ([]*storage.Member, error)
	UpdateMemberRole(ctx context.Context, accountID, membershipID, role string) error
	RemoveMember(ctx context.Context, accountID, membershipID, actorIdentityID string) error

	CreateInvite(ctx context.Context, account *types.Account, createdBy *types.Membership, email string) (*types.Invite, error)
	ListInvites(ctx context.Context, accountID string) ([]*types.Invite, error)
	RevokeInvite(ctx context.Context, accountID, inviteID string) error
	LookupInvite(ctx context.Context, token string) (*types.Invite, *types.Account, error)
	AcceptInvite(ctx context.Context, token, identityID string) (*types.Account, error)
	RegisterWithInvite(ctx context.Context, token string, req RegisterRequest) (*types.Identity, *types.Account, error)

	JoinWaitlist(ctx context.Context, email, name string) (*types.WaitlistEntry, error)
	ListWaitlist(ctx context.Context) ([]*types.WaitlistEntry, error)
	ApproveWaitlistEntry(ctx context.Context, entryID, accountName string) error
	RejectWaitlistEntry(ctx context.Context, entryID string) error
}

type StorageInterface interface {
	GetAccountByID(ctx context.Context, id string) (*types.Account, error)
	CreateAccount(ctx context.Context, a *types.Account) (*types.Account, error)

	AddMembership(ctx context.Context, accountID, identityID, role string) (*types.Membership, error)
	GetMembership(ctx context.Context, accountID, identityID string) (*types.Membership, error)
	GetMembershipByID(ctx context.Context, accountID, id string) (*types.Membership, error)
	ListMembersByAccountID(ctx context.Context, accountID string) ([]*storage.Member, error)
	UpdateMembershipRole(ctx context.Context, accountID, id, role string) error
	DeleteMembership(ctx context.Context, accountID, id string) error
	CountOwners(ctx context.Context, accountID string) (int64, error)

	CreateInvite(ctx context.Context, invite *types.Invite) (*types.Invite, error)
	GetInviteByToken(ctx context.Context, token string) (*types.Invite, error)
	ListInvitesByAccountID(ctx context.Context, accountID string) ([]*types.Invite, error)
	MarkInviteUsed(ctx context.Context, id, usedByID string, usedAt time.Time) error
	DeleteInvite(ctx context.Context, accountID, id string) error

	CreateIdentity(ctx context.Context, i *types.Identity) (*types.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*types.Identity, error)

	CreateWaitlistEntry(ctx context.Context, e *types.WaitlistEntry) (*types.WaitlistEntry, error)
	GetWaitlistEntryByID(ctx context.Context, id string) (*types.WaitlistEntry, error)
	ListWaitlistEntries(ctx context.Context) ([]*types.WaitlistEntry, error)
	DeleteWaitlistEntry(ctx context.Context, id string) error
}

// TokenServiceInterface mints the setup tokens mailed on waitlist approval.
type TokenServiceInterface interface {
	AccountSetupToken(identityID, passwordDigest string) (string, error)
}
