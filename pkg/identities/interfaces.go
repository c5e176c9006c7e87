// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package identities

import (
	"context"

	"github.com/canonical/insaight-hub/internal/types"
)

type ServiceInterface interface {
	Onboard(ctx context.Context, req OnboardRequest) (*types.Identity, *types.Account, error)
	Login(ctx context.Context, email, password, userAgent, ipAddress string) (*types.Session, *types.Identity, error)
	Logout(ctx context.Context, sessionID string) error
	ListAccounts(ctx context.Context, identityID string) ([]*types.Account, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	SetupIdentity(ctx context.Context, token, name, password string) (*types.Identity, error)
	RegenerateAPIToken(ctx context.Context, identityID string) (string, error)
	UpdateName(ctx context.Context, identityID, name string) error
	BootstrapRequired(ctx context.Context) (bool, error)
}

type StorageInterface interface {
	CreateIdentity(ctx context.Context, i *types.Identity) (*types.Identity, error)
	GetIdentityByID(ctx context.Context, id string) (*types.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*types.Identity, error)
	CountIdentities(ctx context.Context) (int64, error)
	UpdateIdentityPassword(ctx context.Context, id, passwordHash string) error
	UpdateIdentityAPIToken(ctx context.Context, id, token string) error
	UpdateIdentityName(ctx context.Context, id, name string) error
	CreateAccount(ctx context.Context, a *types.Account) (*types.Account, error)
	ListAccountsByIdentityID(ctx context.Context, identityID string) ([]*types.Account, error)
	AddMembership(ctx context.Context, accountID, identityID, role string) (*types.Membership, error)
	CreateSession(ctx context.Context, sess *types.Session) (*types.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// TokenServiceInterface mints and verifies the mailed password reset and
// account setup tokens.
type TokenServiceInterface interface {
	PasswordResetToken(identityID, passwordDigest string) (string, error)
	AccountSetupToken(identityID, passwordDigest string) (string, error)
	VerifyPasswordReset(token string) (identityID, fingerprint string, err error)
	VerifyAccountSetup(token string) (identityID, fingerprint string, err error)
}
