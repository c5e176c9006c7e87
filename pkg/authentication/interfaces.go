// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"

	"github.com/canonical/insaight-hub/internal/types"
)

// IdentityFinderInterface backs the bearer-token gate.
type IdentityFinderInterface interface {
	GetIdentityByAPIToken(ctx context.Context, token string) (*types.Identity, error)
}

// SessionStoreInterface backs the session-cookie gate.
type SessionStoreInterface interface {
	GetSessionByID(ctx context.Context, id string) (*types.Session, error)
	GetIdentityByID(ctx context.Context, id string) (*types.Identity, error)
	CountIdentities(ctx context.Context) (int64, error)
}
