// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package current holds the per-request resolution state: session,
// identity, account and the membership derived from them. One instance is
// created per request and discarded with it; nothing here is shared
// across requests.
package current

import (
	"context"
	"errors"

	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/types"
)

// MembershipResolver loads the membership for an (account, identity) pair.
// A nil membership with nil error means the pair has no membership.
type MembershipResolver func(ctx context.Context, accountID, identityID string) (*types.Membership, error)

// NewStorageResolver adapts a storage lookup into a MembershipResolver,
// mapping not-found to a nil membership.
func NewStorageResolver(s storage.StorageInterface) MembershipResolver {
	return func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		m, err := s.GetMembership(ctx, accountID, identityID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return m, nil
	}
}

// Current carries the resolved request principals. The membership is
// memoized; setting a new account or identity invalidates it, since the
// membership is a function of the (identity, account) pair. Stale
// membership from a previously scoped account must never leak into code
// that swaps account scope mid-flight.
type Current struct {
	session  *types.Session
	identity *types.Identity
	account  *types.Account

	membership         *types.Membership
	membershipResolved bool

	resolve MembershipResolver
}

func New(resolve MembershipResolver) *Current {
	return &Current{resolve: resolve}
}

func (c *Current) Session() *types.Session   { return c.session }
func (c *Current) Identity() *types.Identity { return c.identity }
func (c *Current) Account() *types.Account   { return c.account }

func (c *Current) SetSession(s *types.Session) {
	c.session = s
}

func (c *Current) SetIdentity(i *types.Identity) {
	c.identity = i
	c.invalidateMembership()
}

func (c *Current) SetAccount(a *types.Account) {
	c.account = a
	c.invalidateMembership()
}

func (c *Current) invalidateMembership() {
	c.membership = nil
	c.membershipResolved = false
}

// Membership resolves and memoizes the membership for the current
// (identity, account) pair. Nil when either side is unset or no
// membership exists.
func (c *Current) Membership(ctx context.Context) (*types.Membership, error) {
	if c.membershipResolved {
		return c.membership, nil
	}

	if c.identity == nil || c.account == nil {
		return nil, nil
	}

	m, err := c.resolve(ctx, c.account.ID, c.identity.ID)
	if err != nil {
		return nil, err
	}

	c.membership = m
	c.membershipResolved = true
	return c.membership, nil
}

// SetMembership primes the memoized membership, used by the authorization
// gate once it has already resolved the pair.
func (c *Current) SetMembership(m *types.Membership) {
	c.membership = m
	c.membershipResolved = true
}

func (c *Current) SuperAdmin() bool {
	return c.identity != nil && c.identity.Admin
}

// Owner reports whether the current membership carries the owner role, or
// the identity is a super-admin.
func (c *Current) Owner(ctx context.Context) (bool, error) {
	if c.SuperAdmin() {
		return true, nil
	}

	m, err := c.Membership(ctx)
	if err != nil {
		return false, err
	}
	return m != nil && m.Owner(), nil
}

type contextKey struct{}

// WithCurrent attaches the request's Current to the context.
func WithCurrent(ctx context.Context, c *Current) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext retrieves the request's Current, or nil if none was set.
func FromContext(ctx context.Context) *Current {
	if c, ok := ctx.Value(contextKey{}).(*Current); ok {
		return c
	}
	return nil
}
