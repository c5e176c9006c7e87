// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package current

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/insaight-hub/internal/types"
)

func TestMembershipIsMemoized(t *testing.T) {
	calls := 0
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		calls++
		return &types.Membership{ID: "m-1", AccountID: accountID, IdentityID: identityID, Role: types.RoleMember}, nil
	})
	c.SetIdentity(&types.Identity{ID: "i-1"})
	c.SetAccount(&types.Account{ID: "a-1"})

	m1, err := c.Membership(context.Background())
	require.NoError(t, err)
	m2, err := c.Membership(context.Background())
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.Equal(t, 1, calls)
}

func TestSetAccountInvalidatesMembership(t *testing.T) {
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		if accountID == "a-1" {
			return &types.Membership{ID: "m-1", AccountID: accountID, IdentityID: identityID, Role: types.RoleOwner}, nil
		}
		return nil, nil
	})
	c.SetIdentity(&types.Identity{ID: "i-1"})
	c.SetAccount(&types.Account{ID: "a-1"})

	m, err := c.Membership(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)

	c.SetAccount(&types.Account{ID: "a-2"})

	m, err = c.Membership(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSetIdentityInvalidatesMembership(t *testing.T) {
	calls := 0
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		calls++
		return nil, nil
	})
	c.SetIdentity(&types.Identity{ID: "i-1"})
	c.SetAccount(&types.Account{ID: "a-1"})

	_, err := c.Membership(context.Background())
	require.NoError(t, err)

	c.SetIdentity(&types.Identity{ID: "i-2"})
	_, err = c.Membership(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestMembershipNilWithoutScope(t *testing.T) {
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		t.Fatal("resolver called without both identity and account")
		return nil, nil
	})
	c.SetIdentity(&types.Identity{ID: "i-1"})

	m, err := c.Membership(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSetMembershipPrimesMemo(t *testing.T) {
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		t.Fatal("resolver called after membership was primed")
		return nil, nil
	})
	c.SetIdentity(&types.Identity{ID: "i-1"})
	c.SetAccount(&types.Account{ID: "a-1"})
	c.SetMembership(&types.Membership{ID: "m-1", Role: types.RoleOwner})

	m, err := c.Membership(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "m-1", m.ID)
}

func TestMembershipPropagatesResolverError(t *testing.T) {
	boom := errors.New("storage down")
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		return nil, boom
	})
	c.SetIdentity(&types.Identity{ID: "i-1"})
	c.SetAccount(&types.Account{ID: "a-1"})

	_, err := c.Membership(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestOwner(t *testing.T) {
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		return &types.Membership{Role: types.RoleMember}, nil
	})
	c.SetIdentity(&types.Identity{ID: "i-1"})
	c.SetAccount(&types.Account{ID: "a-1"})

	owner, err := c.Owner(context.Background())
	require.NoError(t, err)
	assert.False(t, owner)

	c.SetMembership(&types.Membership{Role: types.RoleOwner})
	owner, err = c.Owner(context.Background())
	require.NoError(t, err)
	assert.True(t, owner)
}

func TestSuperAdminCountsAsOwner(t *testing.T) {
	c := New(func(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
		return nil, nil
	})
	c.SetIdentity(&types.Identity{ID: "i-1", Admin: true})
	c.SetAccount(&types.Account{ID: "a-1"})

	owner, err := c.Owner(context.Background())
	require.NoError(t, err)
	assert.True(t, owner)
}

func TestContextRoundTrip(t *testing.T) {
	c := New(nil)
	ctx := WithCurrent(context.Background(), c)
	assert.Same(t, c, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
