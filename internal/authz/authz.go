// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package authz is the single authorization gate shared by the web,
// REST API and MCP entry points. Each transport configures a Policy but
// consumes the same resolution logic, so membership rules cannot drift
// between entry points.
package authz

import (
	"context"
	"errors"

	"github.com/canonical/insaight-hub/internal/current"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
)

var (
	// ErrTenantNotFound covers both a malformed tenant token and a token
	// with no matching account; callers must not distinguish the two.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrNotAMember denies an authenticated identity with no membership in
	// the resolved account.
	ErrNotAMember = errors.New("no membership in this account")

	// ErrAdminWithoutMembership denies a content-authoring action by a
	// super-admin who holds no membership in the target account. Surfaced
	// distinctly so the caller knows to join the organization first.
	ErrAdminWithoutMembership = errors.New("super-admin has no membership in this account")
)

// Policy tunes gate behavior per entry point.
type Policy struct {
	// AdminBypass grants super-admins read and administrative access to
	// accounts they hold no membership in. All current entry points enable
	// it; authoring still requires a membership either way.
	AdminBypass bool
}

// Grant is the outcome of a successful resolution.
type Grant struct {
	Identity   *types.Identity
	Account    *types.Account
	Membership *types.Membership
	SuperAdmin bool
}

// Owner reports whether the grant carries owner-level access to the
// account: an owner membership, or the super-admin override.
func (g *Grant) Owner() bool {
	if g.SuperAdmin {
		return true
	}
	return g.Membership != nil && g.Membership.Owner()
}

// AuthorMembership returns the membership content-authoring actions are
// attributed to. A super-admin without a membership gets
// ErrAdminWithoutMembership rather than a generic denial.
func (g *Grant) AuthorMembership() (*types.Membership, error) {
	if g.Membership != nil {
		return g.Membership, nil
	}
	if g.SuperAdmin {
		return nil, ErrAdminWithoutMembership
	}
	return nil, ErrNotAMember
}

type Gate struct {
	resolve current.MembershipResolver
	policy  Policy

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewGate(resolve current.MembershipResolver, policy Policy, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Gate {
	return &Gate{
		resolve: resolve,
		policy:  policy,
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}

// Resolve decides whether identity may act within account and returns the
// effective grant. account may be nil (unresolved tenant); identity must
// be authenticated by the time the gate runs.
func (g *Gate) Resolve(ctx context.Context, identity *types.Identity, account *types.Account) (*Grant, error) {
	ctx, span := g.tracer.Start(ctx, "authz.Gate.Resolve")
	defer span.End()

	if account == nil {
		return nil, ErrTenantNotFound
	}

	membership, err := g.resolve(ctx, account.ID, identity.ID)
	if err != nil {
		return nil, err
	}

	if membership == nil {
		if !identity.Admin || !g.policy.AdminBypass {
			g.logger.Security().AuthzFailure(identity.ID, "account_access:"+account.ID)
			return nil, ErrNotAMember
		}
		// Super-admin without membership: read/admin access only.
		return &Grant{Identity: identity, Account: account, SuperAdmin: true}, nil
	}

	return &Grant{
		Identity:   identity,
		Account:    account,
		Membership: membership,
		SuperAdmin: identity.Admin,
	}, nil
}
