// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/canonical/insaight-hub/internal/types"
)

// Member is a membership joined with its identity, for listings.
type Member struct {
	types.Membership
	Email string
	Name  string
}

func (s *Storage) AddMembership(ctx context.Context, accountID, identityID, role string) (*types.Membership, error) {
	ctx, span := s.tracer.Start(ctx, "storage.AddMembership")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	var m types.Membership
	err = s.db.Statement(ctx).
		Insert("memberships").
		Columns("id", "account_id", "identity_id", "role").
		Values(id, accountID, identityID, role).
		Suffix("RETURNING id, account_id, identity_id, role, created_at").
		QueryRowContext(ctx).
		Scan(&m.ID, &m.AccountID, &m.IdentityID, &m.Role, &m.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to add membership: %w", mapConstraintError(err))
	}

	return &m, nil
}

// GetMembership resolves the (identity, account) pair. At most one row
// exists per pair.
func (s *Storage) GetMembership(ctx context.Context, accountID, identityID string) (*types.Membership, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetMembership")
	defer span.End()

	return s.getMembership(ctx, sq.Eq{"account_id": accountID, "identity_id": identityID})
}

func (s *Storage) GetMembershipByID(ctx context.Context, accountID, id string) (*types.Membership, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetMembershipByID")
	defer span.End()

	return s.getMembership(ctx, sq.Eq{"account_id": accountID, "id": id})
}

func (s *Storage) getMembership(ctx context.Context, pred sq.Eq) (*types.Membership, error) {
	var m types.Membership
	err := s.db.Statement(ctx).
		Select("id", "account_id", "identity_id", "role", "created_at").
		From("memberships").
		Where(pred).
		QueryRowContext(ctx).
		Scan(&m.ID, &m.AccountID, &m.IdentityID, &m.Role, &m.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &m, nil
}

func (s *Storage) ListMembersByAccountID(ctx context.Context, accountID string) ([]*Member, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListMembersByAccountID")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("m.id", "m.account_id", "m.identity_id", "m.role", "m.created_at", "i.email", "i.name").
		From("memberships m").
		Join("identities i ON i.id = m.identity_id").
		Where(sq.Eq{"m.account_id": accountID}).
		OrderBy("m.created_at ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.AccountID, &m.IdentityID, &m.Role, &m.CreatedAt, &m.Email, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return members, nil
}

func (s *Storage) UpdateMembershipRole(ctx context.Context, accountID, id, role string) error {
	ctx, span := s.tracer.Start(ctx, "storage.UpdateMembershipRole")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Update("memberships").
		Set("role", role).
		Where(sq.Eq{"account_id": accountID, "id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Storage) DeleteMembership(ctx context.Context, accountID, id string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteMembership")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Delete("memberships").
		Where(sq.Eq{"account_id": accountID, "id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// CountOwners backs the last-owner deletion guard.
func (s *Storage) CountOwners(ctx context.Context, accountID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CountOwners")
	defer span.End()

	var count int64
	err := s.db.Statement(ctx).
		Select("COUNT(*)").
		From("memberships").
		Where(sq.Eq{"account_id": accountID, "role": types.RoleOwner}).
		QueryRowContext(ctx).
		Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}

	return count, nil
}
