// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/canonical/insaight-hub/internal/types"
)

const inviteColumns = "id, account_id, token, email, created_by_id, used_by_id, used_at, expires_at, created_at"

func (s *Storage) CreateInvite(ctx context.Context, invite *types.Invite) (*types.Invite, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateInvite")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	var created types.Invite
	err = s.db.Statement(ctx).
		Insert("invites").
		Columns("id", "account_id", "token", "email", "created_by_id", "expires_at").
		Values(id, invite.AccountID, invite.Token, invite.Email, invite.CreatedByID, invite.ExpiresAt).
		Suffix("RETURNING " + inviteColumns).
		QueryRowContext(ctx).
		Scan(&created.ID, &created.AccountID, &created.Token, &created.Email, &created.CreatedByID,
			&created.UsedByID, &created.UsedAt, &created.ExpiresAt, &created.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert invite: %w", mapConstraintError(err))
	}

	return &created, nil
}

func (s *Storage) GetInviteByToken(ctx context.Context, token string) (*types.Invite, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetInviteByToken")
	defer span.End()

	var i types.Invite
	err := s.db.Statement(ctx).
		Select("id", "account_id", "token", "email", "created_by_id", "used_by_id", "used_at", "expires_at", "created_at").
		From("invites").
		Where(sq.Eq{"token": token}).
		QueryRowContext(ctx).
		Scan(&i.ID, &i.AccountID, &i.Token, &i.Email, &i.CreatedByID, &i.UsedByID, &i.UsedAt, &i.ExpiresAt, &i.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}

	return &i, nil
}

func (s *Storage) ListInvitesByAccountID(ctx context.Context, accountID string) ([]*types.Invite, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListInvitesByAccountID")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("id", "account_id", "token", "email", "created_by_id", "used_by_id", "used_at", "expires_at", "created_at").
		From("invites").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at DESC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*types.Invite
	for rows.Next() {
		var i types.Invite
		if err := rows.Scan(&i.ID, &i.AccountID, &i.Token, &i.Email, &i.CreatedByID, &i.UsedByID, &i.UsedAt, &i.ExpiresAt, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, &i)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return invites, nil
}

// MarkInviteUsed consumes an invite exactly once. The used_at IS NULL
// predicate makes concurrent redemptions race-safe: the loser sees no
// affected rows.
func (s *Storage) MarkInviteUsed(ctx context.Context, id, usedByID string, usedAt time.Time) error {
	ctx, span := s.tracer.Start(ctx, "storage.MarkInviteUsed")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Update("invites").
		Set("used_by_id", usedByID).
		Set("used_at", usedAt).
		Where(sq.Eq{"id": id}).
		Where("used_at IS NULL").
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to mark invite used: %w", err)
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

func (s *Storage) DeleteInvite(ctx context.Context, accountID, id string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteInvite")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Delete("invites").
		Where(sq.Eq{"account_id": accountID, "id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
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
