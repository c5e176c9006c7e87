// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/canonical/insaight-hub/internal/types"
)

func (s *Storage) CreateAccount(ctx context.Context, a *types.Account) (*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateAccount")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	externalID := a.ExternalID
	if externalID == "" {
		externalID = uuid.NewString()
	}

	var created types.Account
	err = s.db.Statement(ctx).
		Insert("accounts").
		Columns("id", "external_id", "name").
		Values(id, externalID, a.Name).
		Suffix("RETURNING id, external_id, name, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.ExternalID, &created.Name, &created.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", mapConstraintError(err))
	}

	return &created, nil
}

func (s *Storage) GetAccountByID(ctx context.Context, id string) (*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetAccountByID")
	defer span.End()

	return s.getAccount(ctx, sq.Eq{"id": id})
}

// GetAccountByExternalID resolves the URL tenant token. Single indexed
// lookup, used by the tenant resolver on every scoped request.
func (s *Storage) GetAccountByExternalID(ctx context.Context, externalID string) (*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetAccountByExternalID")
	defer span.End()

	return s.getAccount(ctx, sq.Eq{"external_id": externalID})
}

func (s *Storage) getAccount(ctx context.Context, pred sq.Eq) (*types.Account, error) {
	var a types.Account
	err := s.db.Statement(ctx).
		Select("id", "external_id", "name", "created_at").
		From("accounts").
		Where(pred).
		QueryRowContext(ctx).
		Scan(&a.ID, &a.ExternalID, &a.Name, &a.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &a, nil
}

// ListAccountsByIdentityID returns all accounts the identity holds a
// membership in, oldest first.
func (s *Storage) ListAccountsByIdentityID(ctx context.Context, identityID string) ([]*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListAccountsByIdentityID")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("a.id", "a.external_id", "a.name", "a.created_at").
		From("accounts a").
		Join("memberships m ON a.id = m.account_id").
		Where(sq.Eq{"m.identity_id": identityID}).
		OrderBy("m.created_at ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*types.Account
	for rows.Next() {
		var a types.Account
		if err := rows.Scan(&a.ID, &a.ExternalID, &a.Name, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return accounts, nil
}

// DeleteAccount cascades to memberships, invites, insights and engagements
// via foreign keys.
func (s *Storage) DeleteAccount(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteAccount")
	defer span.End()

	_, err := s.db.Statement(ctx).
		Delete("accounts").
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
