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

const identityColumns = "id, email, name, password_hash, admin, api_token, created_at"

func (s *Storage) CreateIdentity(ctx context.Context, i *types.Identity) (*types.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateIdentity")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	var created types.Identity
	err = s.db.Statement(ctx).
		Insert("identities").
		Columns("id", "email", "name", "password_hash", "admin", "api_token").
		Values(id, i.Email, i.Name, i.PasswordHash, i.Admin, i.APIToken).
		Suffix("RETURNING " + identityColumns).
		QueryRowContext(ctx).
		Scan(&created.ID, &created.Email, &created.Name, &created.PasswordHash, &created.Admin, &created.APIToken, &created.CreatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to insert identity: %w", err)
	}

	return &created, nil
}

func (s *Storage) GetIdentityByID(ctx context.Context, id string) (*types.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetIdentityByID")
	defer span.End()

	return s.getIdentity(ctx, sq.Eq{"id": id})
}

func (s *Storage) GetIdentityByEmail(ctx context.Context, email string) (*types.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetIdentityByEmail")
	defer span.End()

	return s.getIdentity(ctx, sq.Eq{"email": email})
}

// GetIdentityByAPIToken is a single indexed equality lookup; the token
// itself is the secret, no derivation is applied.
func (s *Storage) GetIdentityByAPIToken(ctx context.Context, token string) (*types.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetIdentityByAPIToken")
	defer span.End()

	return s.getIdentity(ctx, sq.Eq{"api_token": token})
}

func (s *Storage) getIdentity(ctx context.Context, pred sq.Eq) (*types.Identity, error) {
	var i types.Identity
	err := s.db.Statement(ctx).
		Select("id", "email", "name", "password_hash", "admin", "api_token", "created_at").
		From("identities").
		Where(pred).
		QueryRowContext(ctx).
		Scan(&i.ID, &i.Email, &i.Name, &i.PasswordHash, &i.Admin, &i.APIToken, &i.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return &i, nil
}

// CountIdentities reports the total number of identities. Zero gates the
// one-time onboarding bootstrap.
func (s *Storage) CountIdentities(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CountIdentities")
	defer span.End()

	var count int64
	err := s.db.Statement(ctx).
		Select("COUNT(*)").
		From("identities").
		QueryRowContext(ctx).
		Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}

	return count, nil
}

func (s *Storage) UpdateIdentityPassword(ctx context.Context, id, passwordHash string) error {
	ctx, span := s.tracer.Start(ctx, "storage.UpdateIdentityPassword")
	defer span.End()

	return s.updateIdentity(ctx, id, map[string]interface{}{"password_hash": passwordHash})
}

func (s *Storage) UpdateIdentityAPIToken(ctx context.Context, id, token string) error {
	ctx, span := s.tracer.Start(ctx, "storage.UpdateIdentityAPIToken")
	defer span.End()

	return s.updateIdentity(ctx, id, map[string]interface{}{"api_token": token})
}

func (s *Storage) UpdateIdentityName(ctx context.Context, id, name string) error {
	ctx, span := s.tracer.Start(ctx, "storage.UpdateIdentityName")
	defer span.End()

	return s.updateIdentity(ctx, id, map[string]interface{}{"name": name})
}

func (s *Storage) updateIdentity(ctx context.Context, id string, set map[string]interface{}) error {
	res, err := s.db.Statement(ctx).
		Update("identities").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update identity: %w", mapConstraintError(err))
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
