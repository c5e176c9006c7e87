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

func (s *Storage) CreateSession(ctx context.Context, sess *types.Session) (*types.Session, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateSession")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	var created types.Session
	err = s.db.Statement(ctx).
		Insert("sessions").
		Columns("id", "identity_id", "user_agent", "ip_address").
		Values(id, sess.IdentityID, sess.UserAgent, sess.IPAddress).
		Suffix("RETURNING id, identity_id, user_agent, ip_address, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.IdentityID, &created.UserAgent, &created.IPAddress, &created.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", mapConstraintError(err))
	}

	return &created, nil
}

func (s *Storage) GetSessionByID(ctx context.Context, id string) (*types.Session, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetSessionByID")
	defer span.End()

	var sess types.Session
	err := s.db.Statement(ctx).
		Select("id", "identity_id", "user_agent", "ip_address", "created_at").
		From("sessions").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx).
		Scan(&sess.ID, &sess.IdentityID, &sess.UserAgent, &sess.IPAddress, &sess.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &sess, nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteSession")
	defer span.End()

	_, err := s.db.Statement(ctx).
		Delete("sessions").
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
