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

func (s *Storage) CreateWaitlistEntry(ctx context.Context, e *types.WaitlistEntry) (*types.WaitlistEntry, error) {
	ctx, span := s.tracer.Start(ctx, "storage.CreateWaitlistEntry")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}

	var created types.WaitlistEntry
	err = s.db.Statement(ctx).
		Insert("waitlist_entries").
		Columns("id", "email", "name").
		Values(id, e.Email, e.Name).
		Suffix("RETURNING id, email, name, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.Email, &created.Name, &created.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert waitlist entry: %w", mapConstraintError(err))
	}

	return &created, nil
}

func (s *Storage) GetWaitlistEntryByID(ctx context.Context, id string) (*types.WaitlistEntry, error) {
	ctx, span := s.tracer.Start(ctx, "storage.GetWaitlistEntryByID")
	defer span.End()

	var e types.WaitlistEntry
	err := s.db.Statement(ctx).
		Select("id", "email", "name", "created_at").
		From("waitlist_entries").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx).
		Scan(&e.ID, &e.Email, &e.Name, &e.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}

	return &e, nil
}

func (s *Storage) ListWaitlistEntries(ctx context.Context) ([]*types.WaitlistEntry, error) {
	ctx, span := s.tracer.Start(ctx, "storage.ListWaitlistEntries")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("id", "email", "name", "created_at").
		From("waitlist_entries").
		OrderBy("created_at DESC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.WaitlistEntry
	for rows.Next() {
		var e types.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

func (s *Storage) DeleteWaitlistEntry(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteWaitlistEntry")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Delete("waitlist_entries").
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete waitlist entry: %w", err)
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
