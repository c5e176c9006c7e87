// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package accounts manages account composition: members and their roles,
// single-use invites, and the public waitlist that feeds new accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canonical/insaight-hub/internal/db"
	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/mail"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/storage"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/internal/types"
	"github.com/canonical/insaight-hub/pkg/authentication"
)

var (
	// ErrLastOwnerRemoval rejects removing or demoting the only owner an
	// account has left.
	ErrLastOwnerRemoval = errors.New("cannot remove the last owner of an account")

	// ErrSelfRemoval rejects a member removing their own membership.
	ErrSelfRemoval = errors.New("cannot remove your own membership")

	// ErrInviteUnavailable covers unknown, expired and already-used invite
	// tokens.
	ErrInviteUnavailable = errors.New("invite is not available")

	// ErrInvalidRole rejects a role outside owner|member.
	ErrInvalidRole = errors.New("invalid role")
)

// RegisterRequest is the payload for registering a new identity through an
// invite link.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
}

type Service struct {
	storage        StorageInterface
	db             db.DBClientInterface
	tokens         TokenServiceInterface
	mailer         mail.MailerInterface
	inviteLifetime time.Duration
	baseURL        string

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

var _ ServiceInterface = (*Service)(nil)

func NewService(
	storage StorageInterface,
	dbClient db.DBClientInterface,
	tokens TokenServiceInterface,
	mailer mail.MailerInterface,
	inviteLifetime time.Duration,
	baseURL string,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	return &Service{
		storage:        storage,
		db:             dbClient,
		tokens:         tokens,
		mailer:         mailer,
		inviteLifetime: inviteLifetime,
		baseURL:        strings.TrimRight(baseURL, "/"),
		tracer:         tracer,
		monitor:        monitor,
		logger:         logger,
	}
}

func (s *Service) ListMembers(ctx context.Context, accountID string) ([]*storage.Member, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.ListMembers")
	defer span.End()

	return s.storage.ListMembersByAccountID(ctx, accountID)
}

// UpdateMemberRole changes a membership's role. Demoting the only owner
// would leave the account unmanageable and is rejected.
func (s *Service) UpdateMemberRole(ctx context.Context, accountID, membershipID, role string) error {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.UpdateMemberRole")
	defer span.End()

	if role != types.RoleOwner && role != types.RoleMember {
		return ErrInvalidRole
	}

	membership, err := s.storage.GetMembershipByID(ctx, accountID, membershipID)
	if err != nil {
		return err
	}

	if membership.Owner() && role == types.RoleMember {
		owners, err := s.storage.CountOwners(ctx, accountID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwnerRemoval
		}
	}

	return s.storage.UpdateMembershipRole(ctx, accountID, membershipID, role)
}

// RemoveMember deletes a membership. Self-removal and removing the last
// owner are rejected at this boundary regardless of the caller's role.
func (s *Service) RemoveMember(ctx context.Context, accountID, membershipID, actorIdentityID string) error {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.RemoveMember")
	defer span.End()

	membership, err := s.storage.GetMembershipByID(ctx, accountID, membershipID)
	if err != nil {
		return err
	}

	if membership.IdentityID == actorIdentityID {
		return ErrSelfRemoval
	}

	if membership.Owner() {
		owners, err := s.storage.CountOwners(ctx, accountID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwnerRemoval
		}
	}

	return s.storage.DeleteMembership(ctx, accountID, membershipID)
}

func (s *Service) CreateInvite(ctx context.Context, account *types.Account, createdBy *types.Membership, email string) (*types.Invite, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.CreateInvite")
	defer span.End()

	token, err := authentication.NewInviteToken()
	if err != nil {
		return nil, err
	}

	invite, err := s.storage.CreateInvite(ctx, &types.Invite{
		AccountID:   account.ID,
		Token:       token,
		Email:       normalizeEmail(email),
		CreatedByID: createdBy.ID,
		ExpiresAt:   time.Now().Add(s.inviteLifetime),
	})
	if err != nil {
		return nil, err
	}

	if invite.Email != "" {
		link := fmt.Sprintf("%s/register?token=%s", s.baseURL, invite.Token)
		if err := s.mailer.SendInvite(ctx, invite.Email, account.Name, link); err != nil {
			s.logger.Errorf("failed to send invite mail: %v", err)
		}
	}

	return invite, nil
}

func (s *Service) ListInvites(ctx context.Context, accountID string) ([]*types.Invite, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.ListInvites")
	defer span.End()

	return s.storage.ListInvitesByAccountID(ctx, accountID)
}

func (s *Service) RevokeInvite(ctx context.Context, accountID, inviteID string) error {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.RevokeInvite")
	defer span.End()

	return s.storage.DeleteInvite(ctx, accountID, inviteID)
}

// LookupInvite resolves a token to its invite and account for the
// registration page. Unavailable invites are indistinguishable from
// unknown ones.
func (s *Service) LookupInvite(ctx context.Context, token string) (*types.Invite, *types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.LookupInvite")
	defer span.End()

	invite, err := s.storage.GetInviteByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrInviteUnavailable
		}
		return nil, nil, err
	}

	if !invite.Available(time.Now()) {
		return nil, nil, ErrInviteUnavailable
	}

	account, err := s.storage.GetAccountByID(ctx, invite.AccountID)
	if err != nil {
		return nil, nil, err
	}

	return invite, account, nil
}

// AcceptInvite attaches an existing, signed-in identity to the invite's
// account and consumes the invite. The membership insert and the
// consumption commit together.
func (s *Service) AcceptInvite(ctx context.Context, token, identityID string) (*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.AcceptInvite")
	defer span.End()

	invite, account, err := s.LookupInvite(ctx, token)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		membership, err := s.storage.AddMembership(ctx, account.ID, identityID, types.RoleMember)
		if err != nil {
			if !errors.Is(err, storage.ErrDuplicateKey) {
				return err
			}
			// Already a member; the invite is still consumed and
			// attributed to the existing membership.
			membership, err = s.storage.GetMembership(ctx, account.ID, identityID)
			if err != nil {
				return err
			}
		}

		if err := s.storage.MarkInviteUsed(ctx, invite.ID, membership.ID, time.Now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrInviteUnavailable
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// RegisterWithInvite creates a brand new identity from an invite link and
// joins it to the account, all in one transaction. An invite pinned to an
// email overrides whatever email the form submitted.
func (s *Service) RegisterWithInvite(ctx context.Context, token string, req RegisterRequest) (*types.Identity, *types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.RegisterWithInvite")
	defer span.End()

	invite, account, err := s.LookupInvite(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	email := normalizeEmail(req.Email)
	if invite.Email != "" {
		email = invite.Email
	}

	hash, err := authentication.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	apiToken, err := authentication.NewAPIToken()
	if err != nil {
		return nil, nil, err
	}

	var identity *types.Identity
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		identity, err = s.storage.CreateIdentity(ctx, &types.Identity{
			Email:        email,
			Name:         req.Name,
			PasswordHash: hash,
			APIToken:     &apiToken,
		})
		if err != nil {
			return err
		}

		membership, err := s.storage.AddMembership(ctx, account.ID, identity.ID, types.RoleMember)
		if err != nil {
			return err
		}

		if err := s.storage.MarkInviteUsed(ctx, invite.ID, membership.ID, time.Now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrInviteUnavailable
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return identity, account, nil
}

func (s *Service) JoinWaitlist(ctx context.Context, email, name string) (*types.WaitlistEntry, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.JoinWaitlist")
	defer span.End()

	entry, err := s.storage.CreateWaitlistEntry(ctx, &types.WaitlistEntry{
		Email: normalizeEmail(email),
		Name:  name,
	})
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendWaitlistWelcome(ctx, entry.Email); err != nil {
		s.logger.Errorf("failed to send waitlist welcome mail: %v", err)
	}

	return entry, nil
}

func (s *Service) ListWaitlist(ctx context.Context) ([]*types.WaitlistEntry, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.ListWaitlist")
	defer span.End()

	return s.storage.ListWaitlistEntries(ctx)
}

// ApproveWaitlistEntry turns a pending signup into a working account: a
// new identity with a placeholder password, a new account, an owner
// membership and the removal of the entry commit atomically, then a setup
// link goes out by mail.
func (s *Service) ApproveWaitlistEntry(ctx context.Context, entryID, accountName string) error {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.ApproveWaitlistEntry")
	defer span.End()

	entry, err := s.storage.GetWaitlistEntryByID(ctx, entryID)
	if err != nil {
		return err
	}

	placeholder, err := authentication.RandomPassword()
	if err != nil {
		return err
	}
	hash, err := authentication.HashPassword(placeholder)
	if err != nil {
		return err
	}
	apiToken, err := authentication.NewAPIToken()
	if err != nil {
		return err
	}

	if accountName == "" {
		accountName = entry.Name
	}

	var identity *types.Identity
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		identity, err = s.storage.CreateIdentity(ctx, &types.Identity{
			Email:        entry.Email,
			Name:         entry.Name,
			PasswordHash: hash,
			APIToken:     &apiToken,
		})
		if err != nil {
			return err
		}

		account, err := s.storage.CreateAccount(ctx, &types.Account{Name: accountName})
		if err != nil {
			return err
		}

		if _, err := s.storage.AddMembership(ctx, account.ID, identity.ID, types.RoleOwner); err != nil {
			return err
		}

		return s.storage.DeleteWaitlistEntry(ctx, entry.ID)
	})
	if err != nil {
		return err
	}

	token, err := s.tokens.AccountSetupToken(identity.ID, identity.PasswordHash)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/setup?token=%s", s.baseURL, token)
	return s.mailer.SendAccountSetup(ctx, identity.Email, link)
}

func (s *Service) RejectWaitlistEntry(ctx context.Context, entryID string) error {
	ctx, span := s.tracer.Start(ctx, "accounts.Service.RejectWaitlistEntry")
	defer span.End()

	return s.storage.DeleteWaitlistEntry(ctx, entryID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
