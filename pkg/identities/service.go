// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package identities implements the global principal lifecycle: instance
// onboarding, login and sessions, password recovery, first-time setup and
// API token management. Nothing here is account scoped.
package identities

import (
	"context"
	"errors"
	"fmt"
	"strings"

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
	// ErrAlreadyBootstrapped rejects onboarding once any identity exists.
	ErrAlreadyBootstrapped = errors.New("instance already has an identity")

	// ErrInvalidLogin covers both unknown email and wrong password.
	ErrInvalidLogin = errors.New("invalid email or password")

	// ErrInvalidToken covers expired, tampered and already-spent reset or
	// setup tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// OnboardRequest is the first-run bootstrap payload. The created identity
// becomes the instance super-admin and the owner of the first account.
type OnboardRequest struct {
	Email       string
	Name        string
	Password    string
	AccountName string
}

type Service struct {
	storage StorageInterface
	db      db.DBClientInterface
	tokens  TokenServiceInterface
	mailer  mail.MailerInterface
	baseURL string

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
	baseURL string,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	return &Service{
		storage: storage,
		db:      dbClient,
		tokens:  tokens,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracer,
		monitor: monitor,
		logger:  logger,
	}
}

// BootstrapRequired reports whether the instance has no identities yet and
// must go through onboarding before anything else.
func (s *Service) BootstrapRequired(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "identities.Service.BootstrapRequired")
	defer span.End()

	count, err := s.storage.CountIdentities(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Onboard bootstraps an empty instance: one super-admin identity, one
// account and one owner membership, created atomically. A concurrent
// bootstrap loses on the unique email or is rejected by the count guard.
func (s *Service) Onboard(ctx context.Context, req OnboardRequest) (*types.Identity, *types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "identities.Service.Onboard")
	defer span.End()

	var identity *types.Identity
	var account *types.Account

	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		count, err := s.storage.CountIdentities(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyBootstrapped
		}

		hash, err := authentication.HashPassword(req.Password)
		if err != nil {
			return err
		}

		token, err := authentication.NewAPIToken()
		if err != nil {
			return err
		}

		identity, err = s.storage.CreateIdentity(ctx, &types.Identity{
			Email:        normalizeEmail(req.Email),
			Name:         req.Name,
			PasswordHash: hash,
			Admin:        true,
			APIToken:     &token,
		})
		if err != nil {
			return err
		}

		account, err = s.storage.CreateAccount(ctx, &types.Account{Name: req.AccountName})
		if err != nil {
			return err
		}

		_, err = s.storage.AddMembership(ctx, account.ID, identity.ID, types.RoleOwner)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Infof("instance bootstrapped, account %s, identity %s", account.ID, identity.ID)
	return identity, account, nil
}

func (s *Service) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*types.Session, *types.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "identities.Service.Login")
	defer span.End()

	identity, err := s.storage.GetIdentityByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Security().AuthnFailure(email, "unknown_email")
			return nil, nil, ErrInvalidLogin
		}
		return nil, nil, err
	}

	if !authentication.ComparePassword(identity.PasswordHash, password) {
		s.logger.Security().AuthnFailure(identity.ID, "wrong_password")
		return nil, nil, ErrInvalidLogin
	}

	session, err := s.storage.CreateSession(ctx, &types.Session{
		IdentityID: identity.ID,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Security().LoginSuccess(identity.ID)
	return session, identity, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "identities.Service.Logout")
	defer span.End()

	if err := s.storage.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Service) ListAccounts(ctx context.Context, identityID string) ([]*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "identities.Service.ListAccounts")
	defer span.End()

	return s.storage.ListAccountsByIdentityID(ctx, identityID)
}

// RequestPasswordReset mails a reset link when the email is known. The
// outcome is identical either way so the endpoint cannot be used to probe
// which emails exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := s.tracer.Start(ctx, "identities.Service.RequestPasswordReset")
	defer span.End()

	identity, err := s.storage.GetIdentityByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := s.tokens.PasswordResetToken(identity.ID, identity.PasswordHash)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/passwords/edit?token=%s", s.baseURL, token)
	return s.mailer.SendPasswordReset(ctx, identity.Email, link)
}

// ResetPassword consumes a reset token. The token embeds a fingerprint of
// the password hash it was minted against, so it is single use: the first
// successful reset changes the hash and invalidates every outstanding
// token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	ctx, span := s.tracer.Start(ctx, "identities.Service.ResetPassword")
	defer span.End()

	identityID, fingerprint, err := s.tokens.VerifyPasswordReset(token)
	if err != nil {
		return ErrInvalidToken
	}

	identity, err := s.storage.GetIdentityByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	if !authentication.MatchesDigest(fingerprint, identity.PasswordHash) {
		return ErrInvalidToken
	}

	hash, err := authentication.HashPassword(password)
	if err != nil {
		return err
	}

	return s.storage.UpdateIdentityPassword(ctx, identity.ID, hash)
}

// SetupIdentity completes a first-time setup link mailed on waitlist
// approval: the identity picks its name and password. Spent the same way
// as a reset token.
func (s *Service) SetupIdentity(ctx context.Context, token, name, password string) (*types.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "identities.Service.SetupIdentity")
	defer span.End()

	identityID, fingerprint, err := s.tokens.VerifyAccountSetup(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	identity, err := s.storage.GetIdentityByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if !authentication.MatchesDigest(fingerprint, identity.PasswordHash) {
		return nil, ErrInvalidToken
	}

	hash, err := authentication.HashPassword(password)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		if err := s.storage.UpdateIdentityPassword(ctx, identity.ID, hash); err != nil {
			return err
		}
		if name != "" {
			return s.storage.UpdateIdentityName(ctx, identity.ID, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.storage.GetIdentityByID(ctx, identity.ID)
}

func (s *Service) RegenerateAPIToken(ctx context.Context, identityID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "identities.Service.RegenerateAPIToken")
	defer span.End()

	token, err := authentication.NewAPIToken()
	if err != nil {
		return "", err
	}

	if err := s.storage.UpdateIdentityAPIToken(ctx, identityID, token); err != nil {
		return "", err
	}

	s.logger.Security().TokenRotated(identityID)
	return token, nil
}

func (s *Service) UpdateName(ctx context.Context, identityID, name string) error {
	ctx, span := s.tracer.Start(ctx, "identities.Service.UpdateName")
	defer span.End()

	return s.storage.UpdateIdentityName(ctx, identityID, name)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
