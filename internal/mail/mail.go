// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package mail defines the outbound notification surface. The default
// implementation only logs; a real delivery backend satisfies the same
// interface.
package mail

import (
	"context"

	"github.com/canonical/insaight-hub/internal/logging"
)

type MailerInterface interface {
	SendPasswordReset(ctx context.Context, email, link string) error
	SendAccountSetup(ctx context.Context, email, link string) error
	SendInvite(ctx context.Context, email, accountName, link string) error
	SendWaitlistWelcome(ctx context.Context, email string) error
}

// LogMailer writes would-be deliveries to the application log. Used in
// development and as the default until an SMTP backend is configured.
type LogMailer struct {
	logger logging.LoggerInterface
}

var _ MailerInterface = (*LogMailer)(nil)

func NewLogMailer(logger logging.LoggerInterface) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	m.logger.Infof("mail: password reset for %s: %s", email, link)
	return nil
}

func (m *LogMailer) SendAccountSetup(ctx context.Context, email, link string) error {
	m.logger.Infof("mail: account setup for %s: %s", email, link)
	return nil
}

func (m *LogMailer) SendInvite(ctx context.Context, email, accountName, link string) error {
	m.logger.Infof("mail: invite to %q for %s: %s", accountName, email, link)
	return nil
}

func (m *LogMailer) SendWaitlistWelcome(ctx context.Context, email string) error {
	m.logger.Infof("mail: waitlist welcome for %s", email)
	return nil
}
