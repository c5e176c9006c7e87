// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"time"
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

const (
	AudienceDeveloper   = "developer"
	AudienceStakeholder = "stakeholder"
	AudienceEndUser     = "end_user"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Identity is the global login principal, independent of any account.
type Identity struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Admin        bool      `db:"admin"`
	APIToken     *string   `db:"api_token"`
	CreatedAt    time.Time `db:"created_at"`
}

// Account is a tenant. ExternalID is the opaque token embedded in URL paths.
type Account struct {
	ID         string    `db:"id"`
	ExternalID string    `db:"external_id"`
	Name       string    `db:"name"`
	CreatedAt  time.Time `db:"created_at"`
}

// Membership joins one Identity to one Account with a role.
type Membership struct {
	ID         string    `db:"id"`
	AccountID  string    `db:"account_id"`
	IdentityID string    `db:"identity_id"`
	Role       string    `db:"role"`
	CreatedAt  time.Time `db:"created_at"`
}

func (m *Membership) Owner() bool {
	return m.Role == RoleOwner
}

// Session is one authenticated browser session, bound to an Identity.
// Sessions are tenant-independent; the account is resolved per request
// from the URL.
type Session struct {
	ID         string    `db:"id"`
	IdentityID string    `db:"identity_id"`
	UserAgent  string    `db:"user_agent"`
	IPAddress  string    `db:"ip_address"`
	CreatedAt  time.Time `db:"created_at"`
}

// Invite is a single-use, expiring token scoped to one Account. Both
// CreatedByID and UsedByID point at memberships of that account.
type Invite struct {
	ID          string     `db:"id"`
	AccountID   string     `db:"account_id"`
	Token       string     `db:"token"`
	Email       string     `db:"email"`
	CreatedByID string     `db:"created_by_id"`
	UsedByID    *string    `db:"used_by_id"`
	UsedAt      *time.Time `db:"used_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Available reports whether the invite can still be redeemed.
func (i *Invite) Available(now time.Time) bool {
	return i.UsedAt == nil && i.ExpiresAt.After(now)
}

// Insight is an AI generated document bundle owned by an account and
// authored by a membership.
type Insight struct {
	ID           string     `db:"id"`
	AccountID    string     `db:"account_id"`
	MembershipID string     `db:"membership_id"`
	Title        string     `db:"title"`
	Slug         string     `db:"slug"`
	Description  string     `db:"description"`
	Audience     string     `db:"audience"`
	Status       string     `db:"status"`
	EntryFile    string     `db:"entry_file"`
	Tags         []string   `db:"tags"`
	ShareToken   *string    `db:"share_token"`
	ShareEnabled bool       `db:"share_enabled"`
	PublishedAt  *time.Time `db:"published_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (i *Insight) Published() bool {
	return i.Status == StatusPublished
}

// Shareable reports whether the insight can be served on its public link.
func (i *Insight) Shareable() bool {
	return i.Published() && i.ShareEnabled && i.ShareToken != nil && *i.ShareToken != ""
}

// InsightFile is one file of an insight bundle.
type InsightFile struct {
	ID          string    `db:"id"`
	InsightID   string    `db:"insight_id"`
	Filename    string    `db:"filename"`
	Content     string    `db:"content"`
	ContentType string    `db:"content_type"`
	CreatedAt   time.Time `db:"created_at"`
}

// EngagementKind discriminates the engagement sum type.
type EngagementKind string

const (
	EngagementComment EngagementKind = "comment"
)

// Engagement is the shared envelope for all engagement variants on an
// insight. The Kind field selects which variant payload is populated.
type Engagement struct {
	ID           string         `db:"id"`
	AccountID    string         `db:"account_id"`
	InsightID    string         `db:"insight_id"`
	MembershipID string         `db:"membership_id"`
	Kind         EngagementKind `db:"kind"`
	CreatedAt    time.Time      `db:"created_at"`

	Comment *Comment
}

// Comment is the comment variant of an engagement. ParentID threads
// replies onto another comment.
type Comment struct {
	ID           string  `db:"id"`
	EngagementID string  `db:"engagement_id"`
	Body         string  `db:"body"`
	ParentID     *string `db:"parent_id"`
}

// WaitlistEntry is a pending signup request, global and not account scoped.
type WaitlistEntry struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}
