// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	purposePasswordReset = "password_reset"
	purposeAccountSetup  = "account_setup"
)

// TokenService mints and verifies the short-lived links mailed to
// identities: password resets and first-time account setup. Tokens are
// stateless JWTs carrying the identity id and a fingerprint of the current
// password hash, so changing the password invalidates every outstanding
// token without server-side bookkeeping.
type TokenService struct {
	secret        []byte
	resetLifetime time.Duration
	setupLifetime time.Duration
}

func NewTokenService(secret string, resetLifetime, setupLifetime time.Duration) *TokenService {
	return &TokenService{
		secret:        []byte(secret),
		resetLifetime: resetLifetime,
		setupLifetime: setupLifetime,
	}
}

func (s *TokenService) PasswordResetToken(identityID, passwordDigest string) (string, error) {
	return s.mint(purposePasswordReset, identityID, passwordDigest, s.resetLifetime)
}

func (s *TokenService) AccountSetupToken(identityID, passwordDigest string) (string, error) {
	return s.mint(purposeAccountSetup, identityID, passwordDigest, s.setupLifetime)
}

// VerifyPasswordReset returns the identity id the token was minted for.
// The caller must re-check the fingerprint against the identity's current
// password digest via MatchesDigest.
func (s *TokenService) VerifyPasswordReset(token string) (identityID, fingerprint string, err error) {
	return s.verify(token, purposePasswordReset)
}

func (s *TokenService) VerifyAccountSetup(token string) (identityID, fingerprint string, err error) {
	return s.verify(token, purposeAccountSetup)
}

// MatchesDigest reports whether a token fingerprint still matches the
// identity's password digest. A mismatch means the password changed after
// the token was minted and the token is spent.
func MatchesDigest(fingerprint, passwordDigest string) bool {
	return fingerprint == digestFingerprint(passwordDigest)
}

func (s *TokenService) mint(purpose, identityID, passwordDigest string, lifetime time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": identityID,
		"pur": purpose,
		"fpr": digestFingerprint(passwordDigest),
		"iat": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *TokenService) verify(value, purpose string) (string, string, error) {
	token, err := jwt.Parse(value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid claims")
	}

	if p, _ := claims["pur"].(string); p != purpose {
		return "", "", fmt.Errorf("token purpose mismatch")
	}

	sub, _ := claims["sub"].(string)
	fpr, _ := claims["fpr"].(string)
	if sub == "" || fpr == "" {
		return "", "", fmt.Errorf("incomplete token claims")
	}

	return sub, fpr, nil
}

func digestFingerprint(passwordDigest string) string {
	sum := sha256.Sum256([]byte(passwordDigest))
	return hex.EncodeToString(sum[:8])
}
