// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieCodecRoundTrip(t *testing.T) {
	codec := NewCookieCodec("test-secret")

	value, err := codec.Encode("session-123")
	require.NoError(t, err)

	sid, err := codec.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "session-123", sid)
}

func TestCookieCodecRejectsTamperedValue(t *testing.T) {
	codec := NewCookieCodec("test-secret")

	value, err := codec.Encode("session-123")
	require.NoError(t, err)

	_, err = codec.Decode(value + "x")
	assert.Error(t, err)

	_, err = codec.Decode("not-a-jwt")
	assert.Error(t, err)
}

func TestCookieCodecRejectsForeignSecret(t *testing.T) {
	value, err := NewCookieCodec("secret-a").Encode("session-123")
	require.NoError(t, err)

	_, err = NewCookieCodec("secret-b").Decode(value)
	assert.Error(t, err)
}

func TestSetSessionCookie(t *testing.T) {
	codec := NewCookieCodec("test-secret")

	rec := httptest.NewRecorder()
	require.NoError(t, codec.SetSessionCookie(rec, "session-123"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]

	assert.Equal(t, SessionCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)

	sid, err := codec.Decode(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "session-123", sid)
}

func TestClearSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCookieCodec("test-secret").ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
