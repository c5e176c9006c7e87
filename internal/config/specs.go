// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"time"
)

// EnvSpec is the basic environment configuration setup needed for the app to start
type EnvSpec struct {
	OtelGRPCEndpoint string `envconfig:"otel_grpc_endpoint"`
	OtelHTTPEndpoint string `envconfig:"otel_http_endpoint"`
	TracingEnabled   bool   `envconfig:"tracing_enabled" default:"true"`

	LogLevel string `envconfig:"log_level" default:"error"`
	Debug    bool   `envconfig:"debug" default:"false"`

	Port int `envconfig:"port" default:"8080"`

	// BaseURL is used when composing invite and password reset links.
	BaseURL string `envconfig:"base_url" default:"http://localhost:8080"`

	// SigningSecret signs session cookies and password reset tokens.
	SigningSecret string `envconfig:"signing_secret" required:"true"`

	InviteLifetime        time.Duration `envconfig:"invite_lifetime" default:"168h"`
	PasswordResetLifetime time.Duration `envconfig:"password_reset_lifetime" default:"15m"`
	AccountSetupLifetime  time.Duration `envconfig:"account_setup_lifetime" default:"168h"`

	DSN string `envconfig:"DSN" required:"true"`

	DBMaxConns        int32         `envconfig:"db_max_conns" default:"25"`
	DBMinConns        int32         `envconfig:"db_min_conns" default:"2"`
	DBMaxConnLifetime time.Duration `envconfig:"db_max_conn_lifetime" default:"1h"`
	DBMaxConnIdleTime time.Duration `envconfig:"db_max_conn_idle_time" default:"30m"`
}
