// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package mcp exposes the insight tools over the Model Context Protocol:
// one tenant-scoped JSON-RPC endpoint behind bearer authentication and
// the shared authorization gate.
package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/canonical/insaight-hub/internal/logging"
	"github.com/canonical/insaight-hub/internal/monitoring"
	"github.com/canonical/insaight-hub/internal/tracing"
	"github.com/canonical/insaight-hub/pkg/insights"
)

const protocolVersion = "2025-06-18"

type Server struct {
	insights insights.ServiceInterface
	version  string

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewServer(
	insightService insights.ServiceInterface,
	version string,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Server {
	return &Server{
		insights: insightService,
		version:  version,
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// RegisterEndpoints mounts the MCP endpoint onto a tenant-scoped router
// group.
func (s *Server) RegisterEndpoints(mux chi.Router) {
	mux.Post("/mcp", s.handle)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "mcp.Server.handle")
	defer span.End()

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, newError(nil, codeParseError, "parse error"))
		return
	}

	if req.Jsonrpc != jsonrpcVersion || req.Method == "" {
		s.respond(w, newError(req.ID, codeInvalidRequest, "invalid request"))
		return
	}

	switch req.Method {
	case "initialize":
		s.respond(w, newResult(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "insaight-hub",
				"version": s.version,
			},
		}))

	case "notifications/initialized":
		// Notification, no response body.
		w.WriteHeader(http.StatusAccepted)

	case "tools/list":
		s.respond(w, newResult(req.ID, map[string]interface{}{
			"tools": toolDefinitions(),
		}))

	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			s.respond(w, newError(req.ID, codeInvalidParams, "invalid params"))
			return
		}

		result, err := s.callTool(ctx, params.Name, params.Arguments)
		if err != nil {
			s.respond(w, newError(req.ID, codeMethodNotFound, err.Error()))
			return
		}
		s.respond(w, newResult(req.ID, result))

	default:
		s.respond(w, newError(req.ID, codeMethodNotFound, "method not found"))
	}
}

func (s *Server) respond(w http.ResponseWriter, resp *rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Errorf("failed to encode jsonrpc response: %v", err)
	}
}
