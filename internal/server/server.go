// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the engine's five inbound operations (spec §6.1)
// as plain Go methods. Per spec §1's explicit non-goal, no HTTP/WebSocket
// transport is implemented here; this is the dependency graph a transport
// layer outside this repository would mount, mirroring the separation
// between building the sources registry and mounting a transport.
package server

import (
	"context"

	"github.com/googleapis/toolbox-federate/internal/lifecycle"
	"github.com/googleapis/toolbox-federate/internal/planner"
)

// RequestContext carries the minimal per-call context spec §6.1 requires:
// the authenticated username.
type RequestContext struct {
	Username string
}

// Engine is the dependency graph wired by cmd/root.go: config -> sources
// registry -> metadata -> planner -> engine -> lifecycle manager, with
// these five methods as the only entry points a caller (tests, or an
// external transport this repo does not ship) needs.
type Engine struct {
	manager *lifecycle.Manager
}

// New builds an Engine around an already-constructed lifecycle Manager.
func New(manager *lifecycle.Manager) *Engine {
	return &Engine{manager: manager}
}

// SubmitQuery assigns a request id and runs sql asynchronously.
func (e *Engine) SubmitQuery(ctx context.Context, sql string, rc RequestContext) (string, error) {
	return e.manager.SubmitQuery(ctx, sql, rc.Username)
}

// SubmitEndpoint resolves name to its underlying model query and runs it
// asynchronously, the same way SubmitQuery does.
func (e *Engine) SubmitEndpoint(ctx context.Context, name string, rc RequestContext) (string, error) {
	return e.manager.SubmitEndpoint(ctx, name, rc.Username)
}

// Poll returns a request's current metadata, never its rows.
func (e *Engine) Poll(ctx context.Context, id string, rc RequestContext) (lifecycle.Request, error) {
	return e.manager.Poll(id)
}

// GetResult returns a completed, unexpired request's spilled result bytes.
func (e *Engine) GetResult(ctx context.Context, id string, rc RequestContext) ([]byte, error) {
	return e.manager.GetResult(id)
}

// GetQueryPlan returns the resource-level plan steps for id's original
// query, without executing it.
func (e *Engine) GetQueryPlan(ctx context.Context, id string) (*planner.Plan, error) {
	return e.manager.GetQueryPlan(id)
}
