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

package sources

import (
	"sync"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
)

const stageResolve = "resolve_source"

// ConnectorSpec is what a configured (type, version) pair resolves to: which
// connector class handles it, which function-capability module name the
// planner should look up for it, and the class-specific constants (ODBC
// connection-string template, CSV base directory, endpoint mapping name,
// …) that Source.Initialize needs.
type ConnectorSpec struct {
	Class          Class
	FunctionModule string
	Constants      map[string]string
}

type versionedSpec struct {
	version *int
	spec    ConnectorSpec
}

// TypeRegistry resolves a data source's declared (type, version) — e.g.
// ("PostgreSQL", 15) — to a ConnectorSpec, with a wildcard (nil) version
// acting as a fallback when no exact version match exists, per spec §4.2.
type TypeRegistry struct {
	mu     sync.RWMutex
	byType map[string][]versionedSpec
}

// NewTypeRegistry returns an empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byType: map[string][]versionedSpec{}}
}

// Add registers spec for dsType at version (nil for the wildcard fallback).
func (r *TypeRegistry) Add(dsType string, version *int, spec ConnectorSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[dsType] = append(r.byType[dsType], versionedSpec{version: version, spec: spec})
}

// Resolve looks up the ConnectorSpec for (dsType, version): an exact version
// match wins, otherwise the wildcard entry for dsType, otherwise NotFound.
func (r *TypeRegistry) Resolve(dsType string, version *int) (ConnectorSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, ok := r.byType[dsType]
	if !ok {
		return ConnectorSpec{}, engineerr.New(engineerr.KindNotFound, stageResolve,
			"no connector registered for data source type "+dsType)
	}
	var wildcard *ConnectorSpec
	for _, e := range entries {
		if e.version == nil {
			spec := e.spec
			wildcard = &spec
			continue
		}
		if version != nil && *e.version == *version {
			return e.spec, nil
		}
	}
	if wildcard != nil {
		return *wildcard, nil
	}
	return ConnectorSpec{}, engineerr.New(engineerr.KindNotFound, stageResolve,
		"no connector registered for data source type "+dsType+" at the requested version")
}
