// Copyright 2025 Google LLC
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

// Package metadata is the typed read API the planner consumes (spec §4.8):
// data-source lookup and function-module lookup, layered over the raw
// key/value repository stores.
package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/functions"
	"github.com/googleapis/toolbox-federate/internal/repository"
	"github.com/googleapis/toolbox-federate/internal/repository/memoryrepo"
	"github.com/googleapis/toolbox-federate/internal/sources"
)

const stageMetadata = "metadata"

// DataSourceSpec is the decoded payload of a data_sources entry.
type DataSourceSpec struct {
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	Version         *int              `json:"version,omitempty"`
	ConnectionProps map[string]string `json:"connection_props,omitempty"`
}

// ModelSpec is the decoded payload of a models entry: a named, reusable query.
type ModelSpec struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// EndpointSpec is the decoded payload of an endpoints entry.
type EndpointSpec struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// ResultSetRecord records where a completed request's spill file lives.
type ResultSetRecord struct {
	RequestID string `json:"request_id"`
	SpillPath string `json:"spill_path"`
}

// Store is the metadata façade: four keyed stores plus the connector type
// registry needed to resolve a data source's function-capability module.
type Store struct {
	dataSources *memoryrepo.MemoryRepository
	models      *memoryrepo.MemoryRepository
	endpoints   *memoryrepo.MemoryRepository
	resultSets  *memoryrepo.MemoryRepository
	types       *sources.TypeRegistry
}

// NewStore builds a Store backed by four fresh in-memory repositories.
func NewStore(types *sources.TypeRegistry) *Store {
	ds, m, e, rs := memoryrepo.New()
	return &Store{dataSources: ds, models: m, endpoints: e, resultSets: rs, types: types}
}

func notFound(name string, err error) error {
	return engineerr.Wrap(engineerr.KindNotFound, stageMetadata, fmt.Errorf("%s: %w", name, err))
}

// PutDataSource registers or overwrites a data source spec.
func (s *Store) PutDataSource(spec DataSourceSpec) error {
	body, err := json.Marshal(spec)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return s.dataSources.Update(repository.Resource{Name: spec.Name, Type: spec.Type, Configuration: string(body), IsActive: true})
}

// DataSource looks up a data source spec by name.
func (s *Store) DataSource(name string) (DataSourceSpec, error) {
	res, err := s.dataSources.Get(name)
	if err != nil {
		return DataSourceSpec{}, notFound(name, err)
	}
	var spec DataSourceSpec
	if err := json.Unmarshal([]byte(res.Configuration), &spec); err != nil {
		return DataSourceSpec{}, engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return spec, nil
}

// DataSourceNames returns every registered data source name.
func (s *Store) DataSourceNames() ([]string, error) {
	all, err := s.dataSources.GetAll()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	names := make([]string, 0, len(all))
	for _, r := range all {
		names = append(names, r.Name)
	}
	return names, nil
}

// ConnectorSpec resolves a data source's configured (type, version) to its
// connector class and function-capability module name, per spec §4.2.
func (s *Store) ConnectorSpec(dsName string) (sources.ConnectorSpec, error) {
	spec, err := s.DataSource(dsName)
	if err != nil {
		return sources.ConnectorSpec{}, err
	}
	return s.types.Resolve(spec.Type, spec.Version)
}

// FunctionModule resolves the function-capability module that governs
// pushdown for dsName, per spec §4.2's "function_module(data_source_name)".
func (s *Store) FunctionModule(dsName string) (functions.Capability, error) {
	cs, err := s.ConnectorSpec(dsName)
	if err != nil {
		return nil, err
	}
	cap, ok := functions.Lookup(cs.FunctionModule)
	if !ok {
		return nil, engineerr.New(engineerr.KindNotFound, stageMetadata,
			fmt.Sprintf("no function-capability module registered for %q", cs.FunctionModule))
	}
	return cap, nil
}

// PutModel registers or overwrites a named model query.
func (s *Store) PutModel(spec ModelSpec) error {
	body, err := json.Marshal(spec)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return s.models.Update(repository.Resource{Name: spec.Name, Configuration: string(body), IsActive: true})
}

// Model looks up a named model.
func (s *Store) Model(name string) (ModelSpec, error) {
	res, err := s.models.Get(name)
	if err != nil {
		return ModelSpec{}, notFound(name, err)
	}
	var spec ModelSpec
	if err := json.Unmarshal([]byte(res.Configuration), &spec); err != nil {
		return ModelSpec{}, engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return spec, nil
}

// PutEndpoint registers or overwrites a named endpoint.
func (s *Store) PutEndpoint(spec EndpointSpec) error {
	body, err := json.Marshal(spec)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return s.endpoints.Update(repository.Resource{Name: spec.Name, Configuration: string(body), IsActive: true})
}

// Endpoint looks up a named endpoint.
func (s *Store) Endpoint(name string) (EndpointSpec, error) {
	res, err := s.endpoints.Get(name)
	if err != nil {
		return EndpointSpec{}, notFound(name, err)
	}
	var spec EndpointSpec
	if err := json.Unmarshal([]byte(res.Configuration), &spec); err != nil {
		return EndpointSpec{}, engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return spec, nil
}

// PutResultSet records where a completed request's spill file lives.
func (s *Store) PutResultSet(rec ResultSetRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return s.resultSets.Update(repository.Resource{Name: rec.RequestID, Configuration: string(body), IsActive: true})
}

// ResultSet looks up a request's recorded spill path.
func (s *Store) ResultSet(requestID string) (ResultSetRecord, error) {
	res, err := s.resultSets.Get(requestID)
	if err != nil {
		return ResultSetRecord{}, notFound(requestID, err)
	}
	var rec ResultSetRecord
	if err := json.Unmarshal([]byte(res.Configuration), &rec); err != nil {
		return ResultSetRecord{}, engineerr.Wrap(engineerr.KindInternal, stageMetadata, err)
	}
	return rec, nil
}

// DeleteResultSet removes a request's recorded spill path, once reclaimed by expiry.
func (s *Store) DeleteResultSet(requestID string) error {
	return s.resultSets.Delete(requestID)
}
