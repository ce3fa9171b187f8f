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

package memoryrepo

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/googleapis/toolbox-federate/internal/repository"
)

// MemoryRepository is an in-memory, mutex-guarded Repository. Every key is
// lowercased before lookup or storage.
type MemoryRepository struct {
	data map[string]repository.Resource
	mu   sync.RWMutex
}

// New returns four independent MemoryRepository instances, one per keyed
// store spec §6.3 names: data sources, models, endpoints, result sets.
func New() (dataSources, models, endpoints, resultSets *MemoryRepository) {
	dataSources = &MemoryRepository{data: make(map[string]repository.Resource)}
	models = &MemoryRepository{data: make(map[string]repository.Resource)}
	endpoints = &MemoryRepository{data: make(map[string]repository.Resource)}
	resultSets = &MemoryRepository{data: make(map[string]repository.Resource)}
	return
}

func key(name string) string {
	return strings.ToLower(name)
}

// Create adds a new resource. It errors if the (lowercased) name already exists.
func (r *MemoryRepository) Create(resource repository.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(resource.Name)
	if _, exists := r.data[k]; exists {
		return fmt.Errorf("name %s already exists", resource.Name)
	}
	r.data[k] = resource
	return nil
}

// Update creates or overwrites a resource.
func (r *MemoryRepository) Update(resource repository.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[key(resource.Name)] = resource
	return nil
}

// Delete removes a resource by name. Deleting an absent name is not an error.
func (r *MemoryRepository) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.data, key(name))
	return nil
}

// GetAll returns every stored resource, in no particular order.
func (r *MemoryRepository) GetAll() ([]repository.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Collect(maps.Values(r.data)), nil
}

// Get returns the resource stored under name.
func (r *MemoryRepository) Get(name string) (repository.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.data[key(name)]
	if !exists {
		return d, fmt.Errorf("unable to retrieve data: %s", name)
	}
	return d, nil
}
