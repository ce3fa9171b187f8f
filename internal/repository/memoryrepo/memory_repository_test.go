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
	"reflect"
	"sort"
	"testing"

	"github.com/googleapis/toolbox-federate/internal/repository"
)

func sortData(datas []repository.Resource) []repository.Resource {
	sort.Slice(datas, func(i, j int) bool {
		return datas[i].Name < datas[j].Name
	})
	return datas
}

func TestRepository(t *testing.T) {
	dataSources, _, _, _ := New()

	mockSource := repository.Resource{Name: "MyDB", Type: "relational", Configuration: `{"type":"PostgreSQL"}`, IsActive: true}
	mockSource2 := repository.Resource{Name: "my-db2", Type: "relational", Configuration: `{"type":"PostgreSQL"}`, IsActive: true}

	if err := dataSources.Create(mockSource); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := dataSources.Create(mockSource2); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := dataSources.Create(mockSource); err == nil {
		t.Fatal("expected an error creating a duplicate name")
	} else if err.Error() != "name MyDB already exists" {
		t.Fatalf("unexpected error string: %s", err)
	}

	// Get is case-insensitive: the key is lowercased, the stored payload keeps its case.
	got, err := dataSources.Get("mydb")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !reflect.DeepEqual(got, mockSource) {
		t.Fatalf("unexpected data: got %+v, want %+v", got, mockSource)
	}

	if _, err := dataSources.Get("nonexisting"); err == nil {
		t.Fatal("expected an error for an unknown name")
	} else if err.Error() != "unable to retrieve data: nonexisting" {
		t.Fatalf("unexpected error string: %s", err)
	}

	all, err := dataSources.GetAll()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := []repository.Resource{mockSource, mockSource2}
	if !reflect.DeepEqual(want, sortData(all)) {
		t.Fatalf("unexpected data: got %+v, want %+v", all, want)
	}

	updated := mockSource2
	updated.IsActive = false
	if err := dataSources.Update(updated); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	all, err = dataSources.GetAll()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want = []repository.Resource{mockSource, updated}
	if !reflect.DeepEqual(want, sortData(all)) {
		t.Fatalf("unexpected data after update: got %+v, want %+v", all, want)
	}

	if err := dataSources.Delete("MY-DB2"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	all, err = dataSources.GetAll()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want = []repository.Resource{mockSource}
	if !reflect.DeepEqual(want, sortData(all)) {
		t.Fatalf("unexpected data after delete: got %+v, want %+v", all, want)
	}
}

func TestRepository_FourIndependentStores(t *testing.T) {
	dataSources, models, endpoints, resultSets := New()
	stores := []*MemoryRepository{dataSources, models, endpoints, resultSets}
	for i, s := range stores {
		if err := s.Create(repository.Resource{Name: "shared-name"}); err != nil {
			t.Fatalf("store %d: unexpected error: %s", i, err)
		}
	}
	// Writing the same name into every store must not collide across stores.
	for i, s := range stores {
		if _, err := s.Get("shared-name"); err != nil {
			t.Fatalf("store %d: unexpected error: %s", i, err)
		}
	}
}
