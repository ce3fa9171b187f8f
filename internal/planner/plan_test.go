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

package planner

import (
	"testing"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/metadata"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/sources"
)

// testStore wires a metadata.Store with two relational data sources (sql1,
// sql2) and one file data source (csv1), mirroring the fixtures spec §8's
// scenarios use.
func testStore(t *testing.T) *metadata.Store {
	t.Helper()
	types := sources.NewTypeRegistry()
	types.Add("PostgreSQL", nil, sources.ConnectorSpec{Class: sources.ClassRelational, FunctionModule: "relational"})
	types.Add("CSV", nil, sources.ConnectorSpec{Class: sources.ClassFile, FunctionModule: "force_all"})
	md := metadata.NewStore(types)
	for _, name := range []string{"sql1", "sql2"} {
		if err := md.PutDataSource(metadata.DataSourceSpec{Name: name, Type: "PostgreSQL"}); err != nil {
			t.Fatalf("PutDataSource(%s): %v", name, err)
		}
	}
	if err := md.PutDataSource(metadata.DataSourceSpec{Name: "csv1", Type: "CSV"}); err != nil {
		t.Fatalf("PutDataSource(csv1): %v", err)
	}
	return md
}

func mustParse(t *testing.T, q string) *parser.Query {
	t.Helper()
	query, err := parser.ParseQuery(q)
	if err != nil {
		t.Fatalf("ParseQuery(%q): %v", q, err)
	}
	return query
}

func TestPlan_SimpleSelect(t *testing.T) {
	md := testStore(t)
	q := mustParse(t, "SELECT s.id, s.name FROM sql1.t s")
	plan, err := Plan(q, md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Resources) != 1 {
		t.Fatalf("want 1 resource, got %d", len(plan.Resources))
	}
	rp := plan.Resources[0]
	if rp.Resource.Alias != "s" || rp.Join != nil {
		t.Fatalf("unexpected resource plan: %+v", rp)
	}
	if len(rp.Fields) != 2 || rp.Fields[0].Drop || rp.Fields[1].Drop {
		t.Fatalf("want 2 projected fields, got %+v", rp.Fields)
	}
}

func TestPlan_JoinRegistersRightResourceAndDropsKeys(t *testing.T) {
	md := testStore(t)
	q := mustParse(t, "SELECT s.id, c.name FROM sql1.t s INNER JOIN sql2.t c ON (s.id = c.sid)")
	plan, err := Plan(q, md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Resources) != 2 {
		t.Fatalf("want 2 resources, got %d", len(plan.Resources))
	}
	var join *ResourcePlan
	for i := range plan.Resources {
		if plan.Resources[i].Resource.Alias == "c" {
			join = &plan.Resources[i]
		}
	}
	if join == nil || join.Join == nil {
		t.Fatalf("expected join resource c with a JoinSpec, got %+v", plan.Resources)
	}
	var sidEntry *FieldEntry
	for i := range join.Fields {
		if join.Fields[i].Field == "sid" {
			sidEntry = &join.Fields[i]
		}
	}
	if sidEntry == nil || !sidEntry.Drop {
		t.Fatalf("expected dropped join-key fetch for c.sid, got %+v", join.Fields)
	}
}

// TestPlan_QualifiedStarTargetsJoinResource covers spec §3.1's Star{src}
// variant: "c.*" must mark the JOIN resource, not the FROM resource, as the
// one whose fetched schema gets expanded at projection time.
func TestPlan_QualifiedStarTargetsJoinResource(t *testing.T) {
	md := testStore(t)
	q := mustParse(t, "SELECT s.id, c.* FROM sql1.t s INNER JOIN sql2.t c ON (s.id = c.sid)")
	plan, err := Plan(q, md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	var from, join *ResourcePlan
	for i := range plan.Resources {
		switch plan.Resources[i].Resource.Alias {
		case "s":
			from = &plan.Resources[i]
		case "c":
			join = &plan.Resources[i]
		}
	}
	if from == nil || join == nil {
		t.Fatalf("expected both resources in the plan, got %+v", plan.Resources)
	}
	if from.Star {
		t.Fatalf("expected FROM resource s to not carry the star, got %+v", from)
	}
	if !join.Star {
		t.Fatalf("expected JOIN resource c to carry the star, got %+v", join)
	}
}

// TestPlan_UnknownStarAliasIsRejected covers a misspelled "alias.*" naming no
// resource in the query: it must surface the same unknown-alias
// ValidationError a misspelled field reference would, not silently vanish.
func TestPlan_UnknownStarAliasIsRejected(t *testing.T) {
	md := testStore(t)
	_, err := Plan(mustParse(t, "SELECT ghost.* FROM sql1.t s"), md)
	if err == nil || !engineerr.Is(err, engineerr.KindValidation) {
		t.Fatalf("expected ValidationError for unknown star alias, got %v", err)
	}
}

func TestPlan_UnknownDataSource(t *testing.T) {
	md := testStore(t)
	q := mustParse(t, "SELECT a.id FROM absent.t a")
	_, err := Plan(q, md)
	if err == nil {
		t.Fatalf("expected error for unknown data source")
	}
	if !engineerr.Is(err, engineerr.KindValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := err.Error(); got != "ValidationError[extract_segment_fields]: Data source(s) do not exist: absent" {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestPlan_UnknownAlias(t *testing.T) {
	md := testStore(t)
	q := mustParse(t, "SELECT ghost.id FROM sql1.t s")
	_, err := Plan(q, md)
	if err == nil || !engineerr.Is(err, engineerr.KindValidation) {
		t.Fatalf("expected ValidationError for unknown alias, got %v", err)
	}
}

func TestPlan_AggregateWithoutGroupByRequiresAllFieldsInFunction(t *testing.T) {
	md := testStore(t)
	_, err := Plan(mustParse(t, "SELECT s.id, SUM(s.amount) FROM sql1.t s"), md)
	if err == nil || !engineerr.Is(err, engineerr.KindValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	plan, err := Plan(mustParse(t, "SELECT SUM(s.amount), COUNT(*) FROM sql1.t s"), md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Funcs) != 2 || !plan.Funcs[0].Platform || !plan.Funcs[1].Platform {
		t.Fatalf("expected both calls classified as platform aggregates, got %+v", plan.Funcs)
	}
}

func TestPlan_GroupByRejectsUngroupedField(t *testing.T) {
	md := testStore(t)
	_, err := Plan(mustParse(t, "SELECT s.region, s.city, SUM(s.amount) FROM sql1.t s GROUP BY region"), md)
	if err == nil || !engineerr.Is(err, engineerr.KindValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPlan_GroupByAcceptsKeyAndAggregate(t *testing.T) {
	md := testStore(t)
	plan, err := Plan(mustParse(t, "SELECT s.region, SUM(s.amount) FROM sql1.t s GROUP BY region"), md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.GroupBy == nil || plan.GroupBy.Ref.Field != "region" {
		t.Fatalf("unexpected group by: %+v", plan.GroupBy)
	}
}

func TestPlan_GroupByRejectsStar(t *testing.T) {
	md := testStore(t)
	_, err := Plan(mustParse(t, "SELECT * FROM sql1.t s GROUP BY region"), md)
	if err == nil || !engineerr.Is(err, engineerr.KindValidation) {
		t.Fatalf("expected ValidationError for SELECT * with GROUP BY, got %v", err)
	}
}

func TestPlan_ScalarPushdownOnRelationalSource(t *testing.T) {
	md := testStore(t)
	plan, err := Plan(mustParse(t, "SELECT LOWER(s.name) FROM sql1.t s"), md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Funcs) != 1 || plan.Funcs[0].Platform {
		t.Fatalf("expected LOWER(name) to push down on a relational source, got %+v", plan.Funcs)
	}
	if plan.Funcs[0].Rendered != "LOWER(s.name)" {
		t.Fatalf("unexpected rendering: %q", plan.Funcs[0].Rendered)
	}
}

func TestPlan_ScalarForcedPlatformOnFileSource(t *testing.T) {
	md := testStore(t)
	plan, err := Plan(mustParse(t, "SELECT LOWER(s.name) FROM csv1.t s"), md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Funcs) != 1 || !plan.Funcs[0].Platform {
		t.Fatalf("expected LOWER(name) to stay platform-side on a file source, got %+v", plan.Funcs)
	}
}

func TestPlan_OrderByResolvesAliasOverBareField(t *testing.T) {
	md := testStore(t)
	plan, err := Plan(mustParse(t, "SELECT s.id AS region, s.region FROM sql1.t s ORDER BY region DESC"), md)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.OrderBy == nil || plan.OrderBy.Ref.Field != "id" {
		t.Fatalf("expected ORDER BY alias to win over the bare field, got %+v", plan.OrderBy)
	}
	if plan.OrderBy.Dir != parser.DirDesc {
		t.Fatalf("expected DESC, got %v", plan.OrderBy.Dir)
	}
}

func TestPlan_MultiColumnGroupByRejected(t *testing.T) {
	md := testStore(t)
	_, err := Plan(mustParse(t, "SELECT s.region, s.city, SUM(s.amount) FROM sql1.t s GROUP BY region, city"), md)
	if err == nil || !engineerr.Is(err, engineerr.KindValidation) {
		t.Fatalf("expected ValidationError for multi-column GROUP BY, got %v", err)
	}
}
