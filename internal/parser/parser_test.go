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

package parser

import (
	"reflect"
	"testing"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
)

func TestParseQuery_SimpleSelect(t *testing.T) {
	q, err := ParseQuery(`SELECT csv.name AS name, csv.age FROM csv.'people.csv' csv`)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if len(q.Select.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(q.Select.Fields))
	}
	f0, ok := q.Select.Fields[0].(FieldExprItem)
	if !ok {
		t.Fatalf("field 0 is %T, want FieldExprItem", q.Select.Fields[0])
	}
	if f0.Ident() != "name" || f0.Ref.Resource != "csv" || f0.Ref.Field != "name" {
		t.Fatalf("unexpected field 0: %+v", f0)
	}
	if q.Select.From.DataSource != "csv" || q.Select.From.Src != "people.csv" || q.Select.From.Alias != "csv" {
		t.Fatalf("unexpected FROM resource: %+v", q.Select.From)
	}
}

func TestParseQuery_LeftJoinOrderBy(t *testing.T) {
	sql := `SELECT csv.name AS name,json.category AS category FROM csv.'one.csv' csv LEFT JOIN json.'two.json' json ON (csv.id = json.id) ORDER BY csv.id ASC`
	q, err := ParseQuery(sql)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if q.Join == nil {
		t.Fatal("expected a JOIN segment")
	}
	if q.Join.Type != JoinLeft {
		t.Fatalf("expected LEFT join, got %v", q.Join.Type)
	}
	if q.Join.Right.DataSource != "json" || q.Join.Right.Src != "two.json" || q.Join.Right.Alias != "json" {
		t.Fatalf("unexpected join resource: %+v", q.Join.Right)
	}
	onLHS, ok := q.Join.On.P1.(FieldRefOperand)
	if !ok || onLHS.Ref != (FieldRef{Resource: "csv", Field: "id"}) {
		t.Fatalf("unexpected join ON lhs: %+v", q.Join.On.P1)
	}
	if q.OrderBy == nil || len(q.OrderBy.Items) != 1 {
		t.Fatalf("expected one ORDER BY item, got %+v", q.OrderBy)
	}
	attr, ok := q.OrderBy.Items[0].Attr.(FieldRefAttr)
	if !ok || attr.Ref.Field != "id" {
		t.Fatalf("unexpected ORDER BY attr: %+v", q.OrderBy.Items[0])
	}
	if q.OrderBy.Items[0].Dir != DirAsc {
		t.Fatalf("expected ASC, got %v", q.OrderBy.Items[0].Dir)
	}
}

func TestParseQuery_GroupByAggregateFunctions(t *testing.T) {
	sql := `SELECT db.region AS region, COUNT(db.id) AS total, AVG(db.amount) FROM db.orders db GROUP BY region ORDER BY total DESC LIMIT 10`
	q, err := ParseQuery(sql)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	fn, ok := q.Select.Fields[1].(FuncCallExpr)
	if !ok || fn.Func != FuncCount || fn.Ident() != "total" {
		t.Fatalf("unexpected field 1: %+v", q.Select.Fields[1])
	}
	fn2, ok := q.Select.Fields[2].(FuncCallExpr)
	if !ok || fn2.Func != FuncAvg || fn2.Ident() != "avg_2" {
		t.Fatalf("unexpected field 2: %+v", q.Select.Fields[2])
	}
	if q.GroupBy == nil || len(q.GroupBy.Attrs) != 1 {
		t.Fatalf("expected one GROUP BY attr, got %+v", q.GroupBy)
	}
	if _, ok := q.GroupBy.Attrs[0].(AliasRefAttr); !ok {
		t.Fatalf("expected GROUP BY to resolve to an alias ref, got %T", q.GroupBy.Attrs[0])
	}
	if q.Limit == nil || q.Limit.N != 10 {
		t.Fatalf("expected LIMIT 10, got %+v", q.Limit)
	}
}

func TestParseQuery_CountDistinct(t *testing.T) {
	q, err := ParseQuery(`SELECT COUNT(DISTINCT db.region) FROM db.orders db`)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	fn, ok := q.Select.Fields[0].(FuncCallExpr)
	if !ok || fn.Func != FuncCountDistinct {
		t.Fatalf("expected FuncCountDistinct, got %+v", q.Select.Fields[0])
	}
}

func TestParseQuery_Where(t *testing.T) {
	q, err := ParseQuery(`SELECT db.id FROM db.orders db WHERE db.amount > 100`)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if q.Where == nil {
		t.Fatal("expected a WHERE segment")
	}
	if q.Where.Clause.Op != OpGt {
		t.Fatalf("expected OpGt, got %v", q.Where.Clause.Op)
	}
	rhs, ok := q.Where.Clause.P2.(NumberOperand)
	if !ok || rhs.Value != "100" {
		t.Fatalf("unexpected WHERE rhs: %+v", q.Where.Clause.P2)
	}
}

func TestParseQuery_RejectsHaving(t *testing.T) {
	_, err := ParseQuery(`SELECT db.region FROM db.orders db GROUP BY region HAVING COUNT(db.id) > 1`)
	if err == nil {
		t.Fatal("expected a parse error for HAVING, got nil")
	}
	if !engineerr.Is(err, engineerr.KindParse) {
		t.Fatalf("expected a KindParse error, got %v", err)
	}
}

func TestParseQuery_UnexpectedTrailingInput(t *testing.T) {
	_, err := ParseQuery(`SELECT db.id FROM db.orders db LIMIT 5 extra`)
	if err == nil {
		t.Fatal("expected an error for trailing input")
	}
	if !engineerr.Is(err, engineerr.KindParse) {
		t.Fatalf("expected a KindParse error, got %v", err)
	}
}

func TestParseQuery_LowercaseKeywordIsRejected(t *testing.T) {
	// Keyword casing is significant: "select" lexes as IDENT, not SELECT.
	_, err := ParseQuery(`select db.id from db.orders db`)
	if err == nil {
		t.Fatal("expected an error for lowercase keywords")
	}
}

func TestParseQuery_Deterministic(t *testing.T) {
	sql := `SELECT csv.name AS name,json.category AS category FROM csv.'one.csv' csv LEFT JOIN json.'two.json' json ON (csv.id = json.id) ORDER BY csv.id ASC`
	q1, err := ParseQuery(sql)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	q2, err := ParseQuery(sql)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if !reflect.DeepEqual(q1, q2) {
		t.Fatalf("parsing the same query twice produced different ASTs:\n%+v\n%+v", q1, q2)
	}
}

func TestParseQuery_StarAndCountStar(t *testing.T) {
	q, err := ParseQuery(`SELECT *, COUNT(*) AS total FROM db.orders db`)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if _, ok := q.Select.Fields[0].(StarExpr); !ok {
		t.Fatalf("expected a StarExpr, got %T", q.Select.Fields[0])
	}
	fn, ok := q.Select.Fields[1].(FuncCallExpr)
	if !ok || len(fn.Params) != 1 {
		t.Fatalf("unexpected COUNT(*) field: %+v", q.Select.Fields[1])
	}
	if _, ok := fn.Params[0].(StarParam); !ok {
		t.Fatalf("expected StarParam, got %T", fn.Params[0])
	}
}

// TestParseQuery_QualifiedStar covers spec §3.1's Star{src} variant: an
// alias-qualified "alias.*" select item, distinct from the bare "*" form.
func TestParseQuery_QualifiedStar(t *testing.T) {
	q, err := ParseQuery(`SELECT s.* FROM db.orders s`)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if len(q.Select.Fields) != 1 {
		t.Fatalf("expected 1 select field, got %+v", q.Select.Fields)
	}
	star, ok := q.Select.Fields[0].(StarExpr)
	if !ok {
		t.Fatalf("expected a StarExpr, got %T", q.Select.Fields[0])
	}
	if star.Src != "s" {
		t.Fatalf("expected Src %q, got %q", "s", star.Src)
	}
}

// TestParseQuery_BareStarHasEmptySrc covers the other half of the same
// variant: a bare "*" still parses, with an empty Src for the planner to
// bind to the FROM resource.
func TestParseQuery_BareStarHasEmptySrc(t *testing.T) {
	q, err := ParseQuery(`SELECT * FROM db.orders s`)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	star, ok := q.Select.Fields[0].(StarExpr)
	if !ok {
		t.Fatalf("expected a StarExpr, got %T", q.Select.Fields[0])
	}
	if star.Src != "" {
		t.Fatalf("expected empty Src for a bare star, got %q", star.Src)
	}
}
