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

// Package planner validates a parsed query, partitions work between the
// connectors and the engine, and produces a Plan the engine executes. It
// mirrors spec §4.5's seven-stage pipeline, one file per stage, each
// short-circuiting with a stage-tagged error.
package planner

import (
	"fmt"

	"github.com/googleapis/toolbox-federate/internal/parser"
)

// FieldEntry is one native field a resource's fetch plan must produce. Index
// is the field's ordinal position in the SELECT list (the `_index` slot of
// spec §4.1), or -1 if the field is not directly projected. Drop marks an
// attribute fetched only to serve a join key, filter, group key, or function
// parameter — never emitted in the final projection (spec §4.5's "drop
// flag").
type FieldEntry struct {
	Field       string
	OutputAlias string
	Index       int
	Drop        bool
}

// FuncEntry is one SELECT-list function call together with its pushdown
// classification (spec §4.5 stage 4).
type FuncEntry struct {
	Call     parser.FuncCallExpr
	Platform bool
	// PushdownSrc and Rendered are set only when Platform is false: the
	// single resource alias the call pushes down to, and the source-side
	// expression a Capability rendered for it.
	PushdownSrc string
	Rendered    string
}

// JoinSpec is the merge action the engine applies once a resource's rows
// are fetched (spec §4.5 stage 7's "merge_action"). nil for the base SELECT
// resource.
type JoinSpec struct {
	Type   parser.JoinType
	Clause parser.BinaryClause
}

// ResourcePlan is everything the engine needs to fetch and, if applicable,
// merge one resource's rows.
type ResourcePlan struct {
	Resource      parser.Resource
	Fields        []FieldEntry
	Star          bool
	PushdownFuncs []FuncEntry
	Join          *JoinSpec
}

// Plan is the planner's complete output: per-resource fetch descriptors,
// the classified SELECT-list function calls (in declaration order), and the
// post-fetch segments the engine evaluates after the fetched streams are in
// memory.
type Plan struct {
	Query     *parser.Query
	Resources []ResourcePlan
	Funcs     []FuncEntry
	Where     *parser.WhereSegment
	GroupBy   *resolvedGroupBy
	OrderBy   *resolvedOrderBy
	Limit     *parser.LimitSegment
}

// resolvedGroupBy carries the GROUP BY attribute already disambiguated
// between an output alias and a source field, per the Open Question
// decision in DESIGN.md (AliasRef wins when both would match).
type resolvedGroupBy struct {
	IsFuncAlias bool
	FuncIndex   int
	Ref         parser.FieldRef
}

// resolvedOrderBy carries the ORDER BY attribute, resolved the same way as
// resolvedGroupBy, plus its direction.
type resolvedOrderBy struct {
	IsFuncAlias bool
	FuncIndex   int
	Ref         parser.FieldRef
	Dir         parser.Direction
}

// aliasTarget is what a SELECT-list alias resolves to: either a plain
// source field, or one of the SELECT-list function calls (by its index
// into planState.funcs).
type aliasTarget struct {
	isFunc    bool
	ref       parser.FieldRef
	funcIndex int
}

// planState is the mutable working state threaded through the seven stages.
type planState struct {
	query *parser.Query

	resources     map[string]parser.Resource
	resourceOrder []string

	fields       map[string][]*FieldEntry
	resourceStar map[string]bool

	funcs []*FuncEntry

	aliasMap map[string]aliasTarget

	hasAggregate bool
	groupBy      *resolvedGroupBy
}

func newPlanState(q *parser.Query) *planState {
	return &planState{
		query:        q,
		resources:    map[string]parser.Resource{},
		fields:       map[string][]*FieldEntry{},
		resourceStar: map[string]bool{},
		aliasMap:     map[string]aliasTarget{},
	}
}

func (ps *planState) addResource(r parser.Resource) {
	if _, ok := ps.resources[r.Alias]; ok {
		return
	}
	ps.resources[r.Alias] = r
	ps.resourceOrder = append(ps.resourceOrder, r.Alias)
	ps.fields[r.Alias] = nil
}

// fieldEntryFor returns the existing FieldEntry for (alias, field) if
// present, else nil.
func (ps *planState) fieldEntryFor(alias, field string) *FieldEntry {
	for _, fe := range ps.fields[alias] {
		if fe.Field == field {
			return fe
		}
	}
	return nil
}

// ensureField appends a dropped FieldEntry for (alias, field) if no entry
// for it exists yet. It never downgrades an already-projected field.
func (ps *planState) ensureField(ref parser.FieldRef) {
	if ps.fieldEntryFor(ref.Resource, ref.Field) != nil {
		return
	}
	ps.fields[ref.Resource] = append(ps.fields[ref.Resource], &FieldEntry{
		Field: ref.Field,
		Index: -1,
		Drop:  true,
	})
}

// resolveAttr disambiguates a GROUP BY / ORDER BY attribute between a
// SELECT-list alias and a bare source field name, per the Open Question
// decision recorded in DESIGN.md: an AliasRef match wins when present;
// otherwise the first resource (in fetch order) carrying a field of that
// bare name is used.
func (ps *planState) resolveAttr(attr parser.AttrRef) (isFuncAlias bool, funcIndex int, ref parser.FieldRef, err error) {
	switch a := attr.(type) {
	case parser.FieldRefAttr:
		return false, -1, a.Ref, nil
	case parser.AliasRefAttr:
		if target, ok := ps.aliasMap[a.Alias]; ok {
			if target.isFunc {
				return true, target.funcIndex, parser.FieldRef{}, nil
			}
			return false, -1, target.ref, nil
		}
		for _, rAlias := range ps.resourceOrder {
			if ps.fieldEntryFor(rAlias, a.Alias) != nil {
				return false, -1, parser.FieldRef{Resource: rAlias, Field: a.Alias}, nil
			}
		}
		return false, -1, parser.FieldRef{}, fmt.Errorf("%q does not match any select alias or field", a.Alias)
	default:
		return false, -1, parser.FieldRef{}, fmt.Errorf("unrecognized attribute reference %T", attr)
	}
}
