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
	"fmt"
	"sort"
	"strings"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/metadata"
	"github.com/googleapis/toolbox-federate/internal/parser"
)

const stageExtractSegmentFields = "extract_segment_fields"

// extractSegmentFields registers the JOIN resource (if any), walks every
// non-SELECT segment for field references not already in the projection
// and appends them as dropped fetch attributes, then validates that every
// referenced alias is one of the query's known resources and that every
// resource's data source actually exists, per spec §4.5 stage 3.
func extractSegmentFields(ps *planState, md *metadata.Store) error {
	if ps.query.Join != nil {
		ps.addResource(ps.query.Join.Right)
		if err := ensureOperand(ps, ps.query.Join.On.P1); err != nil {
			return err
		}
		if err := ensureOperand(ps, ps.query.Join.On.P2); err != nil {
			return err
		}
	}
	if ps.query.Where != nil {
		if err := ensureOperand(ps, ps.query.Where.Clause.P1); err != nil {
			return err
		}
		if err := ensureOperand(ps, ps.query.Where.Clause.P2); err != nil {
			return err
		}
	}
	if ps.query.GroupBy != nil {
		for _, attr := range ps.query.GroupBy.Attrs {
			if err := ensureAttr(ps, attr); err != nil {
				return err
			}
		}
	}
	if ps.query.OrderBy != nil {
		for _, item := range ps.query.OrderBy.Items {
			if err := ensureAttr(ps, item.Attr); err != nil {
				return err
			}
		}
	}

	if err := validateAliases(ps); err != nil {
		return err
	}
	return validateDataSources(ps, md)
}

func ensureOperand(ps *planState, op parser.Operand) error {
	if ref, ok := op.(parser.FieldRefOperand); ok {
		ps.ensureField(ref.Ref)
	}
	return nil
}

func ensureAttr(ps *planState, attr parser.AttrRef) error {
	switch a := attr.(type) {
	case parser.FieldRefAttr:
		ps.ensureField(a.Ref)
	case parser.AliasRefAttr:
		// Resolution against the alias map happens later (resolveAttr in
		// types.go, called from stages 5 and 7); nothing to fetch here unless it
		// resolves to a plain field, which ensureField already covers via
		// extractSelectFields/ensureField for that field's own occurrence.
	}
	return nil
}

func validateAliases(ps *planState) error {
	var unknown []string
	seen := map[string]bool{}
	mark := func(alias string) {
		if _, ok := ps.resources[alias]; !ok && !seen[alias] {
			seen[alias] = true
			unknown = append(unknown, alias)
		}
	}
	for alias := range ps.fields {
		mark(alias)
	}
	for alias := range ps.resourceStar {
		mark(alias)
	}
	for _, fe := range ps.funcs {
		for _, p := range fe.Call.Params {
			if fp, ok := p.(parser.FuncFieldParam); ok {
				mark(fp.Ref.Resource)
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return engineerr.New(engineerr.KindValidation, stageExtractSegmentFields,
		fmt.Sprintf("unknown resource alias(es): %s", strings.Join(unknown, ", ")))
}

func validateDataSources(ps *planState, md *metadata.Store) error {
	var missing []string
	seen := map[string]bool{}
	for _, alias := range ps.resourceOrder {
		ds := ps.resources[alias].DataSource
		if seen[ds] {
			continue
		}
		if _, err := md.DataSource(ds); err != nil {
			seen[ds] = true
			missing = append(missing, ds)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return engineerr.New(engineerr.KindValidation, stageExtractSegmentFields,
		fmt.Sprintf("Data source(s) do not exist: %s", strings.Join(missing, ", ")))
}
